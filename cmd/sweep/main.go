// Command sweep runs the bulk alarm recompute over every record and exits.
// Run it after incidents that may have left alarm flags inconsistent with the
// conversation history; rerunning over a consistent database is a no-op.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"tramita/internal/catalog"
	"tramita/internal/conversation"
	convstore "tramita/internal/conversation/store"
	"tramita/internal/platform/config"
	"tramita/internal/platform/logger"
	"tramita/internal/platform/postgres"
	platformredis "tramita/internal/platform/redis"
	"tramita/internal/recovery"
	recordstore "tramita/internal/record/store"
	"tramita/pkg/tx"
)

func main() {
	concurrency := flag.Int("concurrency", 8, "records recomputed in parallel")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall sweep deadline")
	flag.Parse()

	cfg := config.FromEnv()
	log := logger.New()

	db, err := postgres.Open(cfg.Postgres.DSN)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	if db == nil {
		log.Error("sweep needs a configured postgres backend")
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	records := recordstore.NewPostgres(db)
	convs := convstore.NewPostgres(db)
	var unread conversation.UnreadStore = convstore.NewPostgresUnread(db)
	if redisClient != nil {
		unread = convstore.NewRedisUnread(redisClient.Client)
	}

	engine := conversation.NewEngine(convs, unread, records, &catalog.StaticChannels{}, tx.SQLRunner{DB: db},
		conversation.WithLogger(log),
		conversation.WithObligations(conversation.NewStoreObligations(convs)),
	)
	sweeper := recovery.NewSweeper(records, engine,
		recovery.WithConcurrency(*concurrency),
		recovery.WithLogger(log),
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := sweeper.RecomputeAlarms(ctx); err != nil {
		log.Error("alarm sweep failed", "error", err)
		os.Exit(1)
	}
}
