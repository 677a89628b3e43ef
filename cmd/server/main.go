package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tramita/internal/audit"
	auditstore "tramita/internal/audit/store"
	"tramita/internal/authorize"
	authzstore "tramita/internal/authorize/store"
	"tramita/internal/catalog"
	"tramita/internal/conversation"
	convhandler "tramita/internal/conversation/handler"
	convstore "tramita/internal/conversation/store"
	"tramita/internal/hierarchy"
	hierarchystore "tramita/internal/hierarchy/store"
	"tramita/internal/lifecycle"
	"tramita/internal/platform/config"
	"tramita/internal/platform/httpserver"
	"tramita/internal/platform/logger"
	"tramita/internal/platform/metrics"
	"tramita/internal/platform/middleware"
	"tramita/internal/platform/postgres"
	platformredis "tramita/internal/platform/redis"
	"tramita/internal/reassign"
	reassignstore "tramita/internal/reassign/store"
	"tramita/internal/record"
	recordhandler "tramita/internal/record/handler"
	recordstore "tramita/internal/record/store"
	"tramita/internal/token"
	"tramita/pkg/tx"
)

// main wires the dependency graph and keeps the server lifecycle small.
// Business logic lives in the internal services; every backend is optional
// and falls back to an in-memory implementation when unconfigured.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	db, err := postgres.Open(cfg.Postgres.DSN)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var runner tx.Runner = tx.Noop{}
	if db != nil {
		runner = tx.SQLRunner{DB: db}
	}

	var (
		groups  hierarchy.Store
		records record.Store
		events  reassign.EventStore
		convs   conversation.Store
		unread  conversation.UnreadStore
		perms   authorize.PermissionLookup
	)
	if db != nil {
		groups = hierarchystore.NewPostgres(db)
		records = recordstore.NewPostgres(db)
		events = reassignstore.NewPostgres(db)
		convs = convstore.NewPostgres(db)
		unread = convstore.NewPostgresUnread(db)
		perms = authzstore.NewPostgres(db)
	} else {
		groups = hierarchystore.NewInMemory()
		records = recordstore.NewInMemory()
		events = reassignstore.NewInMemory()
		convs = convstore.NewInMemory()
		unread = convstore.NewInMemoryUnread()
		perms = authzstore.NewInMemory()
		log.Warn("no postgres configured, using in-memory stores")
	}
	if redisClient != nil {
		unread = convstore.NewRedisUnread(redisClient.Client)
	}

	var sink audit.Sink = auditstore.NewInMemory()
	if len(cfg.Kafka.Brokers) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := audit.EnsureTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		cancel()
		if err != nil {
			log.Error("audit topic setup failed", "error", err)
			os.Exit(1)
		}
		kafkaSink, err := audit.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			log.Error("kafka connection failed", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
	} else {
		log.Warn("no kafka brokers configured, audit events stay in memory")
	}
	publisher := audit.NewPublisher(sink,
		audit.WithAsyncBuffer(256),
		audit.WithPublisherLogger(log),
	)
	defer publisher.Close()

	tree := hierarchy.NewService(groups)
	cat := catalog.Default()
	machine := lifecycle.NewMachine(cat)
	themes := &catalog.StaticThemes{DefaultDays: 30}
	channels := &catalog.StaticChannels{}
	resolver := reassign.NewResolver(tree, groups, events, themes,
		reassign.WithLogger(log),
	)

	recordService := record.NewService(records, groups, machine, resolver, events, channels, cat, runner,
		record.WithLogger(log),
		record.WithAuditSink(publisher),
		record.WithMetrics(m),
	)
	engine := conversation.NewEngine(convs, unread, records, channels, runner,
		conversation.WithLogger(log),
		conversation.WithAuditSink(publisher),
		conversation.WithMetrics(m),
		conversation.WithObligations(conversation.NewStoreObligations(convs)),
	)
	evaluator := authorize.NewEvaluator(perms, groups, machine,
		authorize.WithLogger(log),
		authorize.WithMetrics(m),
	)

	tokens := token.NewService(cfg.Server.JWTSigningKey, "tramita", "tramita-api")
	validator := tokenValidator{tokens}

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	recordhandler.New(recordService, records, groups, machine, resolver, events, evaluator, log, m, validator).Register(router)
	convhandler.New(engine, convs, unread, log, m, validator).Register(router)

	srv := httpserver.New(cfg.Server.Addr, router)

	log.Info("starting tramita", "addr", cfg.Server.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}

// tokenValidator adapts the token service to the middleware contract.
type tokenValidator struct {
	tokens *token.Service
}

func (v tokenValidator) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := v.tokens.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.JWTClaims{
		UserID:  claims.UserID,
		GroupID: claims.Group(),
	}, nil
}
