package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/lib/pq"

	"tramita/internal/domain"
	"tramita/internal/hierarchy"
	"tramita/pkg/sentinel"
)

// Postgres persists the group tree. Plates are indexed with text_pattern_ops
// so prefix queries stay cheap.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const groupColumns = `id, name, parent_id, plate, is_ambit, ambit_coordinator_id`

func (s *Postgres) Get(ctx context.Context, id domain.GroupID) (*domain.Group, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM groups WHERE id = $1`, int64(id))
	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("group %d: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return s.attachEdges(ctx, g)
}

func (s *Postgres) ByIDs(ctx context.Context, ids []domain.GroupID) ([]*domain.Group, error) {
	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+groupColumns+` FROM groups WHERE id = ANY($1)`, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("groups by ids: %w", err)
	}
	byID, err := collectGroups(rows)
	if err != nil {
		return nil, err
	}
	// Preserve the caller's order; a missing id is a data fault.
	out := make([]*domain.Group, 0, len(ids))
	for _, id := range ids {
		g, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("group %d: %w", id, sentinel.ErrNotFound)
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *Postgres) ByPlatePrefix(ctx context.Context, prefix string) ([]*domain.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+groupColumns+` FROM groups WHERE plate LIKE $1 || '%' ORDER BY id`, prefix)
	if err != nil {
		return nil, fmt.Errorf("groups by plate prefix: %w", err)
	}
	byID, err := collectGroups(rows)
	if err != nil {
		return nil, err
	}
	return orderedValues(byID), nil
}

func (s *Postgres) All(ctx context.Context) ([]*domain.Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+groupColumns+` FROM groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("all groups: %w", err)
	}
	byID, err := collectGroups(rows)
	if err != nil {
		return nil, err
	}
	return orderedValues(byID), nil
}

func (s *Postgres) ApplyTreeSnapshot(ctx context.Context, updates []hierarchy.TreeUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tree snapshot: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE groups
		SET parent_id = COALESCE($2, parent_id),
		    plate = CASE WHEN $3 = '' THEN plate ELSE $3 END,
		    ambit_coordinator_id = $4
		WHERE id = $1
	`)
	if err != nil {
		return fmt.Errorf("prepare tree snapshot: %w", err)
	}
	defer stmt.Close()

	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx,
			int64(u.ID), nullableID(u.ParentID), u.Plate, nullableID(u.AmbitCoordinatorID)); err != nil {
			return fmt.Errorf("apply tree snapshot for group %d: %w", u.ID, err)
		}
	}
	return tx.Commit()
}

// attachEdges loads the explicit outgoing reassignment edges for one group.
func (s *Postgres) attachEdges(ctx context.Context, g *domain.Group) (*domain.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT target_id FROM group_reassign_edges WHERE group_id = $1 ORDER BY target_id`, int64(g.ID))
	if err != nil {
		return nil, fmt.Errorf("group edges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var target int64
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("scan group edge: %w", err)
		}
		g.ReassignTargets = append(g.ReassignTargets, domain.GroupID(target))
	}
	return g, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (*domain.Group, error) {
	var (
		g      domain.Group
		id     int64
		parent sql.NullInt64
		coord  sql.NullInt64
	)
	if err := row.Scan(&id, &g.Name, &parent, &g.Plate, &g.IsAmbit, &coord); err != nil {
		return nil, err
	}
	g.ID = domain.GroupID(id)
	if parent.Valid {
		p := domain.GroupID(parent.Int64)
		g.ParentID = &p
	}
	if coord.Valid {
		c := domain.GroupID(coord.Int64)
		g.AmbitCoordinatorID = &c
	}
	return &g, nil
}

func collectGroups(rows *sql.Rows) (map[domain.GroupID]*domain.Group, error) {
	defer rows.Close()
	out := make(map[domain.GroupID]*domain.Group)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out[g.ID] = g
	}
	return out, rows.Err()
}

func orderedValues(byID map[domain.GroupID]*domain.Group) []*domain.Group {
	ids := make([]domain.GroupID, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*domain.Group, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out
}

func nullableID(id *domain.GroupID) any {
	if id == nil {
		return nil
	}
	return int64(*id)
}
