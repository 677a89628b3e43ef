package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"tramita/internal/domain"
	"tramita/pkg/sentinel"
	"tramita/pkg/tx"
)

// Postgres persists records. GetForUpdate takes the row lock that serializes
// concurrent transitions on the same record; Save writes only the fields the
// caller names.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const recordColumns = `
	id, process_type, record_state, theme_id, responsible_profile, creation_group,
	created_at, closed_at, claims_number, reassignment_not_allowed, mayorship,
	applicant_blocked, theme_invalidated,
	alarm, pend_applicant_response, applicant_response,
	response_to_responsible, pend_response_responsible, citizen_alarm`

func (s *Postgres) Get(ctx context.Context, id uuid.UUID) (*domain.Record, error) {
	return s.get(ctx, id, false)
}

func (s *Postgres) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Record, error) {
	return s.get(ctx, id, true)
}

func (s *Postgres) get(ctx context.Context, id uuid.UUID, lock bool) (*domain.Record, error) {
	q := `SELECT ` + recordColumns + ` FROM records WHERE id = $1`
	if lock {
		q += ` FOR UPDATE`
	}
	var row *sql.Row
	if t, ok := tx.From(ctx); ok {
		row = t.QueryRowContext(ctx, q, id)
	} else {
		row = s.db.QueryRowContext(ctx, q, id)
	}

	var (
		r           domain.Record
		responsible int64
		creation    int64
		closedAt    sql.NullTime
	)
	err := row.Scan(
		&r.ID, &r.ProcessType, &r.State, &r.ThemeID, &responsible, &creation,
		&r.CreatedAt, &closedAt, &r.ClaimsNumber, &r.ReassignmentNotAllowed, &r.Mayorship,
		&r.ApplicantBlocked, &r.ThemeInvalidated,
		&r.Alarms.Alarm, &r.Alarms.PendApplicantResponse, &r.Alarms.ApplicantResponse,
		&r.Alarms.ResponseToResponsible, &r.Alarms.PendResponseResponsible, &r.Alarms.CitizenAlarm,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	r.ResponsibleID = domain.GroupID(responsible)
	r.CreationGroup = domain.GroupID(creation)
	if closedAt.Valid {
		t := closedAt.Time
		r.ClosedAt = &t
	}
	return &r, nil
}

func (s *Postgres) Create(ctx context.Context, r *domain.Record) error {
	q := `
		INSERT INTO records (` + strings.TrimSpace(recordColumns) + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	args := []any{
		r.ID, string(r.ProcessType), string(r.State), r.ThemeID,
		int64(r.ResponsibleID), int64(r.CreationGroup),
		r.CreatedAt, r.ClosedAt, r.ClaimsNumber, r.ReassignmentNotAllowed, r.Mayorship,
		r.ApplicantBlocked, r.ThemeInvalidated,
		r.Alarms.Alarm, r.Alarms.PendApplicantResponse, r.Alarms.ApplicantResponse,
		r.Alarms.ResponseToResponsible, r.Alarms.PendResponseResponsible, r.Alarms.CitizenAlarm,
	}
	var err error
	if t, ok := tx.From(ctx); ok {
		_, err = t.ExecContext(ctx, q, args...)
	} else {
		_, err = s.db.ExecContext(ctx, q, args...)
	}
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

// Save updates exactly the named fields. Untouched columns are never
// rewritten.
func (s *Postgres) Save(ctx context.Context, r *domain.Record, fields ...domain.Field) error {
	if len(fields) == 0 {
		return nil
	}
	set := make([]string, 0, len(fields))
	args := []any{r.ID}
	for _, f := range fields {
		val, err := fieldValue(r, f)
		if err != nil {
			return err
		}
		args = append(args, val)
		set = append(set, fmt.Sprintf("%s = $%d", string(f), len(args)))
	}
	q := `UPDATE records SET ` + strings.Join(set, ", ") + ` WHERE id = $1`

	var (
		res sql.Result
		err error
	)
	if t, ok := tx.From(ctx); ok {
		res, err = t.ExecContext(ctx, q, args...)
	} else {
		res, err = s.db.ExecContext(ctx, q, args...)
	}
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("record %s: %w", r.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *Postgres) IDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("record ids: %w", err)
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan record id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func fieldValue(r *domain.Record, f domain.Field) (any, error) {
	switch f {
	case domain.FieldState:
		return string(r.State), nil
	case domain.FieldClosedAt:
		return r.ClosedAt, nil
	case domain.FieldClaimsNumber:
		return r.ClaimsNumber, nil
	case domain.FieldResponsible:
		return int64(r.ResponsibleID), nil
	case domain.FieldReassignmentNotAllowed:
		return r.ReassignmentNotAllowed, nil
	case domain.FieldAlarm:
		return r.Alarms.Alarm, nil
	case domain.FieldPendApplicantResponse:
		return r.Alarms.PendApplicantResponse, nil
	case domain.FieldApplicantResponse:
		return r.Alarms.ApplicantResponse, nil
	case domain.FieldResponseToResponsible:
		return r.Alarms.ResponseToResponsible, nil
	case domain.FieldPendResponseResponsible:
		return r.Alarms.PendResponseResponsible, nil
	case domain.FieldCitizenAlarm:
		return r.Alarms.CitizenAlarm, nil
	default:
		return nil, fmt.Errorf("unknown record field %q: %w", f, sentinel.ErrInvalidState)
	}
}
