package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/subtrack/internal/domain"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS subs_audit (
	id BIGSERIAL PRIMARY KEY,
	email TEXT,
	user_id TEXT,
	event TEXT NOT NULL CHECK (event IN ('subscribe', 'unsubscribe')),
	source TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_subs_audit_event_ts ON subs_audit (event, ts);`

// AuditRepo stores audit events in PostgreSQL. Each INSERT is its own
// transaction, so concurrent appends need no extra locking here.
type AuditRepo struct {
	pool  *pgxpool.Pool
	clock func() time.Time
}

var _ domain.EventRepository = (*AuditRepo)(nil) //nolint:gochecknoglobals // compile-time check

func NewAuditRepo(pool *pgxpool.Pool, clock func() time.Time) *AuditRepo {
	if clock == nil {
		clock = time.Now
	}
	return &AuditRepo{pool: pool, clock: clock}
}

func (r *AuditRepo) Append(ctx context.Context, ev domain.NewAuditEvent, loc *time.Location) (*domain.AuditEvent, error) {
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("auditRepo.Append: %w", err)
	}
	if loc == nil {
		return nil, fmt.Errorf("auditRepo.Append: %w", domain.ErrNilLocation)
	}

	ts := r.clock().In(loc)
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO subs_audit (email, user_id, event, source, ts)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		ev.Email, ev.UserID, string(ev.Kind), ev.Source, ts,
	).Scan(&id)
	if err != nil {
		return nil, domain.NewStoreError("append", err)
	}

	return &domain.AuditEvent{
		ID:        id,
		Email:     ev.Email,
		UserID:    ev.UserID,
		Kind:      ev.Kind,
		Source:    ev.Source,
		Timestamp: ts,
	}, nil
}

func (r *AuditRepo) CountInRange(ctx context.Context, kind domain.EventKind, start, end time.Time) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("auditRepo.CountInRange: %w: %q", domain.ErrUnknownEventKind, kind)
	}
	if end.Before(start) {
		return 0, fmt.Errorf("auditRepo.CountInRange: %w", domain.ErrInvalidRange)
	}

	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM subs_audit WHERE event = $1 AND ts >= $2 AND ts < $3`,
		string(kind), start, end,
	).Scan(&count)
	if err != nil {
		return 0, domain.NewStoreError("count in range", err)
	}

	return count, nil
}

func (r *AuditRepo) TotalCount(ctx context.Context, kind domain.EventKind) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("auditRepo.TotalCount: %w: %q", domain.ErrUnknownEventKind, kind)
	}

	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM subs_audit WHERE event = $1`, string(kind),
	).Scan(&count)
	if err != nil {
		return 0, domain.NewStoreError("total count", err)
	}

	return count, nil
}
