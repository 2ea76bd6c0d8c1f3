package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/gosuda/subtrack/internal/domain"
)

const memoryPath = ":memory:"

var schema = []string{ //nolint:gochecknoglobals // static DDL
	`CREATE TABLE IF NOT EXISTS subs_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT,
		user_id TEXT,
		event TEXT NOT NULL CHECK (event IN ('subscribe', 'unsubscribe')),
		source TEXT NOT NULL,
		ts TEXT NOT NULL,
		ts_unix INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subs_audit_event_ts ON subs_audit(event, ts_unix)`,
}

// Store is the SQLite-backed append-only audit log. Writes are serialized
// through mu; counts are single statements and read one consistent snapshot.
type Store struct {
	db    *sql.DB
	mu    sync.Mutex
	clock func() time.Time
}

var _ domain.EventRepository = (*Store)(nil) //nolint:gochecknoglobals // compile-time check

// Option configures optional Store parameters.
type Option func(*Store)

// WithClock replaces the clock used to stamp appended events.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// New opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func New(ctx context.Context, path string, opts ...Option) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite.New: database path is required")
	}

	dsn := memoryPath
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite.New: create dir: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open: %w", err)
	}
	if path == memoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.New: ping: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite.New: init schema: %w", err)
		}
	}

	s := &Store{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ping checks that the database file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite.Store.Ping: %w", domain.NewStoreError("ping", err))
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite.Store.Close: %w", err)
	}
	return nil
}

// Append inserts one event. The ISO-8601 ts column keeps the zone offset for
// humans; ts_unix is what range queries compare.
func (s *Store) Append(ctx context.Context, ev domain.NewAuditEvent, loc *time.Location) (*domain.AuditEvent, error) {
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("sqlite.Store.Append: %w", err)
	}
	if loc == nil {
		return nil, fmt.Errorf("sqlite.Store.Append: %w", domain.ErrNilLocation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.clock().In(loc)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subs_audit (email, user_id, event, source, ts, ts_unix) VALUES (?, ?, ?, ?, ?, ?)`,
		nullString(ev.Email), nullString(ev.UserID), string(ev.Kind), ev.Source,
		ts.Format(time.RFC3339Nano), ts.UnixNano(),
	)
	if err != nil {
		return nil, domain.NewStoreError("append", err)
	}
	id, err := res.LastInsertId()
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

func (s *Store) CountInRange(ctx context.Context, kind domain.EventKind, start, end time.Time) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("sqlite.Store.CountInRange: %w: %q", domain.ErrUnknownEventKind, kind)
	}
	if end.Before(start) {
		return 0, fmt.Errorf("sqlite.Store.CountInRange: %w: end %s before start %s", domain.ErrInvalidRange, end, start)
	}

	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subs_audit WHERE event = ? AND ts_unix >= ? AND ts_unix < ?`,
		string(kind), start.UnixNano(), end.UnixNano(),
	).Scan(&n)
	if err != nil {
		return 0, domain.NewStoreError("count in range", err)
	}
	return n, nil
}

func (s *Store) TotalCount(ctx context.Context, kind domain.EventKind) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("sqlite.Store.TotalCount: %w: %q", domain.ErrUnknownEventKind, kind)
	}

	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subs_audit WHERE event = ?`, string(kind),
	).Scan(&n)
	if err != nil {
		return 0, domain.NewStoreError("total count", err)
	}
	return n, nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
