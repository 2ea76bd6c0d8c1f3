package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/subtrack/internal/domain"
	"github.com/gosuda/subtrack/internal/store/sqlite"
)

func newStore(t *testing.T, opts ...sqlite.Option) *sqlite.Store {
	t.Helper()

	s, err := sqlite.New(t.Context(), filepath.Join(t.TempDir(), "subs.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func TestStore_AppendThenCount(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2024, 5, 14, 10, 30, 0, 0, time.UTC)
	s := newStore(t, sqlite.WithClock(func() time.Time { return fixed }))
	ctx := t.Context()

	for _, kind := range domain.EventKinds() {
		t.Run(string(kind), func(t *testing.T) {
			before, err := s.CountInRange(ctx, kind, fixed.Add(-time.Hour), fixed.Add(time.Hour))
			require.NoError(t, err)

			ev, err := s.Append(ctx, domain.NewAuditEvent{
				Email:  strPtr("a@example.com"),
				Kind:   kind,
				Source: domain.SourceGetCourse,
			}, time.UTC)
			require.NoError(t, err)
			assert.Positive(t, ev.ID)
			assert.Equal(t, kind, ev.Kind)
			assert.Nil(t, ev.UserID)

			after, err := s.CountInRange(ctx, kind, fixed.Add(-time.Hour), fixed.Add(time.Hour))
			require.NoError(t, err)
			assert.Equal(t, before+1, after)
		})
	}
}

func TestStore_AppendAssignsIncreasingIDs(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := t.Context()

	var last int64
	for range 5 {
		ev, err := s.Append(ctx, domain.NewAuditEvent{Kind: domain.EventKindSubscribe, Source: domain.SourceGetCourse}, time.UTC)
		require.NoError(t, err)
		assert.Greater(t, ev.ID, last)
		last = ev.ID
	}
}

func TestStore_AppendStampsConfiguredZone(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("MSK", 3*60*60)
	fixed := time.Date(2024, 5, 14, 21, 30, 0, 0, time.UTC)
	s := newStore(t, sqlite.WithClock(func() time.Time { return fixed }))

	ev, err := s.Append(t.Context(), domain.NewAuditEvent{Kind: domain.EventKindSubscribe, Source: domain.SourceGetCourse}, loc)
	require.NoError(t, err)

	_, offset := ev.Timestamp.Zone()
	assert.Equal(t, 3*60*60, offset)
	assert.True(t, ev.Timestamp.Equal(fixed))
	assert.Equal(t, 15, ev.Timestamp.Day())
}

func TestStore_AppendRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := t.Context()

	tests := []struct {
		name    string
		ev      domain.NewAuditEvent
		loc     *time.Location
		wantErr error
	}{
		{name: "unknown kind", ev: domain.NewAuditEvent{Kind: "renew", Source: domain.SourceGetCourse}, loc: time.UTC, wantErr: domain.ErrUnknownEventKind},
		{name: "missing source", ev: domain.NewAuditEvent{Kind: domain.EventKindSubscribe}, loc: time.UTC, wantErr: domain.ErrMissingSource},
		{name: "nil location", ev: domain.NewAuditEvent{Kind: domain.EventKindSubscribe, Source: domain.SourceGetCourse}, loc: nil, wantErr: domain.ErrNilLocation},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Append(ctx, tc.ev, tc.loc)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}

	total, err := s.TotalCount(ctx, domain.EventKindSubscribe)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestStore_CountInRangeIsHalfOpen(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	now := start
	s := newStore(t, sqlite.WithClock(func() time.Time { return now }))
	ctx := t.Context()

	for _, at := range []time.Time{start.Add(-time.Nanosecond), start, end.Add(-time.Nanosecond), end} {
		now = at
		_, err := s.Append(ctx, domain.NewAuditEvent{Kind: domain.EventKindUnsubscribe, Source: domain.SourceGetCourse}, time.UTC)
		require.NoError(t, err)
	}

	n, err := s.CountInRange(ctx, domain.EventKindUnsubscribe, start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	total, err := s.TotalCount(ctx, domain.EventKindUnsubscribe)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
}

func TestStore_CountComparesInstantsAcrossOffsets(t *testing.T) {
	t.Parallel()

	// 23:30 in UTC-5 is 04:30 UTC on the next day.
	at := time.Date(2024, 5, 14, 23, 30, 0, 0, time.FixedZone("EST", -5*60*60))
	s := newStore(t, sqlite.WithClock(func() time.Time { return at }))
	ctx := t.Context()

	_, err := s.Append(ctx, domain.NewAuditEvent{Kind: domain.EventKindSubscribe, Source: domain.SourceGetCourse}, at.Location())
	require.NoError(t, err)

	utcDay := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	n, err := s.CountInRange(ctx, domain.EventKindSubscribe, utcDay, utcDay.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStore_CountInRangeValidation(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := t.Context()
	now := time.Now()

	_, err := s.CountInRange(ctx, "renew", now, now.Add(time.Hour))
	require.ErrorIs(t, err, domain.ErrUnknownEventKind)

	_, err = s.CountInRange(ctx, domain.EventKindSubscribe, now, now.Add(-time.Hour))
	require.ErrorIs(t, err, domain.ErrInvalidRange)

	n, err := s.CountInRange(ctx, domain.EventKindSubscribe, now, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_EmptyState(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := t.Context()

	for _, kind := range domain.EventKinds() {
		total, err := s.TotalCount(ctx, kind)
		require.NoError(t, err)
		assert.Zero(t, total)

		n, err := s.CountInRange(ctx, kind, time.Unix(0, 0), time.Now())
		require.NoError(t, err)
		assert.Zero(t, n)
	}
}

func TestStore_ConcurrentAppends(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := t.Context()

	prior, err := s.TotalCount(ctx, domain.EventKindSubscribe)
	require.NoError(t, err)

	const n = 50
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[int64]struct{}, n)
	)
	errs := make(chan error, n)

	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev, appendErr := s.Append(ctx, domain.NewAuditEvent{Kind: domain.EventKindSubscribe, Source: domain.SourceGetCourse}, time.UTC)
			if appendErr != nil {
				errs <- appendErr
				return
			}
			mu.Lock()
			ids[ev.ID] = struct{}{}
			mu.Unlock()
		}()
	}

	// Readers run alongside the writers and must never fail.
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, countErr := s.TotalCount(ctx, domain.EventKindSubscribe); countErr != nil {
				errs <- countErr
			}
		}()
	}

	wg.Wait()
	close(errs)
	for e := range errs {
		require.NoError(t, e)
	}

	assert.Len(t, ids, n)

	total, err := s.TotalCount(ctx, domain.EventKindSubscribe)
	require.NoError(t, err)
	assert.Equal(t, prior+n, total)
}

func TestStore_ClosedDatabaseReturnsStoreError(t *testing.T) {
	t.Parallel()

	s, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Append(t.Context(), domain.NewAuditEvent{Kind: domain.EventKindSubscribe, Source: domain.SourceGetCourse}, time.UTC)
	require.Error(t, err)

	var storeErr *domain.StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "append", storeErr.Op)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = s.TotalCount(t.Context(), domain.EventKindSubscribe)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	assert.ErrorIs(t, s.Ping(t.Context()), domain.ErrStoreUnavailable)
}

func TestStore_InMemory(t *testing.T) {
	t.Parallel()

	s, err := sqlite.New(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.Append(t.Context(), domain.NewAuditEvent{Kind: domain.EventKindUnsubscribe, UserID: strPtr("42"), Source: domain.SourceGetCourse}, time.UTC)
	require.NoError(t, err)

	total, err := s.TotalCount(t.Context(), domain.EventKindUnsubscribe)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.NoError(t, s.Ping(t.Context()))
}

func TestNew_RequiresPath(t *testing.T) {
	t.Parallel()

	_, err := sqlite.New(t.Context(), "  ")
	require.Error(t, err)
}
