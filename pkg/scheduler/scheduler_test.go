package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/providers"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/storage"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/synclock"
)

var day = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

type fakeProvider struct {
	kind  model.ProviderKind
	fail  map[string]error
	calls atomic.Int32
}

func (f *fakeProvider) Kind() model.ProviderKind { return f.kind }

func (f *fakeProvider) Sync(_ context.Context, ownerID string) (providers.SyncResult, error) {
	f.calls.Add(1)
	if err := f.fail[ownerID]; err != nil {
		return providers.SyncResult{}, err
	}
	return providers.SyncResult{OwnerID: ownerID, Provider: f.kind, Fetched: 3, Synced: 2}, nil
}

func (f *fakeProvider) Disconnect(context.Context, string) error { return nil }

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	db, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func connect(t *testing.T, store *storage.SQLite, kind model.ProviderKind, owners ...string) {
	t.Helper()
	for _, owner := range owners {
		require.NoError(t, store.UpdateSessionState(context.Background(), owner, kind, map[string]any{"connected": true}))
	}
}

func newTestScheduler(t *testing.T, store *storage.SQLite, locker synclock.Locker, ps ...providers.Provider) *Scheduler {
	t.Helper()
	reg := providers.NewRegistry()
	for _, p := range ps {
		require.NoError(t, reg.Register(p))
	}
	s, err := New(Config{Concurrency: 2, RetentionDays: 30}, reg, store, locker, silentLogger(),
		WithClock(func() time.Time { return day.Add(12 * time.Hour) }))
	require.NoError(t, err)
	return s
}

func TestTick_IsolatesFailures(t *testing.T) {
	store := newTestStore(t)
	connect(t, store, model.ProviderShare, "a", "b")
	connect(t, store, model.ProviderNightscout, "c")

	share := &fakeProvider{kind: model.ProviderShare}
	ns := &fakeProvider{kind: model.ProviderNightscout, fail: map[string]error{
		"c": &providers.NetworkError{Provider: model.ProviderNightscout, Op: "fetch entries", Err: errors.New("timeout")},
	}}
	s := newTestScheduler(t, store, synclock.NewMemory(), share, ns)

	report := s.Tick(context.Background())
	assert.Len(t, report.Results, 2)
	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, report.Skipped)
	require.Error(t, report.Err)

	var netErr *providers.NetworkError
	assert.True(t, errors.As(report.Err, &netErr))
	assert.Equal(t, int32(2), share.calls.Load())
	assert.Equal(t, int32(1), ns.calls.Load())
}

func TestTick_SkipsDisconnectedOwners(t *testing.T) {
	store := newTestStore(t)
	connect(t, store, model.ProviderOAuth, "a")
	require.NoError(t, store.UpdateSessionState(context.Background(), "b", model.ProviderOAuth, map[string]any{"connected": false}))

	oauth := &fakeProvider{kind: model.ProviderOAuth}
	s := newTestScheduler(t, store, synclock.NewMemory(), oauth)

	report := s.Tick(context.Background())
	require.Len(t, report.Results, 1)
	assert.Equal(t, "a", report.Results[0].OwnerID)
	assert.NoError(t, report.Err)
}

func TestTick_SkipsLockedOwner(t *testing.T) {
	store := newTestStore(t)
	connect(t, store, model.ProviderShare, "a", "b")

	locker := synclock.NewMemory()
	unlock, err := locker.TryLock(context.Background(), lockKey(model.ProviderShare, "a"), time.Minute)
	require.NoError(t, err)
	defer unlock(context.Background())

	share := &fakeProvider{kind: model.ProviderShare}
	s := newTestScheduler(t, store, locker, share)

	report := s.Tick(context.Background())
	assert.Equal(t, 1, report.Skipped)
	assert.Len(t, report.Results, 1)
	assert.NoError(t, report.Err)
}

func TestSyncOwner(t *testing.T) {
	store := newTestStore(t)
	locker := synclock.NewMemory()
	share := &fakeProvider{kind: model.ProviderShare, fail: map[string]error{
		"bad": &providers.SessionExpiredError{Provider: model.ProviderShare, Reason: "SessionNotValid"},
	}}
	s := newTestScheduler(t, store, locker, share)
	ctx := context.Background()

	res, err := s.SyncOwner(ctx, model.ProviderShare, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Synced)

	_, err = s.SyncOwner(ctx, model.ProviderShare, "bad")
	var expired *providers.SessionExpiredError
	assert.True(t, errors.As(err, &expired))

	_, err = s.SyncOwner(ctx, model.ProviderOAuth, "a")
	assert.ErrorIs(t, err, providers.ErrUnknownProvider)

	unlock, err := locker.TryLock(ctx, lockKey(model.ProviderShare, "a"), time.Minute)
	require.NoError(t, err)
	_, err = s.SyncOwner(ctx, model.ProviderShare, "a")
	assert.ErrorIs(t, err, ErrSyncInProgress)
	require.NoError(t, unlock(ctx))

	// the lock is released after each sync
	_, err = s.SyncOwner(ctx, model.ProviderShare, "a")
	require.NoError(t, err)
}

// stuckProvider blocks until its context ends.
type stuckProvider struct {
	deadline chan time.Time
}

func (p *stuckProvider) Kind() model.ProviderKind { return model.ProviderShare }

func (p *stuckProvider) Sync(ctx context.Context, _ string) (providers.SyncResult, error) {
	dl, _ := ctx.Deadline()
	p.deadline <- dl
	<-ctx.Done()
	return providers.SyncResult{}, ctx.Err()
}

func (p *stuckProvider) Disconnect(context.Context, string) error { return nil }

func TestSyncOwner_BoundedByLockTTL(t *testing.T) {
	locker := synclock.NewMemory()
	stuck := &stuckProvider{deadline: make(chan time.Time, 1)}
	reg := providers.NewRegistry()
	require.NoError(t, reg.Register(stuck))

	ttl := 50 * time.Millisecond
	s, err := New(Config{LockTTL: ttl}, reg, newTestStore(t), locker, silentLogger())
	require.NoError(t, err)

	start := time.Now()
	_, err = s.SyncOwner(context.Background(), model.ProviderShare, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	dl := <-stuck.deadline
	assert.WithinDuration(t, start.Add(ttl), dl, 40*time.Millisecond)

	// the lease is released, not left to expire
	unlock, err := locker.TryLock(context.Background(), lockKey(model.ProviderShare, "a"), time.Minute)
	require.NoError(t, err)
	require.NoError(t, unlock(context.Background()))
}

func TestRun_PollsUntilCancelled(t *testing.T) {
	store := newTestStore(t)
	connect(t, store, model.ProviderShare, "a")
	share := &fakeProvider{kind: model.ProviderShare}

	reg := providers.NewRegistry()
	require.NoError(t, reg.Register(share))
	s, err := New(Config{PollInterval: 10 * time.Millisecond}, reg, store, synclock.NewMemory(), silentLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return share.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestNew_InvalidClock(t *testing.T) {
	_, err := New(Config{SummaryAt: "25:99"}, providers.NewRegistry(), newTestStore(t), synclock.NewMemory(), silentLogger())
	assert.Error(t, err)
}

func TestClockTime_Next(t *testing.T) {
	c, err := parseClock("03:30")
	require.NoError(t, err)

	assert.Equal(t, day.Add(3*time.Hour+30*time.Minute), c.next(day.Add(time.Hour)))
	assert.Equal(t, day.AddDate(0, 0, 1).Add(3*time.Hour+30*time.Minute), c.next(day.Add(3*time.Hour+30*time.Minute)))
	assert.Equal(t, day.AddDate(0, 0, 1).Add(3*time.Hour+30*time.Minute), c.next(day.Add(20*time.Hour)))
}
