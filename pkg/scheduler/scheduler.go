// Package scheduler drives provider polling and the daily aggregate jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/providers"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/synclock"
)

// ErrSyncInProgress is returned when another sync of the same owner and
// provider holds the lock.
var ErrSyncInProgress = errors.New("sync already in progress")

// Config controls polling and the daily jobs.
type Config struct {
	PollInterval  time.Duration
	Concurrency   int
	SummaryAt     string // UTC "HH:MM"
	RetentionAt   string // UTC "HH:MM"
	RetentionDays int
	LockTTL       time.Duration // also the deadline of one owner's sync
}

// Store is the persistence the scheduler needs.
type Store interface {
	ListConnectedOwners(ctx context.Context, kind model.ProviderKind) ([]string, error)
	ListOwnersWithReadings(ctx context.Context, start, end time.Time) ([]string, error)
	FindReadings(ctx context.Context, filter model.ReadingFilter) ([]model.Reading, error)
	GetThresholds(ctx context.Context, ownerID string) (*model.ThresholdSettings, error)
	SaveDailySummary(ctx context.Context, summary *model.DailySummary) error
	DeleteReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TickReport summarizes one polling tick. Err aggregates every per-owner
// failure; it is logged, never returned to the loop.
type TickReport struct {
	Started  time.Time
	Duration time.Duration
	Results  []providers.SyncResult
	Skipped  int
	Failed   int
	Err      error
}

// Scheduler runs syncs for every connected owner of every registered provider.
type Scheduler struct {
	cfg       Config
	registry  *providers.Registry
	store     Store
	locker    synclock.Locker
	logger    *slog.Logger
	now       func() time.Time
	summary   clockTime
	retention clockTime
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a scheduler. Zero config values get defaults.
func New(cfg Config, registry *providers.Registry, store Store, locker synclock.Locker, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.SummaryAt == "" {
		cfg.SummaryAt = "00:05"
	}
	if cfg.RetentionAt == "" {
		cfg.RetentionAt = "03:30"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 4 * time.Minute
	}

	summary, err := parseClock(cfg.SummaryAt)
	if err != nil {
		return nil, fmt.Errorf("summary time: %w", err)
	}
	retention, err := parseClock(cfg.RetentionAt)
	if err != nil {
		return nil, fmt.Errorf("retention time: %w", err)
	}

	s := &Scheduler{
		cfg:       cfg,
		registry:  registry,
		store:     store,
		locker:    locker,
		logger:    logger,
		now:       time.Now,
		summary:   summary,
		retention: retention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run polls immediately, then on every interval, and fires the daily jobs
// at their configured times until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	summaryTimer := time.NewTimer(s.summary.next(s.now()).Sub(s.now()))
	defer summaryTimer.Stop()
	retentionTimer := time.NewTimer(s.retention.next(s.now()).Sub(s.now()))
	defer retentionTimer.Stop()

	s.logger.Info("scheduler started",
		"poll_interval", s.cfg.PollInterval,
		"summary_at", s.cfg.SummaryAt,
		"retention_at", s.cfg.RetentionAt,
	)

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		case <-summaryTimer.C:
			day := s.now().UTC().AddDate(0, 0, -1)
			if _, err := s.DailySummary(ctx, day); err != nil {
				s.logger.Error("daily summary failed", "day", day.Format(time.DateOnly), "error", err)
			}
			summaryTimer.Reset(s.summary.next(s.now()).Sub(s.now()))
		case <-retentionTimer.C:
			if _, err := s.Retention(ctx); err != nil {
				s.logger.Error("retention failed", "error", err)
			}
			retentionTimer.Reset(s.retention.next(s.now()).Sub(s.now()))
		}
	}
}

// Tick syncs every connected owner of every provider concurrently. A
// failure for one owner does not affect the others.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	report := TickReport{Started: s.now()}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)

	for _, p := range s.registry.All() {
		owners, err := s.store.ListConnectedOwners(ctx, p.Kind())
		if err != nil {
			report.Err = multierr.Append(report.Err, fmt.Errorf("list %s owners: %w", p.Kind(), err))
			continue
		}

		for _, owner := range owners {
			g.Go(func() error {
				res, err := s.sync(ctx, p, owner)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case errors.Is(err, ErrSyncInProgress):
					report.Skipped++
					s.logger.Info("sync skipped, already running", "provider", p.Kind(), "owner", owner)
				case err != nil:
					report.Failed++
					report.Err = multierr.Append(report.Err, fmt.Errorf("%s %s: %w", p.Kind(), owner, err))
					s.logger.Warn("scheduled sync failed", "provider", p.Kind(), "owner", owner, "error", err)
				default:
					report.Results = append(report.Results, res)
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	report.Duration = s.now().Sub(report.Started)
	synced := 0
	for _, r := range report.Results {
		synced += r.Synced
	}
	s.logger.Info("poll tick complete",
		"succeeded", len(report.Results),
		"failed", report.Failed,
		"skipped", report.Skipped,
		"readings", synced,
		"duration", report.Duration,
	)
	return report
}

// SyncOwner runs an on-demand sync and surfaces the failure reason.
func (s *Scheduler) SyncOwner(ctx context.Context, kind model.ProviderKind, ownerID string) (providers.SyncResult, error) {
	p, err := s.registry.Get(kind)
	if err != nil {
		return providers.SyncResult{}, err
	}
	return s.sync(ctx, p, ownerID)
}

func (s *Scheduler) sync(ctx context.Context, p providers.Provider, ownerID string) (providers.SyncResult, error) {
	unlock, err := s.locker.TryLock(ctx, lockKey(p.Kind(), ownerID), s.cfg.LockTTL)
	if errors.Is(err, synclock.ErrLocked) {
		return providers.SyncResult{}, ErrSyncInProgress
	}
	if err != nil {
		return providers.SyncResult{}, fmt.Errorf("acquire sync lock: %w", err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release sync lock", "provider", p.Kind(), "owner", ownerID, "error", err)
		}
	}()

	// A sync must not outlive its lease.
	syncCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTTL)
	defer cancel()
	return p.Sync(syncCtx, ownerID)
}

func lockKey(kind model.ProviderKind, ownerID string) string {
	return "sync:" + string(kind) + ":" + ownerID
}

// clockTime is a wall-clock time of day in UTC.
type clockTime struct {
	hour, minute int
}

func parseClock(s string) (clockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return clockTime{}, fmt.Errorf("parse %q as HH:MM: %w", s, err)
	}
	return clockTime{hour: t.Hour(), minute: t.Minute()}, nil
}

// next returns the first occurrence strictly after now.
func (c clockTime) next(now time.Time) time.Time {
	now = now.UTC()
	at := time.Date(now.Year(), now.Month(), now.Day(), c.hour, c.minute, 0, 0, time.UTC)
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}
