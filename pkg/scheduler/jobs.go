package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/storage"
)

// DailySummary aggregates the UTC day containing day for every owner with
// readings in it and returns how many summaries were written.
func (s *Scheduler) DailySummary(ctx context.Context, day time.Time) (int, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	owners, err := s.store.ListOwnersWithReadings(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("list owners: %w", err)
	}

	var (
		written int
		errs    error
	)
	for _, owner := range owners {
		if err := s.summarizeOwner(ctx, owner, start, end); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("summarize %s: %w", owner, err))
			continue
		}
		written++
	}

	s.logger.Info("daily summary complete",
		"day", start.Format(time.DateOnly), "owners", len(owners), "written", written)
	return written, errs
}

func (s *Scheduler) summarizeOwner(ctx context.Context, ownerID string, start, end time.Time) error {
	readings, err := s.store.FindReadings(ctx, model.ReadingFilter{OwnerID: ownerID, Start: start, End: end})
	if err != nil {
		return err
	}

	settings, err := s.store.GetThresholds(ctx, ownerID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	summary := Summarize(ownerID, start, readings, settings)
	return s.store.SaveDailySummary(ctx, &summary)
}

// Summarize computes the daily aggregate of readings. Time in range uses
// the owner's thresholds, or the fallback pair when unset.
func Summarize(ownerID string, day time.Time, readings []model.Reading, settings *model.ThresholdSettings) model.DailySummary {
	out := model.DailySummary{OwnerID: ownerID, Day: day.UTC().Truncate(24 * time.Hour)}
	if len(readings) == 0 {
		return out
	}

	th := settings.Resolved()
	sum, inRange := 0, 0
	out.Min, out.Max = readings[0].Value, readings[0].Value
	for _, r := range readings {
		sum += r.Value
		out.Min = min(out.Min, r.Value)
		out.Max = max(out.Max, r.Value)
		if r.Value >= th.Low && r.Value <= th.High {
			inRange++
		}
	}

	out.Count = len(readings)
	out.Mean = float64(sum) / float64(out.Count)
	out.TimeInRangePct = float64(inRange) / float64(out.Count) * 100
	return out
}

// Retention deletes readings older than the configured retention period.
// A zero period keeps everything.
func (s *Scheduler) Retention(ctx context.Context) (int64, error) {
	if s.cfg.RetentionDays <= 0 {
		return 0, nil
	}

	cutoff := s.now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)
	n, err := s.store.DeleteReadingsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old readings: %w", err)
	}

	s.logger.Info("retention complete", "cutoff", cutoff, "deleted", n)
	return n, nil
}
