// Package monitor is the ingestion entry point: it stores readings and runs
// alert evaluation for every ingestion path.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
)

// ErrDuplicateReading is returned when a manual reading collides with a
// stored reading of the same owner and timestamp.
var ErrDuplicateReading = errors.New("reading already recorded")

// ReadingTracker persists readings and checks the newest one for alerts.
type ReadingTracker struct {
	store  Store
	alerts *AlertManager
	logger *slog.Logger
}

// NewReadingTracker creates a reading tracker.
func NewReadingTracker(store Store, alerts *AlertManager, logger *slog.Logger) *ReadingTracker {
	return &ReadingTracker{
		store:  store,
		alerts: alerts,
		logger: logger,
	}
}

// Record stores provider readings and evaluates the newest one that was
// actually inserted. Alert failures are logged; the readings stay stored.
func (t *ReadingTracker) Record(ctx context.Context, ownerID string, readings []model.Reading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}
	for i := range readings {
		if readings[i].ID == "" {
			readings[i].ID = uuid.New().String()
		}
	}

	n, err := t.store.InsertReadings(ctx, readings)
	if err != nil {
		return 0, fmt.Errorf("store readings: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	newest, err := t.newestInserted(ctx, ownerID, readings)
	if err != nil {
		t.logger.Error("load recorded readings", "owner", ownerID, "error", err)
		return n, nil
	}
	if newest == nil {
		return n, nil
	}

	t.logger.Info("readings recorded",
		"owner", ownerID,
		"source", newest.Source,
		"count", n,
		"latest", newest.Value,
	)

	if _, err := t.alerts.CheckGlucoseAlert(ctx, ownerID, newest.Value, newest.Timestamp); err != nil {
		t.logger.Error("glucose alert check failed", "owner", ownerID, "error", err)
	}
	return n, nil
}

// AddManual validates and stores a reading entered by the owner, then
// evaluates it. An empty trend is recorded as stable.
func (t *ReadingTracker) AddManual(ctx context.Context, ownerID string, value int, trend model.Trend, at time.Time) (*model.Reading, *model.Alert, error) {
	if trend == "" {
		trend = model.TrendStable
	}
	reading, err := model.NewReading(ownerID, value, trend, model.SourceManual, at)
	if err != nil {
		return nil, nil, err
	}

	n, err := t.store.InsertReadings(ctx, []model.Reading{reading})
	if err != nil {
		return nil, nil, fmt.Errorf("store reading: %w", err)
	}
	if n == 0 {
		return nil, nil, ErrDuplicateReading
	}

	t.logger.Info("manual reading recorded", "owner", ownerID, "value", value, "trend", trend)

	alert, err := t.alerts.CheckGlucoseAlert(ctx, ownerID, reading.Value, reading.Timestamp)
	if err != nil {
		return &reading, nil, fmt.Errorf("check glucose alert: %w", err)
	}
	return &reading, alert, nil
}

// newestInserted returns the newest candidate whose row made it into the
// store. Candidates that collided with an existing reading keep their own ID
// and are not found.
func (t *ReadingTracker) newestInserted(ctx context.Context, ownerID string, readings []model.Reading) (*model.Reading, error) {
	oldest, latest := readings[0].Timestamp, readings[0].Timestamp
	for _, r := range readings[1:] {
		if r.Timestamp.Before(oldest) {
			oldest = r.Timestamp
		}
		if r.Timestamp.After(latest) {
			latest = r.Timestamp
		}
	}

	stored, err := t.store.FindReadings(ctx, model.ReadingFilter{
		OwnerID: ownerID,
		Start:   oldest,
		End:     latest.Add(time.Millisecond),
	})
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(stored))
	for _, r := range stored {
		ids[r.ID] = true
	}

	var newest *model.Reading
	for i := range readings {
		r := &readings[i]
		if ids[r.ID] && (newest == nil || r.Timestamp.After(newest.Timestamp)) {
			newest = r
		}
	}
	return newest, nil
}
