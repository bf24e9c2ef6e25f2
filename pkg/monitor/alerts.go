package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/evaluator"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/storage"
)

// AntiSpamWindow is how far back an open alert of the same type is reused
// instead of firing a new one.
const AntiSpamWindow = 30 * time.Minute

// Store is the persistence the monitor needs.
type Store interface {
	InsertReadings(ctx context.Context, readings []model.Reading) (int, error)
	FindReadings(ctx context.Context, filter model.ReadingFilter) ([]model.Reading, error)
	GetThresholds(ctx context.Context, ownerID string) (*model.ThresholdSettings, error)
	ListCareRelationships(ctx context.Context, ownerID string) ([]model.CareRelationship, error)
	GetAlert(ctx context.Context, id string) (*model.Alert, error)
	UpdateAlert(ctx context.Context, id string, fn func(*model.Alert) error) (*model.Alert, error)
	ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error)
}

// Firer persists a new alert and distributes it.
type Firer interface {
	FireAlert(ctx context.Context, alert *model.Alert, recipientIDs []string) error
}

// AlertManager turns readings into alerts for an owner and their care network.
type AlertManager struct {
	store  Store
	firer  Firer
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the monitor components.
type Option func(*AlertManager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *AlertManager) { m.now = now }
}

// NewAlertManager creates an alert manager.
func NewAlertManager(store Store, firer Firer, logger *slog.Logger, opts ...Option) *AlertManager {
	m := &AlertManager{
		store:  store,
		firer:  firer,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckGlucoseAlert evaluates a reading of value taken at the given time.
// It returns nil when no alert is due, the still-open alert of the same type
// when one was fired within AntiSpamWindow, or the newly fired alert.
func (m *AlertManager) CheckGlucoseAlert(ctx context.Context, ownerID string, value int, at time.Time) (*model.Alert, error) {
	settings, err := m.thresholds(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	network, err := m.network(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	lookback := model.RapidChangeWindow
	for _, s := range append([]*model.ThresholdSettings{settings}, recipientSettings(network)...) {
		if d := s.Resolved().HighAlertDelay(); d > lookback {
			lookback = d
		}
	}
	recent, err := m.store.FindReadings(ctx, model.ReadingFilter{
		OwnerID: ownerID,
		Start:   at.Add(-lookback),
		End:     at.Add(time.Millisecond),
	})
	if err != nil {
		return nil, fmt.Errorf("load recent readings: %w", err)
	}

	alertType, ok := evaluator.Evaluate(value, settings, recent, at)
	if !ok {
		return nil, nil
	}

	now := m.now()
	existing, err := m.store.ListAlerts(ctx, model.AlertFilter{
		OwnerID:      ownerID,
		Type:         alertType,
		Statuses:     []model.AlertStatus{model.StatusActive, model.StatusAcknowledged},
		CreatedAfter: now.Add(-AntiSpamWindow),
		Limit:        1,
	})
	if err != nil {
		return nil, fmt.Errorf("check recent alerts: %w", err)
	}
	if len(existing) > 0 {
		m.logger.Debug("alert suppressed",
			"owner", ownerID, "type", alertType, "alert_id", existing[0].ID)
		return &existing[0], nil
	}

	text, err := evaluator.Describe(alertType, value)
	if err != nil {
		return nil, err
	}

	var recipients []string
	for _, r := range network {
		if evaluator.Qualifies(alertType, value, r, recent, at) {
			recipients = append(recipients, r.ID)
		}
	}

	alert := model.NewAlert(ownerID, alertType, text.Severity, value, now)
	alert.Title = text.Title
	alert.Message = text.Message
	if err := m.firer.FireAlert(ctx, alert, recipients); err != nil {
		return nil, fmt.Errorf("fire alert: %w", err)
	}
	return alert, nil
}

// Get returns an alert, expiring it first when its lifetime has passed.
func (m *AlertManager) Get(ctx context.Context, id string) (*model.Alert, error) {
	alert, err := m.store.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.ExpireIfDue(m.now()) {
		m.persistExpiry(ctx, alert.ID)
	}
	return alert, nil
}

// List returns alerts matching filter with expiry applied. Alerts that
// expired on read are dropped when the filter excludes expired alerts.
func (m *AlertManager) List(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error) {
	list, err := m.store.ListAlerts(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := m.now()
	out := list[:0]
	for _, a := range list {
		if a.ExpireIfDue(now) {
			m.persistExpiry(ctx, a.ID)
			if !statusMatches(a.Status, filter.Statuses) {
				continue
			}
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *AlertManager) persistExpiry(ctx context.Context, id string) {
	now := m.now()
	_, err := m.store.UpdateAlert(ctx, id, func(a *model.Alert) error {
		a.ExpireIfDue(now)
		return nil
	})
	if err != nil {
		m.logger.Warn("persist alert expiry", "alert_id", id, "error", err)
	}
}

func (m *AlertManager) thresholds(ctx context.Context, userID string) (*model.ThresholdSettings, error) {
	s, err := m.store.GetThresholds(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load thresholds: %w", err)
	}
	return s, nil
}

func (m *AlertManager) network(ctx context.Context, ownerID string) ([]evaluator.Recipient, error) {
	rels, err := m.store.ListCareRelationships(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load care network: %w", err)
	}

	var out []evaluator.Recipient
	for _, rel := range rels {
		if !rel.IsActive() {
			continue
		}
		s, err := m.thresholds(ctx, rel.RecipientID)
		if err != nil {
			return nil, err
		}
		out = append(out, evaluator.Recipient{ID: rel.RecipientID, Permissions: rel.Permissions, Settings: s})
	}
	return out, nil
}

func recipientSettings(rs []evaluator.Recipient) []*model.ThresholdSettings {
	out := make([]*model.ThresholdSettings, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Settings)
	}
	return out
}

func statusMatches(s model.AlertStatus, statuses []model.AlertStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}
