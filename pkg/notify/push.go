package notify

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
)

// PreferenceStore reads per-user notification preferences.
type PreferenceStore interface {
	NotificationEnabled(ctx context.Context, userID string, category model.NotificationCategory) (bool, error)
}

// FilteredPusher drops recipients who disabled the push category and hands
// the rest to every configured delivery channel.
type FilteredPusher struct {
	prefs     PreferenceStore
	notifiers []alerts.Notifier
	logger    *slog.Logger
}

// NewFilteredPusher creates a pusher over the given delivery channels.
func NewFilteredPusher(prefs PreferenceStore, logger *slog.Logger, notifiers ...alerts.Notifier) *FilteredPusher {
	return &FilteredPusher{prefs: prefs, notifiers: notifiers, logger: logger}
}

// SendFilteredPush delivers push to the recipients that have push.Category
// enabled. A preference lookup failure keeps the recipient.
func (p *FilteredPusher) SendFilteredPush(ctx context.Context, recipientIDs []string, push alerts.Push) error {
	allowed := make([]string, 0, len(recipientIDs))
	for _, id := range recipientIDs {
		enabled, err := p.prefs.NotificationEnabled(ctx, id, push.Category)
		if err != nil {
			p.logger.Warn("notification preference lookup failed",
				"user", id, "category", push.Category, "error", err)
			enabled = true
		}
		if enabled {
			allowed = append(allowed, id)
		}
	}
	if len(allowed) == 0 {
		p.logger.Debug("push filtered out", "category", push.Category, "alert_id", push.AlertID)
		return nil
	}
	push.RecipientIDs = allowed

	var errs error
	for _, n := range p.notifiers {
		if err := n.Send(ctx, push); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errs
}
