// Package alerts delivers push notifications to external channels.
package alerts

import (
	"context"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
)

// Push is a notification addressed to a set of users. The delivery channel
// forwards it to the device push gateway, which fans it out per recipient.
type Push struct {
	Category     model.NotificationCategory `json:"category"`
	Title        string                     `json:"title"`
	Body         string                     `json:"body"`
	Severity     model.Severity             `json:"severity,omitempty"`
	OwnerID      string                     `json:"owner_id"`
	AlertID      string                     `json:"alert_id,omitempty"`
	GlucoseValue int                        `json:"glucose_value,omitempty"`
	RecipientIDs []string                   `json:"recipient_ids"`
}

// Notifier sends pushes to external systems.
type Notifier interface {
	// Name returns the notifier identifier.
	Name() string

	// Send delivers a push. Implementations must be safe for concurrent use.
	Send(ctx context.Context, push Push) error
}
