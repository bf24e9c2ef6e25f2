package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines the persistence layer for readings, alerts, provider
// sessions and the profile data the alert pipeline reads.
type Storage interface {
	// InsertReadings persists readings and returns how many were new.
	// Readings colliding with an existing (owner, timestamp) are skipped.
	InsertReadings(ctx context.Context, readings []model.Reading) (int, error)

	// FindReadings returns readings matching the filter, newest first.
	FindReadings(ctx context.Context, filter model.ReadingFilter) ([]model.Reading, error)

	// LatestReading returns the newest reading of an owner from a source.
	LatestReading(ctx context.Context, ownerID string, source model.Source) (*model.Reading, error)

	// DeleteReadingsBefore removes readings older than cutoff.
	DeleteReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// ListOwnersWithReadings returns owners with at least one reading in [start, end).
	ListOwnersWithReadings(ctx context.Context, start, end time.Time) ([]string, error)

	// SaveAlert creates or replaces an alert.
	SaveAlert(ctx context.Context, alert *model.Alert) error

	// GetAlert retrieves an alert by ID.
	GetAlert(ctx context.Context, id string) (*model.Alert, error)

	// UpdateAlert loads an alert, applies fn and writes it back atomically.
	UpdateAlert(ctx context.Context, id string, fn func(*model.Alert) error) (*model.Alert, error)

	// ListAlerts returns alerts matching the filter, newest first.
	ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error)

	// GetSession decodes the stored session of an owner into dst.
	GetSession(ctx context.Context, ownerID string, kind model.ProviderKind, dst any) error

	// UpdateSessionState merges patch into the stored session. A nil value
	// removes the key.
	UpdateSessionState(ctx context.Context, ownerID string, kind model.ProviderKind, patch map[string]any) error

	// ListConnectedOwners returns owners whose session for kind is connected.
	ListConnectedOwners(ctx context.Context, kind model.ProviderKind) ([]string, error)

	// GetThresholds returns an owner's personal threshold settings.
	GetThresholds(ctx context.Context, ownerID string) (*model.ThresholdSettings, error)

	// SetThresholds creates or updates an owner's threshold settings.
	SetThresholds(ctx context.Context, ownerID string, settings model.ThresholdSettings) error

	// ListCareRelationships returns every relationship of an owner.
	ListCareRelationships(ctx context.Context, ownerID string) ([]model.CareRelationship, error)

	// SaveCareRelationship creates or updates a relationship.
	SaveCareRelationship(ctx context.Context, rel *model.CareRelationship) error

	// NotificationEnabled reports a user's preference for a category.
	// Unset preferences are enabled.
	NotificationEnabled(ctx context.Context, userID string, category model.NotificationCategory) (bool, error)

	// SetNotificationPreference stores a user's preference for a category.
	SetNotificationPreference(ctx context.Context, userID string, category model.NotificationCategory, enabled bool) error

	// PostChatMessage appends a message to a conversation.
	PostChatMessage(ctx context.Context, msg *model.ChatMessage) error

	// ListChatMessages returns the newest messages of a conversation, oldest first.
	ListChatMessages(ctx context.Context, conversationRef string, limit int) ([]model.ChatMessage, error)

	// SaveDailySummary creates or replaces the summary of an owner's day.
	SaveDailySummary(ctx context.Context, summary *model.DailySummary) error

	// ListDailySummaries returns summaries of an owner with Day in [start, end).
	ListDailySummaries(ctx context.Context, ownerID string, start, end time.Time) ([]model.DailySummary, error)

	// Close releases resources.
	Close() error
}
