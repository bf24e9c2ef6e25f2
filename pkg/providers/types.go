package providers

import (
	"context"
	"net/http"
	"time"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
)

// Provider is the core interface for upstream glucose telemetry sources.
type Provider interface {
	// Kind returns the provider identifier.
	Kind() model.ProviderKind

	// Sync fetches new readings for an owner and hands them to the recorder.
	Sync(ctx context.Context, ownerID string) (SyncResult, error)

	// Disconnect clears the owner's session and marks it disconnected.
	Disconnect(ctx context.Context, ownerID string) error
}

// SyncResult summarizes a single sync run.
type SyncResult struct {
	OwnerID  string             `json:"owner_id"`
	Provider model.ProviderKind `json:"provider"`
	Fetched  int                `json:"fetched"`
	Synced   int                `json:"synced"`
}

// Recorder persists normalized, deduplicated readings and evaluates the
// newest one for alerts. It returns how many readings were stored.
type Recorder interface {
	Record(ctx context.Context, ownerID string, readings []model.Reading) (int, error)
}

// Store is the slice of persistence the provider clients need.
type Store interface {
	GetSession(ctx context.Context, ownerID string, kind model.ProviderKind, dst any) error
	UpdateSessionState(ctx context.Context, ownerID string, kind model.ProviderKind, patch map[string]any) error
	FindReadings(ctx context.Context, filter model.ReadingFilter) ([]model.Reading, error)
	LatestReading(ctx context.Context, ownerID string, source model.Source) (*model.Reading, error)
}

// Option customizes a provider client.
type Option func(*options)

type options struct {
	httpClient *http.Client
	now        func() time.Time
}

func defaultOptions() options {
	return options{now: time.Now}
}

// WithHTTPClient makes the client send requests through hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}
