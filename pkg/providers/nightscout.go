package providers

import (
	"context"
	"crypto/sha1" //nolint:gosec // the Nightscout API authenticates with the SHA-1 of the secret
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/dedup"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/storage"
)

const (
	nightscoutStatusPath  = "/api/v1/status.json"
	nightscoutEntriesPath = "/api/v1/entries/sgv.json"
	defaultMaxEntries     = 288
)

// NightscoutConfig configures the self-hosted bearer-secret client.
type NightscoutConfig struct {
	MaxEntries int
	Timeout    time.Duration
}

// NightscoutEntry is a raw sensor glucose entry.
type NightscoutEntry struct {
	SGV        *int   `json:"sgv"`
	Date       int64  `json:"date"`
	DateString string `json:"dateString"`
	Direction  string `json:"direction"`
	Type       string `json:"type"`
}

// NightscoutClient syncs readings from a user-hosted Nightscout site.
type NightscoutClient struct {
	cfg      NightscoutConfig
	store    Store
	recorder Recorder
	logger   *slog.Logger
	opts     options
}

// NewNightscoutClient creates a Nightscout client.
func NewNightscoutClient(cfg NightscoutConfig, store Store, recorder Recorder, logger *slog.Logger, opts ...Option) *NightscoutClient {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	return &NightscoutClient{cfg: cfg, store: store, recorder: recorder, logger: logger, opts: o}
}

func (c *NightscoutClient) Kind() model.ProviderKind { return model.ProviderNightscout }

// NormalizeURL forces https and strips trailing slashes.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(strings.ToLower(s), "https://"):
	case strings.HasPrefix(strings.ToLower(s), "http://"):
		s = "https://" + s[len("http://"):]
	default:
		s = "https://" + s
	}
	s = strings.TrimRight(s, "/")

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid nightscout url %q", raw)
	}
	return s, nil
}

// HashSecret returns the hex SHA-1 digest sent in the api-secret header.
func HashSecret(secret string) string {
	sum := sha1.Sum([]byte(secret)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func (c *NightscoutClient) client(endpoint, secret string) *resty.Client {
	return newRestClient(c.opts, endpoint, c.cfg.Timeout).
		SetHeader("api-secret", HashSecret(secret))
}

// Connect normalizes the site URL, probes it with the secret and stores the
// session only when the probe succeeds. A 401 is reported as an
// AuthError with Unauthorized set; anything else as a NetworkError.
func (c *NightscoutClient) Connect(ctx context.Context, ownerID, rawURL, secret string) (bool, error) {
	endpoint, err := NormalizeURL(rawURL)
	if err != nil {
		return false, err
	}

	resp, err := c.client(endpoint, secret).R().
		SetContext(ctx).
		Get(nightscoutStatusPath)
	if err != nil {
		return false, &NetworkError{Provider: model.ProviderNightscout, Op: "probe", Err: err}
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return false, &AuthError{Provider: model.ProviderNightscout, Unauthorized: true, Reason: "api secret rejected"}
	}
	if resp.IsError() {
		return false, &NetworkError{Provider: model.ProviderNightscout, Op: "probe", StatusCode: resp.StatusCode()}
	}

	if err := c.store.UpdateSessionState(ctx, ownerID, model.ProviderNightscout, map[string]any{
		"endpoint_url": endpoint,
		"secret":       secret,
		"connected":    true,
	}); err != nil {
		return false, fmt.Errorf("save nightscout session: %w", err)
	}

	c.logger.Info("nightscout connected", "owner", ownerID, "endpoint", endpoint)
	return true, nil
}

// Disconnect clears the stored endpoint and secret.
func (c *NightscoutClient) Disconnect(ctx context.Context, ownerID string) error {
	return c.store.UpdateSessionState(ctx, ownerID, model.ProviderNightscout, map[string]any{
		"endpoint_url": nil,
		"secret":       nil,
		"connected":    false,
	})
}

// FetchEntries returns the most recent count entries.
func (c *NightscoutClient) FetchEntries(ctx context.Context, endpoint, secret string, count int) ([]NightscoutEntry, error) {
	var entries []NightscoutEntry
	resp, err := c.client(endpoint, secret).R().
		SetContext(ctx).
		SetQueryParam("count", strconv.Itoa(count)).
		SetResult(&entries).
		ForceContentType("application/json").
		Get(nightscoutEntriesPath)
	if err != nil {
		return nil, &NetworkError{Provider: model.ProviderNightscout, Op: "fetch entries", Err: err}
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return nil, &AuthError{Provider: model.ProviderNightscout, Unauthorized: true, Reason: "api secret rejected"}
	}
	if resp.IsError() {
		return nil, &NetworkError{Provider: model.ProviderNightscout, Op: "fetch entries", StatusCode: resp.StatusCode()}
	}
	return entries, nil
}

// Sync fetches the latest entries and keeps only those strictly newer than
// the newest reading already stored from this provider.
func (c *NightscoutClient) Sync(ctx context.Context, ownerID string) (SyncResult, error) {
	result := SyncResult{OwnerID: ownerID, Provider: model.ProviderNightscout}

	var sess model.NightscoutSession
	if err := c.store.GetSession(ctx, ownerID, model.ProviderNightscout, &sess); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return result, ErrNotConnected
		}
		return result, fmt.Errorf("load nightscout session: %w", err)
	}
	if !sess.Connected || sess.EndpointURL == "" {
		return result, ErrNotConnected
	}

	entries, err := c.FetchEntries(ctx, sess.EndpointURL, sess.Secret, c.cfg.MaxEntries)
	if err != nil {
		return result, err
	}
	result.Fetched = len(entries)

	var cutoff time.Time
	latest, err := c.store.LatestReading(ctx, ownerID, model.SourceNightscout)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return result, fmt.Errorf("load watermark: %w", err)
	default:
		cutoff = latest.Timestamp
	}

	fresh := dedup.Newer(c.normalize(ownerID, entries), cutoff)
	if len(fresh) > 0 {
		synced, err := c.recorder.Record(ctx, ownerID, fresh)
		if err != nil {
			return result, err
		}
		result.Synced = synced
	}

	if err := c.store.UpdateSessionState(ctx, ownerID, model.ProviderNightscout, map[string]any{
		"last_sync": c.opts.now().UTC(),
	}); err != nil {
		return result, fmt.Errorf("save last sync: %w", err)
	}
	return result, nil
}

func (c *NightscoutClient) normalize(ownerID string, entries []NightscoutEntry) []model.Reading {
	readings := make([]model.Reading, 0, len(entries))
	for _, e := range entries {
		if e.SGV == nil || (e.Type != "" && e.Type != "sgv") {
			continue
		}
		ts := time.UnixMilli(e.Date).UTC()
		if e.Date == 0 {
			parsed, err := time.Parse(time.RFC3339Nano, e.DateString)
			if err != nil {
				continue
			}
			ts = parsed.UTC()
		}
		r, err := model.NewReading(ownerID, *e.SGV, TrendFromDirection(e.Direction), model.SourceNightscout, ts)
		if err != nil {
			continue
		}
		readings = append(readings, r)
	}
	return readings
}
