package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/credentials"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/storage"
)

// Share regions.
const (
	RegionUS  = "us"
	RegionOUS = "ous"
)

// ShareHosts maps a region to its Share web service host.
var ShareHosts = map[string]string{
	RegionUS:  "https://share2.dexcom.com",
	RegionOUS: "https://shareous1.dexcom.com",
}

const (
	shareAuthPath    = "/ShareWebServices/Services/General/AuthenticatePublisherAccount"
	shareLoginPath   = "/ShareWebServices/Services/General/LoginPublisherAccountById"
	shareReadingPath = "/ShareWebServices/Services/Publisher/ReadPublisherLatestGlucoseValues"

	// The trailing 24h window is always fetched in full; short windows come
	// back empty intermittently.
	shareWindowMinutes = 1440
	shareMaxCount      = 288
)

// ShareConfig configures the session-based client.
type ShareConfig struct {
	ApplicationID string
	DefaultRegion string
	Timeout       time.Duration
	// Hosts overrides ShareHosts, keyed by region.
	Hosts map[string]string
}

// ShareRecord is a raw glucose entry as returned by the Share service.
type ShareRecord struct {
	WT    string     `json:"WT"`
	ST    string     `json:"ST,omitempty"`
	Value *int       `json:"Value"`
	Trend shareTrend `json:"Trend"`
}

// shareTrend accepts both the textual and the numeric trend encodings.
type shareTrend string

func (t *shareTrend) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = shareTrend(s)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		*t = ""
		return nil
	}
	*t = shareTrend(shareTrendCodes[n])
	return nil
}

type shareFault struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

// ShareClient syncs readings from a username/password session API.
type ShareClient struct {
	cfg      ShareConfig
	store    Store
	cipher   *credentials.Cipher
	recorder Recorder
	logger   *slog.Logger
	policy   ReauthPolicy
	now      func() time.Time
	clients  map[string]*resty.Client
}

// NewShareClient builds a client for every configured region. cipher may be
// nil when no credentials secret is configured; Connect and Sync then fail
// with credentials.ErrNoSecret.
func NewShareClient(cfg ShareConfig, store Store, cipher *credentials.Cipher, recorder Recorder, logger *slog.Logger, opts ...Option) *ShareClient {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = RegionUS
	}
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts = ShareHosts
	}

	clients := make(map[string]*resty.Client, len(hosts))
	for region, host := range hosts {
		clients[region] = newRestClient(o, host, cfg.Timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("User-Agent", "Dexcom Share/3.0.2.11")
	}

	return &ShareClient{
		cfg:      cfg,
		store:    store,
		cipher:   cipher,
		recorder: recorder,
		logger:   logger,
		policy:   ShareReauthPolicy,
		now:      o.now,
		clients:  clients,
	}
}

func (c *ShareClient) Kind() model.ProviderKind { return model.ProviderShare }

func (c *ShareClient) client(region string) (*resty.Client, error) {
	if region == "" {
		region = c.cfg.DefaultRegion
	}
	rc, ok := c.clients[region]
	if !ok {
		return nil, fmt.Errorf("unknown share region %q", region)
	}
	return rc, nil
}

// ObtainAccountID authenticates the publisher account and returns its id.
func (c *ShareClient) ObtainAccountID(ctx context.Context, username, password, region string) (string, error) {
	rc, err := c.client(region)
	if err != nil {
		return "", err
	}
	resp, err := rc.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"accountName":   username,
			"password":      password,
			"applicationId": c.cfg.ApplicationID,
		}).
		Post(shareAuthPath)
	if err := c.classify("authenticate", resp, err); err != nil {
		return "", err
	}
	return parseShareID("account id", resp.String())
}

// ObtainSessionID logs in with an account id and returns a session id.
func (c *ShareClient) ObtainSessionID(ctx context.Context, accountID, password, region string) (string, error) {
	rc, err := c.client(region)
	if err != nil {
		return "", err
	}
	resp, err := rc.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"accountId":     accountID,
			"password":      password,
			"applicationId": c.cfg.ApplicationID,
		}).
		Post(shareLoginPath)
	if err := c.classify("login", resp, err); err != nil {
		return "", err
	}
	return parseShareID("session id", resp.String())
}

// FetchReadings returns the raw records of the trailing window.
func (c *ShareClient) FetchReadings(ctx context.Context, sessionID, region string, windowMinutes, maxCount int) ([]ShareRecord, error) {
	rc, err := c.client(region)
	if err != nil {
		return nil, err
	}
	var records []ShareRecord
	resp, err := rc.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"sessionId": sessionID,
			"minutes":   strconv.Itoa(windowMinutes),
			"maxCount":  strconv.Itoa(maxCount),
		}).
		SetResult(&records).
		ForceContentType("application/json").
		Post(shareReadingPath)
	if err := c.classify("fetch readings", resp, err); err != nil {
		return nil, err
	}
	return records, nil
}

// Connect validates credentials against the provider and stores them
// encrypted together with the obtained account id.
func (c *ShareClient) Connect(ctx context.Context, ownerID, username, password, region string) error {
	if c.cipher == nil {
		return credentials.ErrNoSecret
	}
	if region == "" {
		region = c.cfg.DefaultRegion
	}

	accountID, err := c.ObtainAccountID(ctx, username, password, region)
	if err != nil {
		return err
	}

	sealed, err := c.cipher.Seal(ownerID, credentials.Credential{Username: username, Password: password})
	if err != nil {
		return fmt.Errorf("seal credentials: %w", err)
	}

	if err := c.store.UpdateSessionState(ctx, ownerID, model.ProviderShare, map[string]any{
		"encrypted_credential": sealed,
		"account_id":           accountID,
		"session_id":           nil,
		"region":               region,
		"connected":            true,
	}); err != nil {
		return fmt.Errorf("save share session: %w", err)
	}

	c.logger.Info("share connected", "owner", ownerID, "region", region)
	return nil
}

// Disconnect clears stored credentials and session ids.
func (c *ShareClient) Disconnect(ctx context.Context, ownerID string) error {
	return c.store.UpdateSessionState(ctx, ownerID, model.ProviderShare, map[string]any{
		"encrypted_credential": nil,
		"account_id":           nil,
		"session_id":           nil,
		"connected":            false,
	})
}

// Sync fetches the trailing 24h, re-authenticating per the reauth policy,
// and records readings not already stored.
func (c *ShareClient) Sync(ctx context.Context, ownerID string) (SyncResult, error) {
	result := SyncResult{OwnerID: ownerID, Provider: model.ProviderShare}

	var sess model.ShareSession
	if err := c.store.GetSession(ctx, ownerID, model.ProviderShare, &sess); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return result, ErrNotConnected
		}
		return result, fmt.Errorf("load share session: %w", err)
	}
	if !sess.Connected || sess.EncryptedCredential == "" {
		return result, ErrNotConnected
	}
	if c.cipher == nil {
		return result, credentials.ErrNoSecret
	}

	cred, err := c.cipher.Open(ownerID, sess.EncryptedCredential)
	if err != nil {
		return result, &AuthError{Provider: model.ProviderShare, Reason: "stored credentials unreadable", Err: err}
	}
	region := sess.Region
	if region == "" {
		region = c.cfg.DefaultRegion
	}

	// Ids are persisted as soon as they are obtained so a later run does not
	// repeat completed steps even if this one fails.
	accountID := sess.AccountID
	if accountID == "" {
		accountID, err = c.ObtainAccountID(ctx, cred.Username, cred.Password, region)
		if err != nil {
			return result, err
		}
		if err := c.store.UpdateSessionState(ctx, ownerID, model.ProviderShare, map[string]any{"account_id": accountID}); err != nil {
			return result, fmt.Errorf("save account id: %w", err)
		}
	}

	sessionID := sess.SessionID
	login := func(ctx context.Context) error {
		id, err := c.ObtainSessionID(ctx, accountID, cred.Password, region)
		if err != nil {
			return err
		}
		sessionID = id
		if err := c.store.UpdateSessionState(ctx, ownerID, model.ProviderShare, map[string]any{"session_id": id}); err != nil {
			return fmt.Errorf("save session id: %w", err)
		}
		return nil
	}
	if sessionID == "" {
		if err := login(ctx); err != nil {
			return result, err
		}
	}

	reauth := func(ctx context.Context) error {
		c.logger.Debug("share re-authenticating", "owner", ownerID)
		if err := c.store.UpdateSessionState(ctx, ownerID, model.ProviderShare, map[string]any{"session_id": nil}); err != nil {
			return fmt.Errorf("clear session id: %w", err)
		}
		return login(ctx)
	}

	records, err := FetchWithReauth(ctx, c.policy,
		func(ctx context.Context) ([]ShareRecord, error) {
			return c.FetchReadings(ctx, sessionID, region, shareWindowMinutes, shareMaxCount)
		},
		reauth,
	)
	if err != nil {
		return result, err
	}
	result.Fetched = len(records)

	synced, err := recordNew(ctx, c.store, c.recorder, ownerID, c.normalize(ownerID, records))
	if err != nil {
		return result, err
	}
	result.Synced = synced

	if err := c.store.UpdateSessionState(ctx, ownerID, model.ProviderShare, map[string]any{
		"last_sync": c.now().UTC(),
	}); err != nil {
		return result, fmt.Errorf("save last sync: %w", err)
	}
	return result, nil
}

func (c *ShareClient) normalize(ownerID string, records []ShareRecord) []model.Reading {
	readings := make([]model.Reading, 0, len(records))
	for _, rec := range records {
		if rec.Value == nil {
			continue
		}
		ts, ok := ParseShareTime(rec.WT)
		if !ok {
			c.logger.Debug("share record dropped", "owner", ownerID, "wt", rec.WT)
			continue
		}
		r, err := model.NewReading(ownerID, *rec.Value, TrendFromDirection(string(rec.Trend)), model.SourceShare, ts)
		if err != nil {
			continue
		}
		readings = append(readings, r)
	}
	return readings
}

func (c *ShareClient) classify(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &NetworkError{Provider: model.ProviderShare, Op: op, Err: err}
	}
	if !resp.IsError() {
		return nil
	}

	var fault shareFault
	_ = json.Unmarshal(resp.Body(), &fault)
	switch fault.Code {
	case "SessionIdNotFound", "SessionNotValid":
		return &SessionExpiredError{Provider: model.ProviderShare, Reason: fault.Code}
	case "AccountPasswordInvalid", "SSO_AuthenticateAccountNotFound",
		"SSO_AuthenticatePasswordInvalid", "SSO_AuthenticateMaxAttemptsExceeed":
		return &AuthError{Provider: model.ProviderShare, Reason: fault.Code}
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return &AuthError{Provider: model.ProviderShare, Unauthorized: true, Reason: "unauthorized"}
	}
	return &NetworkError{Provider: model.ProviderShare, Op: op, StatusCode: resp.StatusCode()}
}

// parseShareID unquotes an id payload and rejects malformed or nil GUIDs.
func parseShareID(what, body string) (string, error) {
	raw := strings.Trim(strings.TrimSpace(body), `"`)
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return "", &AuthError{Provider: model.ProviderShare, Reason: "invalid " + what + " in response"}
	}
	return raw, nil
}

var shareTimePattern = regexp.MustCompile(`^/?Date\((-?\d+)([+-]\d{4})?\)/?$`)

// ParseShareTime extracts the instant from a "Date(<epoch ms>[+-zzzz])"
// string. The offset is informational; the epoch is already UTC.
func ParseShareTime(s string) (time.Time, bool) {
	m := shareTimePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}
