package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/storage"
)

const (
	oauthTokenPath = "/v2/oauth2/token"
	oauthLoginPath = "/v2/oauth2/login"
	oauthEGVPath   = "/v3/users/self/egvs"

	// EGVTimeLayout is the exact timestamp format the EGV endpoint accepts:
	// no zone suffix, no fractional seconds.
	EGVTimeLayout = "2006-01-02T15:04:05"

	tokenRefreshBuffer = 5 * time.Minute
	publicationLag     = 3 * time.Hour
	maxSyncWindow      = 24 * time.Hour
)

// OAuthConfig configures the OAuth client.
type OAuthConfig struct {
	BaseURL           string
	ClientID          string
	ClientSecret      string
	RedirectURI       string
	RequestsPerMinute int
	Timeout           time.Duration
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// EGVRecord is a raw estimated glucose value.
type EGVRecord struct {
	SystemTime  string `json:"systemTime"`
	DisplayTime string `json:"displayTime"`
	Value       *int   `json:"value"`
	Trend       string `json:"trend"`
}

type egvResponse struct {
	Records []EGVRecord `json:"records"`
}

// OAuthClient syncs readings from an OAuth-protected EGV API.
type OAuthClient struct {
	cfg      OAuthConfig
	store    Store
	recorder Recorder
	logger   *slog.Logger
	limiter  *rate.Limiter
	now      func() time.Time
	http     *resty.Client
}

// NewOAuthClient creates an OAuth client. EGV requests are throttled to
// cfg.RequestsPerMinute; zero disables throttling.
func NewOAuthClient(cfg OAuthConfig, store Store, recorder Recorder, logger *slog.Logger, opts ...Option) *OAuthClient {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}

	return &OAuthClient{
		cfg:      cfg,
		store:    store,
		recorder: recorder,
		logger:   logger,
		limiter:  rate.NewLimiter(limit, 1),
		now:      o.now,
		http:     newRestClient(o, cfg.BaseURL, cfg.Timeout),
	}
}

func (c *OAuthClient) Kind() model.ProviderKind { return model.ProviderOAuth }

// AuthorizeURL returns the login URL the user must visit to grant access.
func (c *OAuthClient) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", "offline_access")
	q.Set("state", state)
	return c.cfg.BaseURL + oauthLoginPath + "?" + q.Encode()
}

// Connect exchanges an authorization code for tokens and stores them.
func (c *OAuthClient) Connect(ctx context.Context, ownerID, code string) error {
	tok, err := c.requestToken(ctx, map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": c.cfg.RedirectURI,
	})
	if err != nil {
		return err
	}

	if err := c.store.UpdateSessionState(ctx, ownerID, model.ProviderOAuth, map[string]any{
		"access_token":  tok.AccessToken,
		"refresh_token": tok.RefreshToken,
		"token_expiry":  c.expiry(tok),
		"last_sync":     nil,
		"connected":     true,
	}); err != nil {
		return fmt.Errorf("save oauth session: %w", err)
	}

	c.logger.Info("oauth connected", "owner", ownerID)
	return nil
}

// Disconnect clears stored tokens.
func (c *OAuthClient) Disconnect(ctx context.Context, ownerID string) error {
	return c.store.UpdateSessionState(ctx, ownerID, model.ProviderOAuth, map[string]any{
		"access_token":  nil,
		"refresh_token": nil,
		"token_expiry":  nil,
		"connected":     false,
	})
}

// RefreshIfNeeded refreshes the access token when it is within five minutes
// of expiry and reports whether it did. A session without a recorded expiry
// is treated as valid. A failed refresh deauthorizes the owner.
func (c *OAuthClient) RefreshIfNeeded(ctx context.Context, ownerID string) (bool, error) {
	sess, err := c.loadSession(ctx, ownerID)
	if err != nil {
		return false, err
	}
	return c.refresh(ctx, ownerID, sess)
}

func (c *OAuthClient) loadSession(ctx context.Context, ownerID string) (*model.OAuthSession, error) {
	var sess model.OAuthSession
	if err := c.store.GetSession(ctx, ownerID, model.ProviderOAuth, &sess); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotConnected
		}
		return nil, fmt.Errorf("load oauth session: %w", err)
	}
	if !sess.Connected || sess.AccessToken == "" {
		return nil, ErrNotConnected
	}
	return &sess, nil
}

func (c *OAuthClient) refresh(ctx context.Context, ownerID string, sess *model.OAuthSession) (bool, error) {
	if sess.TokenExpiry == nil {
		return false, nil
	}
	if c.now().Before(sess.TokenExpiry.Add(-tokenRefreshBuffer)) {
		return false, nil
	}

	var tok *tokenResponse
	var err error
	if sess.RefreshToken == "" {
		err = &AuthError{Provider: model.ProviderOAuth, Reason: "no refresh token"}
	} else {
		tok, err = c.requestToken(ctx, map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": sess.RefreshToken,
		})
	}
	if err != nil {
		c.logger.Warn("oauth refresh failed, deauthorizing", "owner", ownerID, "error", err)
		if derr := c.Disconnect(ctx, ownerID); derr != nil {
			c.logger.Error("oauth deauthorize failed", "owner", ownerID, "error", derr)
		}
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return false, err
		}
		return false, &AuthError{Provider: model.ProviderOAuth, Reason: "token refresh failed", Err: err}
	}

	sess.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		sess.RefreshToken = tok.RefreshToken
	}
	sess.TokenExpiry = c.expiry(tok)

	if err := c.store.UpdateSessionState(ctx, ownerID, model.ProviderOAuth, map[string]any{
		"access_token":  sess.AccessToken,
		"refresh_token": sess.RefreshToken,
		"token_expiry":  sess.TokenExpiry,
	}); err != nil {
		return true, fmt.Errorf("save refreshed tokens: %w", err)
	}
	return true, nil
}

func (c *OAuthClient) expiry(tok *tokenResponse) *time.Time {
	if tok.ExpiresIn <= 0 {
		return nil
	}
	t := c.now().UTC().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return &t
}

func (c *OAuthClient) requestToken(ctx context.Context, form map[string]string) (*tokenResponse, error) {
	form["client_id"] = c.cfg.ClientID
	form["client_secret"] = c.cfg.ClientSecret

	var tok tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&tok).
		ForceContentType("application/json").
		Post(oauthTokenPath)
	if err != nil {
		return nil, &NetworkError{Provider: model.ProviderOAuth, Op: "token", Err: err}
	}
	if resp.IsError() {
		return nil, &AuthError{
			Provider:     model.ProviderOAuth,
			Unauthorized: resp.StatusCode() == http.StatusUnauthorized,
			Reason:       fmt.Sprintf("token endpoint returned %d", resp.StatusCode()),
		}
	}
	if tok.AccessToken == "" {
		return nil, &AuthError{Provider: model.ProviderOAuth, Reason: "token response without access token"}
	}
	return &tok, nil
}

// SyncWindow returns the EGV query window for a given watermark:
// start = max(lastSync - 3h, now - 24h), end = now.
func SyncWindow(lastSync *time.Time, now time.Time) (time.Time, time.Time) {
	start := now.Add(-maxSyncWindow)
	if lastSync != nil {
		if rolled := lastSync.Add(-publicationLag); rolled.After(start) {
			start = rolled
		}
	}
	return start, now
}

// FetchEGVs returns raw records in [start, end].
func (c *OAuthClient) FetchEGVs(ctx context.Context, accessToken string, start, end time.Time) ([]EGVRecord, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limit: %w", err)
	}

	var body egvResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetQueryParams(map[string]string{
			"startDate": start.UTC().Format(EGVTimeLayout),
			"endDate":   end.UTC().Format(EGVTimeLayout),
		}).
		SetResult(&body).
		ForceContentType("application/json").
		Get(oauthEGVPath)
	if err != nil {
		return nil, &NetworkError{Provider: model.ProviderOAuth, Op: "fetch egvs", Err: err}
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return nil, &AuthError{Provider: model.ProviderOAuth, Unauthorized: true, Reason: "access token rejected"}
	}
	if resp.IsError() {
		return nil, &NetworkError{Provider: model.ProviderOAuth, Op: "fetch egvs", StatusCode: resp.StatusCode()}
	}
	return body.Records, nil
}

// Sync refreshes the token if needed, fetches the window since the
// watermark and records readings not already stored. The watermark advances
// to the window end even when nothing was returned.
func (c *OAuthClient) Sync(ctx context.Context, ownerID string) (SyncResult, error) {
	result := SyncResult{OwnerID: ownerID, Provider: model.ProviderOAuth}

	sess, err := c.loadSession(ctx, ownerID)
	if err != nil {
		return result, err
	}
	if _, err := c.refresh(ctx, ownerID, sess); err != nil {
		return result, err
	}

	start, end := SyncWindow(sess.LastSync, c.now().UTC())
	records, err := c.FetchEGVs(ctx, sess.AccessToken, start, end)
	if err != nil {
		return result, err
	}
	result.Fetched = len(records)

	synced, err := recordNew(ctx, c.store, c.recorder, ownerID, c.normalize(ownerID, records))
	if err != nil {
		return result, err
	}
	result.Synced = synced

	if err := c.store.UpdateSessionState(ctx, ownerID, model.ProviderOAuth, map[string]any{
		"last_sync": end,
	}); err != nil {
		return result, fmt.Errorf("save last sync: %w", err)
	}
	return result, nil
}

func (c *OAuthClient) normalize(ownerID string, records []EGVRecord) []model.Reading {
	readings := make([]model.Reading, 0, len(records))
	for _, rec := range records {
		if rec.Value == nil {
			continue
		}
		ts, ok := parseEGVTime(rec.SystemTime)
		if !ok {
			continue
		}
		r, err := model.NewReading(ownerID, *rec.Value, TrendFromDirection(rec.Trend), model.SourceOAuth, ts)
		if err != nil {
			continue
		}
		readings = append(readings, r)
	}
	return readings
}

// parseEGVTime accepts RFC 3339 and the zone-less EGV layout, which is UTC.
func parseEGVTime(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.ParseInLocation(EGVTimeLayout, s, time.UTC); err == nil {
		return t, true
	}
	return time.Time{}, false
}
