package providers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/providers"
)

var egvTimeFormat = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`)

type fakeOAuth struct {
	mu          sync.Mutex
	tokenForms  []map[string]string
	tokenStatus int
	egvQueries  []map[string]string
	authHeaders []string
	records     []map[string]any
}

func (f *fakeOAuth) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.mu.Lock()
		defer f.mu.Unlock()
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		f.tokenForms = append(f.tokenForms, form)
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"access-%d","refresh_token":"refresh-%d","expires_in":7200,"token_type":"Bearer"}`,
			len(f.tokenForms), len(f.tokenForms))
	})
	mux.HandleFunc("GET /v3/users/self/egvs", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.egvQueries = append(f.egvQueries, map[string]string{
			"startDate": r.URL.Query().Get("startDate"),
			"endDate":   r.URL.Query().Get("endDate"),
		})
		f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") == "Bearer revoked" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"records": f.records})
	})
	return mux
}

type oauthFixture struct {
	fake   *fakeOAuth
	client *providers.OAuthClient
	store  providers.Store
	now    time.Time
}

func newOAuthFixture(t *testing.T) *oauthFixture {
	t.Helper()
	fake := &fakeOAuth{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	store := newTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client := providers.NewOAuthClient(providers.OAuthConfig{
		BaseURL:      srv.URL,
		ClientID:     "cid",
		ClientSecret: "csecret",
		RedirectURI:  "https://app.example/callback",
	}, store, &sink{store: store}, silentLogger(), providers.WithClock(func() time.Time { return now }))

	return &oauthFixture{fake: fake, client: client, store: store, now: now}
}

func (f *oauthFixture) seed(t *testing.T, patch map[string]any) {
	t.Helper()
	patch["connected"] = true
	require.NoError(t, f.store.UpdateSessionState(context.Background(), "u1", model.ProviderOAuth, patch))
}

func (f *oauthFixture) session(t *testing.T) model.OAuthSession {
	t.Helper()
	var sess model.OAuthSession
	require.NoError(t, f.store.GetSession(context.Background(), "u1", model.ProviderOAuth, &sess))
	return sess
}

func egv(at time.Time, value int, trend string) map[string]any {
	return map[string]any{
		"systemTime":  at.UTC().Format(providers.EGVTimeLayout),
		"displayTime": at.Format(time.RFC3339),
		"value":       value,
		"trend":       trend,
	}
}

func TestSyncWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	start, end := providers.SyncWindow(nil, now)
	assert.Equal(t, now.Add(-24*time.Hour), start)
	assert.Equal(t, now, end)

	recent := now.Add(-time.Hour)
	start, _ = providers.SyncWindow(&recent, now)
	assert.Equal(t, now.Add(-4*time.Hour), start)

	old := now.Add(-30 * time.Hour)
	start, _ = providers.SyncWindow(&old, now)
	assert.Equal(t, now.Add(-24*time.Hour), start)
}

func TestOAuth_Connect(t *testing.T) {
	f := newOAuthFixture(t)

	require.NoError(t, f.client.Connect(context.Background(), "u1", "auth-code"))

	require.Len(t, f.fake.tokenForms, 1)
	form := f.fake.tokenForms[0]
	assert.Equal(t, "authorization_code", form["grant_type"])
	assert.Equal(t, "auth-code", form["code"])
	assert.Equal(t, "cid", form["client_id"])

	sess := f.session(t)
	assert.True(t, sess.Connected)
	assert.Equal(t, "access-1", sess.AccessToken)
	require.NotNil(t, sess.TokenExpiry)
	assert.True(t, sess.TokenExpiry.Equal(f.now.Add(2*time.Hour)))
}

func TestOAuth_SyncWindowAndWatermark(t *testing.T) {
	f := newOAuthFixture(t)
	ctx := context.Background()
	lastSync := f.now.Add(-time.Hour)
	f.seed(t, map[string]any{"access_token": "tok", "last_sync": lastSync})

	f.fake.records = []map[string]any{
		egv(f.now.Add(-10*time.Minute), 150, "flat"),
		egv(f.now.Add(-5*time.Minute), 160, "singleUp"),
	}

	res, err := f.client.Sync(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Synced)

	require.Len(t, f.fake.egvQueries, 1)
	q := f.fake.egvQueries[0]
	assert.Regexp(t, egvTimeFormat, q["startDate"])
	assert.Regexp(t, egvTimeFormat, q["endDate"])
	assert.Equal(t, "2026-03-01T08:00:00", q["startDate"])
	assert.Equal(t, "2026-03-01T12:00:00", q["endDate"])
	assert.Equal(t, "Bearer tok", f.fake.authHeaders[0])
	assert.Empty(t, f.fake.tokenForms, "no expiry recorded means no refresh")

	sess := f.session(t)
	require.NotNil(t, sess.LastSync)
	assert.True(t, sess.LastSync.Equal(f.now))

	// Re-running over the same window inserts nothing.
	res, err = f.client.Sync(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Synced)
}

func TestOAuth_WatermarkAdvancesOnEmpty(t *testing.T) {
	f := newOAuthFixture(t)
	f.seed(t, map[string]any{"access_token": "tok"})

	res, err := f.client.Sync(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Fetched)

	sess := f.session(t)
	require.NotNil(t, sess.LastSync)
	assert.True(t, sess.LastSync.Equal(f.now))
}

func TestOAuth_RefreshWithinBuffer(t *testing.T) {
	f := newOAuthFixture(t)
	f.seed(t, map[string]any{
		"access_token":  "old",
		"refresh_token": "r0",
		"token_expiry":  f.now.Add(4 * time.Minute),
	})

	refreshed, err := f.client.RefreshIfNeeded(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, refreshed)

	require.Len(t, f.fake.tokenForms, 1)
	assert.Equal(t, "refresh_token", f.fake.tokenForms[0]["grant_type"])
	assert.Equal(t, "r0", f.fake.tokenForms[0]["refresh_token"])

	sess := f.session(t)
	assert.Equal(t, "access-1", sess.AccessToken)
	assert.Equal(t, "refresh-1", sess.RefreshToken)
}

func TestOAuth_NoRefreshOutsideBuffer(t *testing.T) {
	f := newOAuthFixture(t)
	f.seed(t, map[string]any{
		"access_token":  "tok",
		"refresh_token": "r0",
		"token_expiry":  f.now.Add(6 * time.Minute),
	})

	refreshed, err := f.client.RefreshIfNeeded(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Empty(t, f.fake.tokenForms)
}

func TestOAuth_SyncUsesRefreshedToken(t *testing.T) {
	f := newOAuthFixture(t)
	f.seed(t, map[string]any{
		"access_token":  "expired",
		"refresh_token": "r0",
		"token_expiry":  f.now.Add(-time.Minute),
	})

	_, err := f.client.Sync(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, f.fake.authHeaders, 1)
	assert.Equal(t, "Bearer access-1", f.fake.authHeaders[0])
}

func TestOAuth_RefreshFailureDeauthorizes(t *testing.T) {
	f := newOAuthFixture(t)
	f.fake.tokenStatus = http.StatusBadRequest
	f.seed(t, map[string]any{
		"access_token":  "old",
		"refresh_token": "r0",
		"token_expiry":  f.now.Add(time.Minute),
	})

	_, err := f.client.Sync(context.Background(), "u1")
	var authErr *providers.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Empty(t, f.fake.egvQueries)

	sess := f.session(t)
	assert.False(t, sess.Connected)
	assert.Empty(t, sess.AccessToken)
	assert.Empty(t, sess.RefreshToken)

	_, err = f.client.Sync(context.Background(), "u1")
	assert.ErrorIs(t, err, providers.ErrNotConnected)
}

func TestOAuth_RejectedAccessToken(t *testing.T) {
	f := newOAuthFixture(t)
	f.seed(t, map[string]any{"access_token": "revoked"})

	_, err := f.client.Sync(context.Background(), "u1")
	var authErr *providers.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.True(t, authErr.Unauthorized)
}

func TestOAuth_AuthorizeURL(t *testing.T) {
	f := newOAuthFixture(t)
	u := f.client.AuthorizeURL("xyz")
	assert.Contains(t, u, "/v2/oauth2/login?")
	assert.Contains(t, u, "client_id=cid")
	assert.Contains(t, u, "state=xyz")
}
