package providers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/credentials"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/providers"
)

const (
	testAccountID = "7a4f6c2e-1b8d-4c3e-9f0a-2d5b6e7c8a91"
	testAppID     = "app-123"
	nilGUID       = "00000000-0000-0000-0000-000000000000"
)

// fakeShare is a scripted Share web service.
type fakeShare struct {
	mu        sync.Mutex
	logins    int
	fetches   int
	sessionN  int
	loginID   string
	responses []func(w http.ResponseWriter)
	records   []map[string]any
	lastQuery map[string]string
}

func (f *fakeShare) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.URL.Path {
		case "/ShareWebServices/Services/General/AuthenticatePublisherAccount":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, testAppID, body["applicationId"])
			if body["password"] != "secret" {
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `{"Code":"AccountPasswordInvalid","Message":"bad"}`)
				return
			}
			fmt.Fprintf(w, "%q", testAccountID)

		case "/ShareWebServices/Services/General/LoginPublisherAccountById":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, testAccountID, body["accountId"])
			f.logins++
			if f.loginID != "" {
				fmt.Fprintf(w, "%q", f.loginID)
				return
			}
			f.sessionN++
			fmt.Fprintf(w, "%q", fmt.Sprintf("5e3b1c2d-0000-4000-8000-%012d", f.sessionN))

		case "/ShareWebServices/Services/Publisher/ReadPublisherLatestGlucoseValues":
			f.fetches++
			f.lastQuery = map[string]string{
				"sessionId": r.URL.Query().Get("sessionId"),
				"minutes":   r.URL.Query().Get("minutes"),
				"maxCount":  r.URL.Query().Get("maxCount"),
			}
			if len(f.responses) > 0 {
				next := f.responses[0]
				f.responses = f.responses[1:]
				next(w)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(f.records)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func sessionExpired(w http.ResponseWriter) {
	w.WriteHeader(http.StatusInternalServerError)
	fmt.Fprint(w, `{"Code":"SessionIdNotFound","Message":"Session ID not found"}`)
}

func emptyList(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `[]`)
}

func shareRecord(at time.Time, value any, trend any) map[string]any {
	return map[string]any{
		"WT":    fmt.Sprintf("Date(%d)", at.UnixMilli()),
		"ST":    fmt.Sprintf("Date(%d)", at.UnixMilli()),
		"Value": value,
		"Trend": trend,
	}
}

type shareFixture struct {
	fake   *fakeShare
	client *providers.ShareClient
	store  providers.Store
	sink   *sink
	cipher *credentials.Cipher
}

func newShareFixture(t *testing.T) *shareFixture {
	t.Helper()
	fake := &fakeShare{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	store := newTestStore(t)
	s := &sink{store: store}
	cipher, err := credentials.NewCipher("test-secret")
	require.NoError(t, err)

	client := providers.NewShareClient(providers.ShareConfig{
		ApplicationID: testAppID,
		Hosts:         map[string]string{providers.RegionUS: srv.URL},
	}, store, cipher, s, silentLogger())

	return &shareFixture{fake: fake, client: client, store: store, sink: s, cipher: cipher}
}

func (f *shareFixture) session(t *testing.T, owner string) model.ShareSession {
	t.Helper()
	var sess model.ShareSession
	require.NoError(t, f.store.GetSession(context.Background(), owner, model.ProviderShare, &sess))
	return sess
}

func TestShare_Connect(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()

	require.NoError(t, f.client.Connect(ctx, "u1", "alice", "secret", ""))

	sess := f.session(t, "u1")
	assert.True(t, sess.Connected)
	assert.Equal(t, testAccountID, sess.AccountID)
	assert.Equal(t, providers.RegionUS, sess.Region)
	assert.NotContains(t, sess.EncryptedCredential, "secret")

	cred, err := f.cipher.Open("u1", sess.EncryptedCredential)
	require.NoError(t, err)
	assert.Equal(t, "alice", cred.Username)
}

func TestShare_ConnectBadPassword(t *testing.T) {
	f := newShareFixture(t)

	err := f.client.Connect(context.Background(), "u1", "alice", "wrong", "")
	var authErr *providers.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "AccountPasswordInvalid", authErr.Reason)
}

func TestShare_SyncAndDedup(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	f.fake.records = []map[string]any{
		shareRecord(now.Add(-10*time.Minute), 120, "Flat"),
		shareRecord(now.Add(-5*time.Minute), 130, 2),
		shareRecord(now.Add(-15*time.Minute), nil, "Flat"),
		shareRecord(now.Add(-20*time.Minute), 700, "Flat"),
		{"WT": "garbage", "Value": 100, "Trend": "Flat"},
	}
	require.NoError(t, f.client.Connect(ctx, "u1", "alice", "secret", ""))

	res, err := f.client.Sync(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, res.Fetched)
	assert.Equal(t, 2, res.Synced)
	assert.Equal(t, "1440", f.fake.lastQuery["minutes"])
	assert.Equal(t, "288", f.fake.lastQuery["maxCount"])

	sess := f.session(t, "u1")
	assert.NotEmpty(t, sess.SessionID)
	require.NotNil(t, sess.LastSync)

	stored, err := f.store.FindReadings(ctx, model.ReadingFilter{OwnerID: "u1"})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, model.TrendRising, stored[0].Trend)
	assert.Equal(t, model.SourceShare, stored[0].Source)

	// Unchanged upstream window inserts nothing the second time.
	res, err = f.client.Sync(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Synced)
	assert.Equal(t, 1, f.fake.logins, "cached session id is reused")
}

func TestShare_SessionExpiredRetriesOnce(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f.fake.records = []map[string]any{shareRecord(now.Add(-time.Minute), 110, "Flat")}
	require.NoError(t, f.client.Connect(ctx, "u1", "alice", "secret", ""))
	_, err := f.client.Sync(ctx, "u1")
	require.NoError(t, err)
	firstSession := f.session(t, "u1").SessionID

	f.fake.responses = []func(http.ResponseWriter){sessionExpired}
	f.fake.records = append(f.fake.records, shareRecord(now, 115, "Flat"))

	res, err := f.client.Sync(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, 2, f.fake.logins)
	assert.Equal(t, 3, f.fake.fetches)
	assert.NotEqual(t, firstSession, f.session(t, "u1").SessionID)
}

func TestShare_SessionExpiredTwiceFails(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()
	require.NoError(t, f.client.Connect(ctx, "u1", "alice", "secret", ""))

	f.fake.responses = []func(http.ResponseWriter){sessionExpired, sessionExpired, sessionExpired}

	_, err := f.client.Sync(ctx, "u1")
	var sessErr *providers.SessionExpiredError
	require.True(t, errors.As(err, &sessErr))
	assert.Equal(t, 2, f.fake.fetches)
	assert.Equal(t, 0, f.sink.calls())
}

func TestShare_EmptyResultForcesReauth(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, f.client.Connect(ctx, "u1", "alice", "secret", ""))

	f.fake.responses = []func(http.ResponseWriter){emptyList}
	f.fake.records = []map[string]any{shareRecord(now, 140, "FortyFiveDown")}

	res, err := f.client.Sync(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, 2, f.fake.logins)
	assert.Equal(t, 2, f.fake.fetches)
}

func TestShare_TrulyEmpty(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()
	require.NoError(t, f.client.Connect(ctx, "u1", "alice", "secret", ""))

	res, err := f.client.Sync(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Synced)
	assert.Equal(t, 2, f.fake.fetches)
	assert.Equal(t, 0, f.sink.calls())
}

func TestShare_AccountIDPersistedDespiteLoginFailure(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()

	sealed, err := f.cipher.Seal("u1", credentials.Credential{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateSessionState(ctx, "u1", model.ProviderShare, map[string]any{
		"encrypted_credential": sealed,
		"region":               "us",
		"connected":            true,
	}))
	f.fake.loginID = nilGUID

	_, err = f.client.Sync(ctx, "u1")
	var authErr *providers.AuthError
	require.True(t, errors.As(err, &authErr))

	sess := f.session(t, "u1")
	assert.Equal(t, testAccountID, sess.AccountID)
	assert.Empty(t, sess.SessionID)
}

func TestShare_NotConnected(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()

	_, err := f.client.Sync(ctx, "nobody")
	assert.ErrorIs(t, err, providers.ErrNotConnected)

	require.NoError(t, f.client.Connect(ctx, "u1", "alice", "secret", ""))
	require.NoError(t, f.client.Disconnect(ctx, "u1"))
	_, err = f.client.Sync(ctx, "u1")
	assert.ErrorIs(t, err, providers.ErrNotConnected)
}

func TestShare_NoSecret(t *testing.T) {
	client := providers.NewShareClient(providers.ShareConfig{}, newTestStore(t), nil, nil, silentLogger())
	err := client.Connect(context.Background(), "u1", "a", "b", "")
	assert.ErrorIs(t, err, credentials.ErrNoSecret)
}

func TestParseShareTime(t *testing.T) {
	want := time.UnixMilli(1700000000000).UTC()
	for _, in := range []string{"Date(1700000000000)", "Date(1700000000000-0500)", "/Date(1700000000000+0100)/"} {
		got, ok := providers.ParseShareTime(in)
		require.True(t, ok, in)
		assert.True(t, got.Equal(want), in)
	}
	for _, in := range []string{"", "Date()", "2026-03-01T00:00:00Z", "Date(abc)"} {
		_, ok := providers.ParseShareTime(in)
		assert.False(t, ok, in)
	}
}

func TestTrendFromDirection(t *testing.T) {
	tests := map[string]model.Trend{
		"DoubleUp":       model.TrendRisingFast,
		"singleUp":       model.TrendRising,
		"FortyFiveUp":    model.TrendRising,
		"Flat":           model.TrendStable,
		"FortyFiveDown":  model.TrendFalling,
		"SingleDown":     model.TrendFalling,
		"doubleDown":     model.TrendFallingFast,
		"NOT COMPUTABLE": model.TrendStable,
		"":               model.TrendStable,
	}
	for in, want := range tests {
		assert.Equal(t, want, providers.TrendFromDirection(in), in)
	}
}
