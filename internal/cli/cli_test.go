package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/gluco-guardian/internal/config"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/storage"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/synclock"
)

const seedYAML = `
users:
  - id: owner
    thresholds:
      low: 80
      high: 200
      high_alert_delay_minutes: 15
    care:
      - recipient: mom
        permissions:
          receive_low_alerts: true
          receive_high_alerts: true
      - recipient: coach
        status: paused
        permissions:
          receive_low_alerts: true
  - id: mom
    notifications:
      acknowledgments: false
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.Logging.Level = "error"
	return cfg
}

func TestParseSeed(t *testing.T) {
	f, err := parseSeed([]byte(seedYAML))
	require.NoError(t, err)
	require.Len(t, f.Users, 2)

	owner := f.Users[0]
	require.NotNil(t, owner.Thresholds)
	assert.Equal(t, 80, owner.Thresholds.Low)
	assert.Equal(t, 15, owner.Thresholds.HighAlertDelayMinutes)
	require.Len(t, owner.Care, 2)
	assert.Equal(t, "active", owner.Care[0].Status)
	assert.Equal(t, "paused", owner.Care[1].Status)
	assert.False(t, owner.Care[1].Permissions.ReceiveHighAlerts)
}

func TestParseSeed_Rejects(t *testing.T) {
	tests := map[string]string{
		"missing id":       "users:\n  - thresholds: {low: 70}\n",
		"bad thresholds":   "users:\n  - id: a\n    thresholds: {low: 200, high: 100}\n",
		"low in urgent":    "users:\n  - id: a\n    thresholds: {low: 50, high: 180}\n",
		"high in urgent":   "users:\n  - id: a\n    thresholds: {low: 70, high: 320}\n",
		"unknown category": "users:\n  - id: a\n    notifications: {sms: true}\n",
		"bad care status":  "users:\n  - id: a\n    care: [{recipient: b, status: blocked}]\n",
		"invalid yaml":     "users: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseSeed([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApplySeed(t *testing.T) {
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "seed.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	f, err := parseSeed([]byte(seedYAML))
	require.NoError(t, err)
	n, err := applySeed(ctx, store, f)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	th, err := store.GetThresholds(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, 200, th.High)

	rels, err := store.ListCareRelationships(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, rels, 2)

	enabled, err := store.NotificationEnabled(ctx, "mom", model.CategoryAcknowledgments)
	require.NoError(t, err)
	assert.False(t, enabled)
	enabled, err = store.NotificationEnabled(ctx, "mom", model.CategoryGlucoseAlerts)
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestParseCareStatus(t *testing.T) {
	st, err := parseCareStatus("pending")
	require.NoError(t, err)
	assert.Equal(t, model.CarePending, st)

	_, err = parseCareStatus("")
	var ve *model.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestInitApp(t *testing.T) {
	cfg := testConfig(t)

	a, err := initApp(cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.ElementsMatch(t,
		[]model.ProviderKind{model.ProviderShare, model.ProviderOAuth, model.ProviderNightscout},
		a.registry.List())
	assert.Nil(t, a.redis)

	// no secret: share refuses to store credentials
	err = a.share.Connect(context.Background(), "owner", "user", "pass", "")
	assert.Error(t, err)
}

func TestInitLocker(t *testing.T) {
	cfg := testConfig(t)

	locker, client := initLocker(cfg)
	assert.Nil(t, client)
	assert.IsType(t, &synclock.Memory{}, locker)

	mr := miniredis.RunT(t)
	cfg.Lock.Redis.Addr = mr.Addr()
	locker, client = initLocker(cfg)
	require.NotNil(t, client)
	defer client.Close()
	require.IsType(t, &synclock.Redis{}, locker)

	unlock, err := locker.TryLock(context.Background(), "sync:share:owner", cfg.Lock.TTL)
	require.NoError(t, err)
	assert.True(t, mr.Exists(cfg.Lock.Redis.Prefix+"sync:share:owner"))
	require.NoError(t, unlock(context.Background()))
	assert.False(t, mr.Exists(cfg.Lock.Redis.Prefix+"sync:share:owner"))
}
