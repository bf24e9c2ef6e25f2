package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
)

type recordingNotifier struct {
	name string
	err  error

	mu    sync.Mutex
	sends []alerts.Push
}

func (n *recordingNotifier) Name() string { return n.name }

func (n *recordingNotifier) Send(_ context.Context, push alerts.Push) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, push)
	return n.err
}

func TestFilteredPusher_FiltersByCategory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetNotificationPreference(ctx, "r1", model.CategoryGlucoseAlerts, false))
	require.NoError(t, store.SetNotificationPreference(ctx, "r2", model.CategoryAcknowledgments, false))

	n := &recordingNotifier{name: "rec"}
	p := NewFilteredPusher(store, silentLogger(), n)

	err := p.SendFilteredPush(ctx, []string{"owner", "r1", "r2"}, alerts.Push{Category: model.CategoryGlucoseAlerts})
	require.NoError(t, err)
	require.Len(t, n.sends, 1)
	assert.Equal(t, []string{"owner", "r2"}, n.sends[0].RecipientIDs)
}

func TestFilteredPusher_AllFilteredSendsNothing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetNotificationPreference(ctx, "r1", model.CategoryAlertResolved, false))

	n := &recordingNotifier{name: "rec"}
	p := NewFilteredPusher(store, silentLogger(), n)

	require.NoError(t, p.SendFilteredPush(ctx, []string{"r1"}, alerts.Push{Category: model.CategoryAlertResolved}))
	assert.Empty(t, n.sends)
}

func TestFilteredPusher_CollectsChannelErrors(t *testing.T) {
	store := newTestStore(t)
	ok := &recordingNotifier{name: "ok"}
	bad := &recordingNotifier{name: "bad", err: errors.New("boom")}
	p := NewFilteredPusher(store, silentLogger(), bad, ok)

	err := p.SendFilteredPush(context.Background(), []string{"owner"}, alerts.Push{Category: model.CategoryGlucoseAlerts})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, ok.sends, 1)
}
