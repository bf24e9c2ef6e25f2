package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/storage"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/synclock"
)

func insert(t *testing.T, store *storage.SQLite, owner string, value int, at time.Time) {
	t.Helper()
	r, err := model.NewReading(owner, value, model.TrendStable, model.SourceManual, at)
	require.NoError(t, err)
	_, err = store.InsertReadings(context.Background(), []model.Reading{r})
	require.NoError(t, err)
}

func TestSummarize(t *testing.T) {
	readings := []model.Reading{
		{Value: 60}, {Value: 100}, {Value: 180}, {Value: 200},
	}

	got := Summarize("owner", day.Add(5*time.Hour), readings, &model.ThresholdSettings{Low: 70, High: 180})
	assert.Equal(t, day, got.Day)
	assert.Equal(t, 4, got.Count)
	assert.Equal(t, 60, got.Min)
	assert.Equal(t, 200, got.Max)
	assert.InDelta(t, 135.0, got.Mean, 0.001)
	assert.InDelta(t, 50.0, got.TimeInRangePct, 0.001)

	// fallback 70/250 puts 200 in range
	got = Summarize("owner", day, readings, nil)
	assert.InDelta(t, 75.0, got.TimeInRangePct, 0.001)

	empty := Summarize("owner", day, nil, nil)
	assert.Zero(t, empty.Count)
}

func TestDailySummary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetThresholds(ctx, "a", model.ThresholdSettings{Low: 80, High: 160}))

	insert(t, store, "a", 100, day.Add(time.Hour))
	insert(t, store, "a", 170, day.Add(2*time.Hour))
	insert(t, store, "b", 90, day.Add(23*time.Hour))
	insert(t, store, "c", 90, day.Add(25*time.Hour))

	s := newTestScheduler(t, store, synclock.NewMemory())
	n, err := s.DailySummary(ctx, day.Add(10*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sums, err := store.ListDailySummaries(ctx, "a", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, 2, sums[0].Count)
	assert.InDelta(t, 50.0, sums[0].TimeInRangePct, 0.001)

	sums, err = store.ListDailySummaries(ctx, "c", day, day.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, sums)
}

func TestRetention(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := day.Add(12 * time.Hour)
	insert(t, store, "a", 100, now.AddDate(0, 0, -45))
	insert(t, store, "a", 110, now.AddDate(0, 0, -10))

	s := newTestScheduler(t, store, synclock.NewMemory())
	n, err := s.Retention(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := store.FindReadings(ctx, model.ReadingFilter{OwnerID: "a"})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, 110, left[0].Value)
}

func TestRetention_Disabled(t *testing.T) {
	store := newTestStore(t)
	s := newTestScheduler(t, store, synclock.NewMemory())
	s.cfg.RetentionDays = 0

	n, err := s.Retention(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
