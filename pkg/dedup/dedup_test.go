package dedup_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/dedup"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
)

func at(ts time.Time, value int) model.Reading {
	return model.Reading{OwnerID: "u1", Value: value, Timestamp: ts}
}

func TestFilter(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	existing := []model.Reading{at(base, 100), at(base.Add(5*time.Minute), 105)}

	candidates := []model.Reading{
		at(base.Add(300*time.Millisecond), 100),      // rounds onto an existing reading
		at(base.Add(5*time.Minute-400*time.Millisecond), 105),
		at(base.Add(10*time.Minute), 110),
		at(base.Add(10*time.Minute+200*time.Millisecond), 110), // duplicate within the batch
		at(base.Add(15*time.Minute), 115),
	}

	got := dedup.Filter(candidates, existing)
	assert.Len(t, got, 2)
	assert.Equal(t, 110, got[0].Value)
	assert.Equal(t, 115, got[1].Value)
}

func TestFilterIdempotent(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	batch := []model.Reading{at(base, 100), at(base.Add(5*time.Minute), 105)}

	first := dedup.Filter(batch, nil)
	assert.Len(t, first, 2)

	second := dedup.Filter(batch, first)
	assert.Empty(t, second)
}

func TestNewer(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	batch := []model.Reading{at(base, 100), at(base.Add(time.Minute), 101), at(base.Add(-time.Minute), 99)}

	assert.Len(t, dedup.Newer(batch, time.Time{}), 3)

	got := dedup.Newer(batch, base)
	assert.Len(t, got, 1)
	assert.Equal(t, 101, got[0].Value)
}
