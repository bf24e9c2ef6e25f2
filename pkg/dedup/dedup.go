// Package dedup drops readings that are already stored.
package dedup

import (
	"time"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
)

// Key returns the comparison key of a timestamp: unix seconds after rounding
// to the nearest second.
func Key(t time.Time) int64 {
	return t.Round(time.Second).Unix()
}

// Filter returns the candidates whose rounded timestamp is present neither
// in existing nor earlier in candidates. Order of candidates is preserved.
func Filter(candidates, existing []model.Reading) []model.Reading {
	seen := make(map[int64]struct{}, len(existing)+len(candidates))
	for _, r := range existing {
		seen[Key(r.Timestamp)] = struct{}{}
	}

	out := make([]model.Reading, 0, len(candidates))
	for _, r := range candidates {
		k := Key(r.Timestamp)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Newer returns the candidates strictly newer than cutoff. A zero cutoff
// keeps everything.
func Newer(candidates []model.Reading, cutoff time.Time) []model.Reading {
	if cutoff.IsZero() {
		return candidates
	}
	out := make([]model.Reading, 0, len(candidates))
	for _, r := range candidates {
		if r.Timestamp.After(cutoff) {
			out = append(out, r)
		}
	}
	return out
}
