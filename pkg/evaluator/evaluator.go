// Package evaluator classifies glucose readings into alert types.
//
// Everything here is a pure function of its inputs: the reading value, the
// owner's (or a recipient's) threshold settings, the recent reading history
// and the evaluation instant.
package evaluator

import (
	"time"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
)

// Evaluate classifies value, taken at now, and reports whether an alert is
// due. recent may include the reading being evaluated. Missing settings fall
// back to the generic defaults.
//
// Precedence, first match wins:
//
//	value <= 54         urgent_low
//	value <  low        low
//	value >= 300        urgent_high
//	value >  high       high (subject to sustained-high confirmation)
//	prior reading delta rapid_drop / rapid_rise
func Evaluate(value int, settings *model.ThresholdSettings, recent []model.Reading, now time.Time) (model.AlertType, bool) {
	s := settings.Resolved()

	switch {
	case value <= model.UrgentLow:
		return model.AlertUrgentLow, true
	case value < s.Low:
		return model.AlertLow, true
	case value >= model.UrgentHigh:
		return model.AlertUrgentHigh, true
	case value > s.High:
		if s.HighAlertDelayMinutes <= 0 || SustainedHigh(recent, s.High, s.HighAlertDelay(), now) {
			return model.AlertHigh, true
		}
		// Unconfirmed highs fall through to the rapid-change check.
	}

	return RapidChange(value, recent, now)
}

// SustainedHigh reports whether every reading in (now-delay, now] is above
// threshold and there are at least two of them.
func SustainedHigh(recent []model.Reading, threshold int, delay time.Duration, now time.Time) bool {
	from := now.Add(-delay)
	count := 0
	for _, r := range recent {
		if !r.Timestamp.After(from) || r.Timestamp.After(now) {
			continue
		}
		if r.Value <= threshold {
			return false
		}
		count++
	}
	return count >= 2
}

// RapidChange compares value with the most recent reading taken before now
// within the rapid-change window.
func RapidChange(value int, recent []model.Reading, now time.Time) (model.AlertType, bool) {
	from := now.Add(-model.RapidChangeWindow)

	var prior *model.Reading
	for i := range recent {
		r := &recent[i]
		if !r.Timestamp.Before(now) || r.Timestamp.Before(from) {
			continue
		}
		if prior == nil || r.Timestamp.After(prior.Timestamp) {
			prior = r
		}
	}
	if prior == nil {
		return "", false
	}

	diff := value - prior.Value
	switch {
	case diff <= -model.RapidChangeDelta:
		return model.AlertRapidDrop, true
	case diff >= model.RapidChangeDelta:
		return model.AlertRapidRise, true
	}
	return "", false
}
