package evaluator

import (
	"time"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
)

// Recipient is a care-network member as seen by personalization.
type Recipient struct {
	ID          string
	Permissions model.Permissions
	// Settings are the recipient's own thresholds; nil means defaults.
	Settings *model.ThresholdSettings
}

// Qualifies decides independently for one recipient whether an alert of
// type t for value should reach them. It does not reuse the owner's
// evaluation: standard low and high are re-checked against the recipient's
// own thresholds, including their own sustained-high delay.
func Qualifies(t model.AlertType, value int, r Recipient, recent []model.Reading, now time.Time) bool {
	perm := r.Permissions
	switch t {
	case model.AlertUrgentLow, model.AlertUrgentHigh:
		return perm.ReceiveLowAlerts
	case model.AlertRapidDrop:
		return perm.ReceiveLowAlerts
	case model.AlertRapidRise:
		return perm.ReceiveHighAlerts
	case model.AlertLow:
		s := r.Settings.Resolved()
		return perm.ReceiveLowAlerts && value < s.Low
	case model.AlertHigh:
		s := r.Settings.Resolved()
		if !perm.ReceiveHighAlerts || value <= s.High {
			return false
		}
		if s.HighAlertDelayMinutes > 0 {
			return SustainedHigh(recent, s.High, s.HighAlertDelay(), now)
		}
		return true
	}
	return false
}
