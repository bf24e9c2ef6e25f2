package evaluator

import (
	"fmt"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
)

// Copy is the user-facing text and severity of an alert.
type Copy struct {
	Title    string
	Message  string
	Severity model.Severity
}

// Describe returns the copy for an alert type. Every model.AlertType has a
// case; an unknown type is an error rather than a generic fallback.
func Describe(t model.AlertType, value int) (Copy, error) {
	switch t {
	case model.AlertUrgentLow:
		return Copy{
			Title:    "Urgent low glucose",
			Message:  fmt.Sprintf("Glucose is %d mg/dL. Treat with fast-acting carbs now.", value),
			Severity: model.SeverityCritical,
		}, nil
	case model.AlertLow:
		return Copy{
			Title:    "Low glucose",
			Message:  fmt.Sprintf("Glucose is %d mg/dL and below target.", value),
			Severity: model.SeverityWarning,
		}, nil
	case model.AlertHigh:
		return Copy{
			Title:    "High glucose",
			Message:  fmt.Sprintf("Glucose is %d mg/dL and above target.", value),
			Severity: model.SeverityWarning,
		}, nil
	case model.AlertUrgentHigh:
		return Copy{
			Title:    "Urgent high glucose",
			Message:  fmt.Sprintf("Glucose is %d mg/dL. Check ketones and follow the care plan.", value),
			Severity: model.SeverityUrgent,
		}, nil
	case model.AlertRapidDrop:
		return Copy{
			Title:    "Glucose dropping fast",
			Message:  fmt.Sprintf("Glucose fell to %d mg/dL in under 20 minutes.", value),
			Severity: model.SeverityUrgent,
		}, nil
	case model.AlertRapidRise:
		return Copy{
			Title:    "Glucose rising fast",
			Message:  fmt.Sprintf("Glucose rose to %d mg/dL in under 20 minutes.", value),
			Severity: model.SeverityInfo,
		}, nil
	}
	return Copy{}, fmt.Errorf("no alert copy for type %q", t)
}
