package providers

import (
	"strings"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
)

// TrendFromDirection maps the vendor direction vocabulary shared by the
// Share, OAuth and Nightscout APIs onto the canonical trend. Matching is
// case-insensitive; unknown and non-computable directions map to stable.
func TrendFromDirection(direction string) model.Trend {
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "doubleup":
		return model.TrendRisingFast
	case "singleup", "fortyfiveup":
		return model.TrendRising
	case "fortyfivedown", "singledown":
		return model.TrendFalling
	case "doubledown":
		return model.TrendFallingFast
	default:
		return model.TrendStable
	}
}

// shareTrendCodes is the numeric trend encoding used by older Share payloads.
var shareTrendCodes = map[int]string{
	1: "DoubleUp",
	2: "SingleUp",
	3: "FortyFiveUp",
	4: "Flat",
	5: "FortyFiveDown",
	6: "SingleDown",
	7: "DoubleDown",
}
