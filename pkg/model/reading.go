// Package model holds the canonical glucose types shared by every provider,
// the alert evaluator and the notification fan-out.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Valid sensor range in mg/dL, inclusive on both ends.
const (
	MinValue = 20
	MaxValue = 600
)

// UnitMgDL is the only unit readings are stored in.
const UnitMgDL = "mg/dL"

// Trend is the canonical direction of a glucose reading.
type Trend string

const (
	TrendRisingFast  Trend = "rising_fast"
	TrendRising      Trend = "rising"
	TrendStable      Trend = "stable"
	TrendFalling     Trend = "falling"
	TrendFallingFast Trend = "falling_fast"
)

// Valid reports whether t belongs to the canonical trend vocabulary.
func (t Trend) Valid() bool {
	switch t {
	case TrendRisingFast, TrendRising, TrendStable, TrendFalling, TrendFallingFast:
		return true
	}
	return false
}

// Arrow returns the display glyph for the trend.
func (t Trend) Arrow() string {
	switch t {
	case TrendRisingFast:
		return "⇈"
	case TrendRising:
		return "↑"
	case TrendStable:
		return "→"
	case TrendFalling:
		return "↓"
	case TrendFallingFast:
		return "⇊"
	}
	return "-"
}

// Source identifies the ingestion path that produced a reading.
type Source string

const (
	SourceManual     Source = "manual"
	SourceShare      Source = "provider-share"
	SourceOAuth      Source = "provider-oauth"
	SourceNightscout Source = "provider-nightscout"
	SourceOther      Source = "other"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceManual, SourceShare, SourceOAuth, SourceNightscout, SourceOther:
		return true
	}
	return false
}

// Reading is a single immutable glucose measurement.
type Reading struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Value      int       `json:"value"`
	Unit       string    `json:"unit"`
	Trend      Trend     `json:"trend"`
	TrendArrow string    `json:"trend_arrow"`
	Source     Source    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

// ValidationError reports a record rejected by the canonical model.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// ValidValue reports whether v lies inside the accepted sensor range.
func ValidValue(v int) bool {
	return v >= MinValue && v <= MaxValue
}

// NewReading validates and normalizes a measurement. The timestamp is
// converted to UTC and truncated to millisecond precision, which is what the
// store keeps.
func NewReading(ownerID string, value int, trend Trend, source Source, at time.Time) (Reading, error) {
	if ownerID == "" {
		return Reading{}, &ValidationError{Field: "owner", Value: ownerID, Reason: "must not be empty"}
	}
	if !ValidValue(value) {
		return Reading{}, &ValidationError{
			Field:  "value",
			Value:  value,
			Reason: fmt.Sprintf("outside [%d, %d]", MinValue, MaxValue),
		}
	}
	if !trend.Valid() {
		return Reading{}, &ValidationError{Field: "trend", Value: trend, Reason: "unknown trend"}
	}
	if !source.Valid() {
		return Reading{}, &ValidationError{Field: "source", Value: source, Reason: "unknown source"}
	}
	if at.IsZero() {
		return Reading{}, &ValidationError{Field: "timestamp", Value: at, Reason: "missing"}
	}

	return Reading{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		Value:      value,
		Unit:       UnitMgDL,
		Trend:      trend,
		TrendArrow: trend.Arrow(),
		Source:     source,
		Timestamp:  at.UTC().Truncate(time.Millisecond),
	}, nil
}

// ReadingFilter selects readings by owner, source and half-open time range.
type ReadingFilter struct {
	OwnerID string
	Source  Source
	Start   time.Time
	End     time.Time
	Limit   int
}
