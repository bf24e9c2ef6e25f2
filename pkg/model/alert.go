package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// AlertLifetime is how long an alert stays open before it is considered expired.
const AlertLifetime = 2 * time.Hour

// ErrAlertClosed is returned when acting on a resolved or expired alert.
var ErrAlertClosed = errors.New("alert is closed")

// AlertType classifies a glucose event.
type AlertType string

const (
	AlertLow        AlertType = "low"
	AlertUrgentLow  AlertType = "urgent_low"
	AlertHigh       AlertType = "high"
	AlertUrgentHigh AlertType = "urgent_high"
	AlertRapidDrop  AlertType = "rapid_drop"
	AlertRapidRise  AlertType = "rapid_rise"
)

// AlertTypes lists every alert type.
var AlertTypes = []AlertType{
	AlertLow, AlertUrgentLow, AlertHigh, AlertUrgentHigh, AlertRapidDrop, AlertRapidRise,
}

// Severity of an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityUrgent   Severity = "urgent"
	SeverityCritical Severity = "critical"
)

// AlertStatus tracks the alert lifecycle. Status only moves forward:
// active -> acknowledged -> resolved, or active/acknowledged -> expired.
type AlertStatus string

const (
	StatusActive       AlertStatus = "active"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusResolved     AlertStatus = "resolved"
	StatusExpired      AlertStatus = "expired"
)

// NotifiedRecipient records when a care-network member was told about an alert.
type NotifiedRecipient struct {
	RecipientID string    `json:"recipient_id"`
	NotifiedAt  time.Time `json:"notified_at"`
}

// Acknowledgment is a single "I've seen it" from a care-network member or the owner.
type Acknowledgment struct {
	RecipientID    string    `json:"recipient_id"`
	Message        string    `json:"message,omitempty"`
	AcknowledgedAt time.Time `json:"acknowledged_at"`
}

// Alert is a persisted glucose event for one owner.
type Alert struct {
	ID                 string              `json:"id"`
	OwnerID            string              `json:"owner_id"`
	Type               AlertType           `json:"type"`
	Severity           Severity            `json:"severity"`
	GlucoseValue       int                 `json:"glucose_value"`
	Title              string              `json:"title"`
	Message            string              `json:"message"`
	NotifiedRecipients []NotifiedRecipient `json:"notified_recipients"`
	Acknowledgments    []Acknowledgment    `json:"acknowledgments"`
	Status             AlertStatus         `json:"status"`
	CreatedAt          time.Time           `json:"created_at"`
	ExpiresAt          time.Time           `json:"expires_at"`
	ResolvedAt         *time.Time          `json:"resolved_at,omitempty"`
}

// NewAlert creates an active alert expiring AlertLifetime after now.
func NewAlert(ownerID string, t AlertType, severity Severity, value int, now time.Time) *Alert {
	now = now.UTC().Truncate(time.Millisecond)
	return &Alert{
		ID:                 uuid.New().String(),
		OwnerID:            ownerID,
		Type:               t,
		Severity:           severity,
		GlucoseValue:       value,
		NotifiedRecipients: []NotifiedRecipient{},
		Acknowledgments:    []Acknowledgment{},
		Status:             StatusActive,
		CreatedAt:          now,
		ExpiresAt:          now.Add(AlertLifetime),
	}
}

// IsOpen reports whether the alert is still active or acknowledged.
func (a *Alert) IsOpen() bool {
	return a.Status == StatusActive || a.Status == StatusAcknowledged
}

// ExpireIfDue reclassifies an open alert whose ExpiresAt has passed.
// It reports whether the status changed.
func (a *Alert) ExpireIfDue(now time.Time) bool {
	if !a.IsOpen() || now.Before(a.ExpiresAt) {
		return false
	}
	a.Status = StatusExpired
	return true
}

// AcknowledgedBy reports whether actor already acknowledged the alert.
func (a *Alert) AcknowledgedBy(actor string) bool {
	for _, ack := range a.Acknowledgments {
		if ack.RecipientID == actor {
			return true
		}
	}
	return false
}

// Acknowledge records an acknowledgment by actor. It returns false without
// changes when actor has already acknowledged. Only the first acknowledgment
// moves the alert from active to acknowledged.
func (a *Alert) Acknowledge(actor, message string, at time.Time) (bool, error) {
	if !a.IsOpen() {
		return false, ErrAlertClosed
	}
	if a.AcknowledgedBy(actor) {
		return false, nil
	}

	a.Acknowledgments = append(a.Acknowledgments, Acknowledgment{
		RecipientID:    actor,
		Message:        message,
		AcknowledgedAt: at.UTC().Truncate(time.Millisecond),
	})
	if a.Status == StatusActive {
		a.Status = StatusAcknowledged
	}
	return true, nil
}

// Resolve closes the alert. Resolving an already resolved alert is a no-op.
func (a *Alert) Resolve(at time.Time) (bool, error) {
	switch a.Status {
	case StatusResolved:
		return false, nil
	case StatusExpired:
		return false, ErrAlertClosed
	}

	resolvedAt := at.UTC().Truncate(time.Millisecond)
	a.Status = StatusResolved
	a.ResolvedAt = &resolvedAt
	return true, nil
}

// RecipientIDs returns the ids in NotifiedRecipients.
func (a *Alert) RecipientIDs() []string {
	ids := make([]string, 0, len(a.NotifiedRecipients))
	for _, r := range a.NotifiedRecipients {
		ids = append(ids, r.RecipientID)
	}
	return ids
}

// AlertFilter selects alerts. Zero fields are ignored.
type AlertFilter struct {
	OwnerID      string
	Type         AlertType
	Statuses     []AlertStatus
	CreatedAfter time.Time
	Limit        int
}
