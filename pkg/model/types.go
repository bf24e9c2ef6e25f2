package model

import (
	"fmt"
	"strings"
	"time"
)

// Canonical evaluator thresholds in mg/dL.
const (
	UrgentLow        = 54
	UrgentHigh       = 300
	RapidChangeDelta = 50
)

// RapidChangeWindow is the lookback for the rapid-change comparison.
const RapidChangeWindow = 20 * time.Minute

// FallbackLow and FallbackHigh apply when a user has no personal settings.
// They intentionally differ from NewUserLow/NewUserHigh, which are what a
// freshly created profile starts with; the mismatch is pending product review.
const (
	FallbackLow  = 70
	FallbackHigh = 250
)

// NewUserLow and NewUserHigh are the profile defaults for new users.
const (
	NewUserLow  = 70
	NewUserHigh = 180
)

// ThresholdSettings are a user's personal alert thresholds.
type ThresholdSettings struct {
	Low                   int `json:"low" yaml:"low"`
	High                  int `json:"high" yaml:"high"`
	HighAlertDelayMinutes int `json:"high_alert_delay_minutes" yaml:"high_alert_delay_minutes"`
}

// Resolved returns the settings with unset fields replaced by the fallback
// values. It is safe to call on a nil receiver.
func (s *ThresholdSettings) Resolved() ThresholdSettings {
	out := ThresholdSettings{Low: FallbackLow, High: FallbackHigh}
	if s == nil {
		return out
	}
	if s.Low > 0 {
		out.Low = s.Low
	}
	if s.High > 0 {
		out.High = s.High
	}
	if s.HighAlertDelayMinutes > 0 {
		out.HighAlertDelayMinutes = s.HighAlertDelayMinutes
	}
	return out
}

// HighAlertDelay returns the sustained-high window as a duration.
func (s ThresholdSettings) HighAlertDelay() time.Duration {
	return time.Duration(s.HighAlertDelayMinutes) * time.Minute
}

// Validate checks explicitly set fields. Zero fields fall back and are
// accepted. The resolved pair must keep UrgentLow < Low < High < UrgentHigh
// so the alert ranges stay disjoint.
func (s ThresholdSettings) Validate() error {
	if s.Low < 0 || (s.Low > 0 && s.Low <= UrgentLow) {
		return &ValidationError{Field: "low", Value: s.Low, Reason: fmt.Sprintf("must be above %d", UrgentLow)}
	}
	if s.High < 0 || (s.High > 0 && s.High >= UrgentHigh) {
		return &ValidationError{Field: "high", Value: s.High, Reason: fmt.Sprintf("must be below %d", UrgentHigh)}
	}
	if r := s.Resolved(); r.Low >= r.High {
		return &ValidationError{Field: "low", Value: r.Low, Reason: fmt.Sprintf("must be below high %d", r.High)}
	}
	if s.HighAlertDelayMinutes < 0 {
		return &ValidationError{Field: "high_alert_delay_minutes", Value: s.HighAlertDelayMinutes, Reason: "must not be negative"}
	}
	return nil
}

// NewUserThresholds returns the settings given to a newly created profile.
func NewUserThresholds() ThresholdSettings {
	return ThresholdSettings{Low: NewUserLow, High: NewUserHigh}
}

// CareStatus is the state of a care relationship.
type CareStatus string

const (
	CarePending CareStatus = "pending"
	CareActive  CareStatus = "active"
	CarePaused  CareStatus = "paused"
)

// Permissions control which alerts a recipient receives.
type Permissions struct {
	ReceiveLowAlerts  bool `json:"receive_low_alerts" yaml:"receive_low_alerts"`
	ReceiveHighAlerts bool `json:"receive_high_alerts" yaml:"receive_high_alerts"`
}

// CareRelationship links an owner to a care-network member.
// RecipientID stays empty until the invite is accepted.
type CareRelationship struct {
	ID          string      `json:"id"`
	OwnerID     string      `json:"owner_id"`
	RecipientID string      `json:"recipient_id,omitempty"`
	Status      CareStatus  `json:"status"`
	Permissions Permissions `json:"permissions"`
}

// IsActive reports whether the relationship can receive notifications.
func (c CareRelationship) IsActive() bool {
	return c.Status == CareActive && c.RecipientID != ""
}

// ProviderKind names an upstream telemetry provider.
type ProviderKind string

const (
	ProviderShare      ProviderKind = "share"
	ProviderOAuth      ProviderKind = "oauth"
	ProviderNightscout ProviderKind = "nightscout"
)

// ProviderKinds lists every supported provider.
var ProviderKinds = []ProviderKind{ProviderShare, ProviderOAuth, ProviderNightscout}

// Source returns the reading source produced by the provider.
func (k ProviderKind) Source() Source {
	switch k {
	case ProviderShare:
		return SourceShare
	case ProviderOAuth:
		return SourceOAuth
	case ProviderNightscout:
		return SourceNightscout
	}
	return SourceOther
}

// ShareSession is the stored session state of the username/password provider.
type ShareSession struct {
	EncryptedCredential string     `json:"encrypted_credential,omitempty"`
	AccountID           string     `json:"account_id,omitempty"`
	SessionID           string     `json:"session_id,omitempty"`
	Region              string     `json:"region,omitempty"`
	Connected           bool       `json:"connected"`
	LastSync            *time.Time `json:"last_sync,omitempty"`
}

// OAuthSession is the stored token state of the OAuth provider.
type OAuthSession struct {
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenExpiry  *time.Time `json:"token_expiry,omitempty"`
	Connected    bool       `json:"connected"`
	LastSync     *time.Time `json:"last_sync,omitempty"`
}

// NightscoutSession is the stored state of the self-hosted provider.
type NightscoutSession struct {
	EndpointURL string     `json:"endpoint_url,omitempty"`
	Secret      string     `json:"secret,omitempty"`
	Connected   bool       `json:"connected"`
	LastSync    *time.Time `json:"last_sync,omitempty"`
}

// NotificationCategory groups push notifications for user preferences.
type NotificationCategory string

const (
	CategoryGlucoseAlerts   NotificationCategory = "glucoseAlerts"
	CategoryAcknowledgments NotificationCategory = "acknowledgments"
	CategoryAlertResolved   NotificationCategory = "alertResolved"
)

// ChatKind distinguishes user-visible alert messages from system notes.
type ChatKind string

const (
	ChatMessageKind ChatKind = "message"
	ChatSystemKind  ChatKind = "system"
)

// ChatMessage is an entry in an owner/recipient conversation.
type ChatMessage struct {
	ID              string    `json:"id"`
	ConversationRef string    `json:"conversation_ref"`
	SenderID        string    `json:"sender_id"`
	Text            string    `json:"text"`
	Kind            ChatKind  `json:"kind"`
	AlertID         string    `json:"alert_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ConversationRef returns the stable reference of the conversation between
// two users, independent of argument order.
func ConversationRef(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + ":" + b
}

// DailySummary aggregates one owner's readings over one UTC day.
type DailySummary struct {
	OwnerID        string    `json:"owner_id"`
	Day            time.Time `json:"day"`
	Count          int       `json:"count"`
	Mean           float64   `json:"mean"`
	Min            int       `json:"min"`
	Max            int       `json:"max"`
	TimeInRangePct float64   `json:"time_in_range_pct"`
}
