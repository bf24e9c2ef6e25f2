package providers

import (
	"errors"
	"fmt"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
)

var (
	// ErrNotConnected is returned when an owner has no connected session.
	ErrNotConnected = errors.New("provider not connected")

	// ErrUnknownProvider is returned for an unregistered provider kind.
	ErrUnknownProvider = errors.New("unknown provider")
)

// AuthError means the provider rejected or could not establish identity.
// It aborts the sync for the owner.
type AuthError struct {
	Provider model.ProviderKind
	// Unauthorized is set when the upstream answered 401.
	Unauthorized bool
	Reason       string
	Err          error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("%s auth failed: %s", e.Provider, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// SessionExpiredError means a cached session id is no longer accepted.
type SessionExpiredError struct {
	Provider model.ProviderKind
	Reason   string
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("%s session expired: %s", e.Provider, e.Reason)
}

// NetworkError wraps transport failures and unexpected upstream statuses.
type NetworkError struct {
	Provider   model.ProviderKind
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Provider, e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
