package providers

import (
	"context"
	"errors"
)

// RetryCondition names an outcome of a fetch that may warrant
// re-authentication.
type RetryCondition string

const (
	// OnSessionExpired fires when the fetch fails with a SessionExpiredError.
	OnSessionExpired RetryCondition = "session_expired"
	// OnEmptyResult fires when the fetch succeeds with zero records, which
	// some upstreams return for a silently expired session.
	OnEmptyResult RetryCondition = "empty_result"
)

// ReauthPolicy bounds re-authenticate-and-refetch cycles. Each listed
// condition triggers at most one re-authentication, and no more than
// MaxAttempts fetches are made in total.
type ReauthPolicy struct {
	MaxAttempts int
	Conditions  []RetryCondition
}

// ShareReauthPolicy is used by the session-based client: one retry after a
// session-invalid error and one after an empty window. The two budgets are
// independent, so a session error followed by an empty window re-authenticates
// twice within one sync and fetches three times.
var ShareReauthPolicy = ReauthPolicy{
	MaxAttempts: 3,
	Conditions:  []RetryCondition{OnSessionExpired, OnEmptyResult},
}

func (p ReauthPolicy) allows(c RetryCondition) bool {
	for _, cond := range p.Conditions {
		if cond == c {
			return true
		}
	}
	return false
}

// FetchWithReauth runs fetch under policy p, calling reauth before every
// retry. When retries are exhausted an empty result is returned as is and a
// session error is returned to the caller.
func FetchWithReauth[T any](
	ctx context.Context,
	p ReauthPolicy,
	fetch func(context.Context) ([]T, error),
	reauth func(context.Context) error,
) ([]T, error) {
	used := make(map[RetryCondition]bool, len(p.Conditions))

	for attempt := 1; ; attempt++ {
		records, err := fetch(ctx)

		var cond RetryCondition
		var expired *SessionExpiredError
		switch {
		case errors.As(err, &expired):
			cond = OnSessionExpired
		case err != nil:
			return nil, err
		case len(records) == 0:
			cond = OnEmptyResult
		default:
			return records, nil
		}

		if attempt >= p.MaxAttempts || !p.allows(cond) || used[cond] {
			return records, err
		}
		used[cond] = true

		if err := reauth(ctx); err != nil {
			return nil, err
		}
	}
}
