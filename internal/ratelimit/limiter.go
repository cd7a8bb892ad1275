// Package ratelimit implements a fixed-window admission gate.
//
// A Gate counts requests per (policy, identifier) pair in a Store and admits
// at most Policy.MaxRequests within each Policy.Window. A Reaper evicts
// windows that have expired so the Store does not grow without bound.
package ratelimit

import (
	"context"
	"time"
)

// Result contains the outcome of a rate limit check.
type Result struct {
	Allowed    bool          // Whether the request is allowed
	Remaining  int           // Remaining requests in the current window
	ResetAt    time.Time     // When the current window resets
	ResetAfter time.Duration // Time until the window resets
	RetryAfter time.Duration // Suggested retry time (if blocked)
	Limit      int           // The configured limit
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds, at least one.
func (r *Result) RetryAfterSeconds() int {
	secs := int((r.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter defines the rate limiting interface for a single policy.
type Limiter interface {
	// Allow checks if a request from the given identifier is allowed.
	// It only fails if ctx is already done.
	Allow(ctx context.Context, identifier string) (*Result, error)

	// Reset clears the rate limit state for an identifier.
	Reset(ctx context.Context, identifier string) error
}

// policyLimiter adapts a Gate to Limiter for one policy.
type policyLimiter struct {
	gate   *Gate
	policy string
}

func (l *policyLimiter) Allow(ctx context.Context, identifier string) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	v := l.gate.Check(l.policy, identifier)
	resetAfter := v.RetryAfter(l.gate.Now())

	res := &Result{
		Allowed:    v.Admitted,
		Remaining:  v.Remaining,
		ResetAt:    v.ResetAt,
		ResetAfter: resetAfter,
		Limit:      v.Limit,
	}
	if !v.Admitted {
		res.RetryAfter = resetAfter
	}
	return res, nil
}

func (l *policyLimiter) Reset(ctx context.Context, identifier string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	l.gate.Reset(l.policy, identifier)
	return nil
}
