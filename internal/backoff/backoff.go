// Package backoff computes reconnection delays with exponential growth
// and jitter. The policy is pure configuration: the same (attempt, policy)
// pair always yields a delay inside the same bounded window, with only the
// jitter term randomized to desynchronize clients recovering from a shared
// outage.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines reconnection timing. Immutable once constructed; safe to
// share by value.
type Policy struct {
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential term.
	MaxDelay time.Duration

	// Factor is the exponential growth factor per attempt.
	Factor float64

	// JitterMax bounds the uniform random component added to every delay.
	JitterMax time.Duration

	// MaxAttempts is the number of consecutive failed attempts allowed
	// before giving up. Zero or negative means retry forever.
	MaxAttempts int
}

// DefaultPolicy returns the standard reconnection policy.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Factor:      2.0,
		JitterMax:   1 * time.Second,
		MaxAttempts: 10,
	}
}

// Delay returns the wait before retry number attempt (zero-based):
//
//	min(MaxDelay, BaseDelay * Factor^attempt) + uniform(0, JitterMax)
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	exp := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt))
	if exp > float64(p.MaxDelay) {
		exp = float64(p.MaxDelay)
	}

	var jitter time.Duration
	if p.JitterMax > 0 {
		jitter = time.Duration(rand.Int63n(int64(p.JitterMax)))
	}

	return time.Duration(exp) + jitter
}

// ShouldRetry reports whether another attempt is allowed after attempt
// consecutive failures.
func (p Policy) ShouldRetry(attempt int) bool {
	if p.MaxAttempts <= 0 {
		return true
	}
	return attempt < p.MaxAttempts
}
