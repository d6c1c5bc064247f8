// Package retry holds the backoff policy applied to session registry writes.
// A persist failure is retried a small, bounded number of times; the build
// itself is never retried.
package retry

import (
	"time"

	"git.home.luguber.info/inful/buildmon/internal/config"
)

// Policy describes how long to wait between persistence attempts.
type Policy struct {
	Mode       config.RetryBackoffMode
	Initial    time.Duration
	Max        time.Duration
	MaxRetries int
}

// DefaultPolicy is the registry-write baseline: one quick retry, fixed delay.
func DefaultPolicy() Policy {
	return Policy{Mode: config.RetryBackoffFixed, Initial: 250 * time.Millisecond, Max: time.Second, MaxRetries: 1}
}

// NewPolicy overlays raw config fields onto the default policy. Zero or
// invalid values keep the default, and Initial is clamped to Max.
func NewPolicy(mode config.RetryBackoffMode, initial, maxDelay time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDelay > 0 {
		p.Max = maxDelay
	}
	switch mode {
	case config.RetryBackoffFixed, config.RetryBackoffLinear, config.RetryBackoffExponential:
		p.Mode = mode
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// FromConfig builds the persistence policy from the build section.
func FromConfig(b config.BuildConfig) Policy {
	initial := config.ParseDurationDefault(b.RetryInitialDelay, 250*time.Millisecond)
	maxDelay := config.ParseDurationDefault(b.RetryMaxDelay, time.Second)
	return NewPolicy(b.RetryBackoff, initial, maxDelay, b.MaxRetries)
}

// Delay returns the wait before retry attempt n (1-based). Growth is capped
// at Max for the linear and exponential modes.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	var d time.Duration
	switch p.Mode {
	case config.RetryBackoffFixed:
		return p.Initial
	case config.RetryBackoffExponential:
		d = p.Initial * (1 << (attempt - 1))
	default:
		d = time.Duration(attempt) * p.Initial
	}
	if d > p.Max {
		return p.Max
	}
	return d
}
