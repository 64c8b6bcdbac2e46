// Package retry provides the capped exponential backoff policy shared
// by the collaborator session's connect and call paths.
package retry

import "time"

// Policy computes backoff delays for a single connect or call sequence.
// The attempt counter is owned by the caller and starts at zero for
// each new sequence.
type Policy struct {
	Base time.Duration // delay before the first retry
	Cap  time.Duration // maximum delay
}

// DefaultPolicy returns the collaborator session defaults.
func DefaultPolicy() Policy {
	return Policy{
		Base: 1 * time.Second,
		Cap:  30 * time.Second,
	}
}

// Delay returns min(Base * 2^attempt, Cap) for a zero-based attempt.
// Negative attempts are treated as attempt zero.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Cap {
			return p.Cap
		}
	}

	if d > p.Cap {
		return p.Cap
	}
	return d
}
