package dispatch

import (
	"math/rand/v2"
	"time"
)

const (
	defaultBackoffBase   = 250 * time.Millisecond
	defaultBackoffMax    = 30 * time.Second
	defaultBackoffJitter = 100 * time.Millisecond
)

// BackoffPolicy controls the delay inserted between retry attempts.
// The delay before attempt n+1 is base * 2^(n-1) plus random jitter,
// capped at Max. A negative Jitter disables jitter entirely (useful in
// tests); zero selects the default.
type BackoffPolicy struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration
}

func normalizeBackoffPolicy(policy BackoffPolicy) BackoffPolicy {
	out := policy
	if out.Base <= 0 {
		out.Base = defaultBackoffBase
	}
	if out.Max <= 0 {
		out.Max = defaultBackoffMax
	}
	if out.Max < out.Base {
		out.Max = out.Base
	}
	switch {
	case out.Jitter == 0:
		out.Jitter = defaultBackoffJitter
	case out.Jitter < 0:
		out.Jitter = 0
	}
	return out
}

// delay returns the wait before the attempt following the given one.
// Attempt is 1-indexed: delay(1) precedes attempt 2.
func (p BackoffPolicy) delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	wait := p.Base
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= p.Max {
			wait = p.Max
			break
		}
	}
	if wait > p.Max {
		wait = p.Max
	}

	if p.Jitter > 0 {
		wait += rand.N(p.Jitter)
	}
	return wait
}
