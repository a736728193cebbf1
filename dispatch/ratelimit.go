package dispatch

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/quillworks/relay"
)

// RateLimit caps the call rate against one provider.
// PerSecond is the sustained rate; Burst is the instantaneous allowance.
type RateLimit struct {
	PerSecond float64
	Burst     int
}

// providerLimiters enforces per-provider rate limits across concurrently
// dispatched requests. Requests to different providers never contend with
// each other beyond the map lookup.
type providerLimiters struct {
	mu       sync.Mutex
	limits   map[relay.Provider]RateLimit
	limiters map[relay.Provider]*rate.Limiter
}

func newProviderLimiters(limits map[relay.Provider]RateLimit) *providerLimiters {
	return &providerLimiters{
		limits:   limits,
		limiters: make(map[relay.Provider]*rate.Limiter),
	}
}

func (p *providerLimiters) limiterFor(tag relay.Provider) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if limiter, ok := p.limiters[tag]; ok {
		return limiter
	}

	limit, ok := p.limits[tag]
	if !ok || limit.PerSecond <= 0 {
		// Unconfigured providers are not throttled.
		limiter := rate.NewLimiter(rate.Inf, 0)
		p.limiters[tag] = limiter
		return limiter
	}

	burst := limit.Burst
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(limit.PerSecond), burst)
	p.limiters[tag] = limiter
	return limiter
}

// wait blocks until the provider's limiter grants a token or the context
// is done.
func (p *providerLimiters) wait(ctx context.Context, tag relay.Provider) error {
	return p.limiterFor(tag).Wait(ctx)
}
