package fetch

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter throttles requests on a per-host basis so a batch fetch does
// not hammer a single server that publishes many feeds.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewHostLimiter creates a limiter allowing the given requests-per-second
// rate against each individual host.
func NewHostLimiter(perSecond float64, burst int) *HostLimiter {
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// Wait blocks until a request to the host of rawURL is permitted, or until
// the context is cancelled. URLs that cannot be parsed are not throttled.
func (hl *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil
	}

	hl.mu.Lock()
	limiter, ok := hl.limiters[parsed.Host]
	if !ok {
		limiter = rate.NewLimiter(hl.limit, hl.burst)
		hl.limiters[parsed.Host] = limiter
	}
	hl.mu.Unlock()

	return limiter.Wait(ctx)
}
