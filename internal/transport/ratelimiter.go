package transport

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IdentityLimiter throttles outbound requests per (userId, projectId)
// identity: a per-key limiter map with periodic full-wipe cleanup,
// targeted at outbound-per-identity traffic rather than inbound-per-IP.
// This is a courtesy client-side throttle, not the transport's
// retry/backoff policy.
type IdentityLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int

	stop chan struct{}
}

// NewIdentityLimiter builds a limiter allowing rps requests/sec per
// identity, bursting up to burst.
func NewIdentityLimiter(rps rate.Limit, burst int) *IdentityLimiter {
	l := &IdentityLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
		stop:     make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

func (l *IdentityLimiter) getLimiter(identity string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[identity]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[identity] = lim
	}
	return lim
}

// Wait blocks until identity's limiter permits one more request, or ctx is
// done. An empty identity (no WithIdentity set) is never throttled.
func (l *IdentityLimiter) Wait(ctx context.Context, identity string) error {
	if identity == "" {
		return nil
	}
	return l.getLimiter(identity).Wait(ctx)
}

func (l *IdentityLimiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			l.limiters = make(map[string]*rate.Limiter)
			l.mu.Unlock()
		}
	}
}

// Close stops the background cleanup loop.
func (l *IdentityLimiter) Close() { close(l.stop) }
