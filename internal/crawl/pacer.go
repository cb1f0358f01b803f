package crawl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sitelens/sitelens/internal/metrics"
)

// Pacer applies per-host request pacing so the sequential crawler still
// cannot hammer a slow site through redirects or tiny pages. Each host gets
// its own token bucket created on first use.
type Pacer struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewPacer builds a Pacer allowing rps requests per second per host. A
// non-positive rps disables pacing entirely.
func NewPacer(rps float64, burst int) *Pacer {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Pacer{
		limiters: make(map[string]*rate.Limiter),
		rps:      limit,
		burst:    burst,
	}
}

// Wait blocks until a token is available for host, respecting the context.
// Delays above a millisecond are recorded as pacing metrics.
func (p *Pacer) Wait(ctx context.Context, host string) error {
	if p == nil {
		return nil
	}
	if host == "" {
		host = "unknown"
	}
	p.mu.Lock()
	limiter, exists := p.limiters[host]
	if !exists {
		limiter = rate.NewLimiter(p.rps, p.burst)
		p.limiters[host] = limiter
	}
	p.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacer wait: %w", err)
	}
	if delay := time.Since(start); delay > time.Millisecond {
		metrics.ObservePacerDelay(host, delay)
	}
	return nil
}
