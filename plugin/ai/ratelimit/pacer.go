package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer limits the call rate of auxiliary model invocations (memory
// matching) per key, independent of the dialogue token budget.
type Pacer struct {
	mu     sync.Mutex
	limits map[string]*rate.Limiter

	interval time.Duration
	burst    int
}

// NewPacer creates a pacer allowing one call per interval with the
// given burst per key.
func NewPacer(interval time.Duration, burst int) *Pacer {
	if burst < 1 {
		burst = 1
	}
	return &Pacer{
		limits:   make(map[string]*rate.Limiter),
		interval: interval,
		burst:    burst,
	}
}

func (p *Pacer) limiter(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if limiter, ok := p.limits[key]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(rate.Every(p.interval), p.burst)
	p.limits[key] = limiter
	return limiter
}

// Allow reports whether a call is currently permitted for the key.
func (p *Pacer) Allow(key string) bool {
	return p.limiter(key).Allow()
}

// Wait blocks until a call is permitted or the context is done.
func (p *Pacer) Wait(ctx context.Context, key string) error {
	return p.limiter(key).Wait(ctx)
}
