// Package ratelimit provides the per-scope token budget window and call
// pacing for model invocations. The budget is a soft backpressure valve
// against runaway model spend, not a billing meter.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// sample is one committed token reservation.
type sample struct {
	at     time.Time
	tokens int
}

// window is the sliding token budget for one conversation scope.
// Guarded by its own mutex so unrelated scopes never contend.
type window struct {
	mu      sync.Mutex
	samples []sample
}

// Limiter tracks token consumption in a sliding time window per scope
// and denies reservations that would exceed the budget.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window

	budget   int
	duration time.Duration
	now      func() time.Time
}

// NewLimiter creates a limiter with the given token budget per sliding
// window duration.
func NewLimiter(budget int, duration time.Duration) *Limiter {
	return &Limiter{
		windows:  make(map[string]*window),
		budget:   budget,
		duration: duration,
		now:      time.Now,
	}
}

// WithClock replaces the limiter's clock. Tests use this to move time
// deterministically.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func (l *Limiter) scopeWindow(scope string) *window {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[scope]
	if !ok {
		w = &window{}
		l.windows[scope] = w
	}
	return w
}

// Reserve attempts to reserve estimatedTokens within the scope's budget.
// Expired samples are purged first; a denied reservation mutates
// nothing. Reservations are linearizable per scope.
func (l *Limiter) Reserve(scope string, estimatedTokens int) bool {
	w := l.scopeWindow(scope)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.duration)

	// Purge samples that fell out of the window.
	keep := w.samples[:0]
	for _, s := range w.samples {
		if s.at.After(cutoff) {
			keep = append(keep, s)
		}
	}
	w.samples = keep

	sum := 0
	for _, s := range w.samples {
		sum += s.tokens
	}

	if sum+estimatedTokens > l.budget {
		slog.Debug("token reservation denied",
			"scope", scope,
			"window_tokens", sum,
			"requested", estimatedTokens,
			"budget", l.budget)
		return false
	}

	w.samples = append(w.samples, sample{at: now, tokens: estimatedTokens})
	return true
}

// WindowTokens returns the committed token sum currently inside the
// scope's window.
func (l *Limiter) WindowTokens(scope string) int {
	w := l.scopeWindow(scope)

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := l.now().Add(-l.duration)
	sum := 0
	for _, s := range w.samples {
		if s.at.After(cutoff) {
			sum += s.tokens
		}
	}
	return sum
}

// EstimateTokens approximates the token count of a text. A quarter of
// the byte length is close enough for budget purposes.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}
