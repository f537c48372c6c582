package providers

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Quota is provider-reported rate-limit state parsed from response
// headers. Fields the provider does not report stay zero.
type Quota struct {
	// Limit is the provider-declared request ceiling for the window.
	Limit int

	// Remaining is the declared remaining request allowance.
	Remaining int

	// Reset is when the allowance window resets, zero when unreported.
	Reset time.Time

	// Rate is the derived sustained requests-per-second, zero when the
	// provider reports only absolute counts.
	Rate float64
}

// RateLimiter paces outbound requests with a token bucket and records the
// provider-reported quota from response headers. It is safe for concurrent
// use: the underlying rate.Limiter serializes permits across all callers
// sharing the limiter, so the aggregate outbound rate respects the ceiling.
type RateLimiter struct {
	limiter *rate.Limiter

	mu    sync.Mutex
	quota Quota
}

// NewRateLimiter creates a rate limiter.
// ratePerSecond is the sustained request rate; burst is the number of
// requests allowed without pacing delay.
//
// Example configurations:
//   - Crossref polite pool: NewRateLimiter(10, 20)
//   - Scopus institutional: NewRateLimiter(2, 5)
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Wait blocks until a request is permitted or the context is canceled.
// This is the sole suspension point of the fetch path, which keeps
// cancellation and fake-limiter injection in tests deterministic.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow returns true if a request is permitted without waiting,
// consuming one token when it is.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// SetRate updates the sustained rate while preserving the burst size.
func (r *RateLimiter) SetRate(ratePerSecond float64) {
	r.limiter.SetLimit(rate.Limit(ratePerSecond))
}

// Observe records provider-reported quota state. Last write wins:
// a stale page's headers may overwrite a fresher page's, which is
// acceptable since quota is monotonically non-increasing within a window.
func (r *RateLimiter) Observe(q Quota) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quota = q
}

// Quota returns the most recently observed provider quota.
func (r *RateLimiter) Quota() Quota {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.quota
}

// Tokens returns the current number of available tokens.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
