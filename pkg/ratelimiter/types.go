package ratelimiter

import (
	"context"
	"time"
)

// Config defines the token bucket. Loaded with an env prefix, e.g.
// CHECKOUT_RATE_LIMIT_CAPACITY.
type Config struct {
	Disabled       bool          `env:"DISABLED" envDefault:"false"`
	Capacity       int           `env:"CAPACITY" envDefault:"10"`   // burst size
	RefillRate     int           `env:"REFILL_RATE" envDefault:"1"` // tokens per interval
	RefillInterval time.Duration `env:"REFILL_INTERVAL" envDefault:"6s"`
}

// Result is the outcome of a consume attempt.
type Result struct {
	Limit     int
	Remaining int // negative when the request was denied
	ResetAt   time.Time
}

func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter returns how long to wait before retrying. Zero if allowed.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed() {
		return 0
	}
	return max(r.ResetAt.Sub(now), 0)
}

// Store keeps bucket state.
type Store interface {
	// ConsumeTokens refills the bucket and takes tokens if enough are available.
	// remaining is the balance after the attempt, negative if it was denied.
	ConsumeTokens(ctx context.Context, key string, tokens int, cfg Config) (remaining int, resetAt time.Time, err error)

	Reset(ctx context.Context, key string) error
}

// refill returns the balance after the intervals elapsed since lastRefill.
func refill(tokens int, lastRefill, now time.Time, cfg Config) (int, time.Time) {
	elapsed := now.Sub(lastRefill)
	if elapsed < cfg.RefillInterval {
		return tokens, lastRefill
	}
	// Capped so huge gaps cannot overflow.
	intervals := min(int64(elapsed/cfg.RefillInterval), int64(cfg.Capacity/cfg.RefillRate+1))
	return min(tokens+int(intervals)*cfg.RefillRate, cfg.Capacity), now
}
