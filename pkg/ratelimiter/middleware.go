package ratelimiter

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrymomot/subsync/pkg/logger"
)

// Limiter consumes one token for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

// KeyFunc extracts the bucket key from a request. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

type middlewareOptions struct {
	log     *slog.Logger
	limited http.Handler
}

type MiddlewareOption func(*middlewareOptions)

func WithLogger(l *slog.Logger) MiddlewareOption {
	return func(o *middlewareOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// WithLimitedHandler replaces the default plain text 429 response. Rate limit
// headers are already set when it runs.
func WithLimitedHandler(h http.Handler) MiddlewareOption {
	return func(o *middlewareOptions) {
		if h != nil {
			o.limited = h
		}
	}
}

// Middleware enforces the limiter per key and sets X-RateLimit-* headers.
// Store failures are logged and the request is let through.
func Middleware(l Limiter, keyFunc KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	o := &middlewareOptions{
		log: logger.Nop(),
		limited: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	}
	for _, opt := range opts {
		opt(o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := l.Allow(r.Context(), key)
			if err != nil {
				o.log.WarnContext(r.Context(), "rate limiter unavailable, allowing request", logger.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, res.Remaining)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed() {
				if secs := int(math.Ceil(res.RetryAfter(time.Now()).Seconds())); secs > 0 {
					h.Set("Retry-After", strconv.Itoa(secs))
				}
				o.limited.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
