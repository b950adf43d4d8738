package ratelimiter_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/ratelimiter"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (*ratelimiter.Result, error) {
	return nil, errors.New("redis down")
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	byRemoteAddr := func(r *http.Request) string { return r.RemoteAddr }

	serve := func(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/checkout", nil)
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("limits per key", func(t *testing.T) {
		t.Parallel()
		store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
		defer store.Close()
		bucket, err := ratelimiter.NewBucket(store, ratelimiter.Config{Capacity: 2, RefillRate: 1, RefillInterval: time.Minute})
		require.NoError(t, err)

		h := ratelimiter.Middleware(bucket, byRemoteAddr)(ok)

		rec := serve(h, "192.0.2.1:1")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

		assert.Equal(t, http.StatusOK, serve(h, "192.0.2.1:1").Code)

		rec = serve(h, "192.0.2.1:1")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))

		assert.Equal(t, http.StatusOK, serve(h, "192.0.2.2:1").Code)
	})

	t.Run("custom limited handler", func(t *testing.T) {
		t.Parallel()
		store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
		defer store.Close()
		bucket, err := ratelimiter.NewBucket(store, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Minute})
		require.NoError(t, err)

		h := ratelimiter.Middleware(bucket, byRemoteAddr, ratelimiter.WithLimitedHandler(
			http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"slow down"}`))
			}),
		))(ok)

		serve(h, "192.0.2.1:1")
		rec := serve(h, "192.0.2.1:1")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.JSONEq(t, `{"error":"slow down"}`, rec.Body.String())
	})

	t.Run("empty key skips limiting", func(t *testing.T) {
		t.Parallel()
		h := ratelimiter.Middleware(failingLimiter{}, func(*http.Request) string { return "" })(ok)
		rec := serve(h, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	})

	t.Run("store failure lets request through", func(t *testing.T) {
		t.Parallel()
		h := ratelimiter.Middleware(failingLimiter{}, byRemoteAddr)(ok)
		assert.Equal(t, http.StatusOK, serve(h, "192.0.2.1:1").Code)
	})
}
