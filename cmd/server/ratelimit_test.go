package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/clientip"
	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/ratelimiter"
)

func TestCheckoutLimiter(t *testing.T) {
	cfg := ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Minute}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	serve := func(t *testing.T, mws []func(http.Handler) http.Handler) (int, int) {
		t.Helper()
		require.Len(t, mws, 1)
		h := clientip.Middleware()(mws[0](ok))

		codes := make([]int, 2)
		for i := range codes {
			req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
			req.RemoteAddr = "192.0.2.1:5000"
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}
		return codes[0], codes[1]
	}

	t.Run("disabled", func(t *testing.T) {
		mws, release, err := checkoutLimiter(ratelimiter.Config{Disabled: true}, nil, logger.Nop())
		require.NoError(t, err)
		defer release()
		assert.Empty(t, mws)
	})

	t.Run("memory", func(t *testing.T) {
		mws, release, err := checkoutLimiter(cfg, nil, logger.Nop())
		require.NoError(t, err)
		defer release()

		first, second := serve(t, mws)
		assert.Equal(t, http.StatusOK, first)
		assert.Equal(t, http.StatusTooManyRequests, second)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
		defer client.Close()

		mws, release, err := checkoutLimiter(cfg, client, logger.Nop())
		require.NoError(t, err)
		defer release()

		first, second := serve(t, mws)
		assert.Equal(t, http.StatusOK, first)
		assert.Equal(t, http.StatusTooManyRequests, second)
		assert.True(t, mr.Exists("subsync:checkout:ratelimit:192.0.2.1"))
	})

	t.Run("invalid config", func(t *testing.T) {
		_, _, err := checkoutLimiter(ratelimiter.Config{}, nil, logger.Nop())
		assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
	})
}
