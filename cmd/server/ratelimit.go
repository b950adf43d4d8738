package main

import (
	"log/slog"
	"net/http"

	goredis "github.com/redis/go-redis/v9"

	billinghttp "github.com/dmitrymomot/subsync/modules/billing"
	"github.com/dmitrymomot/subsync/pkg/clientip"
	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/ratelimiter"
)

// checkoutLimiter keys buckets by client IP. Buckets live in Redis when a client
// is given so the limit holds across replicas. The returned func releases resources.
func checkoutLimiter(cfg ratelimiter.Config, client goredis.UniversalClient, log *slog.Logger) ([]func(http.Handler) http.Handler, func(), error) {
	if cfg.Disabled {
		return nil, func() {}, nil
	}

	var (
		store   ratelimiter.Store
		release = func() {}
	)
	if client != nil {
		store = ratelimiter.NewRedisStore(client, ratelimiter.WithKeyPrefix("subsync:checkout:ratelimit:"))
	} else {
		mem := ratelimiter.NewMemoryStore()
		store, release = mem, mem.Close
	}

	bucket, err := ratelimiter.NewBucket(store, cfg)
	if err != nil {
		release()
		return nil, nil, err
	}

	mw := ratelimiter.Middleware(bucket,
		func(r *http.Request) string { return clientip.FromContext(r.Context()) },
		ratelimiter.WithLogger(log.With(logger.Component("checkout_ratelimit"))),
		ratelimiter.WithLimitedHandler(billinghttp.TooManyRequests),
	)
	return []func(http.Handler) http.Handler{mw}, release, nil
}
