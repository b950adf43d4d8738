// Package ratelimiter implements a token bucket limiter with in-memory and Redis
// backed state, plus an HTTP middleware.
//
// Each key owns a bucket of Capacity tokens. Every RefillInterval, RefillRate
// tokens are added back up to Capacity. A request costs one token; a request that
// would overdraw the bucket is denied and consumes nothing.
//
//	bucket, err := ratelimiter.NewBucket(ratelimiter.NewRedisStore(client), cfg)
//	if err != nil {
//	    return err
//	}
//	r.With(ratelimiter.Middleware(bucket, keyFunc)).Post("/checkout", h)
//
// RedisStore applies each consume atomically with a Lua script, so limits hold across
// replicas. MemoryStore is for single-instance deployments and tests.
package ratelimiter
