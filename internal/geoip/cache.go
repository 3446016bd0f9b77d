package geoip

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/gestio-hq/gestio/internal/telemetry"
)

// DefaultCacheTTL is how long a successfully resolved country code stays
// cached. Country assignments for an IP change rarely; a week keeps external
// traffic near zero for repeat visitors without pinning stale data forever.
const DefaultCacheTTL = 7 * 24 * time.Hour

// cacheKeyPrefix namespaces geo entries in the shared Redis keyspace.
const cacheKeyPrefix = "geoip."

// Store is the key/value cache the cached resolver reads and writes. It is
// an interface so tests can substitute an in-memory map for Redis.
type Store interface {
	// Get returns the cached value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisStore implements Store on top of a Redis connection.
type RedisStore struct {
	rdb redis.UniversalClient
}

// NewRedisStore creates a Store backed by rdb.
func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Limiter gates outbound lookup calls. Implementations must be safe for
// concurrent use.
type Limiter interface {
	// Allow reports whether one external lookup may proceed now.
	Allow(ctx context.Context) bool
}

// RedisLimiter implements Limiter with a Redis-backed GCRA limiter shared by
// all server instances, so the per-provider request budget holds across the
// whole deployment rather than per process.
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

// NewRedisLimiter creates a limiter allowing perSecond external lookups.
func NewRedisLimiter(rdb *redis.Client, perSecond int) *RedisLimiter {
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(rdb),
		limit:   redis_rate.PerSecond(perSecond),
	}
}

// Allow fails open: when Redis itself is unreachable the lookup proceeds and
// is bounded by the HTTP client's own 2-second timeout instead. Failing
// closed here would turn a Redis outage into a blanket "XX" on every record.
func (l *RedisLimiter) Allow(ctx context.Context) bool {
	res, err := l.limiter.Allow(ctx, "geoip:outbound", l.limit)
	if err != nil {
		slog.Warn("geoip outbound limiter unavailable, allowing lookup", "error", err)
		return true
	}
	return res.Allowed > 0
}

// CachedResolver layers a Store and a Limiter in front of an upstream
// Resolver. Lookup results are cached under "geoip.<ip>" for the configured
// TTL. Failures are never cached: a transient provider outage must not pin
// "unknown" for a week, so every subsequent miss retries the external call,
// with the limiter bounding how hard a dead provider can be retried.
//
// Concurrent lookups for the same uncached IP may each perform the external
// call; the last writer wins and both write the same value, so no
// single-flight de-duplication is done.
type CachedResolver struct {
	store    Store
	upstream Resolver
	limiter  Limiter
	ttl      time.Duration
}

// NewCachedResolver wires store, limiter, and upstream together. A nil
// limiter disables outbound rate limiting; a zero ttl falls back to
// DefaultCacheTTL.
func NewCachedResolver(store Store, upstream Resolver, limiter Limiter, ttl time.Duration) *CachedResolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedResolver{
		store:    store,
		upstream: upstream,
		limiter:  limiter,
		ttl:      ttl,
	}
}

// Country resolves ip via the cache, falling through to the upstream
// resolver on a miss.
func (r *CachedResolver) Country(ctx context.Context, ip string) (string, error) {
	key := cacheKeyPrefix + ip

	cached, ok, err := r.store.Get(ctx, key)
	if err != nil {
		// A broken cache downgrades to a plain external lookup.
		slog.Warn("geoip cache read failed", "ip", ip, "error", err)
	}
	if ok {
		telemetry.GeoIPLookupsTotal.WithLabelValues("cache_hit").Inc()
		return cached, nil
	}

	if r.limiter != nil && !r.limiter.Allow(ctx) {
		telemetry.GeoIPLookupsTotal.WithLabelValues("rate_limited").Inc()
		return "", ErrRateLimited
	}

	start := time.Now()
	cc, err := r.upstream.Country(ctx, ip)
	telemetry.GeoIPLookupDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.GeoIPLookupsTotal.WithLabelValues("error").Inc()
		return "", err
	}
	telemetry.GeoIPLookupsTotal.WithLabelValues("cache_miss").Inc()

	if err := r.store.Set(ctx, key, cc, r.ttl); err != nil {
		// The lookup succeeded; a failed cache write only costs a future miss.
		slog.Warn("geoip cache write failed", "ip", ip, "error", err)
	}

	return cc, nil
}
