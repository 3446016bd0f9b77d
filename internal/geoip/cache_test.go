package geoip_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gestio-hq/gestio/internal/geoip"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type memStore struct {
	mu      sync.Mutex
	entries map[string]string
	ttls    map[string]time.Duration
	getErr  error
	setErr  error
}

func newMemStore() *memStore {
	return &memStore{
		entries: map[string]string{},
		ttls:    map[string]time.Duration{},
	}
}

func (s *memStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", false, s.getErr
	}
	val, ok := s.entries[key]
	return val, ok, nil
}

func (s *memStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.entries[key] = value
	s.ttls[key] = ttl
	return nil
}

type countingResolver struct {
	mu      sync.Mutex
	country string
	err     error
	calls   int
}

func (r *countingResolver) Country(ctx context.Context, ip string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return r.country, nil
}

func (r *countingResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type stubLimiter struct {
	allow bool
}

func (l *stubLimiter) Allow(ctx context.Context) bool { return l.allow }

// ---------------------------------------------------------------------------
// CachedResolver
// ---------------------------------------------------------------------------

func TestCachedResolver_MissThenHit(t *testing.T) {
	store := newMemStore()
	upstream := &countingResolver{country: "ES"}
	resolver := geoip.NewCachedResolver(store, upstream, nil, time.Hour)

	// First lookup misses and calls upstream.
	got, err := resolver.Country(context.Background(), "203.0.113.9")
	if err != nil {
		t.Fatalf("Country() error: %v", err)
	}
	if got != "ES" {
		t.Errorf("Country() = %q, want ES", got)
	}

	// Second lookup is served from the cache.
	got, err = resolver.Country(context.Background(), "203.0.113.9")
	if err != nil {
		t.Fatalf("Country() error: %v", err)
	}
	if got != "ES" {
		t.Errorf("cached Country() = %q, want ES", got)
	}
	if n := upstream.callCount(); n != 1 {
		t.Errorf("upstream called %d times for a repeated IP, want 1", n)
	}
}

func TestCachedResolver_CacheKeyAndTTL(t *testing.T) {
	store := newMemStore()
	upstream := &countingResolver{country: "FR"}
	resolver := geoip.NewCachedResolver(store, upstream, nil, 30*time.Minute)

	if _, err := resolver.Country(context.Background(), "198.51.100.4"); err != nil {
		t.Fatalf("Country() error: %v", err)
	}

	val, ok := store.entries["geoip.198.51.100.4"]
	if !ok {
		t.Fatalf("cache entries = %v, want key geoip.198.51.100.4", store.entries)
	}
	if val != "FR" {
		t.Errorf("cached value = %q, want FR", val)
	}
	if ttl := store.ttls["geoip.198.51.100.4"]; ttl != 30*time.Minute {
		t.Errorf("cached TTL = %v, want 30m", ttl)
	}
}

func TestCachedResolver_FailuresNotCached(t *testing.T) {
	store := newMemStore()
	upstream := &countingResolver{err: errors.New("provider down")}
	resolver := geoip.NewCachedResolver(store, upstream, nil, time.Hour)

	for i := 0; i < 3; i++ {
		if _, err := resolver.Country(context.Background(), "203.0.113.9"); err == nil {
			t.Fatal("Country() = nil error while provider is down, want error")
		}
	}

	if len(store.entries) != 0 {
		t.Errorf("cache entries = %v, failures must never be cached", store.entries)
	}
	// Every lookup retried the provider; the limiter, not the cache, bounds this.
	if n := upstream.callCount(); n != 3 {
		t.Errorf("upstream called %d times, want 3", n)
	}
}

func TestCachedResolver_RateLimited(t *testing.T) {
	store := newMemStore()
	upstream := &countingResolver{country: "ES"}
	resolver := geoip.NewCachedResolver(store, upstream, &stubLimiter{allow: false}, time.Hour)

	_, err := resolver.Country(context.Background(), "203.0.113.9")
	if !errors.Is(err, geoip.ErrRateLimited) {
		t.Fatalf("Country() error = %v, want ErrRateLimited", err)
	}
	if n := upstream.callCount(); n != 0 {
		t.Errorf("upstream called %d times while rate limited, want 0", n)
	}
	if len(store.entries) != 0 {
		t.Errorf("cache entries = %v, rate-limited lookups must not be cached", store.entries)
	}
}

func TestCachedResolver_LimiterNotConsultedOnHit(t *testing.T) {
	store := newMemStore()
	store.entries["geoip.203.0.113.9"] = "DE"
	upstream := &countingResolver{country: "ES"}
	resolver := geoip.NewCachedResolver(store, upstream, &stubLimiter{allow: false}, time.Hour)

	got, err := resolver.Country(context.Background(), "203.0.113.9")
	if err != nil {
		t.Fatalf("Country() error: %v", err)
	}
	if got != "DE" {
		t.Errorf("Country() = %q, want the cached DE", got)
	}
}

func TestCachedResolver_BrokenCacheFallsThrough(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("redis: connection refused")
	store.setErr = errors.New("redis: connection refused")
	upstream := &countingResolver{country: "ES"}
	resolver := geoip.NewCachedResolver(store, upstream, nil, time.Hour)

	got, err := resolver.Country(context.Background(), "203.0.113.9")
	if err != nil {
		t.Fatalf("Country() error with broken cache: %v", err)
	}
	if got != "ES" {
		t.Errorf("Country() = %q, want ES from upstream", got)
	}
}
