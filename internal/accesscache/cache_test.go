package accesscache

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T, defaultTTL time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, defaultTTL, slog.New(slog.DiscardHandler), nil), mr
}

type row struct {
	RoleID int64 `json:"role_id"`
}

func TestCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t, 0)
	ctx := context.Background()

	var got []row
	if cache.GetJSON(ctx, "user-global-1", &got) {
		t.Fatal("unexpected hit on empty cache")
	}
	cache.SetJSON(ctx, "user-global-1", []row{{RoleID: 4}}, 0)
	if !cache.GetJSON(ctx, "user-global-1", &got) {
		t.Fatal("expected hit after set")
	}
	if len(got) != 1 || got[0].RoleID != 4 {
		t.Fatalf("unexpected value %+v", got)
	}
}

func TestCacheNegativeEntry(t *testing.T) {
	cache, _ := newTestCache(t, 0)
	ctx := context.Background()

	cache.SetJSON(ctx, "public-res-1-9", []row{}, 0)
	var got []row
	if !cache.GetJSON(ctx, "public-res-1-9", &got) {
		t.Fatal("empty list not cached")
	}
	if len(got) != 0 {
		t.Fatalf("unexpected value %+v", got)
	}
}

func TestCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t, 0)
	ctx := context.Background()

	cache.SetJSON(ctx, "user-global-1", []row{{RoleID: 4}}, 0)
	cache.SetJSON(ctx, "user-global-2", []row{{RoleID: 4}}, 0)
	if err := cache.Invalidate(ctx, "user-global-1", "user-global-2", "user-global-3"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	var got []row
	if cache.GetJSON(ctx, "user-global-1", &got) || cache.GetJSON(ctx, "user-global-2", &got) {
		t.Fatal("keys survived invalidation")
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	cache, mr := newTestCache(t, 0)
	ctx := context.Background()

	cache.SetJSON(ctx, "user-res-1-9", []row{{RoleID: 4}}, 30*time.Second)
	var got []row
	if !cache.GetJSON(ctx, "user-res-1-9", &got) {
		t.Fatal("expected hit before expiry")
	}
	mr.FastForward(31 * time.Second)
	if cache.GetJSON(ctx, "user-res-1-9", &got) {
		t.Fatal("entry outlived its TTL")
	}
}

func TestCacheErrorDegradesToMiss(t *testing.T) {
	cache, mr := newTestCache(t, 0)
	ctx := context.Background()
	cache.SetJSON(ctx, "user-global-1", []row{{RoleID: 4}}, 0)
	mr.Close()

	var got []row
	if cache.GetJSON(ctx, "user-global-1", &got) {
		t.Fatal("backend error must degrade to a miss")
	}
}

func TestTTLForExpiry(t *testing.T) {
	now := time.Unix(1_000, 0)

	ttl, ok := TTLForExpiry(0, now)
	if !ok || ttl != 0 {
		t.Fatalf("no bound: ttl=%v ok=%v", ttl, ok)
	}
	ttl, ok = TTLForExpiry(1_100, now)
	if !ok || ttl != 100*time.Second {
		t.Fatalf("future expiry: ttl=%v ok=%v", ttl, ok)
	}
	if _, ok = TTLForExpiry(1_000, now); ok {
		t.Fatal("expiry at now must not be cached")
	}
	if _, ok = TTLForExpiry(900, now); ok {
		t.Fatal("past expiry must not be cached")
	}
}
