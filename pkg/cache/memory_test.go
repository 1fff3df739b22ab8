package cache

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

type quote struct {
	Price string `json:"price"`
	AsOf  string `json:"as_of"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	if err := mc.Set(ctx, "close:AAPL", quote{Price: "100", AsOf: "2024-02-02"}, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got quote
	if err := mc.Get(ctx, "close:AAPL", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Price != "100" || got.AsOf != "2024-02-02" {
		t.Fatalf("unexpected value %+v", got)
	}

	if err := mc.Get(ctx, "close:MSFT", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	_ = mc.Set(ctx, "k", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	var s string
	if err := mc.Get(ctx, "k", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired key to miss, got %v", err)
	}
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	_ = mc.Set(ctx, "close:AAPL", "1", 0)
	_ = mc.Set(ctx, "close:MSFT", "2", 0)
	_ = mc.Set(ctx, "session:2024-02-02", "3", 0)

	if err := mc.DeleteByPattern(ctx, BuildPattern("close")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mc.Len() != 1 {
		t.Fatalf("expected 1 key left, got %d", mc.Len())
	}
	if ok, _ := mc.Exists(ctx, "session:2024-02-02"); !ok {
		t.Fatalf("unrelated key was removed")
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	_ = mc.Set(ctx, "a", "1", 0)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "b", "2", 0)
	time.Sleep(time.Millisecond)
	var s string
	_ = mc.Get(ctx, "a", &s)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "c", "3", 0)

	if ok, _ := mc.Exists(ctx, "b"); ok {
		t.Fatalf("expected b to be evicted")
	}
	if ok, _ := mc.Exists(ctx, "a", "c"); !ok {
		t.Fatalf("expected a and c to remain")
	}
}

func TestLayeredCacheReadsThrough(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryCache()
	lc := NewLayeredCache(remote)
	defer lc.Close()

	_ = remote.Set(ctx, "close:AAPL", quote{Price: "101"}, 0)

	var got quote
	if err := lc.Get(ctx, "close:AAPL", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Price != "101" {
		t.Fatalf("unexpected %+v", got)
	}
	// L1 now holds it even if remote loses the key.
	_ = remote.Delete(ctx, "close:AAPL")
	if err := lc.Get(ctx, "close:AAPL", &got); err != nil {
		t.Fatalf("expected L1 hit: %v", err)
	}

	if err := lc.DeleteByPattern(ctx, "close:*"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := lc.Get(ctx, "close:AAPL", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestRedisCacheIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	host, portStr, _ := strings.Cut(addr, ":")
	port, _ := strconv.Atoi(portStr)
	rc, err := NewRedisCache(WithRedisAddr(host, port), WithRedisPrefix("portdelta-test"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer rc.Close()

	ctx := context.Background()
	if err := rc.Set(ctx, "close:AAPL", quote{Price: "100"}, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got quote
	if err := rc.Get(ctx, "close:AAPL", &got); err != nil || got.Price != "100" {
		t.Fatalf("get: %v %+v", err, got)
	}
	if err := rc.DeleteByPattern(ctx, "close:*"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := rc.Get(ctx, "close:AAPL", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}
