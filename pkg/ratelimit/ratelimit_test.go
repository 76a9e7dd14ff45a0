package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func TestRedisLimiterAllowsUpToLimit(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRedis(client, "test:", 3, time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "client-a")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	ok, err := limiter.Allow(ctx, "client-a")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ok {
		t.Fatal("4th request should be rejected")
	}
}

func TestRedisLimiterPerKeyIsolation(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRedis(client, "test:", 1, time.Minute)
	ctx := context.Background()

	okA, _ := limiter.Allow(ctx, "client-a")
	okB, _ := limiter.Allow(ctx, "client-b")
	if !okA || !okB {
		t.Fatal("distinct clients should have independent budgets")
	}
}

func TestRedisLimiterReset(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRedis(client, "test:", 1, time.Minute)
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "client-a"); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _ := limiter.Allow(ctx, "client-a"); ok {
		t.Fatal("second request should be rejected before reset")
	}
	if err := limiter.Reset(ctx, "client-a"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if ok, _ := limiter.Allow(ctx, "client-a"); !ok {
		t.Fatal("request after reset should be allowed")
	}
}

func TestRedisLimiterRemaining(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRedis(client, "test:", 5, time.Minute)
	ctx := context.Background()

	remaining, err := limiter.Remaining(ctx, "fresh-client")
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if remaining != 5 {
		t.Fatalf("Remaining() = %d, want 5 for unused key", remaining)
	}

	limiter.Allow(ctx, "fresh-client")
	remaining, err = limiter.Remaining(ctx, "fresh-client")
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if remaining != 4 {
		t.Fatalf("Remaining() = %d, want 4 after one request", remaining)
	}
}
