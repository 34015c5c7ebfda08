package app

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRateLimiterAllowsWithoutRedisClient(t *testing.T) {
	limiter := NewRedisInitiationRateLimiter(nil, "", map[string]ScopeLimit{
		"deposit": {Limit: 1, Window: time.Minute},
	})

	allowed, _, err := limiter.Consume(context.Background(), "deposit", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatal("limiter without a redis client must fail open")
	}
}

func TestRateLimiterAllowsUnconfiguredScope(t *testing.T) {
	var nilLimiter *RedisInitiationRateLimiter
	allowed, _, err := nilLimiter.Consume(context.Background(), "deposit", "user-1")
	if err != nil || !allowed {
		t.Fatalf("nil limiter must allow, got allowed=%v err=%v", allowed, err)
	}

	// Scope lookup happens before any Redis round trip, so an unconfigured
	// scope is unlimited even with an unreachable server.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	limiter := NewRedisInitiationRateLimiter(client, "proxynest:rate_limit", map[string]ScopeLimit{
		"deposit": {Limit: 1, Window: time.Minute},
	})
	allowed, _, err = limiter.Consume(context.Background(), "unknown-scope", "user-1")
	if err != nil || !allowed {
		t.Fatalf("unconfigured scope must be unlimited, got allowed=%v err=%v", allowed, err)
	}
}
