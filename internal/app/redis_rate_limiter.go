package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var initiationRateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// ScopeLimit is the fixed-window quota for one initiation scope. A zero or
// negative Limit disables the scope; a non-positive Window defaults to a
// minute.
type ScopeLimit struct {
	Limit  int
	Window time.Duration
}

// RedisInitiationRateLimiter enforces per-user fixed-window quotas on the
// money-movement initiation endpoints, with the quota per scope configured at
// construction.
type RedisInitiationRateLimiter struct {
	client redis.UniversalClient
	prefix string
	scopes map[string]ScopeLimit
}

func NewRedisInitiationRateLimiter(client redis.UniversalClient, prefix string, scopes map[string]ScopeLimit) *RedisInitiationRateLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "proxynest:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisInitiationRateLimiter{
		client: client,
		prefix: trimmedPrefix,
		scopes: scopes,
	}
}

// Consume counts one hit for the subject against the scope's window. It
// returns allowed=false with the seconds until the window resets when the
// quota is exhausted. Scopes without a configured positive limit are
// unlimited, as is a limiter without a Redis client.
func (r *RedisInitiationRateLimiter) Consume(ctx context.Context, scope, subject string) (allowed bool, retryAfterSeconds int, err error) {
	if r == nil || r.client == nil {
		return true, 0, nil
	}

	normalizedScope := strings.TrimSpace(scope)
	normalizedSubject := strings.TrimSpace(subject)
	if normalizedScope == "" || normalizedSubject == "" {
		return true, 0, nil
	}

	quota, ok := r.scopes[normalizedScope]
	if !ok || quota.Limit <= 0 {
		return true, 0, nil
	}

	windowMs := quota.Window.Milliseconds()
	if windowMs < 1000 {
		windowMs = time.Minute.Milliseconds()
	}

	key := fmt.Sprintf("%s:%s:%s", r.prefix, normalizedScope, normalizedSubject)
	rawResult, err := initiationRateLimitScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return false, 0, err
	}

	values, ok := rawResult.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected redis limiter response shape: %T", rawResult)
	}

	currentCount, ok := values[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}

	ttlMs, ok := values[1].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected redis limiter ttl type: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}

	return currentCount <= int64(quota.Limit), retryAfter, nil
}
