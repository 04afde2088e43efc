package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/redis/go-redis/v9"
)

// attemptScript counts one attempt and decides it inside Redis so every
// instance sees the same verdict. Returns {attempts, ttl_ms, allowed}.
var attemptScript = redis.NewScript(`
local attempts = redis.call("INCR", KEYS[1])
if attempts == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
local allowed = 0
if attempts <= tonumber(ARGV[2]) then
  allowed = 1
end
return {attempts, ttl, allowed}
`)

// RateLimit is the verdict for one attempt.
type RateLimit struct {
	Allowed    bool
	Attempts   int
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter records attempts per scope and subject inside a window.
type RateLimiter interface {
	Attempt(ctx context.Context, scope, subject string, limit int, window time.Duration) (RateLimit, error)
}

// RedisRateLimiter is a fixed-window limiter shared by every service instance.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "fundlink"
	}
	return &RedisRateLimiter{client: client, prefix: prefix}
}

// key is "<prefix>:ratelimit:<scope>:<window>:<subject hash>". Subjects such as
// login emails are hashed so they never appear in Redis keys, and the window
// is part of the key so a config change starts a fresh counter.
func (r *RedisRateLimiter) key(scope, subject string, window time.Duration) string {
	sum := xxhash.ChecksumString64(strings.ToLower(strings.TrimSpace(subject)))
	return fmt.Sprintf("%s:ratelimit:%s:%s:%016x", r.prefix, strings.TrimSpace(scope), window, sum)
}

func (r *RedisRateLimiter) Attempt(ctx context.Context, scope, subject string, limit int, window time.Duration) (RateLimit, error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 ||
		strings.TrimSpace(scope) == "" || strings.TrimSpace(subject) == "" {
		return RateLimit{Allowed: true, Remaining: limit}, nil
	}
	if window < time.Second {
		window = time.Second
	}

	raw, err := attemptScript.Run(ctx, r.client, []string{r.key(scope, subject, window)}, window.Milliseconds(), limit).Int64Slice()
	if err != nil {
		return RateLimit{}, fmt.Errorf("rate limit %s: %w", scope, err)
	}
	if len(raw) != 3 {
		return RateLimit{}, fmt.Errorf("rate limit %s: unexpected reply of %d values", scope, len(raw))
	}
	return newRateLimit(int(raw[0]), time.Duration(raw[1])*time.Millisecond, raw[2] == 1, limit, window), nil
}

func newRateLimit(attempts int, ttl time.Duration, allowed bool, limit int, window time.Duration) RateLimit {
	if ttl <= 0 {
		ttl = window
	}
	// Retry-After is whole seconds; round up so clients never retry early.
	retryAfter := ttl.Truncate(time.Second)
	if retryAfter < ttl || retryAfter == 0 {
		retryAfter += time.Second
	}
	return RateLimit{
		Allowed:    allowed,
		Attempts:   attempts,
		Remaining:  max(limit-attempts, 0),
		RetryAfter: retryAfter,
	}
}
