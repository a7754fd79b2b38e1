package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithExpiry bumps the window counter and stamps the TTL on first hit.
var incrWithExpiry = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// FixedWindowLimiter caps requests per key within fixed time windows. State
// lives in Redis so the cap holds across instances. It fronts the LLM-backed
// endpoints (coach chat, transcript messages, regenerate) where each request
// costs a model call.
type FixedWindowLimiter struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewFixedWindowLimiter connects to Redis and returns a limiter allowing
// limit requests per key per window.
func NewFixedWindowLimiter(addr, password, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "pathwise:ratelimit"
	}
	rdb := redis.NewClient(&redis.Options{Addr: strings.TrimSpace(addr), Password: password})
	return &FixedWindowLimiter{rdb: rdb, prefix: prefix, limit: limit, window: window}, nil
}

// Allow reports whether key still has quota in the current window. Redis
// errors count as a denial so an outage cannot lift the cap.
func (l *FixedWindowLimiter) Allow(key string) bool {
	if l == nil {
		return false
	}
	if key = strings.TrimSpace(key); key == "" {
		key = "unknown"
	}
	ms := l.window.Milliseconds()
	slot := time.Now().UTC().UnixMilli() / ms
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := incrWithExpiry.Run(ctx, l.rdb, []string{fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)}, ms).Int64()
	return err == nil && n <= int64(l.limit)
}
