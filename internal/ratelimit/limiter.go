package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter caps concurrent dispatches per key (one key per operator).
type Limiter interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

var ErrInvalidLimiter = errors.New("ratelimit: invalid limiter config")

// Noop never limits. Used when Redis is not configured.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (bool, error) { return true, nil }
func (Noop) Release(context.Context, string) error         { return nil }

var acquireScript = redis.NewScript(`
-- KEYS[1] = counter key
-- ARGV[1] = limit (int)
-- ARGV[2] = ttl_ms (int)
-- Returns 1 if acquired, 0 if the limit is reached.
local current = redis.call('INCR', KEYS[1])
if current == 1 or redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  redis.call('DECR', KEYS[1])
  return 0
end
return 1
`)

var releaseScript = redis.NewScript(`
-- KEYS[1] = counter key
local current = redis.call('DECR', KEYS[1])
if current <= 0 then
  redis.call('DEL', KEYS[1])
end
return 1
`)

// RedisLimiter keeps a TTL'd counter per key so a crashed process cannot
// leak slots forever.
type RedisLimiter struct {
	rdb    redis.Scripter
	prefix string
	limit  int
	ttl    time.Duration
}

func NewRedisLimiter(rdb redis.Scripter, limit int, ttl time.Duration) (*RedisLimiter, error) {
	if rdb == nil || limit <= 0 || ttl <= 0 {
		return nil, ErrInvalidLimiter
	}
	return &RedisLimiter{rdb: rdb, prefix: "abcaller:dispatch:", limit: limit, ttl: ttl}, nil
}

func (l *RedisLimiter) Acquire(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("ratelimit: key is required")
	}
	res, err := acquireScript.Run(ctx, l.rdb, []string{l.prefix + key}, l.limit, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (l *RedisLimiter) Release(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("ratelimit: key is required")
	}
	return releaseScript.Run(ctx, l.rdb, []string{l.prefix + key}).Err()
}
