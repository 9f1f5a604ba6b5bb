package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig controls redis client behavior.
// Keep it config-driven; defaults should be safe and conservative.
type RedisConfig struct {
	Addr string

	// Basic timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Pool tuning
	PoolSize           int
	MinIdleConns       int
	PoolTimeout        time.Duration
	ConnMaxIdleTime    time.Duration
	ConnMaxLifetime    time.Duration

	PingTimeout time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 3 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 2 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 2 * time.Second
	}
	if out.PoolSize <= 0 {
		out.PoolSize = 20
	}
	if out.MinIdleConns < 0 {
		out.MinIdleConns = 0
	}
	if out.PoolTimeout <= 0 {
		out.PoolTimeout = 4 * time.Second
	}
	if out.ConnMaxIdleTime <= 0 {
		out.ConnMaxIdleTime = 5 * time.Minute
	}
	if out.ConnMaxLifetime <= 0 {
		out.ConnMaxLifetime = 30 * time.Minute
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	return out
}

// OpenRedis initializes a Redis client and validates connectivity via PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		PoolTimeout:     cfg.PoolTimeout,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

var rateWindowScript = redis.NewScript(`
-- KEYS[1] = window counter key
-- ARGV[1] = limit (int)
-- ARGV[2] = window_ms (int)
--
-- Returns {allowed, remaining, pttl_ms}
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
else
  -- Ensure TTL exists even if key already existed without TTL
  if redis.call('PTTL', KEYS[1]) < 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[2])
  end
end

local ttl = redis.call('PTTL', KEYS[1])
if current > tonumber(ARGV[1]) then
  return {0, 0, ttl}
end
return {1, tonumber(ARGV[1]) - current, ttl}
`)

// RateResult reports the outcome of one fixed-window check.
type RateResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// AllowRate counts a hit against a fixed window for the given key and
// reports whether it fits under limit. The window starts at the first hit
// and expires after window, so bursts straddling a window edge can see up
// to 2x limit.
//
// Safety properties:
// - Atomic count-and-check using Lua.
// - TTL prevents leaked counters on process crash.
func AllowRate(ctx context.Context, rdb *redis.Client, key string, limit int, window time.Duration) (RateResult, error) {
	if rdb == nil {
		return RateResult{}, fmt.Errorf("redis client is nil")
	}
	if key == "" {
		return RateResult{}, fmt.Errorf("key is required")
	}
	if limit <= 0 {
		return RateResult{}, fmt.Errorf("limit must be > 0")
	}
	if window <= 0 {
		return RateResult{}, fmt.Errorf("window must be > 0")
	}

	vals, err := rateWindowScript.Run(ctx, rdb, []string{key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return RateResult{}, err
	}
	if len(vals) != 3 {
		return RateResult{}, fmt.Errorf("unexpected script reply of length %d", len(vals))
	}

	out := RateResult{
		Allowed:   vals[0] == 1,
		Remaining: int(vals[1]),
	}
	if vals[2] > 0 {
		out.RetryAfter = time.Duration(vals[2]) * time.Millisecond
	}
	return out, nil
}
