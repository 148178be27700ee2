package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the shared cache holding cross-process call slots.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	PingTimeout  time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 3 * time.Second
	}
	// Slot scripts are tiny; a slow reply means the cache is unhealthy.
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = time.Second
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 2 * time.Second
	}
	return c
}

// OpenRedis connects and confirms the server answers PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})
	if err := RedisHealthCheck(ctx, rdb, cfg.PingTimeout); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// RedisHealthCheck pings redis with a timeout.
func RedisHealthCheck(ctx context.Context, rdb *redis.Client, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// KEYS[1] slot key, ARGV[1] limit, ARGV[2] ttl ms.
// Returns {acquired (0|1), held after the call}.
var slotAcquireScript = redis.NewScript(`
local held = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if held > tonumber(ARGV[1]) then
  return {0, redis.call('DECR', KEYS[1])}
end
return {1, held}
`)

// KEYS[1] slot key. Returns the slots still held; never drops below zero.
var slotReleaseScript = redis.NewScript(`
local held = tonumber(redis.call('GET', KEYS[1]) or '0')
if held <= 1 then
  redis.call('DEL', KEYS[1])
  return 0
end
return redis.call('DECR', KEYS[1])
`)

// SlotCounter caps how many slots each owner may hold at once, shared by
// every process talking to the same redis. Keys expire after ttl so a
// crashed process cannot pin slots forever.
type SlotCounter struct {
	rdb    *redis.Client
	prefix string
	limit  int
	ttl    time.Duration
}

func NewSlotCounter(rdb *redis.Client, prefix string, limit int, ttl time.Duration) (*SlotCounter, error) {
	switch {
	case rdb == nil:
		return nil, errors.New("redis client is nil")
	case prefix == "":
		return nil, errors.New("slot key prefix is required")
	case limit <= 0:
		return nil, errors.New("slot limit must be > 0")
	case ttl <= 0:
		return nil, errors.New("slot ttl must be > 0")
	}
	return &SlotCounter{rdb: rdb, prefix: prefix, limit: limit, ttl: ttl}, nil
}

// Key is the redis key counting owner's slots.
func (s *SlotCounter) Key(owner string) string { return s.prefix + ":" + owner }

func (s *SlotCounter) Limit() int { return s.limit }

// Acquire takes a slot for owner. ok is false when owner already holds limit slots.
func (s *SlotCounter) Acquire(ctx context.Context, owner string) (held int, ok bool, err error) {
	if owner == "" {
		return 0, false, errors.New("slot owner is required")
	}
	res, err := slotAcquireScript.Run(ctx, s.rdb, []string{s.Key(owner)}, s.limit, s.ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, false, err
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("slot acquire: unexpected reply %v", res)
	}
	return int(res[1]), res[0] == 1, nil
}

// Release gives back one of owner's slots and reports how many remain.
func (s *SlotCounter) Release(ctx context.Context, owner string) (int, error) {
	if owner == "" {
		return 0, errors.New("slot owner is required")
	}
	return slotReleaseScript.Run(ctx, s.rdb, []string{s.Key(owner)}).Int()
}
