package utils

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisConfig_Defaults(t *testing.T) {
	got := RedisConfig{Addr: "localhost:6379", PoolSize: 3}.withDefaults()
	if got.PoolSize != 3 {
		t.Fatalf("explicit PoolSize overwritten: %d", got.PoolSize)
	}
	if got.DialTimeout != 3*time.Second || got.ReadTimeout != time.Second || got.PingTimeout != 2*time.Second {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

func TestNewSlotCounter_ValidatesArguments(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	cases := []struct {
		name   string
		rdb    *redis.Client
		prefix string
		limit  int
		ttl    time.Duration
	}{
		{"nil client", nil, "calls:active:doctor", 1, time.Second},
		{"empty prefix", rdb, "", 1, time.Second},
		{"zero limit", rdb, "calls:active:doctor", 0, time.Second},
		{"zero ttl", rdb, "calls:active:doctor", 1, 0},
	}
	for _, tc := range cases {
		if s, err := NewSlotCounter(tc.rdb, tc.prefix, tc.limit, tc.ttl); err == nil || s != nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestSlotCounter_KeysAndOwnerRequired(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	s, err := NewSlotCounter(rdb, "calls:active:doctor", 2, time.Hour)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := s.Key("doc-1"); got != "calls:active:doctor:doc-1" {
		t.Fatalf("unexpected key %q", got)
	}
	if s.Limit() != 2 {
		t.Fatalf("unexpected limit %d", s.Limit())
	}
	if _, ok, err := s.Acquire(context.Background(), ""); err == nil || ok {
		t.Fatalf("expected error for empty owner")
	}
	if _, err := s.Release(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty owner")
	}
}
