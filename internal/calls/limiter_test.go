package calls

import (
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestNewRedisLimiter(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	l, err := NewRedisLimiter(rdb, 2, 0, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := l.slots.Key("doc-1"); got != "calls:active:doctor:doc-1" {
		t.Fatalf("unexpected key %q", got)
	}

	if _, err := NewRedisLimiter(nil, 2, 0, nil); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := NewRedisLimiter(rdb, 0, 0, nil); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}
