package calls

import (
	"context"
	"log/slog"
	"time"

	"telehealth-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Limiter caps concurrently active calls per doctor.
type Limiter interface {
	Acquire(ctx context.Context, doctorID string) (bool, error)
	Release(ctx context.Context, doctorID string) error
}

const (
	doctorSlotPrefix = "calls:active:doctor"
	// defaultSlotTTL outlives any consultation; it only matters after a crash.
	defaultSlotTTL = 4 * time.Hour
)

// RedisLimiter shares the per-doctor cap across every API process.
type RedisLimiter struct {
	slots *utils.SlotCounter
	log   *slog.Logger
}

func NewRedisLimiter(rdb *redis.Client, limit int, ttl time.Duration, log *slog.Logger) (*RedisLimiter, error) {
	if ttl <= 0 {
		ttl = defaultSlotTTL
	}
	if log == nil {
		log = slog.Default()
	}
	slots, err := utils.NewSlotCounter(rdb, doctorSlotPrefix, limit, ttl)
	if err != nil {
		return nil, err
	}
	return &RedisLimiter{slots: slots, log: log}, nil
}

func (l *RedisLimiter) Acquire(ctx context.Context, doctorID string) (bool, error) {
	held, ok, err := l.slots.Acquire(ctx, doctorID)
	if err != nil {
		return false, err
	}
	l.log.Debug("doctor call slot", "doctor_id", doctorID, "acquired", ok, "held", held, "limit", l.slots.Limit())
	return ok, nil
}

func (l *RedisLimiter) Release(ctx context.Context, doctorID string) error {
	held, err := l.slots.Release(ctx, doctorID)
	if err != nil {
		return err
	}
	l.log.Debug("doctor call slot released", "doctor_id", doctorID, "held", held)
	return nil
}
