package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/booking-verification/internal/models"
	"github.com/akylbek/payment-system/booking-verification/internal/telemetry"
)

// releaseScript deletes the lock only if it still holds our token, so a lease
// that expired and was taken by another request is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := fmt.Sprintf("booking_lock:%s", key)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", lockKey, err)
	}
	if !ok {
		return nil, models.ErrBookingLocked
	}

	return func() {
		err := releaseScript.Run(context.Background(), l.client, []string{lockKey}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			telemetry.Logger.Warn("Failed to release booking lock",
				zap.String("lock_key", lockKey),
				zap.Error(err),
			)
		}
	}, nil
}
