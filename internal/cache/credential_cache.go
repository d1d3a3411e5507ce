package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CredentialCache keeps issued QR credentials in Redis. Entries are safe to
// cache for a long time because a credential never changes after issue.
type CredentialCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCredentialCache(client *redis.Client, ttl time.Duration) *CredentialCache {
	return &CredentialCache{client: client, ttl: ttl}
}

func credentialKey(bookingID string) string {
	return fmt.Sprintf("booking_qr:%s", bookingID)
}

func (c *CredentialCache) Get(ctx context.Context, bookingID string) (string, bool, error) {
	cred, err := c.client.Get(ctx, credentialKey(bookingID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return cred, true, nil
}

func (c *CredentialCache) Set(ctx context.Context, bookingID, cred string) error {
	return c.client.Set(ctx, credentialKey(bookingID), cred, c.ttl).Err()
}
