package request

import (
	"context"
	"time"

	platformredis "lifelink/internal/platform/redis"
)

const expiryKeyPrefix = "lifelink:request:expiry:"

// RedisExpiryIndex mirrors request deadlines as TTL keys so operational
// tooling can watch upcoming expirations without scanning the database.
// The database stays the source of truth; losing Redis loses nothing.
type RedisExpiryIndex struct {
	client *platformredis.Client
}

func NewRedisExpiryIndex(client *platformredis.Client) *RedisExpiryIndex {
	return &RedisExpiryIndex{client: client}
}

func (idx *RedisExpiryIndex) Track(ctx context.Context, requestID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return idx.client.Set(ctx, expiryKeyPrefix+requestID, expiresAt.Unix(), ttl).Err()
}

func (idx *RedisExpiryIndex) Forget(ctx context.Context, requestID string) error {
	return idx.client.Del(ctx, expiryKeyPrefix+requestID).Err()
}
