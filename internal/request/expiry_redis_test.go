//go:build integration

package request_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lifelink/internal/platform/config"
	platformredis "lifelink/internal/platform/redis"
	"lifelink/internal/request"
	"lifelink/pkg/testutil"
)

func TestRedisExpiryIndex(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	url := testutil.StartRedis(t)
	client, err := platformredis.New(config.RedisConfig{
		URL:          url,
		PoolSize:     2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	require.NoError(t, err)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	idx := request.NewRedisExpiryIndex(client)

	require.NoError(t, idx.Track(ctx, "req-1", time.Now().Add(time.Hour)))
	ttl := client.TTL(ctx, "lifelink:request:expiry:req-1").Val()
	require.Greater(t, ttl, 50*time.Minute)

	require.NoError(t, idx.Forget(ctx, "req-1"))
	exists := client.Exists(ctx, "lifelink:request:expiry:req-1").Val()
	require.Zero(t, exists)

	// Deadlines already in the past are skipped rather than written.
	require.NoError(t, idx.Track(ctx, "req-2", time.Now().Add(-time.Minute)))
	require.Zero(t, client.Exists(ctx, "lifelink:request:expiry:req-2").Val())
}
