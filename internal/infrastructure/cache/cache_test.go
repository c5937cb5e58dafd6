package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sust-cse/approval-engine/internal/application/port"
	"github.com/sust-cse/approval-engine/internal/domain/entity"
)

var (
	_ port.VerificationCache = NoopCache{}
	_ port.VerificationCache = (*RedisCache)(nil)
)

func TestNoopCache(t *testing.T) {
	c := NewNoopCache()
	require.NoError(t, c.Set(context.Background(), &entity.VerificationView{Code: "APP-20260101-0001"}))

	view, err := c.Get(context.Background(), "APP-20260101-0001")
	require.NoError(t, err)
	assert.Nil(t, view)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "approval:verify:COST-20260314-0007", Key("COST-20260314-0007"))
}

func TestRedisCache_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := NewRedisCache(client, 0, zap.NewNop())
	t.Cleanup(func() { _ = c.Close() })

	assert.Equal(t, time.Hour, c.ttl)

	_, err := c.Get(context.Background(), "APP-20260101-0001")
	assert.Error(t, err)
	assert.Error(t, c.Set(context.Background(), &entity.VerificationView{Code: "APP-20260101-0001"}))
	assert.Error(t, c.Ping(context.Background()))

	_, err = NewRedisClient(context.Background(), RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
