package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sust-cse/approval-engine/internal/domain/entity"
)

const keyPrefix = "approval:verify:"

// RedisConfig holds the verification cache connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisCache keeps public verification views in Redis. Approved instances
// never change their trail, so entries only expire to bound signature URL age.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisCache creates a verification cache on an existing client
func NewRedisCache(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached view, or nil on a miss
func (c *RedisCache) Get(ctx context.Context, code string) (*entity.VerificationView, error) {
	raw, err := c.client.Get(ctx, Key(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var view entity.VerificationView
	if err := json.Unmarshal(raw, &view); err != nil {
		// A corrupt entry is a miss; the next Set overwrites it
		c.logger.Warn("Discarding undecodable cache entry", zap.String("code", code), zap.Error(err))
		return nil, nil
	}
	return &view, nil
}

// Set stores the view under its code
func (c *RedisCache) Set(ctx context.Context, view *entity.VerificationView) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode view: %w", err)
	}
	if err := c.client.Set(ctx, Key(view.Code), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Key is the Redis key a verification code is cached under
func Key(code string) string {
	return keyPrefix + code
}
