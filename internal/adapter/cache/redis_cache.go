package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/port"
)

var _ port.Cache = (*RedisCache)(nil)

// RedisCache stores depth snapshots as JSON with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr string, password string, db int, ttl time.Duration) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisCacheWithClient(rdb, ttl)
}

func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return errors.Wrap(c.client.Ping(ctx).Err(), "redis: ping")
}

func (c *RedisCache) Close() error { return c.client.Close() }

func key(symbol domain.Symbol) string { return "depth:" + string(symbol) }

func (c *RedisCache) SetDepth(ctx context.Context, symbol domain.Symbol, snap *domain.DepthSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "redis: encode depth")
	}
	return errors.Wrapf(c.client.Set(ctx, key(symbol), b, c.ttl).Err(), "redis: set depth %s", symbol)
}

// GetDepth returns (nil, nil) on a miss.
func (c *RedisCache) GetDepth(ctx context.Context, symbol domain.Symbol) (*domain.DepthSnapshot, error) {
	b, err := c.client.Get(ctx, key(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "redis: get depth %s", symbol)
	}
	var snap domain.DepthSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, errors.Wrap(err, "redis: decode depth")
	}
	return &snap, nil
}

func (c *RedisCache) Invalidate(ctx context.Context, symbol domain.Symbol) error {
	return errors.Wrapf(c.client.Del(ctx, key(symbol)).Err(), "redis: invalidate %s", symbol)
}
