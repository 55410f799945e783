package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"lojafacil/backend/internal/domain"
)

type RedisPromotionCache struct {
	client *redis.Client
}

func NewRedisPromotionCache(client *redis.Client) *RedisPromotionCache {
	return &RedisPromotionCache{client: client}
}

func (c *RedisPromotionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisPromotionCache) Get(ctx context.Context, key string) (*domain.Promotion, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var promo domain.Promotion
	if err := json.Unmarshal([]byte(val), &promo); err != nil {
		return nil, false, err
	}
	return &promo, true, nil
}

func (c *RedisPromotionCache) Set(ctx context.Context, key string, value *domain.Promotion, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
