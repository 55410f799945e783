// Package cache keeps promotion suggestions between runs. Keys are derived
// from the sales history and inventory payloads the suggestion was built
// from, so any change to either misses the cache.
package cache

import (
	"context"
	"time"

	"lojafacil/backend/internal/domain"
)

type PromotionCache interface {
	Get(ctx context.Context, key string) (*domain.Promotion, bool, error)
	Set(ctx context.Context, key string, value *domain.Promotion, ttl time.Duration) error
}

// NoopPromotionCache never hits; it is used when redis is not configured.
type NoopPromotionCache struct{}

func (NoopPromotionCache) Get(_ context.Context, _ string) (*domain.Promotion, bool, error) {
	return nil, false, nil
}

func (NoopPromotionCache) Set(_ context.Context, _ string, _ *domain.Promotion, _ time.Duration) error {
	return nil
}
