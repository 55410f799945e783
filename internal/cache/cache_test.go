package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"lojafacil/backend/internal/domain"
)

func TestNoopCacheNeverHits(t *testing.T) {
	var c PromotionCache = NoopPromotionCache{}
	if err := c.Set(context.Background(), "k", &domain.Promotion{Message: "x"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, err := c.Get(context.Background(), "k"); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
}

func TestRedisCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("LOJA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LOJA_TEST_REDIS_ADDR is not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	c := NewRedisPromotionCache(client)
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	key := fmt.Sprintf("loja:test:promotion:%d", time.Now().UnixNano())
	if _, ok, err := c.Get(ctx, key); ok || err != nil {
		t.Fatalf("expected miss before set, got ok=%v err=%v", ok, err)
	}

	want := &domain.Promotion{Message: "Sabão em pó em oferta", DiscountedProductID: "p9", DiscountPercentage: decimal.RequireFromString("0.15")}
	if err := c.Set(ctx, key, want, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.DiscountedProductID != "p9" || !got.DiscountPercentage.Equal(want.DiscountPercentage) {
		t.Fatalf("unexpected cached promotion: %+v", got)
	}
}
