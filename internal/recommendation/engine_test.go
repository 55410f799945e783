package recommendation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"lojafacil/backend/internal/domain"
)

type countingCache struct {
	stored map[string]domain.Promotion
	gets   int
}

func (c *countingCache) Get(_ context.Context, key string) (*domain.Promotion, bool, error) {
	c.gets++
	promo, ok := c.stored[key]
	if !ok {
		return nil, false, nil
	}
	return &promo, true, nil
}

func (c *countingCache) Set(_ context.Context, key string, value *domain.Promotion, _ time.Duration) error {
	c.stored[key] = *value
	return nil
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func fixedEngine(c *countingCache) *Engine {
	e := NewEngine(c, time.Minute, nil)
	e.now = func() time.Time { return time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestSuggestDiscountsSlowestMovingStock(t *testing.T) {
	e := fixedEngine(&countingCache{stored: map[string]domain.Promotion{}})
	recent := time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)

	inventory := []domain.Product{
		{ID: "fast", Name: "Arroz", Stock: 10, Price: decimal.NewFromInt(25)},
		{ID: "slow", Name: "Vela aromática", Stock: 40, Price: decimal.NewFromInt(18)},
		{ID: "out", Name: "Feijão", Stock: 0, Price: decimal.NewFromInt(9)},
	}
	history := []domain.Sale{
		{ID: "s1", Date: recent, ProductID: "fast", Quantity: 30},
		{ID: "s2", Date: recent, ProductID: "slow", Quantity: 3},
		{ID: "s3", Date: recent.AddDate(0, -3, 0), ProductID: "fast", Quantity: 500},
	}

	promo, err := e.Suggest(context.Background(), mustJSON(t, history), mustJSON(t, inventory))
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	// slow: 40 units at 0.1/day is 400 days of cover
	if promo.DiscountedProductID != "slow" {
		t.Fatalf("expected slow mover to be promoted, got %+v", promo)
	}
	if !promo.DiscountPercentage.Equal(decimal.RequireFromString("0.2")) {
		t.Fatalf("expected 20%% discount, got %s", promo.DiscountPercentage)
	}
	if promo.Message == "" {
		t.Fatalf("expected a message")
	}
}

func TestSuggestWithoutOverstockReturnsNoDiscount(t *testing.T) {
	e := fixedEngine(&countingCache{stored: map[string]domain.Promotion{}})
	recent := time.Date(2024, 6, 25, 0, 0, 0, 0, time.UTC)

	inventory := []domain.Product{{ID: "p1", Name: "Pão", Stock: 5}}
	history := []domain.Sale{{ID: "s1", Date: recent, ProductID: "p1", Quantity: 60}}

	promo, err := e.Suggest(context.Background(), mustJSON(t, history), mustJSON(t, inventory))
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if promo.DiscountedProductID != "" || !promo.DiscountPercentage.IsZero() {
		t.Fatalf("expected no discount, got %+v", promo)
	}
}

func TestSuggestUsesCache(t *testing.T) {
	c := &countingCache{stored: map[string]domain.Promotion{}}
	e := fixedEngine(c)
	history := mustJSON(t, []domain.Sale{})
	inventory := mustJSON(t, []domain.Product{{ID: "p1", Name: "Sabão", Stock: 3}})

	first, err := e.Suggest(context.Background(), history, inventory)
	if err != nil {
		t.Fatalf("first suggest: %v", err)
	}
	if len(c.stored) != 1 {
		t.Fatalf("expected suggestion to be cached, got %d entries", len(c.stored))
	}
	second, err := e.Suggest(context.Background(), history, inventory)
	if err != nil {
		t.Fatalf("second suggest: %v", err)
	}
	if first.DiscountedProductID != second.DiscountedProductID || c.gets != 2 {
		t.Fatalf("expected cached suggestion, got %+v after %d reads", second, c.gets)
	}
}

func TestSuggestRejectsMalformedPayload(t *testing.T) {
	e := NewEngine(nil, 0, nil)
	_, err := e.Suggest(context.Background(), []byte("{"), []byte("[]"))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}
