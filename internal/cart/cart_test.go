package cart

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lojafacil/backend/internal/domain"
	"lojafacil/backend/internal/session"
	"lojafacil/backend/internal/store"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func product(id string, price string, stock int) domain.Product {
	return domain.Product{ID: id, Name: "Produto " + id, Price: dec(price), Stock: stock, Category: "geral"}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(context.Background(), session.Noop{})
	require.NoError(t, err)
	return e
}

func assertTotalsConsistent(t *testing.T, e *Engine) {
	t.Helper()
	items := e.Items()
	sum := decimal.Zero
	count := 0
	for _, item := range items {
		sum = sum.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		count += item.Quantity
	}
	s := e.Summary()
	assert.Equal(t, count, s.Count)
	assert.True(t, s.Subtotal.Equal(sum), "subtotal %s != %s", s.Subtotal, sum)
	assert.True(t, s.Total.Equal(s.Subtotal.Mul(dec("1.05"))), "total %s != subtotal*1.05", s.Total)
}

// memoryMirror records the last written values.
type memoryMirror struct {
	state session.State
	fail  error
}

func (m *memoryMirror) Load(_ context.Context) (session.State, error) {
	return m.state, nil
}

func (m *memoryMirror) SaveCart(_ context.Context, items []domain.CartItem) error {
	if m.fail != nil {
		return m.fail
	}
	m.state.Items = items
	return nil
}

func (m *memoryMirror) SavePromotion(_ context.Context, promo *domain.Promotion) error {
	if m.fail != nil {
		return m.fail
	}
	m.state.Promotion = promo
	return nil
}

func TestCheckoutScenarioPricing(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	p1 := product("P1", "10.00", 5)

	require.NoError(t, e.AddToCart(ctx, p1, 3))
	s := e.Summary()
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, "30.00", s.Subtotal.StringFixed(2))
	assert.Equal(t, "1.50", s.Taxes.StringFixed(2))
	assert.Equal(t, "31.50", s.Total.StringFixed(2))

	require.NoError(t, e.UpdateQuantity(ctx, "P1", 10))
	assert.Equal(t, 5, e.Items()[0].Quantity)

	require.NoError(t, e.ApplyPromotion(ctx, domain.Promotion{DiscountedProductID: "P1", DiscountPercentage: dec("0.2")}))
	line := e.Items()[0]
	assert.True(t, line.Price.Equal(dec("8.00")), "got %s", line.Price)
	require.NotNil(t, line.OriginalPrice)
	assert.True(t, line.OriginalPrice.Equal(dec("10.00")))
	assertTotalsConsistent(t, e)
}

func TestAddToCartAccumulatesAndClampsAtStock(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 50; i++ {
		stock := 1 + rng.Intn(20)
		q := 1 + rng.Intn(stock)
		p := product("P", "3.35", stock)
		e := newEngine(t)

		require.NoError(t, e.AddToCart(ctx, p, q))
		require.Equal(t, q, e.Summary().Count)

		again := 1 + rng.Intn(20)
		require.NoError(t, e.AddToCart(ctx, p, again))
		items := e.Items()
		require.Len(t, items, 1, "same product must share one line")
		assert.Equal(t, min(q+again, stock), items[0].Quantity)
		assert.LessOrEqual(t, items[0].Quantity, stock)
	}
}

func TestAddToCartRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	assert.ErrorIs(t, e.AddToCart(ctx, product("P", "1", 3), 0), store.ErrInvalidQuantity)
	assert.ErrorIs(t, e.AddToCart(ctx, product("P", "1", 0), 1), store.ErrInsufficientStock)
	assert.Empty(t, e.Items())
}

func TestAddToCartDiscountsNewLineUnderActivePromotion(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	require.NoError(t, e.ApplyPromotion(ctx, domain.Promotion{Message: "promo", DiscountedProductID: "P2", DiscountPercentage: dec("0.15")}))
	require.NoError(t, e.AddToCart(ctx, product("P1", "4.00", 9), 1))
	require.NoError(t, e.AddToCart(ctx, product("P2", "19.99", 9), 2))

	items := e.Items()
	assert.Nil(t, items[0].OriginalPrice)
	require.NotNil(t, items[1].OriginalPrice)
	assert.True(t, items[1].OriginalPrice.Equal(dec("19.99")))
	assert.Equal(t, "16.99", items[1].Price.StringFixed(2))
	assertTotalsConsistent(t, e)
}

func TestPromotionRoundTripRestoresPrices(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(11))
	pcts := []string{"0", "0.05", "0.2", "0.333", "0.5", "0.99"}

	for i := 0; i < 30; i++ {
		e := newEngine(t)
		before := map[string]decimal.Decimal{}
		for _, id := range []string{"A", "B", "C"} {
			price := decimal.NewFromInt(int64(1 + rng.Intn(5000))).Shift(-2)
			before[id] = price
			require.NoError(t, e.AddToCart(ctx, domain.Product{ID: id, Price: price, Stock: 10}, 1+rng.Intn(10)))
		}

		target := []string{"A", "B", "C", "Z"}[rng.Intn(4)]
		promo := domain.Promotion{DiscountedProductID: target, DiscountPercentage: dec(pcts[rng.Intn(len(pcts))])}
		require.NoError(t, e.ApplyPromotion(ctx, promo))
		assertTotalsConsistent(t, e)
		require.NoError(t, e.RemovePromotion(ctx))
		assertTotalsConsistent(t, e)

		for _, item := range e.Items() {
			assert.True(t, item.Price.Equal(before[item.ID]), "line %s: %s != %s", item.ID, item.Price, before[item.ID])
			assert.Nil(t, item.OriginalPrice)
		}
		assert.Nil(t, e.Promotion())
	}
}

func TestApplyPromotionTwiceKeepsOriginalPrice(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	require.NoError(t, e.AddToCart(ctx, product("P1", "10.00", 5), 1))

	require.NoError(t, e.ApplyPromotion(ctx, domain.Promotion{DiscountedProductID: "P1", DiscountPercentage: dec("0.2")}))
	require.NoError(t, e.ApplyPromotion(ctx, domain.Promotion{DiscountedProductID: "P1", DiscountPercentage: dec("0.5")}))

	line := e.Items()[0]
	assert.True(t, line.Price.Equal(dec("5.00")), "got %s", line.Price)
	assert.True(t, line.OriginalPrice.Equal(dec("10.00")))
}

func TestApplyPromotionRejectsOutOfRangeDiscount(t *testing.T) {
	e := newEngine(t)

	assert.ErrorIs(t, e.ApplyPromotion(context.Background(), domain.Promotion{DiscountPercentage: dec("1")}), ErrInvalidPromotion)
	assert.ErrorIs(t, e.ApplyPromotion(context.Background(), domain.Promotion{DiscountPercentage: dec("-0.1")}), ErrInvalidPromotion)
	assert.Nil(t, e.Promotion())
}

func TestUpdateQuantityToZeroRemovesLine(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	require.NoError(t, e.AddToCart(ctx, product("P1", "2.50", 5), 2))
	require.NoError(t, e.AddToCart(ctx, product("P2", "1.25", 5), 4))

	require.NoError(t, e.UpdateQuantity(ctx, "P1", 0))
	require.NoError(t, e.UpdateQuantity(ctx, "P2", -3))
	assert.Empty(t, e.Items())
	assertTotalsConsistent(t, e)

	assert.ErrorIs(t, e.UpdateQuantity(ctx, "P1", 1), store.ErrNotFound)
}

func TestRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	require.NoError(t, e.AddToCart(ctx, product("P1", "2.50", 5), 2))
	require.NoError(t, e.AddToCart(ctx, product("P2", "1.25", 5), 1))
	require.NoError(t, e.ApplyPromotion(ctx, domain.Promotion{DiscountedProductID: "P2", DiscountPercentage: dec("0.1")}))

	require.NoError(t, e.RemoveFromCart(ctx, "P1"))
	require.NoError(t, e.RemoveFromCart(ctx, "missing"))
	assert.Len(t, e.Items(), 1)

	require.NoError(t, e.ClearCart(ctx))
	assert.Empty(t, e.Items())
	assert.Nil(t, e.Promotion())
	assert.True(t, e.Summary().Total.IsZero())
}

func TestMirrorReceivesEveryMutationAndRestores(t *testing.T) {
	ctx := context.Background()
	mirror := &memoryMirror{}

	e, err := New(ctx, mirror)
	require.NoError(t, err)
	require.NoError(t, e.AddToCart(ctx, product("P1", "10.00", 5), 2))
	require.NoError(t, e.ApplyPromotion(ctx, domain.Promotion{DiscountedProductID: "P1", DiscountPercentage: dec("0.2")}))

	require.Len(t, mirror.state.Items, 1)
	require.NotNil(t, mirror.state.Promotion)

	restored, err := New(ctx, mirror)
	require.NoError(t, err)
	assert.Equal(t, 2, restored.Summary().Count)
	assert.True(t, restored.Items()[0].Price.Equal(dec("8.00")))
	require.NotNil(t, restored.Promotion())

	require.NoError(t, restored.RemovePromotion(ctx))
	assert.Nil(t, mirror.state.Promotion)
	assert.Nil(t, mirror.state.Items[0].OriginalPrice)
}

func TestMirrorFailureIsReturnedAfterStateChange(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	e, err := New(ctx, &memoryMirror{fail: boom})
	require.NoError(t, err)

	err = e.AddToCart(ctx, product("P1", "1.00", 5), 1)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, e.Summary().Count)
}
