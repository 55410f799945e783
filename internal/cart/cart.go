// Package cart holds the authoritative in-progress cart: its lines, the
// active promotion and the totals derived from them. Every mutation is
// mirrored through a session.Mirror so a restart resumes the same cart.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"lojafacil/backend/internal/domain"
	"lojafacil/backend/internal/metrics"
	"lojafacil/backend/internal/session"
	"lojafacil/backend/internal/store"
)

var ErrInvalidPromotion = errors.New("discount percentage must be in [0, 1)")

// TaxRate is applied to the subtotal.
var TaxRate = decimal.RequireFromString("0.05")

type Summary struct {
	Count    int             `json:"cartCount"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Taxes    decimal.Decimal `json:"taxes"`
	Total    decimal.Decimal `json:"total"`
}

type Engine struct {
	mu        sync.Mutex
	items     []domain.CartItem
	promotion *domain.Promotion

	mirror  session.Mirror
	logger  *slog.Logger
	metrics *metrics.Recorder
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(rec *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = rec }
}

// New builds an engine and restores the mirrored session, read once here.
func New(ctx context.Context, mirror session.Mirror, opts ...Option) (*Engine, error) {
	if mirror == nil {
		mirror = session.Noop{}
	}
	e := &Engine{mirror: mirror, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "cart"))

	state, err := mirror.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cart session: %w", err)
	}
	e.items = slices.DeleteFunc(state.Items, func(item domain.CartItem) bool { return item.Quantity < 1 })
	e.promotion = state.Promotion
	return e, nil
}

// AddToCart adds quantity units of product. An existing line grows, clamped
// at the product's stock; a new line gets the active promotion's discount
// when the promotion targets the product.
func (e *Engine) AddToCart(ctx context.Context, product domain.Product, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("add %q: %w", product.ID, store.ErrInvalidQuantity)
	}
	if product.Stock < 1 {
		return fmt.Errorf("add %q: %w", product.ID, store.ErrInsufficientStock)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if i := e.indexOf(product.ID); i >= 0 {
		line := &e.items[i]
		line.Stock = product.Stock
		line.Quantity = min(line.Quantity+quantity, product.Stock)
	} else {
		line := domain.CartItem{Product: product, Quantity: min(quantity, product.Stock)}
		if e.promotion != nil && e.promotion.Targets(product.ID) {
			original := product.Price
			line.OriginalPrice = &original
			line.Price = e.promotion.Discount(original)
		}
		e.items = append(e.items, line)
	}

	e.metrics.CartOp("add")
	return e.saveCart(ctx)
}

// UpdateQuantity sets a line's quantity clamped to [0, stock]; zero removes
// the line.
func (e *Engine) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOf(productID)
	if i < 0 {
		return fmt.Errorf("cart line %q: %w", productID, store.ErrNotFound)
	}

	quantity = max(0, min(quantity, e.items[i].Stock))
	if quantity == 0 {
		e.items = slices.Delete(e.items, i, i+1)
	} else {
		e.items[i].Quantity = quantity
	}

	e.metrics.CartOp("update")
	return e.saveCart(ctx)
}

func (e *Engine) RemoveFromCart(ctx context.Context, productID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.items = slices.DeleteFunc(e.items, func(item domain.CartItem) bool { return item.ID == productID })

	e.metrics.CartOp("remove")
	return e.saveCart(ctx)
}

// ApplyPromotion activates promo and reprices the lines it targets from
// their original price. Other lines keep their current price.
func (e *Engine) ApplyPromotion(ctx context.Context, promo domain.Promotion) error {
	if promo.DiscountPercentage.IsNegative() || promo.DiscountPercentage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: got %s", ErrInvalidPromotion, promo.DiscountPercentage)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.promotion = &promo
	for i := range e.items {
		line := &e.items[i]
		if !promo.Targets(line.ID) {
			continue
		}
		if line.OriginalPrice == nil {
			original := line.Price
			line.OriginalPrice = &original
		}
		line.Price = promo.Discount(*line.OriginalPrice)
	}

	e.metrics.CartOp("apply_promotion")
	return errors.Join(e.saveCart(ctx), e.savePromotion(ctx))
}

// RemovePromotion clears the active promotion and restores every discounted
// line to its original price.
func (e *Engine) RemovePromotion(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.promotion = nil
	e.restorePrices()

	e.metrics.CartOp("remove_promotion")
	return errors.Join(e.saveCart(ctx), e.savePromotion(ctx))
}

// ClearCart empties the cart and drops the active promotion.
func (e *Engine) ClearCart(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.items = nil
	e.promotion = nil

	e.metrics.CartOp("clear")
	return errors.Join(e.saveCart(ctx), e.savePromotion(ctx))
}

// Items returns a copy of the cart lines in insertion order.
func (e *Engine) Items() []domain.CartItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneItems(e.items)
}

func (e *Engine) Promotion() *domain.Promotion {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.promotion == nil {
		return nil
	}
	promo := *e.promotion
	return &promo
}

func (e *Engine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return summarize(e.items)
}

func summarize(items []domain.CartItem) Summary {
	s := Summary{Subtotal: decimal.Zero}
	for _, item := range items {
		s.Count += item.Quantity
		s.Subtotal = s.Subtotal.Add(item.LineTotal())
	}
	s.Taxes = s.Subtotal.Mul(TaxRate)
	s.Total = s.Subtotal.Add(s.Taxes)
	return s
}

func (e *Engine) restorePrices() {
	for i := range e.items {
		line := &e.items[i]
		if line.OriginalPrice == nil {
			continue
		}
		line.Price = *line.OriginalPrice
		line.OriginalPrice = nil
	}
}

func (e *Engine) indexOf(productID string) int {
	return slices.IndexFunc(e.items, func(item domain.CartItem) bool { return item.ID == productID })
}

func (e *Engine) saveCart(ctx context.Context) error {
	if err := e.mirror.SaveCart(ctx, cloneItems(e.items)); err != nil {
		e.logger.Warn("failed to mirror cart", slog.Any("error", err))
		return fmt.Errorf("mirror cart: %w", err)
	}
	return nil
}

func (e *Engine) savePromotion(ctx context.Context) error {
	if err := e.mirror.SavePromotion(ctx, e.promotion); err != nil {
		e.logger.Warn("failed to mirror promotion", slog.Any("error", err))
		return fmt.Errorf("mirror promotion: %w", err)
	}
	return nil
}

func cloneItems(items []domain.CartItem) []domain.CartItem {
	out := make([]domain.CartItem, len(items))
	for i, item := range items {
		out[i] = item
		if item.OriginalPrice != nil {
			original := *item.OriginalPrice
			out[i].OriginalPrice = &original
		}
	}
	return out
}
