// Package session mirrors the in-progress cart and the applied promotion so
// they survive a restart. Cart lines and promotion are stored as two
// independent values; the last write wins.
package session

import (
	"context"

	"lojafacil/backend/internal/domain"
)

type State struct {
	Items     []domain.CartItem
	Promotion *domain.Promotion
}

type Mirror interface {
	Load(ctx context.Context) (State, error)
	SaveCart(ctx context.Context, items []domain.CartItem) error
	// SavePromotion stores promo, or clears the stored promotion when nil.
	SavePromotion(ctx context.Context, promo *domain.Promotion) error
}

type Noop struct{}

func (Noop) Load(_ context.Context) (State, error) {
	return State{}, nil
}

func (Noop) SaveCart(_ context.Context, _ []domain.CartItem) error {
	return nil
}

func (Noop) SavePromotion(_ context.Context, _ *domain.Promotion) error {
	return nil
}
