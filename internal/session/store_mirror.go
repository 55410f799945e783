package session

import (
	"context"
	"errors"

	"lojafacil/backend/internal/domain"
	"lojafacil/backend/internal/store"
)

const (
	cartKey      = "cart"
	promotionKey = "promotion"
)

type cartDoc struct {
	ID    string            `json:"id"`
	Items []domain.CartItem `json:"items"`
}

func (d cartDoc) RecordKey() string { return d.ID }

type promotionDoc struct {
	ID        string            `json:"id"`
	Promotion *domain.Promotion `json:"promotion"`
}

func (d promotionDoc) RecordKey() string { return d.ID }

// StoreMirror keeps the session in the durable store's session collection.
type StoreMirror struct {
	manager *store.Manager
}

func NewStoreMirror(m *store.Manager) *StoreMirror {
	return &StoreMirror{manager: m}
}

func (s *StoreMirror) Load(ctx context.Context) (State, error) {
	sess, err := s.manager.Session(ctx)
	if err != nil {
		return State{}, err
	}

	var state State
	cart, err := store.GetByKey[cartDoc](ctx, sess, store.SessionState, cartKey)
	switch {
	case err == nil:
		state.Items = cart.Items
	case !errors.Is(err, store.ErrNotFound):
		return State{}, err
	}

	promo, err := store.GetByKey[promotionDoc](ctx, sess, store.SessionState, promotionKey)
	switch {
	case err == nil:
		state.Promotion = promo.Promotion
	case !errors.Is(err, store.ErrNotFound):
		return State{}, err
	}
	return state, nil
}

func (s *StoreMirror) SaveCart(ctx context.Context, items []domain.CartItem) error {
	sess, err := s.manager.Session(ctx)
	if err != nil {
		return err
	}
	return store.Upsert(ctx, sess, store.SessionState, cartDoc{ID: cartKey, Items: items})
}

func (s *StoreMirror) SavePromotion(ctx context.Context, promo *domain.Promotion) error {
	sess, err := s.manager.Session(ctx)
	if err != nil {
		return err
	}
	if promo == nil {
		return store.Remove(ctx, sess, store.SessionState, promotionKey)
	}
	return store.Upsert(ctx, sess, store.SessionState, promotionDoc{ID: promotionKey, Promotion: promo})
}
