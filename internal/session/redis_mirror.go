package session

import (
	"context"
	"encoding/json"
	"errors"

	redis "github.com/redis/go-redis/v9"

	"lojafacil/backend/internal/domain"
)

// RedisMirror keeps the session under two keys sharing a prefix. Keys do not
// expire.
type RedisMirror struct {
	client *redis.Client
	prefix string
}

func NewRedisMirror(client *redis.Client, prefix string) *RedisMirror {
	if prefix == "" {
		prefix = "loja:session"
	}
	return &RedisMirror{client: client, prefix: prefix}
}

func (m *RedisMirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func (m *RedisMirror) Load(ctx context.Context) (State, error) {
	var state State
	if _, err := m.get(ctx, m.prefix+":cart", &state.Items); err != nil {
		return State{}, err
	}

	var promo domain.Promotion
	found, err := m.get(ctx, m.prefix+":promotion", &promo)
	if err != nil {
		return State{}, err
	}
	if found {
		state.Promotion = &promo
	}
	return state, nil
}

func (m *RedisMirror) SaveCart(ctx context.Context, items []domain.CartItem) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, m.prefix+":cart", payload, 0).Err()
}

func (m *RedisMirror) SavePromotion(ctx context.Context, promo *domain.Promotion) error {
	key := m.prefix + ":promotion"
	if promo == nil {
		return m.client.Del(ctx, key).Err()
	}
	payload, err := json.Marshal(promo)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, key, payload, 0).Err()
}

func (m *RedisMirror) get(ctx context.Context, key string, dst any) (bool, error) {
	val, err := m.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dst); err != nil {
		return false, err
	}
	return true, nil
}
