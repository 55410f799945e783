package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"

	"lojafacil/backend/internal/backup"
	"lojafacil/backend/internal/cache"
	"lojafacil/backend/internal/cart"
	"lojafacil/backend/internal/config"
	"lojafacil/backend/internal/metrics"
	"lojafacil/backend/internal/recommendation"
	"lojafacil/backend/internal/repository"
	"lojafacil/backend/internal/service"
	"lojafacil/backend/internal/session"
	"lojafacil/backend/internal/store"
	pgstore "lojafacil/backend/internal/store/postgres"
	"lojafacil/backend/internal/store/sqlite"
)

type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Recorder
	manager  *store.Manager
	repos    *repository.Set
	svc      *service.Service
	backup   *backup.Service
	mirror   session.Mirror
	closers  []func() error
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	dialect, err := newDialect(cfg.StoreDriver)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.metrics = metrics.New(a.registry)
	a.manager = store.NewManager(store.Options{Path: cfg.DatabasePath, URL: cfg.DatabaseURL}, dialect, logger)
	a.closers = append(a.closers, a.manager.Close)
	a.repos = repository.New(a.manager, a.metrics)

	var client *redis.Client
	if cfg.RedisAddr != "" {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			if cfg.SessionBackend == "redis" {
				return nil, fmt.Errorf("redis unavailable at %s: %w", cfg.RedisAddr, err)
			}
			logger.Warn("redis unavailable, using noop promotion cache", slog.Any("error", err))
			client = nil
		} else {
			a.closers = append(a.closers, client.Close)
		}
	}

	promoCache := cache.PromotionCache(cache.NoopPromotionCache{})
	if client != nil {
		promoCache = cache.NewRedisPromotionCache(client)
		logger.Debug("promotion cache: redis")
	}

	switch cfg.SessionBackend {
	case "redis":
		a.mirror = session.NewRedisMirror(client, "loja:session")
	case "none":
		a.mirror = session.Noop{}
	default:
		a.mirror = session.NewStoreMirror(a.manager)
	}

	recommender := recommendation.NewEngine(promoCache, cfg.PromotionTTL(), logger)
	a.svc = service.New(a.manager, a.repos, recommender, logger, a.metrics)
	a.backup = backup.New(a.manager, a.repos, logger, a.metrics)
	return a, nil
}

func (a *app) cart(ctx context.Context) (*cart.Engine, error) {
	return cart.New(ctx, a.mirror, cart.WithLogger(a.logger), cart.WithMetrics(a.metrics))
}

func (a *app) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(a.cfg.MetricsFile, a.registry); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("write metrics: %w", err)
		}
	}
	return firstErr
}

func newDialect(driver string) (store.Dialect, error) {
	switch driver {
	case "", "sqlite":
		return sqlite.Dialect{}, nil
	case "postgres":
		return pgstore.Dialect{}, nil
	}
	return nil, fmt.Errorf("%w: unknown store driver %q", store.ErrStoreUnavailable, driver)
}
