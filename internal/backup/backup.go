// Package backup exports the whole store to one snapshot and restores a
// snapshot back into it.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"lojafacil/backend/internal/domain"
	"lojafacil/backend/internal/metrics"
	"lojafacil/backend/internal/repository"
	"lojafacil/backend/internal/store"
)

// RestoreError reports the collection a restore stopped at. Collections in
// Restored were already replaced and stay replaced.
type RestoreError struct {
	Collection string
	Restored   []string
	Err        error
}

func (e *RestoreError) Error() string {
	msg := fmt.Sprintf("restore failed at %s: %v", e.Collection, e.Err)
	if len(e.Restored) > 0 {
		msg += fmt.Sprintf(" (already restored: %s)", strings.Join(e.Restored, ", "))
	}
	return msg
}

func (e *RestoreError) Unwrap() error {
	return e.Err
}

func (e *RestoreError) Is(target error) bool {
	return target == store.ErrRestoreFailure
}

type Service struct {
	manager *store.Manager
	repos   *repository.Set
	logger  *slog.Logger
	metrics *metrics.Recorder
	now     func() time.Time
}

func New(m *store.Manager, repos *repository.Set, logger *slog.Logger, rec *metrics.Recorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		manager: m,
		repos:   repos,
		logger:  logger.With(slog.String("component", "backup")),
		metrics: rec,
		now:     time.Now,
	}
}

// Export reads every repository concurrently into one snapshot.
func (s *Service) Export(ctx context.Context) (domain.BackupData, error) {
	var data domain.BackupData
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		data.Products, err = s.repos.Products.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		data.Sales, err = s.repos.Sales.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		data.Clients, err = s.repos.Clients.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		data.Suppliers, err = s.repos.Suppliers.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		data.FinancialTransactions, err = s.repos.FinancialTransactions.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		data.Entries, err = s.repos.Entries.List(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.BackupData{}, fmt.Errorf("export: %w", err)
	}

	exportedAt := s.now().UTC()
	data.Version = FormatVersion
	data.SchemaVersion = s.manager.Version()
	data.ExportedAt = &exportedAt
	return data, nil
}

type restoreOptions struct {
	atomic bool
}

type RestoreOption func(*restoreOptions)

// WithAtomic restores every collection in a single transaction, so a failure
// leaves the store exactly as it was.
func WithAtomic() RestoreOption {
	return func(o *restoreOptions) { o.atomic = true }
}

type step struct {
	collection string
	present    bool
	run        func(ctx context.Context, repos *repository.Set) error
}

// Restore replaces every collection present in data, clearing it and
// inserting the snapshot's records. Collections absent from data are left
// untouched. By default each collection is restored in its own transaction
// and a failure stops the restore with a *RestoreError.
func (s *Service) Restore(ctx context.Context, data domain.BackupData, opts ...RestoreOption) (err error) {
	var o restoreOptions
	for _, opt := range opts {
		opt(&o)
	}
	defer func() { s.metrics.RestoreFinished(err) }()

	if err := s.manager.Verify(ctx); err != nil {
		return err
	}

	data = normalize(data)
	steps := []step{
		{store.Products, data.Products != nil, func(ctx context.Context, r *repository.Set) error {
			return r.Products.ReplaceAll(ctx, data.Products)
		}},
		{store.Clients, data.Clients != nil, func(ctx context.Context, r *repository.Set) error {
			return r.Clients.ReplaceAll(ctx, data.Clients)
		}},
		{store.Suppliers, data.Suppliers != nil, func(ctx context.Context, r *repository.Set) error {
			return r.Suppliers.ReplaceAll(ctx, data.Suppliers)
		}},
		{store.Sales, data.Sales != nil, func(ctx context.Context, r *repository.Set) error {
			return r.Sales.ReplaceAll(ctx, data.Sales)
		}},
		{store.FinancialTransactions, data.FinancialTransactions != nil, func(ctx context.Context, r *repository.Set) error {
			return r.FinancialTransactions.ReplaceAll(ctx, data.FinancialTransactions)
		}},
		{store.Entries, data.Entries != nil, func(ctx context.Context, r *repository.Set) error {
			return r.Entries.ReplaceAll(ctx, data.Entries)
		}},
	}

	if o.atomic {
		return s.restoreAtomic(ctx, steps)
	}

	restored := make([]string, 0, len(steps))
	for _, st := range steps {
		if !st.present {
			continue
		}
		err := s.manager.InTx(ctx, func(tx store.Session) error {
			return st.run(ctx, s.repos.In(tx))
		})
		if err != nil {
			s.logger.Error("restore stopped",
				slog.String("collection", st.collection),
				slog.Any("restored", restored),
				slog.Any("error", err))
			return &RestoreError{Collection: st.collection, Restored: restored, Err: err}
		}
		restored = append(restored, st.collection)
	}

	s.logger.Info("restore finished", slog.Any("collections", restored))
	return nil
}

func (s *Service) restoreAtomic(ctx context.Context, steps []step) error {
	var failed string
	restored := make([]string, 0, len(steps))
	err := s.manager.InTx(ctx, func(tx store.Session) error {
		repos := s.repos.In(tx)
		for _, st := range steps {
			if !st.present {
				continue
			}
			if err := st.run(ctx, repos); err != nil {
				failed = st.collection
				return err
			}
			restored = append(restored, st.collection)
		}
		return nil
	})
	if err != nil {
		if failed == "" {
			failed = "transaction"
		}
		s.logger.Error("atomic restore rolled back", slog.String("collection", failed), slog.Any("error", err))
		return &RestoreError{Collection: failed, Err: err}
	}

	s.logger.Info("restore finished", slog.Any("collections", restored), slog.Bool("atomic", true))
	return nil
}

// normalize returns a copy of data with every date in UTC. Absent
// collections stay nil.
func normalize(data domain.BackupData) domain.BackupData {
	data.Sales = mapSlice(data.Sales, func(v domain.Sale) domain.Sale { v.Date = v.Date.UTC(); return v })
	data.Clients = mapSlice(data.Clients, func(v domain.Client) domain.Client { v.RegisteredAt = v.RegisteredAt.UTC(); return v })
	data.Suppliers = mapSlice(data.Suppliers, func(v domain.Supplier) domain.Supplier { v.RegisteredAt = v.RegisteredAt.UTC(); return v })
	data.FinancialTransactions = mapSlice(data.FinancialTransactions, func(v domain.FinancialTransaction) domain.FinancialTransaction {
		v.Date = v.Date.UTC()
		return v
	})
	data.Entries = mapSlice(data.Entries, func(v domain.Entry) domain.Entry { v.Date = v.Date.UTC(); return v })
	if data.ExportedAt != nil {
		t := data.ExportedAt.UTC()
		data.ExportedAt = &t
	}
	return data
}

func mapSlice[T any](items []T, fn func(T) T) []T {
	if items == nil {
		return nil
	}
	out := make([]T, len(items))
	for i, item := range items {
		out[i] = fn(item)
	}
	return out
}

var errNoCollections = errors.New("snapshot contains no collections")
