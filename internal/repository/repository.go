package repository

import (
	"context"
	"slices"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"lojafacil/backend/internal/domain"
	"lojafacil/backend/internal/metrics"
	"lojafacil/backend/internal/store"
)

// Repository is the typed read/write facade over one collection. It adds date
// rehydration on every read and a stable default ordering on lists.
type Repository[T store.Record] struct {
	manager    *store.Manager
	bound      *store.Session
	collection string
	hooks      []store.DecodeHook
	sorter     func([]T)
	metrics    *metrics.Recorder
}

func newRepository[T store.Record](m *store.Manager, rec *metrics.Recorder, collection string, sorter func([]T), dateFields ...string) *Repository[T] {
	r := &Repository[T]{
		manager:    m,
		collection: collection,
		sorter:     sorter,
		metrics:    rec,
	}
	if len(dateFields) > 0 {
		r.hooks = []store.DecodeHook{RehydrateDates(dateFields...)}
	}
	return r
}

// In returns a copy of the repository bound to s, typically a transaction
// session from store.Manager.InTx.
func (r *Repository[T]) In(s store.Session) *Repository[T] {
	bound := *r
	bound.bound = &s
	return &bound
}

func (r *Repository[T]) Collection() string {
	return r.collection
}

func (r *Repository[T]) List(ctx context.Context) ([]T, error) {
	startedAt := time.Now()
	items, err := r.list(ctx)
	r.metrics.ObserveStoreOp(r.collection, "list", startedAt, err)
	return items, err
}

func (r *Repository[T]) list(ctx context.Context) ([]T, error) {
	s, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	items, err := store.GetAll[T](ctx, s, r.collection, r.hooks...)
	if err != nil {
		return nil, err
	}
	if r.sorter != nil {
		r.sorter(items)
	}
	return items, nil
}

func (r *Repository[T]) Get(ctx context.Context, id string) (T, error) {
	startedAt := time.Now()
	item, err := r.get(ctx, id)
	r.metrics.ObserveStoreOp(r.collection, "get", startedAt, err)
	return item, err
}

func (r *Repository[T]) get(ctx context.Context, id string) (T, error) {
	s, err := r.session(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return store.GetByKey[T](ctx, s, r.collection, id, r.hooks...)
}

// FindBy lists records through a secondary index, in default order.
func (r *Repository[T]) FindBy(ctx context.Context, field string, value string) ([]T, error) {
	startedAt := time.Now()
	items, err := r.findBy(ctx, field, value)
	r.metrics.ObserveStoreOp(r.collection, "find", startedAt, err)
	return items, err
}

func (r *Repository[T]) findBy(ctx context.Context, field string, value string) ([]T, error) {
	s, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	items, err := store.FindBy[T](ctx, s, r.collection, field, value, r.hooks...)
	if err != nil {
		return nil, err
	}
	if r.sorter != nil {
		r.sorter(items)
	}
	return items, nil
}

// Add inserts a new record; an existing id fails with store.ErrDuplicateKey.
func (r *Repository[T]) Add(ctx context.Context, item T) error {
	return r.write(ctx, "add", func(s store.Session) error {
		return store.Insert(ctx, s, r.collection, item)
	})
}

// Update replaces an existing record; a missing id fails with store.ErrNotFound.
func (r *Repository[T]) Update(ctx context.Context, item T) error {
	return r.write(ctx, "update", func(s store.Session) error {
		return store.Update(ctx, s, r.collection, item)
	})
}

// Save writes the record whether or not it exists.
func (r *Repository[T]) Save(ctx context.Context, item T) error {
	return r.write(ctx, "save", func(s store.Session) error {
		return store.Upsert(ctx, s, r.collection, item)
	})
}

// Remove deletes by id; removing a missing id succeeds.
func (r *Repository[T]) Remove(ctx context.Context, id string) error {
	return r.write(ctx, "remove", func(s store.Session) error {
		return store.Remove(ctx, s, r.collection, id)
	})
}

// ReplaceAll clears the collection and inserts items. Callers that need the
// pair to be atomic bind the repository to a transaction first.
func (r *Repository[T]) ReplaceAll(ctx context.Context, items []T) error {
	return r.write(ctx, "replace", func(s store.Session) error {
		if err := store.Clear(ctx, s, r.collection); err != nil {
			return err
		}
		for _, item := range items {
			if err := store.Insert(ctx, s, r.collection, item); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repository[T]) write(ctx context.Context, op string, fn func(store.Session) error) error {
	startedAt := time.Now()
	s, err := r.session(ctx)
	if err == nil {
		err = fn(s)
	}
	r.metrics.ObserveStoreOp(r.collection, op, startedAt, err)
	return err
}

func (r *Repository[T]) session(ctx context.Context) (store.Session, error) {
	if r.bound != nil {
		return *r.bound, nil
	}
	return r.manager.Session(ctx)
}

// Set groups the repository of every entity.
type Set struct {
	Products              *Repository[domain.Product]
	Sales                 *Repository[domain.Sale]
	Clients               *Repository[domain.Client]
	Suppliers             *Repository[domain.Supplier]
	FinancialTransactions *Repository[domain.FinancialTransaction]
	Entries               *Repository[domain.Entry]
}

func New(m *store.Manager, rec *metrics.Recorder) *Set {
	return &Set{
		Products: newRepository(m, rec, store.Products,
			byName(func(p domain.Product) string { return p.Name })),
		Sales: newRepository(m, rec, store.Sales,
			newestFirst(func(s domain.Sale) time.Time { return s.Date }), "date"),
		Clients: newRepository(m, rec, store.Clients,
			byName(domain.Client.DisplayName), "registeredAt"),
		Suppliers: newRepository(m, rec, store.Suppliers,
			byName(func(s domain.Supplier) string { return s.Name }), "registeredAt"),
		FinancialTransactions: newRepository(m, rec, store.FinancialTransactions,
			newestFirst(func(t domain.FinancialTransaction) time.Time { return t.Date }), "date"),
		Entries: newRepository(m, rec, store.Entries,
			newestFirst(func(e domain.Entry) time.Time { return e.Date }), "date"),
	}
}

// In binds every repository to s.
func (set *Set) In(s store.Session) *Set {
	return &Set{
		Products:              set.Products.In(s),
		Sales:                 set.Sales.In(s),
		Clients:               set.Clients.In(s),
		Suppliers:             set.Suppliers.In(s),
		FinancialTransactions: set.FinancialTransactions.In(s),
		Entries:               set.Entries.In(s),
	}
}

func newestFirst[T any](date func(T) time.Time) func([]T) {
	return func(items []T) {
		slices.SortStableFunc(items, func(a, b T) int {
			return date(b).Compare(date(a))
		})
	}
}

// byName orders with Brazilian Portuguese collation, ignoring case. A
// collator is not safe for concurrent use, so each sort builds its own.
func byName[T any](name func(T) string) func([]T) {
	return func(items []T) {
		c := collate.New(language.BrazilianPortuguese, collate.IgnoreCase)
		slices.SortStableFunc(items, func(a, b T) int {
			return c.CompareString(name(a), name(b))
		})
	}
}
