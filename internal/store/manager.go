package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
)

// Manager owns the single shared handle to the durable store. The handle is
// opened lazily on first use, cached until Close, and reopened on demand
// after a Close.
type Manager struct {
	mu      sync.Mutex
	opts    Options
	dialect Dialect
	logger  *slog.Logger
	db      *sqlx.DB
	version uint
}

func NewManager(opts Options, dialect Dialect, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		opts:    opts,
		dialect: dialect,
		logger:  logger.With(slog.String("component", "store")),
	}
}

// Open opens the store and migrates it to SchemaVersion. Calling Open on an
// already open manager is a no-op.
func (m *Manager) Open(ctx context.Context) error {
	_, err := m.handle(ctx)
	return err
}

// Version returns the schema version of the open store, or zero when closed.
func (m *Manager) Version() uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return 0
	}
	return m.version
}

func (m *Manager) Dialect() Dialect {
	return m.dialect
}

// Session returns a non-transactional session; every call made through it is
// its own unit of work.
func (m *Manager) Session(ctx context.Context) (Session, error) {
	db, err := m.handle(ctx)
	if err != nil {
		return Session{}, err
	}
	return Session{ext: db, dialect: m.dialect}, nil
}

// InTx runs fn inside one transaction spanning any number of collections.
// The transaction commits only when fn returns nil.
func (m *Manager) InTx(ctx context.Context, fn func(Session) error) error {
	db, err := m.handle(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(Session{ext: tx, dialect: m.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Verify re-reads the recorded schema version. If another handle has moved
// the store past this build, the manager releases its handle and returns
// ErrSchemaVersionConflict so the caller can reload.
func (m *Manager) Verify(ctx context.Context) error {
	db, err := m.handle(ctx)
	if err != nil {
		return err
	}

	var row struct {
		Version int64 `db:"version"`
		Dirty   bool  `db:"dirty"`
	}
	if err := db.GetContext(ctx, &row, `SELECT version, dirty FROM schema_migrations LIMIT 1`); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if row.Dirty || row.Version < 0 || uint(row.Version) != SchemaVersion {
		m.logger.Warn("schema changed under open handle", slog.Int64("recorded", row.Version), slog.Bool("dirty", row.Dirty))
		_ = m.Close()
		return conflictError(uint(max(row.Version, 0)))
	}
	return nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	m.version = 0
	return err
}

func (m *Manager) handle(ctx context.Context) (*sqlx.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		return m.db, nil
	}
	if m.dialect == nil {
		return nil, fmt.Errorf("%w: no storage driver configured", ErrStoreUnavailable)
	}

	dsn, err := m.dialect.DSN(m.opts)
	if err != nil {
		return nil, err
	}

	version, err := m.migrate(ctx, dsn)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(m.dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n := m.dialect.MaxOpenConns(); n > 0 {
		db.SetMaxOpenConns(n)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	m.db = db
	m.version = version
	m.logger.Info("store opened", slog.String("dialect", m.dialect.Name()), slog.Uint64("schema_version", uint64(version)))
	return db, nil
}

// migrate applies the additive steps up to SchemaVersion over a dedicated
// connection that is closed before the shared handle is opened.
func (m *Manager) migrate(ctx context.Context, dsn string) (uint, error) {
	raw, err := sql.Open(m.dialect.DriverName(), dsn)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	driver, err := m.dialect.MigrationDriver(raw)
	if err != nil {
		_ = raw.Close()
		if isLockError(err) {
			return 0, fmt.Errorf("%w: %v", ErrSchemaVersionConflict, err)
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	source, err := iofs.New(m.dialect.Migrations(), "migrations")
	if err != nil {
		_ = driver.Close()
		return 0, fmt.Errorf("load migrations: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", source, m.dialect.Name(), driver)
	if err != nil {
		_ = source.Close()
		_ = driver.Close()
		return 0, fmt.Errorf("init migrations: %w", err)
	}
	defer func() { _, _ = mg.Close() }()

	current, dirty, err := mg.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		current = 0
	case err != nil:
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty || current > SchemaVersion {
		m.logger.Warn("refusing incompatible schema", slog.Uint64("recorded", uint64(current)), slog.Bool("dirty", dirty))
		return 0, conflictError(current)
	}

	if err := mg.Migrate(SchemaVersion); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		var dirtyErr migrate.ErrDirty
		if isLockError(err) || errors.As(err, &dirtyErr) {
			return 0, fmt.Errorf("%w: %v", ErrSchemaVersionConflict, err)
		}
		return 0, fmt.Errorf("migrate to version %d: %w", SchemaVersion, err)
	}
	if current < SchemaVersion {
		m.logger.Info("schema migrated", slog.Uint64("from", uint64(current)), slog.Uint64("to", uint64(SchemaVersion)))
	}
	return SchemaVersion, nil
}

func conflictError(recorded uint) error {
	return fmt.Errorf("%w: store is at version %d, this build expects %d; close other sessions and reload",
		ErrSchemaVersionConflict, recorded, SchemaVersion)
}

func isLockError(err error) bool {
	return errors.Is(err, migrate.ErrLocked) ||
		errors.Is(err, migrate.ErrLockTimeout) ||
		errors.Is(err, database.ErrLocked)
}
