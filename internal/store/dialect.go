package store

import (
	"database/sql"
	"io/fs"

	"github.com/golang-migrate/migrate/v4/database"
)

// Dialect adapts the manager to one SQL engine.
type Dialect interface {
	// Name identifies the dialect in logs and metrics.
	Name() string
	// DriverName is the database/sql driver to open.
	DriverName() string
	// DSN builds the connection string, or reports ErrStoreUnavailable when
	// the options name no usable storage.
	DSN(opts Options) (string, error)
	// Migrations returns the embedded migration files.
	Migrations() fs.FS
	// MigrationDriver wraps a dedicated connection for golang-migrate.
	MigrationDriver(db *sql.DB) (database.Driver, error)
	// JSONField returns an SQL expression extracting a top-level string field
	// from the doc column.
	JSONField(field string) string
	// DocParam is the placeholder used when writing the doc column.
	DocParam() string
	// MaxOpenConns bounds the pool; zero leaves database/sql defaults.
	MaxOpenConns() int
}

type Options struct {
	// Path is the SQLite database file.
	Path string
	// URL is the PostgreSQL connection string.
	URL string
}
