// Package sqlite is the default dialect: a single-file embedded store backed
// by the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4/database"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "modernc.org/sqlite"

	"lojafacil/backend/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Dialect struct{}

var _ store.Dialect = Dialect{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) DriverName() string { return "sqlite" }

func (Dialect) DSN(opts store.Options) (string, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return "", fmt.Errorf("%w: no database path configured", store.ErrStoreUnavailable)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
}

func (Dialect) Migrations() fs.FS { return migrations }

func (Dialect) MigrationDriver(db *sql.DB) (database.Driver, error) {
	return migratesqlite.WithInstance(db, &migratesqlite.Config{})
}

func (Dialect) JSONField(field string) string {
	return fmt.Sprintf("json_extract(doc, '$.%s')", field)
}

func (Dialect) DocParam() string { return "?" }

// MaxOpenConns keeps a single connection so writes never contend for the
// database file lock.
func (Dialect) MaxOpenConns() int { return 1 }
