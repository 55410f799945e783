// Package postgres stores collections as JSONB documents in PostgreSQL
// through the pgx stdlib driver.
package postgres

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"lojafacil/backend/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Dialect struct{}

var _ store.Dialect = Dialect{}

func (Dialect) Name() string { return "postgres" }

func (Dialect) DriverName() string { return "pgx" }

func (Dialect) DSN(opts store.Options) (string, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return "", fmt.Errorf("%w: DATABASE_URL is not set", store.ErrStoreUnavailable)
	}
	return url, nil
}

func (Dialect) Migrations() fs.FS { return migrations }

func (Dialect) MigrationDriver(db *sql.DB) (database.Driver, error) {
	return migratepgx.WithInstance(db, &migratepgx.Config{})
}

func (Dialect) JSONField(field string) string {
	return fmt.Sprintf("doc->>'%s'", field)
}

func (Dialect) DocParam() string { return "CAST(? AS JSONB)" }

func (Dialect) MaxOpenConns() int { return 30 }
