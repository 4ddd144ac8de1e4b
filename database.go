package translations

import (
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// NewBunDB wraps an opened *sql.DB with the Bun dialect matching the driver.
// Postgres is the production target; sqlite keeps tests and small
// deployments self-contained.
func NewBunDB(sqldb *sql.DB, driver string) (*bun.DB, error) {
	switch driver {
	case "postgres", "pgx", "pg":
		return bun.NewDB(sqldb, pgdialect.New()), nil
	case "sqlite", "sqlite3":
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	}
	return nil, fmt.Errorf("translations: unsupported database driver %q", driver)
}
