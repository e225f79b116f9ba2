// Package pgx implements the PostgreSQL adapter on the pgx stdlib driver.
package pgx

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/satishbabariya/fluentsql/internal/adapters/database"
	"github.com/satishbabariya/fluentsql/internal/core/query/dialect"
)

// DriverName is the database/sql driver registered by pgx/stdlib.
const DriverName = "pgx"

// New creates a PostgreSQL adapter backed by pgx. The URL is validated up
// front so configuration errors surface before Connect.
func New(config database.Config) (*database.SQLAdapter, error) {
	if _, err := pgx.ParseConfig(config.URL); err != nil {
		return nil, fmt.Errorf("invalid postgres url: %w", err)
	}
	return database.NewSQLAdapter(DriverName, config, dialect.Postgres{}), nil
}
