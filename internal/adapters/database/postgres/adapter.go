// Package postgres implements the PostgreSQL adapter on lib/pq.
package postgres

import (
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/satishbabariya/fluentsql/internal/adapters/database"
	"github.com/satishbabariya/fluentsql/internal/core/query/dialect"
)

// DriverName is the database/sql driver registered by lib/pq.
const DriverName = "postgres"

// New creates a PostgreSQL adapter.
func New(config database.Config) *database.SQLAdapter {
	return database.NewSQLAdapter(DriverName, config, dialect.Postgres{})
}
