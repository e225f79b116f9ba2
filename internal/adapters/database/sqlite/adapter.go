// Package sqlite implements the SQLite adapter.
package sqlite

import (
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/satishbabariya/fluentsql/internal/adapters/database"
	"github.com/satishbabariya/fluentsql/internal/core/query/dialect"
)

// DriverName is the database/sql driver registered by go-sqlite3.
const DriverName = "sqlite3"

// New creates a SQLite adapter. A "file:" or "sqlite:" prefix is accepted.
func New(config database.Config) *database.SQLAdapter {
	config.URL = strings.TrimPrefix(config.URL, "sqlite:")
	if config.URL == "" {
		config.URL = ":memory:"
	}
	return database.NewSQLAdapter(DriverName, config, dialect.SQLite{})
}
