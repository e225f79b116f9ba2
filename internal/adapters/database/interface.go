// Package database defines the connection abstraction the executor runs
// statements through.
package database

import (
	"context"

	"github.com/satishbabariya/fluentsql/internal/core/query/dialect"
)

// Rows is a forward-only result cursor. *sql.Rows implements it.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// Querier sends a statement and returns its rows.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
}

// Adapter is a managed connection pool for one provider.
type Adapter interface {
	Querier

	// Connect opens the pool and verifies it with a ping.
	Connect(ctx context.Context) error

	// Disconnect closes the pool.
	Disconnect(ctx context.Context) error

	// Ping checks the connection.
	Ping(ctx context.Context) error

	// Dialect returns the SQL dialect of the provider.
	Dialect() dialect.Dialect
}

// Config holds database connection configuration.
type Config struct {
	Provider       string
	URL            string
	MaxConnections int
	MaxIdleTime    int // seconds
	ConnectTimeout int // seconds
	// MySQLVersion gates version-dependent MySQL features.
	MySQLVersion string
}
