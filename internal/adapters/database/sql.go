package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/satishbabariya/fluentsql/internal/core/query/dialect"
)

// ErrNotConnected is returned when the adapter is used before Connect.
var ErrNotConnected = errors.New("database not connected")

// SQLConn is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type SQLConn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLAdapter implements Adapter on top of a database/sql driver.
type SQLAdapter struct {
	driver  string
	config  Config
	dialect dialect.Dialect
	db      *sql.DB
}

var _ Adapter = (*SQLAdapter)(nil)

// NewSQLAdapter creates an adapter for a registered database/sql driver.
func NewSQLAdapter(driver string, config Config, d dialect.Dialect) *SQLAdapter {
	return &SQLAdapter{driver: driver, config: config, dialect: d}
}

// Connect opens the pool and pings it.
func (a *SQLAdapter) Connect(ctx context.Context) error {
	db, err := sql.Open(a.driver, a.config.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if a.config.MaxConnections > 0 {
		db.SetMaxOpenConns(a.config.MaxConnections)
		db.SetMaxIdleConns(max(a.config.MaxConnections/2, 1))
	}
	if a.config.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(time.Duration(a.config.MaxIdleTime) * time.Second)
	}

	if a.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(a.config.ConnectTimeout)*time.Second)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.db = db
	return nil
}

// Disconnect closes the pool.
func (a *SQLAdapter) Disconnect(context.Context) error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// Query runs a statement that returns rows.
func (a *SQLAdapter) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	if a.db == nil {
		return nil, ErrNotConnected
	}
	return a.db.QueryContext(ctx, query, args...)
}

// Ping checks the connection.
func (a *SQLAdapter) Ping(ctx context.Context) error {
	if a.db == nil {
		return ErrNotConnected
	}
	return a.db.PingContext(ctx)
}

// Dialect returns the SQL dialect.
func (a *SQLAdapter) Dialect() dialect.Dialect {
	return a.dialect
}

// DB returns the underlying pool, or nil before Connect.
func (a *SQLAdapter) DB() *sql.DB {
	return a.db
}

// Conn adapts a caller-managed *sql.DB, *sql.Tx or *sql.Conn to Querier.
type Conn struct {
	conn SQLConn
}

var _ Querier = (*Conn)(nil)

// Wrap adapts conn. The caller keeps ownership of its lifecycle.
func Wrap(conn SQLConn) *Conn {
	return &Conn{conn: conn}
}

// Query runs a statement that returns rows.
func (c *Conn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
