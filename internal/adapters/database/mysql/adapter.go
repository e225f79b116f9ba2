// Package mysql implements the MySQL adapter.
package mysql

import (
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/satishbabariya/fluentsql/internal/adapters/database"
	"github.com/satishbabariya/fluentsql/internal/core/query/dialect"
)

// DriverName is the database/sql driver registered by go-sql-driver/mysql.
const DriverName = "mysql"

// New creates a MySQL adapter. The DSN is normalized to parse DATETIME
// columns into time.Time.
func New(config database.Config) (*database.SQLAdapter, error) {
	cfg, err := mysql.ParseDSN(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	config.URL = cfg.FormatDSN()

	d, err := dialect.NewMySQL(config.MySQLVersion)
	if err != nil {
		return nil, err
	}
	return database.NewSQLAdapter(DriverName, config, d), nil
}
