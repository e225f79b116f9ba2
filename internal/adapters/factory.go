// Package adapters creates database adapters by provider name.
package adapters

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/fluentsql/internal/adapters/database"
	"github.com/satishbabariya/fluentsql/internal/adapters/database/mysql"
	"github.com/satishbabariya/fluentsql/internal/adapters/database/pgx"
	"github.com/satishbabariya/fluentsql/internal/adapters/database/postgres"
	"github.com/satishbabariya/fluentsql/internal/adapters/database/sqlite"
)

// Providers lists the accepted provider names.
var Providers = []string{"postgresql", "pgx", "mysql", "sqlite"}

// NewAdapter creates an unconnected adapter for config.Provider.
func NewAdapter(config database.Config) (database.Adapter, error) {
	switch strings.ToLower(config.Provider) {
	case "postgresql", "postgres":
		return postgres.New(config), nil
	case "pgx":
		return pgx.New(config)
	case "mysql":
		return mysql.New(config)
	case "sqlite", "sqlite3":
		return sqlite.New(config), nil
	}
	return nil, fmt.Errorf("unsupported provider: %s", config.Provider)
}
