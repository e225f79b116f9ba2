package fluent_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/satishbabariya/fluentsql/internal/adapters/database"
	"github.com/satishbabariya/fluentsql/internal/adapters/database/pgx"
	"github.com/satishbabariya/fluentsql/internal/config"
	"github.com/satishbabariya/fluentsql/pkg/expr"
	"github.com/satishbabariya/fluentsql/pkg/fluent"
)

const postgresFixture = `
CREATE TABLE regions (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL, region_id INTEGER);
CREATE TABLE orders (
	id INTEGER PRIMARY KEY,
	order_no TEXT NOT NULL,
	customer_id INTEGER NOT NULL,
	total DOUBLE PRECISION NOT NULL,
	paid BOOLEAN NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE order_lines (id INTEGER PRIMARY KEY, order_id INTEGER NOT NULL, sku TEXT NOT NULL, qty INTEGER NOT NULL);
CREATE TABLE categories (id INTEGER PRIMARY KEY, parent_id INTEGER, name TEXT NOT NULL);

INSERT INTO regions VALUES (1, 'North');
INSERT INTO customers VALUES (1, 'Ann', 1), (2, 'Bob', NULL);
INSERT INTO orders VALUES
	(1, 'A-1', 1, 120.5, true, '2024-03-01 10:00:00+00'),
	(2, 'A-2', 1, 80, false, '2024-03-02 11:30:00+00'),
	(3, 'B-1', 2, 300, true, '2024-04-10 09:15:00+00');
INSERT INTO order_lines VALUES (1, 1, 'sku-1', 2), (2, 3, 'sku-3', 5);
`

// startPostgres runs a disposable PostgreSQL server. It needs Docker and
// FLUENTSQL_INTEGRATION=1.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() || os.Getenv("FLUENTSQL_INTEGRATION") == "" {
		t.Skip("set FLUENTSQL_INTEGRATION=1 to run against PostgreSQL")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("fluentsql"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgresIntegration(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	setup, err := pgx.New(database.Config{URL: dsn})
	require.NoError(t, err)
	require.NoError(t, setup.Connect(ctx))
	_, err = setup.DB().ExecContext(ctx, postgresFixture)
	require.NoError(t, err)
	require.NoError(t, setup.Disconnect(ctx))

	cfg := &config.Config{
		Provider:      "pgx",
		DatabaseURL:   dsn,
		AliasStart:    "a",
		PlanCacheSize: 16,
	}
	db, err := fluent.OpenConfig(ctx, cfg, newRegistry(t))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(ctx) })

	orders, err := fluent.List[Order](ctx, fluent.From[Order](db).
		Include("Customer.Region").
		IncludeMany("Lines").
		Where(pred(func(t expr.Tables) expr.Value { return t[0].F("Customer").F("Name").StartsWith("A") })).
		OrderBy(col("Id")))
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "North", orders[0].Customer.Region.Name)
	assert.Len(t, orders[0].Lines, 1)
	assert.Empty(t, orders[1].Lines)
	assert.Equal(t, time.March, orders[0].CreatedAt.Month())

	n, err := fluent.From[Order](db).Where(col("Paid")).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	totals, err := fluent.List[CustomerTotal](ctx, fluent.From[Order](db).
		GroupBy(col("CustomerId")).
		Select(func(g expr.Group) expr.Expr {
			return expr.New(g.Key().As("CustomerId"), g.Sum(g.Tables[0].F("Total")).As("Total"), g.Count().As("Orders"))
		}))
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.InDelta(t, 200.5, totals[0].Total, 0.001)

	assert.GreaterOrEqual(t, db.Stats().Queries, int64(3))
}
