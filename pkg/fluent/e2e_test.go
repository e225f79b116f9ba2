package fluent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/fluentsql/internal/adapters/database"
	"github.com/satishbabariya/fluentsql/internal/adapters/database/sqlite"
	"github.com/satishbabariya/fluentsql/pkg/expr"
	"github.com/satishbabariya/fluentsql/pkg/fluent"
)

const fixtureSQL = `
CREATE TABLE regions (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL, region_id INTEGER);
CREATE TABLE orders (
	id INTEGER PRIMARY KEY,
	order_no TEXT NOT NULL,
	customer_id INTEGER NOT NULL,
	total REAL NOT NULL,
	paid BOOLEAN NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE TABLE order_lines (id INTEGER PRIMARY KEY, order_id INTEGER NOT NULL, sku TEXT NOT NULL, qty INTEGER NOT NULL);
CREATE TABLE categories (id INTEGER PRIMARY KEY, parent_id INTEGER, name TEXT NOT NULL);
CREATE TABLE audit_log (id INTEGER PRIMARY KEY, action TEXT NOT NULL, order_id INTEGER NOT NULL);

INSERT INTO regions VALUES (1, 'North'), (2, 'South');
INSERT INTO customers VALUES (1, 'Ann', 1), (2, 'Bob', NULL), (3, 'Cid', 2);
INSERT INTO orders VALUES
	(1, 'A-1', 1, 120.5, 1, '2024-03-01 10:00:00'),
	(2, 'A-2', 1, 80, 0, '2024-03-02 11:30:00'),
	(3, 'B-1', 2, 300, 1, '2024-04-10 09:15:00'),
	(4, 'C-1', 3, 15, 0, '2024-05-20 18:45:00');
INSERT INTO order_lines VALUES (1, 1, 'sku-1', 2), (2, 1, 'sku-2', 1), (3, 3, 'sku-3', 5);
INSERT INTO categories VALUES (1, NULL, 'root'), (2, 1, 'child'), (3, 2, 'leaf'), (4, 1, 'sibling');
INSERT INTO audit_log VALUES (1, 'paid', 1), (2, 'shipped', 1), (3, 'paid', 3);
`

const auditSchema = `
entities:
  - name: AuditEntry
    table: audit_log
    columns:
      - member: Id
        primaryKey: true
      - member: Action
      - member: OrderId
  - name: Ghost
    table: no_such_table
    columns:
      - member: Id
`

type CustomerTotal struct {
	CustomerId int
	Total      float64
	Orders     int
}

type CategoryDepth struct {
	Name  string
	Depth int
}

// District and Resident map regions and customers with a nullable key on
// the child side.
type District struct {
	Id        int
	Name      string
	Residents []Resident `orm:"fk:RegionId"`
}

func (District) TableName() string { return "regions" }

type Resident struct {
	Id       int
	Name     string
	RegionId *int
}

func (Resident) TableName() string { return "customers" }

func openSQLite(t *testing.T, models ...any) *fluent.DB {
	t.Helper()
	ctx := context.Background()

	// One connection keeps every statement on the same in-memory database.
	adapter := sqlite.New(database.Config{URL: ":memory:", MaxConnections: 1})
	require.NoError(t, adapter.Connect(ctx))
	t.Cleanup(func() { adapter.Disconnect(ctx) })

	_, err := adapter.DB().ExecContext(ctx, fixtureSQL)
	require.NoError(t, err)

	reg := newRegistry(t)
	require.NoError(t, reg.LoadYAML([]byte(auditSchema)))
	if len(models) > 0 {
		require.NoError(t, reg.Register(models...))
	}

	db, err := fluent.Open(adapter, adapter.Dialect(), reg)
	require.NoError(t, err)
	return db
}

func TestSQLiteIncludes(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	orders, err := fluent.List[Order](ctx, fluent.From[Order](db).Include("Customer.Region").OrderBy(col("Id")))
	require.NoError(t, err)
	require.Len(t, orders, 4)

	first := orders[0]
	assert.Equal(t, "A-1", first.OrderNo)
	assert.InDelta(t, 120.5, first.Total, 0.001)
	assert.True(t, first.Paid)
	assert.Equal(t, 2024, first.CreatedAt.Year())
	require.NotNil(t, first.Customer)
	assert.Equal(t, "Ann", first.Customer.Name)
	require.NotNil(t, first.Customer.Region)
	assert.Equal(t, "North", first.Customer.Region.Name)

	// Bob has no region: the navigation stays nil.
	third := orders[2]
	require.NotNil(t, third.Customer)
	assert.Equal(t, "Bob", third.Customer.Name)
	assert.Nil(t, third.Customer.RegionId)
	assert.Nil(t, third.Customer.Region)
	assert.Nil(t, third.Lines)
}

func TestSQLiteIncludeInnerDropsUnmatched(t *testing.T) {
	db := openSQLite(t)

	customers, err := fluent.List[Customer](context.Background(), fluent.From[Customer](db).IncludeInner("Region").OrderBy(col("Id")))
	require.NoError(t, err)
	require.Len(t, customers, 2)
	assert.Equal(t, "Ann", customers[0].Name)
	assert.Equal(t, "South", customers[1].Region.Name)
}

func TestSQLiteIncludeMany(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	q := fluent.From[Order](db).
		IncludeMany("Lines", func(s *fluent.Select) *fluent.Select { return s.OrderByDesc(col("Qty")) }).
		OrderBy(col("Id"))
	orders, err := fluent.List[Order](ctx, q)
	require.NoError(t, err)
	require.Len(t, orders, 4)

	require.Len(t, orders[0].Lines, 2)
	assert.Equal(t, "sku-1", orders[0].Lines[0].Sku)
	assert.NotNil(t, orders[1].Lines)
	assert.Empty(t, orders[1].Lines)
	require.Len(t, orders[2].Lines, 1)
	assert.Equal(t, 5, orders[2].Lines[0].Qty)

	customers, err := fluent.List[Customer](ctx, fluent.From[Customer](db).
		Where(pred(func(t expr.Tables) expr.Value { return t[0].F("Id").Eq(1) })).
		IncludeMany("Orders"))
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Len(t, customers[0].Orders, 2)
}

func TestSQLiteIncludeManyNullableKey(t *testing.T) {
	db := openSQLite(t, District{}, Resident{})

	districts, err := fluent.List[District](context.Background(), fluent.From[District](db).IncludeMany("Residents").OrderBy(col("Id")))
	require.NoError(t, err)
	require.Len(t, districts, 2)
	require.Len(t, districts[0].Residents, 1)
	assert.Equal(t, "Ann", districts[0].Residents[0].Name)
	require.Len(t, districts[1].Residents, 1)
	assert.Equal(t, "Cid", districts[1].Residents[0].Name)
}

func TestSQLiteAggregates(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	n, err := fluent.From[Order](db).Where(col("Paid")).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	found, err := fluent.From[Order](db).Where(pred(func(t expr.Tables) expr.Value { return t[0].F("Total").Gt(1000) })).Any(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	var sum float64
	require.NoError(t, fluent.From[Order](db).
		Where(pred(func(t expr.Tables) expr.Value { return t[0].F("CustomerId").Eq(1) })).
		Sum(ctx, col("Total"), &sum))
	assert.InDelta(t, 200.5, sum, 0.001)

	largest, err := fluent.Aggregate[float64](ctx, fluent.From[Order](db), "MAX", col("Total"))
	require.NoError(t, err)
	assert.InDelta(t, 300.0, largest, 0.001)

	count, err := fluent.Aggregate[int](ctx, fluent.From[Order](db), "COUNT", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	// A paginated query is counted as a derived table.
	n, err = fluent.From[Order](db).OrderBy(col("Id")).Skip(1).Take(2).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// The sum over no rows is NULL and reads as zero.
	sum = -1
	require.NoError(t, fluent.From[Order](db).
		Where(pred(func(t expr.Tables) expr.Value { return t[0].F("Id").Eq(99) })).
		Sum(ctx, col("Total"), &sum))
	assert.Zero(t, sum)
}

func TestSQLiteCapturedNilPointer(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	var region *int
	n, err := fluent.From[Customer](db).Where(pred(func(t expr.Tables) expr.Value { return t[0].F("RegionId").Eq(region) })).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	north := 1
	region = &north
	n, err = fluent.From[Customer](db).Where(pred(func(t expr.Tables) expr.Value { return t[0].F("RegionId").Eq(region) })).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLiteLikeMatchesLiterally(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func(no expr.Value) expr.Value
		want int64
	}{
		{"percent", func(no expr.Value) expr.Value { return no.Contains("%") }, 0},
		{"underscore", func(no expr.Value) expr.Value { return no.StartsWith("A_") }, 0},
		{"prefix", func(no expr.Value) expr.Value { return no.StartsWith("A-") }, 2},
		{"suffix", func(no expr.Value) expr.Value { return no.EndsWith("-1") }, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := fluent.From[Order](db).Where(pred(func(t expr.Tables) expr.Value { return tt.fn(t[0].F("OrderNo")) })).Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestSQLiteFirst(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	top, err := fluent.FirstOf[Order](ctx, fluent.From[Order](db).OrderByDesc(col("Total")))
	require.NoError(t, err)
	assert.Equal(t, "B-1", top.OrderNo)

	var missing Order
	err = fluent.From[Order](db).Where(pred(func(t expr.Tables) expr.Value { return t[0].F("Id").Eq(99) })).First(ctx, &missing)
	assert.ErrorIs(t, err, fluent.ErrNoRows)
}

func TestSQLiteFirstOfUnion(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	unpaid := fluent.From[Order](db).
		Where(pred(func(t expr.Tables) expr.Value { return t[0].F("Paid").Not() })).
		Select(idAndNo)
	q := fluent.From[Order](db).Where(col("Paid")).Select(idAndNo).UnionAll(unpaid)

	before := db.Stats().Rows
	first, err := fluent.FirstOf[OrderSummary](ctx, q)
	require.NoError(t, err)
	assert.NotEmpty(t, first.OrderNo)
	assert.Equal(t, int64(1), db.Stats().Rows-before)

	all, err := fluent.List[OrderSummary](ctx, q)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestSQLiteProjections(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	summaries, err := fluent.List[OrderSummary](ctx, fluent.From[Order](db).Select(idAndNo).OrderBy(col("Id")).Take(2))
	require.NoError(t, err)
	assert.Equal(t, []OrderSummary{{1, "A-1"}, {2, "A-2"}}, summaries)

	numbers, err := fluent.List[string](ctx, fluent.From[Order](db).
		Select(func(t expr.Tables) expr.Expr { return expr.New(t[0].F("OrderNo")) }).
		Where(col("Paid")).
		OrderBy(col("Id")))
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1", "B-1"}, numbers)

	totals, err := fluent.List[CustomerTotal](ctx, fluent.From[Order](db).
		GroupBy(col("CustomerId")).
		Having(func(g expr.Group) expr.Expr { return g.Count().Ge(1) }).
		Select(func(g expr.Group) expr.Expr {
			return expr.New(g.Key().As("CustomerId"), g.Sum(g.Tables[0].F("Total")).As("Total"), g.Count().As("Orders"))
		}))
	require.NoError(t, err)
	require.Len(t, totals, 3)
	assert.Equal(t, 1, totals[0].CustomerId)
	assert.InDelta(t, 200.5, totals[0].Total, 0.001)
	assert.Equal(t, 2, totals[0].Orders)

	union, err := fluent.List[OrderSummary](ctx, fluent.From[Order](db).
		Where(col("Paid")).
		Select(idAndNo).
		UnionAll(fluent.From[Order](db).
			Where(pred(func(t expr.Tables) expr.Value { return t[0].F("Total").Gt(100) })).
			Select(idAndNo)))
	require.NoError(t, err)
	assert.Len(t, union, 4)
}

func TestSQLiteRecursiveCte(t *testing.T) {
	db := openSQLite(t)

	q := fluent.FromCte(db, categoryTree(db)).
		Select(func(t expr.Tables) expr.Expr { return expr.New(t[0].F("Name"), t[0].F("Depth")) }).
		OrderBy(func(t expr.Tables) expr.Expr { return expr.New(t[0].F("Depth"), t[0].F("Name")) })
	rows, err := fluent.List[CategoryDepth](context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []CategoryDepth{
		{"root", 0},
		{"child", 1},
		{"sibling", 1},
		{"leaf", 2},
	}, rows)
}

func TestSQLiteStream(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	var seen []string
	err := fluent.Each(ctx, fluent.From[Order](db).OrderBy(col("Id")), func(o Order) error {
		seen = append(seen, o.OrderNo)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1", "A-2", "B-1", "C-1"}, seen)

	stop := errors.New("stop")
	var row Order
	calls := 0
	err = fluent.From[Order](db).OrderBy(col("Id")).Stream(ctx, &row, func() error {
		calls++
		if row.Id == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, calls)
}

func TestSQLiteDynamicEntity(t *testing.T) {
	db := openSQLite(t)

	var rows []map[string]any
	err := fluent.FromEntity(db, "AuditEntry").
		Where(pred(func(t expr.Tables) expr.Value { return t[0].F("Action").Eq("paid") })).
		OrderBy(col("Id")).
		ToList(context.Background(), &rows)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]any{"Id": int64(1), "Action": "paid", "OrderId": int64(1)}, rows[0])
	assert.Equal(t, int64(3), rows[1]["OrderId"])
}

func TestSQLiteFailures(t *testing.T) {
	db := openSQLite(t)

	var rows []map[string]any
	err := fluent.FromEntity(db, "Ghost").ToList(context.Background(), &rows)
	require.Error(t, err)
	var ee *fluent.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Contains(t, ee.SQL, `"no_such_table"`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var orders []Order
	err = fluent.From[Order](db).ToList(ctx, &orders)
	require.Error(t, err)
	assert.True(t, fluent.IsCanceled(err))

	stats := db.Stats()
	assert.GreaterOrEqual(t, stats.Errors, int64(1))
	assert.GreaterOrEqual(t, stats.Cancellations, int64(1))
}
