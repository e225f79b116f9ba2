package fluent_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/fluentsql/internal/core/query/dialect"
	"github.com/satishbabariya/fluentsql/internal/core/query/domain"
	"github.com/satishbabariya/fluentsql/pkg/expr"
	"github.com/satishbabariya/fluentsql/pkg/fluent"
)

func TestPredicates(t *testing.T) {
	tests := []struct {
		name     string
		where    fluent.Fn
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "single comparison binds one parameter",
			where:    pred(func(t expr.Tables) expr.Value { return t[0].F("Id").Eq(5) }),
			wantSQL:  `WHERE a."id" = $1`,
			wantArgs: []any{5},
		},
		{
			name:     "nil comparison",
			where:    pred(func(t expr.Tables) expr.Value { return t[0].F("OrderNo").Ne(nil) }),
			wantSQL:  `WHERE a."order_no" IS NOT NULL`,
			wantArgs: nil,
		},
		{
			name:     "empty IN matches nothing",
			where:    pred(func(t expr.Tables) expr.Value { return t[0].F("Id").In() }),
			wantSQL:  `WHERE 1 = 0`,
			wantArgs: nil,
		},
		{
			name:     "IN expands a slice",
			where:    pred(func(t expr.Tables) expr.Value { return t[0].F("Id").In([]int{4, 5}) }),
			wantSQL:  `WHERE a."id" IN ($1, $2)`,
			wantArgs: []any{4, 5},
		},
		{
			name:     "constant true",
			where:    func(expr.Tables) expr.Expr { return expr.V(true) },
			wantSQL:  `WHERE 1 = 1`,
			wantArgs: nil,
		},
		{
			name: "date part",
			where: pred(func(t expr.Tables) expr.Value {
				return t[0].F("CreatedAt").Year().Eq(2024)
			}),
			wantSQL:  `WHERE EXTRACT(YEAR FROM a."created_at") = $1`,
			wantArgs: []any{2024},
		},
		{
			name: "arithmetic",
			where: pred(func(t expr.Tables) expr.Value {
				return t[0].F("Total").Mul(2).Ge(10)
			}),
			wantSQL:  `WHERE (a."total" * $1) >= $2`,
			wantArgs: []any{2, 10},
		},
		{
			name: "nested or stays grouped",
			where: pred(func(t expr.Tables) expr.Value {
				return t[0].F("Paid").And(t[0].F("Id").Eq(1).Or(t[0].F("Id").Eq(2)))
			}),
			wantSQL:  `WHERE a."paid" = $1 AND (a."id" = $2 OR a."id" = $3)`,
			wantArgs: []any{true, 1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := fluent.From[Order](pg(t)).Where(tt.where).ToSql()
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(sql, tt.wantSQL), sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestAndFlattens(t *testing.T) {
	sql, args, err := fluent.From[Order](pg(t)).
		Where(pred(func(t expr.Tables) expr.Value { return t[0].F("Id").Gt(1) })).
		And(pred(func(t expr.Tables) expr.Value { return t[0].F("Total").Lt(100) })).
		And(col("Paid")).
		ToSql()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sql, `WHERE a."id" > $1 AND a."total" < $2 AND a."paid" = $3`), sql)
	assert.Equal(t, []any{1, 100, true}, args)
}

func TestWhereReplaces(t *testing.T) {
	sql, args, err := fluent.From[Order](pg(t)).
		Where(pred(func(t expr.Tables) expr.Value { return t[0].F("Id").Gt(1) })).
		Where(pred(func(t expr.Tables) expr.Value { return t[0].F("Id").Lt(9) })).
		ToSql()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sql, `WHERE a."id" < $1`), sql)
	assert.Equal(t, []any{9}, args)
}

func TestWhereIf(t *testing.T) {
	paid := col("Paid")
	open := pred(func(t expr.Tables) expr.Value { return t[0].F("Paid").Not() })

	tests := []struct {
		name      string
		cond      bool
		otherwise fluent.Fn
		want      string
	}{
		{"then branch", true, open, `WHERE a."paid" = $1`},
		{"otherwise branch", false, open, `WHERE NOT (a."paid" = $1)`},
		{"no otherwise", false, nil, `FROM "orders" a`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, _, err := fluent.From[Order](pg(t)).WhereIf(tt.cond, paid, tt.otherwise).ToSql()
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(sql, tt.want), sql)
		})
	}
}

func TestToSqlIsRepeatable(t *testing.T) {
	for _, tt := range goldenQueries {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.build(pg(t))
			sql1, args1, err := q.ToSql()
			require.NoError(t, err)
			sql2, args2, err := q.ToSql()
			require.NoError(t, err)
			assert.Equal(t, sql1, sql2)
			assert.Equal(t, args1, args2)
		})
	}
}

func TestPlanCacheRecollectsArguments(t *testing.T) {
	db := pg(t)
	build := func(id int) *fluent.Select {
		return fluent.From[Order](db).Where(pred(func(t expr.Tables) expr.Value { return t[0].F("Id").Eq(id) }))
	}

	sql1, args1, err := build(1).ToSql()
	require.NoError(t, err)
	sql2, args2, err := build(2).ToSql()
	require.NoError(t, err)

	assert.Equal(t, sql1, sql2)
	assert.Equal(t, []any{1}, args1)
	assert.Equal(t, []any{2}, args2)
	assert.Equal(t, int64(1), db.CacheStats().Hits)
}

func TestAliasesAreDeterministic(t *testing.T) {
	build := func(db *fluent.DB) *fluent.Select {
		return fluent.From[Order](db).Include("Customer.Region")
	}
	sql1, _, err := build(pg(t)).ToSql()
	require.NoError(t, err)
	sql2, _, err := build(pg(t)).ToSql()
	require.NoError(t, err)
	assert.Equal(t, sql1, sql2)

	sql, _, err := build(pg(t, fluent.WithAliasStart('t'))).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, `FROM "orders" t LEFT JOIN "customers" u ON t."customer_id" = u."id" LEFT JOIN "regions" v ON u."region_id" = v."id"`)
}

func TestNavigationJoinsOncePerPath(t *testing.T) {
	sql, _, err := fluent.From[Order](pg(t)).
		Where(pred(func(t expr.Tables) expr.Value { return t[0].F("Customer").F("Name").Eq("Ann") })).
		OrderBy(func(t expr.Tables) expr.Expr { return t[0].F("Customer").F("Name") }).
		Include("Customer").
		ToSql()
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(sql, "JOIN"), sql)
}

func TestJoinSeesOnlyExplicitTables(t *testing.T) {
	// The navigation join takes alias b, the explicit join is still t[1].
	sql, _, err := fluent.From[Order](pg(t)).
		Where(pred(func(t expr.Tables) expr.Value { return t[0].F("Customer").F("Name").Eq("Ann") })).
		InnerJoin(OrderLine{}, func(t expr.Tables) expr.Expr { return t[1].F("OrderId").Eq(t[0].F("Id")) }).
		Select(func(t expr.Tables) expr.Expr { return expr.New(t[0].F("Id"), t[1].F("Sku")) }).
		ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, `INNER JOIN "order_lines" c ON c."order_id" = a."id"`)
	assert.Contains(t, sql, `c."sku" AS "Sku"`)
}

func TestPageLaw(t *testing.T) {
	db := pg(t)
	page, pageArgs, err := fluent.From[Order](db).OrderBy(col("Id")).Page(3, 10).ToSql()
	require.NoError(t, err)
	manual, manualArgs, err := fluent.From[Order](db).OrderBy(col("Id")).Skip(20).Take(10).ToSql()
	require.NoError(t, err)

	assert.Equal(t, manual, page)
	assert.Equal(t, manualArgs, pageArgs)
}

func TestIncludePartition(t *testing.T) {
	cq, err := fluent.From[Order](pg(t)).Include("Customer.Region").Compile()
	require.NoError(t, err)

	require.Len(t, cq.Plan.Segments, 3)
	total := 0
	for i, seg := range cq.Plan.Segments {
		assert.Equal(t, total, seg.Start, "segment %d", i)
		total += seg.Count
	}
	assert.Equal(t, len(cq.Plan.Columns), total)
	assert.Equal(t, []string{"Customer", "Region"}, cq.Plan.Segments[2].Path)
}

func TestBuildErrors(t *testing.T) {
	db := pg(t)

	tests := []struct {
		name  string
		build func() *fluent.Select
		check func(error) bool
	}{
		{
			name: "unknown member",
			build: func() *fluent.Select {
				return fluent.From[Order](db).Where(pred(func(t expr.Tables) expr.Value { return t[0].F("Missing").Eq(1) }))
			},
			check: fluent.IsTranslationError,
		},
		{
			name: "aggregate in where",
			build: func() *fluent.Select {
				return fluent.From[Order](db).Where(func(expr.Tables) expr.Expr { return expr.Group{}.Count().Gt(1) })
			},
			check: fluent.IsTranslationError,
		},
		{
			name: "table out of scope",
			build: func() *fluent.Select {
				return fluent.From[Order](db).Where(pred(func(t expr.Tables) expr.Value {
					return expr.Table{Index: 3, Name: "d"}.F("Id").Eq(1)
				}))
			},
			check: fluent.IsTranslationError,
		},
		{
			name: "unregistered type",
			build: func() *fluent.Select {
				return fluent.From[OrderSummary](db)
			},
			check: func(err error) bool { return err != nil },
		},
		{
			name: "union arity",
			build: func() *fluent.Select {
				one := fluent.From[Order](db).Select(func(t expr.Tables) expr.Expr { return expr.New(t[0].F("Id")) })
				return fluent.From[Order](db).Select(idAndNo).Union(one)
			},
			check: fluent.IsModelBuildError,
		},
		{
			name: "union anchor without projection",
			build: func() *fluent.Select {
				return fluent.From[Order](db).UnionAll(fluent.From[Order](db).Select(idAndNo))
			},
			check: fluent.IsModelBuildError,
		},
		{
			name: "include of a one-to-many navigation",
			build: func() *fluent.Select {
				return fluent.From[Order](db).Include("Lines")
			},
			check: fluent.IsModelBuildError,
		},
		{
			name: "include many of a one-to-one navigation",
			build: func() *fluent.Select {
				return fluent.From[Order](db).IncludeMany("Customer")
			},
			check: fluent.IsModelBuildError,
		},
		{
			name: "page zero",
			build: func() *fluent.Select {
				return fluent.From[Order](db).Page(0, 10)
			},
			check: fluent.IsModelBuildError,
		},
		{
			name: "include many then select",
			build: func() *fluent.Select {
				return fluent.From[Customer](db).IncludeMany("Orders").Select(func(t expr.Tables) expr.Expr {
					return expr.New(t[0].F("Id"), t[0].F("Name"))
				})
			},
			check: fluent.IsModelBuildError,
		},
		{
			name: "select then include many",
			build: func() *fluent.Select {
				return fluent.From[Customer](db).Select(col("Name")).IncludeMany("Orders")
			},
			check: fluent.IsModelBuildError,
		},
		{
			name: "include many then group",
			build: func() *fluent.Select {
				return fluent.From[Customer](db).IncludeMany("Orders").GroupBy(col("Name")).Query()
			},
			check: fluent.IsModelBuildError,
		},
		{
			name:  "nil where",
			build: func() *fluent.Select { return fluent.From[Order](db).Where(nil) },
			check: fluent.IsTranslationError,
		},
		{
			name:  "nil and",
			build: func() *fluent.Select { return fluent.From[Order](db).Where(col("Paid")).And(nil) },
			check: fluent.IsTranslationError,
		},
		{
			name:  "nil where-if branch",
			build: func() *fluent.Select { return fluent.From[Order](db).WhereIf(true, nil, col("Paid")) },
			check: fluent.IsTranslationError,
		},
		{
			name:  "nil order key",
			build: func() *fluent.Select { return fluent.From[Order](db).OrderByDesc(nil) },
			check: fluent.IsTranslationError,
		},
		{
			name:  "nil projection",
			build: func() *fluent.Select { return fluent.From[Order](db).Select(nil) },
			check: fluent.IsTranslationError,
		},
		{
			name:  "nil group key",
			build: func() *fluent.Select { return fluent.From[Order](db).GroupBy(nil).Query() },
			check: fluent.IsTranslationError,
		},
		{
			name:  "nil having",
			build: func() *fluent.Select { return fluent.From[Order](db).GroupBy(col("CustomerId")).Having(nil).Query() },
			check: fluent.IsTranslationError,
		},
		{
			name:  "nil group projection",
			build: func() *fluent.Select { return fluent.From[Order](db).GroupBy(col("CustomerId")).Select(nil) },
			check: fluent.IsTranslationError,
		},
		{
			name: "cte ref without columns",
			build: func() *fluent.Select {
				return fluent.CteRef[map[string]any](db, "tree")
			},
			check: fluent.IsModelBuildError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.build()
			require.Error(t, q.Err())
			assert.True(t, tt.check(q.Err()), "%T: %v", q.Err(), q.Err())

			// The first error sticks through later calls and terminals.
			q = q.OrderBy(col("Id")).Take(1)
			_, _, err := q.ToSql()
			assert.Equal(t, q.Err(), err)
			assert.Equal(t, tt.check(err), true)
		})
	}
}

func TestFrozenAfterCompile(t *testing.T) {
	q := fluent.From[Order](pg(t))
	_, _, err := q.ToSql()
	require.NoError(t, err)

	q.Take(5)
	require.Error(t, q.Err())
	assert.True(t, fluent.IsModelBuildError(q.Err()))
}

func TestRecursiveCteCapabilities(t *testing.T) {
	mysql57, err := dialect.NewMySQL("5.7.44")
	require.NoError(t, err)

	tests := []struct {
		name    string
		dialect fluent.Dialect
		prefix  string
		wantErr bool
	}{
		{name: "postgres", dialect: dialect.Postgres{}, prefix: `WITH RECURSIVE "tree" AS (`},
		{name: "sqlite", dialect: dialect.SQLite{}, prefix: `WITH RECURSIVE "tree" AS (`},
		{name: "sqlserver", dialect: dialect.SQLServer{}, prefix: `WITH [tree] AS (`},
		{name: "mysql 5.7", dialect: mysql57, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newDB(t, tt.dialect)
			sql, _, err := fluent.FromCte(db, categoryTree(db)).ToSql()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, fluent.IsRenderError(err))
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(sql, tt.prefix), sql)
		})
	}
}

func TestRecursiveMemberCannotPaginate(t *testing.T) {
	db := pg(t)
	anchor := fluent.From[Category](db).
		Select(func(t expr.Tables) expr.Expr { return expr.New(t[0].F("Id"), t[0].F("ParentId")) })
	member := fluent.CteRef[map[string]any](db, "tree", "Id", "ParentId").
		InnerJoin(Category{}, func(t expr.Tables) expr.Expr { return t[1].F("ParentId").Eq(t[0].F("Id")) }).
		Select(func(t expr.Tables) expr.Expr { return expr.New(t[1].F("Id"), t[1].F("ParentId")) }).
		Take(10)
	tree := fluent.UnionAllRecursive("tree", anchor, member)
	require.NoError(t, tree.Err())

	_, _, err := fluent.FromCte(db, tree).ToSql()
	require.Error(t, err)
	assert.True(t, fluent.IsRenderError(err))
}

func TestUnionMemberWithOwnPagination(t *testing.T) {
	db := pg(t)
	top := fluent.From[Order](db).Select(idAndNo).OrderByDesc(col("Total")).Take(3)
	sql, args, err := fluent.From[Order](db).Select(idAndNo).Union(top).ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT a."id" AS "Id", a."order_no" AS "OrderNo" FROM "orders" a UNION `+
			`SELECT * FROM (SELECT a."id" AS "Id", a."order_no" AS "OrderNo" FROM "orders" a ORDER BY a."total" DESC LIMIT $1) u1`,
		sql)
	assert.Equal(t, []any{3}, args)
}

func TestCteColumns(t *testing.T) {
	db := pg(t)
	c := fluent.NewCte("recent", fluent.From[Order](db).Select(idAndNo), "OrderId", "Number")
	require.NoError(t, c.Err())
	assert.Equal(t, "recent", c.Name())
	assert.Equal(t, []string{"OrderId", "Number"}, c.Columns())

	sql, _, err := fluent.FromCte(db, c).Select(func(t expr.Tables) expr.Expr { return expr.New(t[0].F("Number")) }).ToSql()
	require.NoError(t, err)
	assert.Equal(t, `WITH "recent"("OrderId", "Number") AS (SELECT a."id" AS "Id", a."order_no" AS "OrderNo" FROM "orders" a) SELECT "recent"."Number" FROM "recent"`, sql)

	bad := fluent.NewCte("bad", fluent.From[Order](db).Select(idAndNo), "OnlyOne")
	require.Error(t, bad.Err())
	assert.True(t, fluent.IsModelBuildError(bad.Err()))
}

func TestErrorTypes(t *testing.T) {
	var te *domain.TranslationError
	err := fluent.From[Order](pg(t)).Where(pred(func(t expr.Tables) expr.Value { return t[0].F("Missing").Eq(1) })).Err()
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Fragment, "Missing")
}

func TestNilAggregateValue(t *testing.T) {
	var sum float64
	err := fluent.From[Order](pg(t)).Sum(context.Background(), nil, &sum)
	require.Error(t, err)
	assert.True(t, fluent.IsTranslationError(err))

	_, err = fluent.Aggregate[float64](context.Background(), fluent.From[Order](pg(t)), "MAX", nil)
	assert.True(t, fluent.IsTranslationError(err))
}
