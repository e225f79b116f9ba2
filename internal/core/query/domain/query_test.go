package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/fluentsql/internal/core/query/domain"
)

func col(alias, name string) domain.Column {
	return domain.Column{Table: alias, Name: name, Member: name}
}

func TestAddTable_AssignsAliasesInOrder(t *testing.T) {
	q := domain.NewQuery('a')
	_, err := q.AddTable(domain.TableRef{Entity: "Order"})
	require.NoError(t, err)
	_, err = q.AddJoin(domain.InnerJoin, 0, domain.TableRef{Entity: "Customer"}, nil)
	require.NoError(t, err)
	_, err = q.AddJoin(domain.LeftJoin, 0, domain.TableRef{Source: domain.SourceCte, CteName: "tree"}, nil)
	require.NoError(t, err)
	_, err = q.AddJoin(domain.LeftJoin, 1, domain.TableRef{Entity: "Region"}, nil)
	require.NoError(t, err)

	aliases := make([]string, len(q.Tables))
	for i, tbl := range q.Tables {
		aliases[i] = tbl.Alias
	}
	assert.Equal(t, []string{"a", "b", "tree", "c"}, aliases)
	assert.Equal(t, 1, q.Joins[2].Left)
}

func TestAddTable_CustomStartAndOverflow(t *testing.T) {
	q := domain.NewQuery('x')
	var aliases []string
	for i := 0; i < 5; i++ {
		_, err := q.AddTable(domain.TableRef{Entity: "T"})
		require.NoError(t, err)
		aliases = append(aliases, q.Tables[i].Alias)
	}
	assert.Equal(t, []string{"x", "y", "z", "x1", "x2"}, aliases)
}

func TestConjoin_Flattens(t *testing.T) {
	p1 := domain.Compare{Op: domain.OpGt, Left: col("a", "id"), Right: domain.Param{Value: 1}}
	p2 := domain.Compare{Op: domain.OpLt, Left: col("a", "id"), Right: domain.Param{Value: 9}}
	p3 := domain.Func{Name: domain.FnIsNull, Args: []domain.Node{col("a", "name")}}

	chained := domain.Conjoin(domain.Conjoin(p1, p2), p3)
	single := domain.Conjoin(p1, domain.And{Terms: []domain.Node{p2, p3}})

	assert.Equal(t, domain.And{Terms: []domain.Node{p1, p2, p3}}, chained)
	assert.Equal(t, chained, single)
	assert.Equal(t, p1, domain.Conjoin(nil, p1))
}

func TestSetPage_EqualsSkipTake(t *testing.T) {
	paged := domain.NewQuery('a')
	require.NoError(t, paged.SetPage(3, 20))

	manual := domain.NewQuery('a')
	require.NoError(t, manual.SetSkip(40))
	require.NoError(t, manual.SetTake(20))

	assert.Equal(t, *manual.Pagination.Skip, *paged.Pagination.Skip)
	assert.Equal(t, *manual.Pagination.Take, *paged.Pagination.Take)

	assert.True(t, domain.IsModelBuildError(paged.SetPage(0, 10)))
	assert.True(t, domain.IsModelBuildError(paged.SetPage(1, 0)))
}

func TestAddUnionMember(t *testing.T) {
	anchor := domain.NewQuery('a')
	member := domain.NewQuery('a')

	err := anchor.AddUnionMember(domain.UnionMember{Mode: domain.UnionAll, Body: member, Arity: 2})
	require.Error(t, err)
	assert.True(t, domain.IsModelBuildError(err))

	require.NoError(t, anchor.SetProjection(&domain.Projection{Items: []domain.ProjectionItem{
		{Name: "Id", Node: col("a", "id")},
		{Name: "Name", Node: col("a", "name")},
	}}))

	err = anchor.AddUnionMember(domain.UnionMember{Mode: domain.UnionAll, Body: member, Arity: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "member has 3 columns, anchor has 2")

	require.NoError(t, anchor.AddUnionMember(domain.UnionMember{Mode: domain.Union, Body: member, Arity: 2}))
	assert.True(t, member.Frozen())
}

func TestAddCte_Validation(t *testing.T) {
	recursiveMember := func(ref string) *domain.Query {
		q := domain.NewQuery('a')
		_, err := q.AddTable(domain.TableRef{Entity: "Category"})
		require.NoError(t, err)
		_, err = q.AddJoin(domain.InnerJoin, 0, domain.TableRef{Source: domain.SourceCte, CteName: ref}, nil)
		require.NoError(t, err)
		return q
	}
	body := func(ref string) *domain.Query {
		q := domain.NewQuery('a')
		_, err := q.AddTable(domain.TableRef{Entity: "Category"})
		require.NoError(t, err)
		require.NoError(t, q.SetProjection(&domain.Projection{Items: []domain.ProjectionItem{{Name: "id", Node: col("a", "id")}}}))
		require.NoError(t, q.AddUnionMember(domain.UnionMember{Mode: domain.UnionAll, Body: recursiveMember(ref), Recursive: true, Arity: 1}))
		return q
	}

	tests := []struct {
		name    string
		def     *domain.CteDefinition
		wantErr string
	}{
		{"valid", &domain.CteDefinition{Name: "tree", Body: body("tree"), Recursive: true, Arity: 1, Columns: []string{"id"}}, ""},
		{"no self reference", &domain.CteDefinition{Name: "tree", Body: body("other"), Recursive: true, Arity: 1}, "does not reference"},
		{"column count", &domain.CteDefinition{Name: "tree", Body: body("tree"), Recursive: true, Arity: 1, Columns: []string{"id", "x"}}, "declares 2 columns"},
		{"self reference without recursion", &domain.CteDefinition{Name: "tree", Body: recursiveMember("tree"), Arity: 1}, "not recursive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := domain.NewQuery('a')
			err := q.AddCte(tt.def)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Len(t, q.CTEs, 1)
				return
			}
			require.Error(t, err)
			assert.True(t, domain.IsModelBuildError(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFreeze_RejectsMutation(t *testing.T) {
	q := domain.NewQuery('a')
	_, err := q.AddTable(domain.TableRef{Entity: "Order"})
	require.NoError(t, err)
	q.Freeze()

	assert.True(t, domain.IsModelBuildError(q.SetWhere(domain.Literal{SQL: "1 = 1"})))
	assert.True(t, domain.IsModelBuildError(q.SetTake(1)))

	clone := q.Clone()
	assert.False(t, clone.Frozen())
	require.NoError(t, clone.SetTake(1))
	assert.Nil(t, q.Pagination.Take)
}

func TestJoinNavigation_Deduplicates(t *testing.T) {
	q := domain.NewQuery('a')
	_, err := q.AddTable(domain.TableRef{Entity: "Order"})
	require.NoError(t, err)

	first, err := q.JoinNavigation(domain.LeftJoin, 0, "Customer", domain.TableRef{Entity: "Customer"}, nil)
	require.NoError(t, err)
	second, err := q.JoinNavigation(domain.InnerJoin, 0, "Customer", domain.TableRef{Entity: "Customer"}, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, q.Joins, 1)
	assert.Equal(t, domain.InnerJoin, q.Joins[0].Kind)
}

func TestAddTable_AliasesAvoidCteNames(t *testing.T) {
	cte := func(name string) *domain.CteDefinition {
		body := domain.NewQuery('a')
		_, err := body.AddTable(domain.TableRef{Entity: "Order"})
		require.NoError(t, err)
		require.NoError(t, body.SetProjection(&domain.Projection{Items: []domain.ProjectionItem{{Name: "Id", Node: col("a", "id")}}}))
		return &domain.CteDefinition{Name: name, Body: body, Arity: 1}
	}

	q := domain.NewQuery('a')
	require.NoError(t, q.AddCte(cte("b")))
	_, err := q.AddTable(domain.TableRef{Source: domain.SourceCte, CteName: "b", Columns: []string{"Id"}})
	require.NoError(t, err)
	_, err = q.AddJoin(domain.InnerJoin, 0, domain.TableRef{Entity: "Customer"}, nil)
	require.NoError(t, err)
	_, err = q.AddJoin(domain.InnerJoin, 0, domain.TableRef{Entity: "Order"}, nil)
	require.NoError(t, err)

	aliases := make([]string, len(q.Tables))
	for i, tbl := range q.Tables {
		aliases[i] = tbl.Alias
	}
	assert.Equal(t, []string{"b", "a", "c"}, aliases)

	// A CTE cannot take a name a table already uses as alias.
	err = q.AddCte(cte("c"))
	require.Error(t, err)
	assert.True(t, domain.IsModelBuildError(err))
}

func TestAddNavigation_RejectsManyWithProjection(t *testing.T) {
	child := domain.NewQuery('a')
	_, err := child.AddTable(domain.TableRef{Entity: "Order"})
	require.NoError(t, err)
	many := domain.NavigationSpec{Path: []string{"Orders"}, Many: true, Child: child}
	projection := &domain.Projection{Items: []domain.ProjectionItem{{Name: "Id", Node: col("a", "id")}}}

	q := domain.NewQuery('a')
	_, err = q.AddTable(domain.TableRef{Entity: "Customer"})
	require.NoError(t, err)
	require.NoError(t, q.SetProjection(projection))
	assert.True(t, domain.IsModelBuildError(q.AddNavigation(many)))

	q = domain.NewQuery('a')
	_, err = q.AddTable(domain.TableRef{Entity: "Customer"})
	require.NoError(t, err)
	require.NoError(t, q.AddNavigation(many))
	assert.True(t, domain.IsModelBuildError(q.SetProjection(projection)))
	assert.True(t, domain.IsModelBuildError(q.SetGroupBy([]domain.Node{col("a", "name")})))
}
