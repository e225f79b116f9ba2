package fluent

import (
	"context"

	"github.com/satishbabariya/fluentsql/pkg/expr"
)

// GroupFn builds an expression over a group: its keys, its aggregates and
// the tables in scope.
type GroupFn func(g expr.Group) expr.Expr

// Grouped is a query after GroupBy.
type Grouped struct {
	s *Select
}

func (g *Grouped) group() expr.Group {
	return expr.Group{Tables: g.s.tables(), Keys: len(g.s.q.GroupBy)}
}

// Err returns the first error raised while building.
func (g *Grouped) Err() error {
	return g.s.err
}

// Having filters groups. Aggregates are allowed.
func (g *Grouped) Having(fn GroupFn) *Grouped {
	s := g.s
	if !s.ok() {
		return g
	}
	if fn == nil {
		s.fail(missing("predicate"))
		return g
	}
	pred, err := s.db.translator.Having(fn(g.group()), s)
	if err != nil {
		s.fail(err)
		return g
	}
	if err := s.q.SetHaving(pred); err != nil {
		s.fail(err)
	}
	return g
}

// OrderBy adds ascending sort keys over the group.
func (g *Grouped) OrderBy(fn GroupFn) *Grouped {
	switch {
	case !g.s.ok():
	case fn == nil:
		g.s.fail(missing("sort key"))
	default:
		keys, err := g.s.db.translator.Keys(fn(g.group()), g.s)
		g.s.orderBy(keys, err, false)
	}
	return g
}

// OrderByDesc adds descending sort keys over the group.
func (g *Grouped) OrderByDesc(fn GroupFn) *Grouped {
	switch {
	case !g.s.ok():
	case fn == nil:
		g.s.fail(missing("sort key"))
	default:
		keys, err := g.s.db.translator.Keys(fn(g.group()), g.s)
		g.s.orderBy(keys, err, true)
	}
	return g
}

// Select projects each group. Without it the grouping keys are selected.
func (g *Grouped) Select(fn GroupFn) *Select {
	s := g.s
	if !s.ok() {
		return s
	}
	if fn == nil {
		return s.fail(missing("projection"))
	}
	p, err := s.db.translator.Projection(fn(g.group()), s)
	if err != nil {
		return s.fail(err)
	}
	if err := s.q.SetProjection(p); err != nil {
		return s.fail(err)
	}
	return s
}

// Skip skips n groups.
func (g *Grouped) Skip(n int) *Grouped {
	g.s.Skip(n)
	return g
}

// Take limits the result to n groups.
func (g *Grouped) Take(n int) *Grouped {
	g.s.Take(n)
	return g
}

// Page selects the 1-based page of groups.
func (g *Grouped) Page(page, size int) *Grouped {
	g.s.Page(page, size)
	return g
}

// Query returns the underlying builder.
func (g *Grouped) Query() *Select {
	return g.s
}

// ToSql renders the statement.
func (g *Grouped) ToSql() (string, []any, error) {
	return g.s.ToSql()
}

// ToList runs the query into dest, a pointer to a slice.
func (g *Grouped) ToList(ctx context.Context, dest any) error {
	return g.s.ToList(ctx, dest)
}
