package fluent

import (
	"github.com/satishbabariya/fluentsql/internal/core/query/compiler"
	"github.com/satishbabariya/fluentsql/internal/core/query/domain"
)

// Cte is a named common table expression.
type Cte struct {
	def *domain.CteDefinition
	// entity is the row entity when the body selects whole entities.
	entity string
	cols   []string
	err    error
}

// NewCte names body as a CTE. cols rename the output columns; by default
// they are the body's output labels.
func NewCte(name string, body *Select, cols ...string) *Cte {
	c := &Cte{}
	if body == nil {
		c.err = domain.NewModelBuildError("WithCte", "CTE %s has no body", name)
		return c
	}
	if body.err != nil {
		c.err = body.err
		return c
	}
	out, err := compiler.OutputNames(body.db.registry, body.q)
	if err != nil {
		c.err = err
		return c
	}
	c.def = &domain.CteDefinition{Name: name, Columns: cols, Body: body.q, Arity: len(out)}
	c.cols = columnsOr(cols, out)
	if err := c.def.Validate(); err != nil {
		c.err = err
	}
	return c
}

// UnionAllRecursive builds WITH RECURSIVE name AS (anchor UNION ALL
// recursive). recursive must read the CTE through CteRef.
func UnionAllRecursive(name string, anchor, recursive *Select, cols ...string) *Cte {
	c := &Cte{}
	switch {
	case anchor == nil || recursive == nil:
		c.err = domain.NewModelBuildError("WithCte", "recursive CTE %s needs an anchor and a recursive member", name)
		return c
	case anchor.err != nil:
		c.err = anchor.err
		return c
	case recursive.err != nil:
		c.err = recursive.err
		return c
	}

	out, err := compiler.OutputNames(anchor.db.registry, anchor.q)
	if err != nil {
		c.err = err
		return c
	}
	anchor.union(domain.UnionAll, recursive, true)
	if anchor.err != nil {
		c.err = anchor.err
		return c
	}
	c.def = &domain.CteDefinition{Name: name, Columns: cols, Body: anchor.q, Recursive: true, Arity: len(out)}
	c.cols = columnsOr(cols, out)
	if ref := recursive.q.Primary(); ref.Source == domain.SourceCte && ref.CteName == name {
		c.entity = ref.Entity
	}
	if err := c.def.Validate(); err != nil {
		c.err = err
	}
	return c
}

// Name returns the CTE name.
func (c *Cte) Name() string {
	if c.def == nil {
		return ""
	}
	return c.def.Name
}

// Columns returns the output column names.
func (c *Cte) Columns() []string {
	return append([]string(nil), c.cols...)
}

// Err returns the error raised while building the CTE.
func (c *Cte) Err() error {
	return c.err
}

func (c *Cte) ref() domain.TableRef {
	return domain.TableRef{Source: domain.SourceCte, CteName: c.def.Name, Columns: c.cols, Entity: c.entity}
}

func columnsOr(cols, fallback []string) []string {
	if len(cols) > 0 {
		return append([]string(nil), cols...)
	}
	return fallback
}
