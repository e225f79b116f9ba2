package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/satishbabariya/fluentsql/internal/core/query/dialect"
	"github.com/satishbabariya/fluentsql/internal/core/query/domain"
	"github.com/satishbabariya/fluentsql/internal/core/schema"
)

// renderer turns a query model into SQL text. Parameters are numbered in the
// order they are written, across CTE bodies, derived tables and union members.
type renderer struct {
	d        dialect.Dialect
	registry *schema.Registry
	out      *strings.Builder
	args     []any
	// discard drops text output; used to re-collect parameters for a cached plan.
	discard bool
	wraps   int
}

var _ dialect.Writer = (*renderer)(nil)

func newRenderer(d dialect.Dialect, registry *schema.Registry) *renderer {
	return &renderer{d: d, registry: registry, out: &strings.Builder{}}
}

// WriteString implements dialect.Writer.
func (r *renderer) WriteString(s string) {
	if !r.discard {
		r.out.WriteString(s)
	}
}

// Bind implements dialect.Writer.
func (r *renderer) Bind(value any) string {
	r.args = append(r.args, value)
	return r.d.Placeholder(len(r.args))
}

func (r *renderer) renderError(construct, format string, args ...any) error {
	return &domain.RenderError{Dialect: r.d.Name(), Construct: construct, Reason: fmt.Sprintf(format, args...)}
}

func (r *renderer) quote(name string) string {
	return r.d.QuoteIdentifier(name)
}

// capture renders fn into a separate buffer and returns the text.
func (r *renderer) capture(fn func() error) (string, error) {
	saved := r.out
	r.out = &strings.Builder{}
	defer func() { r.out = saved }()
	if err := fn(); err != nil {
		return "", err
	}
	return r.out.String(), nil
}

func (r *renderer) statement(q *domain.Query) error {
	if len(q.Tables) == 0 {
		return r.renderError("SELECT", "query has no FROM table")
	}
	if len(q.CTEs) > 0 {
		if err := r.with(q.CTEs); err != nil {
			return err
		}
	}
	return r.compound(q)
}

func (r *renderer) with(ctes []*domain.CteDefinition) error {
	recursive := false
	for _, cte := range ctes {
		if !cte.Recursive {
			continue
		}
		recursive = true
		if !r.d.Capabilities().RecursiveCTE {
			return r.renderError("recursive CTE "+cte.Name, "not supported by this server")
		}
	}

	r.WriteString("WITH ")
	if recursive && r.d.Capabilities().RecursiveKeyword {
		r.WriteString("RECURSIVE ")
	}
	for i, cte := range ctes {
		if i > 0 {
			r.WriteString(", ")
		}
		r.WriteString(r.quote(cte.Name))
		if len(cte.Columns) > 0 {
			cols := make([]string, len(cte.Columns))
			for j, c := range cte.Columns {
				cols[j] = r.quote(c)
			}
			r.WriteString("(" + strings.Join(cols, ", ") + ")")
		}
		r.WriteString(" AS (")
		if err := r.compound(cte.Body); err != nil {
			return err
		}
		r.WriteString(")")
	}
	r.WriteString(" ")
	return nil
}

// compound renders q followed by its union members.
func (r *renderer) compound(q *domain.Query) error {
	if len(q.Unions) == 0 {
		return r.selectStmt(q)
	}
	if err := r.unionPart(q, false, true); err != nil {
		return err
	}
	for _, m := range q.Unions {
		r.WriteString(" " + string(m.Mode) + " ")
		if err := r.unionPart(m.Body, m.Recursive, false); err != nil {
			return err
		}
	}
	return nil
}

// unionPart renders one side of a compound statement. Sides with their own
// ordering, pagination, members or CTEs are wrapped in a derived table. The
// anchor's own members and CTEs belong to the enclosing statement.
func (r *renderer) unionPart(q *domain.Query, recursive, anchor bool) error {
	own := len(orderKeys(q)) > 0 || q.Pagination.IsSet()
	nested := !anchor && (len(q.Unions) > 0 || len(q.CTEs) > 0)
	if !own && !nested {
		return r.selectStmt(q)
	}
	if recursive {
		return r.renderError("recursive member", "ordering, pagination and nested members are not allowed")
	}
	r.wraps++
	alias := "u" + strconv.Itoa(r.wraps)
	r.WriteString("SELECT * FROM (")
	var err error
	if nested {
		err = r.statement(q)
	} else {
		err = r.selectStmt(q)
	}
	if err != nil {
		return err
	}
	r.WriteString(") " + alias)
	return nil
}

// orderKeys returns the explicit ordering, or the grouping keys when the
// query is grouped and no ordering was given.
func orderKeys(q *domain.Query) []domain.OrderKey {
	if len(q.OrderBy) > 0 || !q.Grouped() {
		return q.OrderBy
	}
	keys := make([]domain.OrderKey, len(q.GroupBy))
	for i, k := range q.GroupBy {
		keys[i] = domain.OrderKey{Node: k}
	}
	return keys
}

func (r *renderer) selectStmt(q *domain.Query) error {
	if len(q.Tables) == 0 {
		return r.renderError("SELECT", "query has no FROM table")
	}
	r.WriteString("SELECT ")
	if q.Distinct {
		r.WriteString("DISTINCT ")
	}
	r.d.WriteTop(r, q.Pagination)

	list, err := r.selectList(q)
	if err != nil {
		return err
	}
	r.WriteString(list)

	from, err := r.tableSource(q.Tables[0])
	if err != nil {
		return err
	}
	r.WriteString(" FROM " + from)

	for _, j := range q.Joins {
		if j.On == nil {
			return r.renderError(string(j.Kind), "join of %s has no ON predicate", q.Tables[j.Right].Alias)
		}
		src, err := r.tableSource(q.Tables[j.Right])
		if err != nil {
			return err
		}
		on, err := r.expr(j.On)
		if err != nil {
			return err
		}
		r.WriteString(" " + string(j.Kind) + " " + src + " ON " + on)
	}

	if q.Where != nil {
		where, err := r.expr(q.Where)
		if err != nil {
			return err
		}
		r.WriteString(" WHERE " + where)
	}

	if q.Grouped() {
		keys, err := r.list(q.GroupBy)
		if err != nil {
			return err
		}
		r.WriteString(" GROUP BY " + keys)
	}

	if q.Having != nil {
		having, err := r.expr(q.Having)
		if err != nil {
			return err
		}
		r.WriteString(" HAVING " + having)
	}

	order := orderKeys(q)
	if len(order) > 0 {
		parts := make([]string, len(order))
		for i, k := range order {
			s, err := r.expr(k.Node)
			if err != nil {
				return err
			}
			if k.Desc {
				s += " DESC"
			}
			parts[i] = s
		}
		r.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}

	r.d.WritePagination(r, q.Pagination, len(order) > 0)
	return nil
}

func (r *renderer) tableSource(t domain.TableRef) (string, error) {
	switch t.Source {
	case domain.SourceDerived:
		sub, err := r.capture(func() error { return r.statement(t.Derived) })
		if err != nil {
			return "", err
		}
		return "(" + sub + ") " + t.Alias, nil
	case domain.SourceCte:
		return r.quote(t.CteName), nil
	}
	entity, err := r.registry.Entity(t.Entity)
	if err != nil {
		return "", r.renderError("FROM", "%v", err)
	}
	return r.quote(entity.Table) + " " + t.Alias, nil
}

func (r *renderer) selectList(q *domain.Query) (string, error) {
	items, err := outputItems(r.registry, q)
	if err != nil {
		return "", r.renderError("SELECT", "%v", err)
	}
	parts := make([]string, len(items))
	for i, item := range items {
		s, err := r.expr(item.Node)
		if err != nil {
			return "", err
		}
		if col, ok := item.Node.(domain.Column); !ok || col.Name != item.Name {
			s += " AS " + r.quote(item.Name)
		}
		parts[i] = s
	}
	return strings.Join(parts, ", "), nil
}

func (r *renderer) list(nodes []domain.Node) (string, error) {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		s, err := r.expr(n)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, ", "), nil
}

func (r *renderer) expr(n domain.Node) (string, error) {
	switch v := n.(type) {
	case domain.Column:
		alias := v.Table
		if v.Quoted {
			alias = r.quote(alias)
		}
		return alias + "." + r.quote(v.Name), nil
	case domain.Param:
		return r.Bind(v.Value), nil
	case domain.Literal:
		return v.SQL, nil
	case domain.Compare:
		left, err := r.operand(v.Left)
		if err != nil {
			return "", err
		}
		right, err := r.operand(v.Right)
		if err != nil {
			return "", err
		}
		return left + " " + string(v.Op) + " " + right, nil
	case domain.And:
		return r.logical(v.Terms, " AND ")
	case domain.Or:
		return r.logical(v.Terms, " OR ")
	case domain.Not:
		s, err := r.expr(v.Operand)
		if err != nil {
			return "", err
		}
		return "NOT (" + s + ")", nil
	case domain.Arith:
		left, err := r.expr(v.Left)
		if err != nil {
			return "", err
		}
		right, err := r.expr(v.Right)
		if err != nil {
			return "", err
		}
		return "(" + left + " " + string(v.Op) + " " + right + ")", nil
	case domain.Func:
		args := make([]string, len(v.Args))
		for i, a := range v.Args {
			s, err := r.operand(a)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
		return r.d.Function(v.Name, args)
	case domain.Aggregate:
		if v.Arg == nil {
			return string(v.Func) + "(*)", nil
		}
		arg, err := r.expr(v.Arg)
		if err != nil {
			return "", err
		}
		if v.Distinct {
			arg = "DISTINCT " + arg
		}
		return string(v.Func) + "(" + arg + ")", nil
	case nil:
		return "", r.renderError("expression", "missing node")
	}
	return "", r.renderError("expression", "unknown node %T", n)
}

// operand renders a comparison or function operand, parenthesizing logical
// sub-trees.
func (r *renderer) operand(n domain.Node) (string, error) {
	s, err := r.expr(n)
	if err != nil {
		return "", err
	}
	switch n.(type) {
	case domain.And, domain.Or, domain.Compare:
		return "(" + s + ")", nil
	}
	return s, nil
}

func (r *renderer) logical(terms []domain.Node, sep string) (string, error) {
	parts := make([]string, len(terms))
	for i, t := range terms {
		s, err := r.expr(t)
		if err != nil {
			return "", err
		}
		switch t.(type) {
		case domain.And, domain.Or:
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, sep), nil
}
