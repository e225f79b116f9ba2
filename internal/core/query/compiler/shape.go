package compiler

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/fluentsql/internal/core/query/cache"
	"github.com/satishbabariya/fluentsql/internal/core/query/domain"
)

// Shape returns the plan cache key of q. It covers everything that affects
// the SQL text and result layout, and nothing that is bound as a parameter.
func Shape(q *domain.Query, dialectName string) string {
	var b strings.Builder
	writeQueryShape(&b, q)
	return cache.Key("plan", dialectName, b.String())
}

func writeQueryShape(b *strings.Builder, q *domain.Query) {
	if q == nil {
		b.WriteString("nil")
		return
	}
	b.WriteString("Q{")
	for _, cte := range q.CTEs {
		fmt.Fprintf(b, "cte(%s,%v,%t,", cte.Name, cte.Columns, cte.Recursive)
		writeQueryShape(b, cte.Body)
		b.WriteString(")")
	}
	for _, t := range q.Tables {
		fmt.Fprintf(b, "t(%d,%s,%s,%s,%v", t.Source, t.Entity, t.Alias, t.CteName, t.Columns)
		if t.Derived != nil {
			writeQueryShape(b, t.Derived)
		}
		b.WriteString(")")
	}
	for _, j := range q.Joins {
		fmt.Fprintf(b, "j(%s,%d,%d,", j.Kind, j.Left, j.Right)
		writeNodeShape(b, j.On)
		b.WriteString(")")
	}
	b.WriteString("w(")
	writeNodeShape(b, q.Where)
	b.WriteString(")g(")
	for _, k := range q.GroupBy {
		writeNodeShape(b, k)
	}
	b.WriteString(")h(")
	writeNodeShape(b, q.Having)
	b.WriteString(")o(")
	for _, k := range q.OrderBy {
		writeNodeShape(b, k.Node)
		fmt.Fprintf(b, "%t;", k.Desc)
	}
	b.WriteString(")")
	if q.Projection != nil {
		b.WriteString("p(")
		for _, item := range q.Projection.Items {
			b.WriteString(item.Name + "=")
			writeNodeShape(b, item.Node)
			b.WriteString(";")
		}
		b.WriteString(")")
	}
	fmt.Fprintf(b, "d(%t)s(%t)l(%t)", q.Distinct, q.Pagination.Skip != nil, q.Pagination.Take != nil)
	for _, m := range q.Unions {
		fmt.Fprintf(b, "u(%s,%t,", m.Mode, m.Recursive)
		writeQueryShape(b, m.Body)
		b.WriteString(")")
	}
	for _, n := range q.Navigations {
		fmt.Fprintf(b, "n(%d,%v,%t,%d)", n.Owner, n.Path, n.Many, n.Table)
	}
	b.WriteString("}")
}

func writeNodeShape(b *strings.Builder, n domain.Node) {
	switch v := n.(type) {
	case nil:
		b.WriteString("_")
	case domain.Column:
		fmt.Fprintf(b, "c(%s.%s,%t)", v.Table, v.Name, v.Quoted)
	case domain.Param:
		b.WriteString("?")
	case domain.Literal:
		b.WriteString("l(" + v.SQL + ")")
	case domain.Compare:
		b.WriteString("cmp(" + string(v.Op) + ",")
		writeNodeShape(b, v.Left)
		writeNodeShape(b, v.Right)
		b.WriteString(")")
	case domain.And:
		b.WriteString("and(")
		for _, t := range v.Terms {
			writeNodeShape(b, t)
		}
		b.WriteString(")")
	case domain.Or:
		b.WriteString("or(")
		for _, t := range v.Terms {
			writeNodeShape(b, t)
		}
		b.WriteString(")")
	case domain.Not:
		b.WriteString("not(")
		writeNodeShape(b, v.Operand)
		b.WriteString(")")
	case domain.Arith:
		b.WriteString("ar(" + string(v.Op) + ",")
		writeNodeShape(b, v.Left)
		writeNodeShape(b, v.Right)
		b.WriteString(")")
	case domain.Func:
		b.WriteString("f(" + string(v.Name) + ",")
		for _, a := range v.Args {
			writeNodeShape(b, a)
		}
		b.WriteString(")")
	case domain.Aggregate:
		fmt.Fprintf(b, "agg(%s,%t,", v.Func, v.Distinct)
		writeNodeShape(b, v.Arg)
		b.WriteString(")")
	default:
		fmt.Fprintf(b, "%T", n)
	}
}
