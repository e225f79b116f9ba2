package dsl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/satishbabariya/fluentsql/pkg/expr"
	"github.com/satishbabariya/fluentsql/pkg/fluent"
)

// Error reports a statement that parses but cannot be compiled.
type Error struct {
	Pos     string
	Message string
}

func (e *Error) Error() string {
	if e.Pos == "" {
		return "dsl: " + e.Message
	}
	return fmt.Sprintf("dsl: %s: %s", e.Pos, e.Message)
}

// value evaluates a compiled operand against the tables in scope.
type value func(t expr.Tables) expr.Value

type compiler struct {
	// sources holds the names visible to references, in scope order.
	sources []string
}

// Compile builds q against db. Builder errors surface through the returned
// select's Err and its terminals.
func Compile(db *fluent.DB, q *Query) (*fluent.Select, error) {
	c := &compiler{sources: []string{q.From.Name()}}
	s := fluent.FromEntity(db, q.From.Entity)
	for _, inc := range q.Includes {
		s = s.Include(inc.String())
	}

	for _, j := range q.Joins {
		c.sources = append(c.sources, j.Source.Name())
		on, err := c.expr(j.On)
		if err != nil {
			return nil, err
		}
		fn := func(t expr.Tables) expr.Expr { return on(t) }
		if j.Kind == "left" {
			s = s.LeftJoin(j.Source.Entity, fn)
		} else {
			s = s.InnerJoin(j.Source.Entity, fn)
		}
	}

	if q.Where != nil {
		where, err := c.expr(q.Where)
		if err != nil {
			return nil, err
		}
		s = s.Where(func(t expr.Tables) expr.Expr { return where(t) })
	}

	for _, k := range q.OrderBy {
		key, err := c.sum(k.Value)
		if err != nil {
			return nil, err
		}
		fn := func(t expr.Tables) expr.Expr { return key(t) }
		if k.Desc {
			s = s.OrderByDesc(fn)
		} else {
			s = s.OrderBy(fn)
		}
	}

	if len(q.Select) > 0 {
		items := make([]func(expr.Tables) expr.Expr, len(q.Select))
		for i, item := range q.Select {
			v, err := c.expr(item.Value)
			if err != nil {
				return nil, err
			}
			alias := item.Alias
			items[i] = func(t expr.Tables) expr.Expr {
				if alias != "" {
					return v(t).As(alias)
				}
				return v(t)
			}
		}
		s = s.Select(func(t expr.Tables) expr.Expr {
			fields := make([]expr.Expr, len(items))
			for i, item := range items {
				fields[i] = item(t)
			}
			return expr.New(fields...)
		})
	}
	if q.Distinct {
		s = s.Distinct()
	}

	if q.Skip != nil {
		s = s.Skip(*q.Skip)
	}
	if q.Take != nil {
		s = s.Take(*q.Take)
	}
	return s, nil
}

// CompileString parses and compiles input.
func CompileString(db *fluent.DB, input string) (*fluent.Select, error) {
	q, err := ParseString(input)
	if err != nil {
		return nil, err
	}
	return Compile(db, q)
}

func (c *compiler) expr(e *Expr) (value, error) {
	terms := make([]value, len(e.Or))
	for i, conj := range e.Or {
		v, err := c.conjunction(conj)
		if err != nil {
			return nil, err
		}
		terms[i] = v
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return func(t expr.Tables) expr.Value {
		preds := make([]expr.Expr, len(terms))
		for i, term := range terms {
			preds[i] = term(t)
		}
		return expr.Or(preds...)
	}, nil
}

func (c *compiler) conjunction(conj *Conjunction) (value, error) {
	terms := make([]value, len(conj.And))
	for i, n := range conj.And {
		v, err := c.comparison(n.Comparison)
		if err != nil {
			return nil, err
		}
		if n.Not {
			inner := v
			v = func(t expr.Tables) expr.Value { return inner(t).Not() }
		}
		terms[i] = v
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return func(t expr.Tables) expr.Value {
		preds := make([]expr.Expr, len(terms))
		for i, term := range terms {
			preds[i] = term(t)
		}
		return expr.And(preds...)
	}, nil
}

func (c *compiler) comparison(cmp *Comparison) (value, error) {
	left, err := c.sum(cmp.Left)
	if err != nil {
		return nil, err
	}

	switch {
	case cmp.Op != "":
		right, err := c.sum(cmp.Right)
		if err != nil {
			return nil, err
		}
		op := comparisons[cmp.Op]
		return func(t expr.Tables) expr.Value { return op(left(t), right(t)) }, nil

	case cmp.Null != nil:
		if cmp.Null.Not {
			return func(t expr.Tables) expr.Value { return left(t).IsNotNull() }, nil
		}
		return func(t expr.Tables) expr.Value { return left(t).IsNull() }, nil

	case cmp.In != nil:
		values := make([]value, len(cmp.In.Values))
		for i, s := range cmp.In.Values {
			v, err := c.sum(s)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		not := cmp.In.Not
		return func(t expr.Tables) expr.Value {
			args := make([]any, len(values))
			for i, v := range values {
				args[i] = v(t)
			}
			if not {
				return left(t).NotIn(args...)
			}
			return left(t).In(args...)
		}, nil

	case cmp.Text != nil:
		arg, err := c.sum(cmp.Text.Arg)
		if err != nil {
			return nil, err
		}
		match := textMatches[cmp.Text.Method]
		return func(t expr.Tables) expr.Value { return match(left(t), arg(t)) }, nil
	}
	return left, nil
}

var comparisons = map[string]func(l, r expr.Value) expr.Value{
	"=":  func(l, r expr.Value) expr.Value { return l.Eq(r) },
	"!=": func(l, r expr.Value) expr.Value { return l.Ne(r) },
	"<>": func(l, r expr.Value) expr.Value { return l.Ne(r) },
	"<":  func(l, r expr.Value) expr.Value { return l.Lt(r) },
	"<=": func(l, r expr.Value) expr.Value { return l.Le(r) },
	">":  func(l, r expr.Value) expr.Value { return l.Gt(r) },
	">=": func(l, r expr.Value) expr.Value { return l.Ge(r) },
}

var textMatches = map[string]func(v, arg expr.Value) expr.Value{
	"contains":   func(v, arg expr.Value) expr.Value { return v.Contains(arg) },
	"startswith": func(v, arg expr.Value) expr.Value { return v.StartsWith(arg) },
	"endswith":   func(v, arg expr.Value) expr.Value { return v.EndsWith(arg) },
}

var arithmetic = map[string]func(l, r expr.Value) expr.Value{
	"+": func(l, r expr.Value) expr.Value { return l.Add(r) },
	"-": func(l, r expr.Value) expr.Value { return l.Sub(r) },
	"*": func(l, r expr.Value) expr.Value { return l.Mul(r) },
	"/": func(l, r expr.Value) expr.Value { return l.Div(r) },
	"%": func(l, r expr.Value) expr.Value { return l.Mod(r) },
}

func (c *compiler) sum(s *Sum) (value, error) {
	acc, err := c.term(s.Left)
	if err != nil {
		return nil, err
	}
	for _, step := range s.Rest {
		right, err := c.term(step.Term)
		if err != nil {
			return nil, err
		}
		acc = combine(acc, right, arithmetic[step.Op])
	}
	return acc, nil
}

func (c *compiler) term(tm *Term) (value, error) {
	acc, err := c.factor(tm.Left)
	if err != nil {
		return nil, err
	}
	for _, step := range tm.Rest {
		right, err := c.factor(step.Factor)
		if err != nil {
			return nil, err
		}
		acc = combine(acc, right, arithmetic[step.Op])
	}
	return acc, nil
}

func combine(left, right value, op func(l, r expr.Value) expr.Value) value {
	return func(t expr.Tables) expr.Value { return op(left(t), right(t)) }
}

func (c *compiler) factor(f *Factor) (value, error) {
	if f.Number != nil {
		n, err := number(*f.Number, f.Neg)
		if err != nil {
			return nil, &Error{Pos: f.Pos.String(), Message: err.Error()}
		}
		return constant(n), nil
	}
	v, err := c.operand(f)
	if err != nil || !f.Neg {
		return v, err
	}
	return func(t expr.Tables) expr.Value { return expr.V(0).Sub(v(t)) }, nil
}

func (c *compiler) operand(f *Factor) (value, error) {
	switch {
	case f.String != nil:
		return constant(unquote(*f.String)), nil
	case f.Bool != nil:
		return constant(*f.Bool == "true"), nil
	case f.Null:
		return constant(nil), nil
	case f.Ref != nil:
		return c.ref(f.Ref)
	case f.Group != nil:
		return c.expr(f.Group)
	}
	return nil, &Error{Pos: f.Pos.String(), Message: "empty operand"}
}

// ref resolves a dotted path. A leading alias (or entity name) selects the
// table; otherwise the path starts at the FROM table.
func (c *compiler) ref(p *Path) (value, error) {
	table, parts := 0, p.Parts
	for i, name := range c.sources {
		if name == parts[0] {
			table, parts = i, parts[1:]
			break
		}
	}
	if len(parts) == 0 {
		return nil, &Error{Pos: p.Pos.String(), Message: fmt.Sprintf("%s is a table, not a value", p)}
	}
	return func(t expr.Tables) expr.Value {
		v := t[table].F(parts[0])
		for _, member := range parts[1:] {
			v = v.F(member)
		}
		return v
	}, nil
}

func constant(v any) value {
	c := expr.V(v)
	return func(expr.Tables) expr.Value { return c }
}

func number(s string, neg bool) (any, error) {
	if strings.Contains(s, ".") {
		f, err := strconv.ParseFloat(s, 64)
		if neg {
			f = -f
		}
		return f, err
	}
	n, err := strconv.Atoi(s)
	if neg {
		n = -n
	}
	return n, err
}

func unquote(s string) string {
	return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
}
