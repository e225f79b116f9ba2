package translator

import (
	"strings"

	"github.com/satishbabariya/fluentsql/internal/core/query/domain"
	"github.com/satishbabariya/fluentsql/pkg/expr"
)

type methodSpec struct {
	fn        domain.FuncName
	args      int // -1 for variadic
	predicate bool
}

var methods = map[expr.Method]methodSpec{
	expr.MethodContains:   {fn: domain.FnContains, args: 1, predicate: true},
	expr.MethodStartsWith: {fn: domain.FnStartsWith, args: 1, predicate: true},
	expr.MethodEndsWith:   {fn: domain.FnEndsWith, args: 1, predicate: true},
	expr.MethodYear:       {fn: domain.FnYear},
	expr.MethodMonth:      {fn: domain.FnMonth},
	expr.MethodDay:        {fn: domain.FnDay},
	expr.MethodHour:       {fn: domain.FnHour},
	expr.MethodMinute:     {fn: domain.FnMinute},
	expr.MethodSecond:     {fn: domain.FnSecond},
	expr.MethodLower:      {fn: domain.FnLower},
	expr.MethodUpper:      {fn: domain.FnUpper},
	expr.MethodLen:        {fn: domain.FnLength},
	expr.MethodTrim:       {fn: domain.FnTrim},
	expr.MethodCoalesce:   {fn: domain.FnCoalesce, args: -1},
	expr.MethodIn:         {fn: domain.FnIn, args: -1, predicate: true},
	expr.MethodNotIn:      {fn: domain.FnNotIn, args: -1, predicate: true},
	expr.MethodIsNull:     {fn: domain.FnIsNull, predicate: true},
	expr.MethodIsNotNull:  {fn: domain.FnIsNotNull, predicate: true},
}

func isPredicateMethod(m expr.Method) bool {
	spec, ok := methods[m]
	return ok && spec.predicate
}

func (t *Translator) call(c expr.Call, s Scope, m mode) (domain.Node, error) {
	spec, ok := methods[c.Method]
	if !ok {
		return nil, fail(c, "method %s is not supported", c.Method)
	}
	if spec.args >= 0 && len(c.Args) != spec.args {
		return nil, fail(c, "%s takes %d argument(s), got %d", c.Method, spec.args, len(c.Args))
	}

	target, err := t.value(c.Target, s, m)
	if err != nil {
		return nil, err
	}

	// IN () matches nothing and NOT IN () matches everything.
	if len(c.Args) == 0 {
		switch spec.fn {
		case domain.FnIn:
			return domain.Compare{Op: domain.OpEq, Left: domain.Literal{SQL: "1"}, Right: domain.Literal{SQL: "0"}}, nil
		case domain.FnNotIn:
			return domain.Compare{Op: domain.OpEq, Left: domain.Literal{SQL: "1"}, Right: domain.Literal{SQL: "1"}}, nil
		case domain.FnCoalesce:
			return target, nil
		}
	}

	args := make([]domain.Node, 0, len(c.Args)+1)
	args = append(args, target)
	for _, a := range c.Args {
		n, err := t.value(a, s, m)
		if err != nil {
			return nil, err
		}
		args = append(args, n)
	}
	switch spec.fn {
	case domain.FnContains, domain.FnStartsWith, domain.FnEndsWith:
		if p, ok := args[1].(domain.Param); ok {
			if v, ok := p.Value.(string); ok {
				args[1] = domain.Param{Value: EscapeLike(v)}
			}
		}
	}
	return domain.Func{Name: spec.fn, Args: args}, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `[`, `\[`)

// EscapeLike escapes LIKE wildcards in s with a backslash so that it matches
// literally. SQL Server's [ ] character classes are escaped too.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}
