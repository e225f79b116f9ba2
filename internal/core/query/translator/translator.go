// Package translator lowers source expression trees into the query model's
// node tree, resolving members to columns and extracting values as parameters.
package translator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/satishbabariya/fluentsql/internal/core/query/domain"
	"github.com/satishbabariya/fluentsql/internal/core/schema"
	"github.com/satishbabariya/fluentsql/pkg/expr"
)

// Scope is the set of tables visible at a call site.
type Scope interface {
	// Table returns the table bound to the lambda parameter at index.
	Table(index int) (domain.TableRef, error)
	// Navigation returns the table joined for a one-to-one navigation of the
	// table at owner, joining it if needed.
	Navigation(owner int, member string) (domain.TableRef, error)
	// GroupKey returns the translated grouping key at index.
	GroupKey(index int) (domain.Node, error)
}

// Translator lowers expressions against a metadata registry.
type Translator struct {
	registry *schema.Registry
}

// New creates a translator.
func New(registry *schema.Registry) *Translator {
	return &Translator{registry: registry}
}

type mode struct {
	aggregates bool
}

var (
	whereMode = mode{}
	valueMode = mode{aggregates: true}
)

func fail(e expr.Expr, format string, args ...any) error {
	fragment := "<nil>"
	if e != nil {
		fragment = e.String()
	}
	return &domain.TranslationError{Fragment: fragment, Reason: fmt.Sprintf(format, args...)}
}

func failWith(e expr.Expr, cause error, reason string) error {
	var te *domain.TranslationError
	if errors.As(cause, &te) {
		return cause
	}
	return &domain.TranslationError{Fragment: e.String(), Reason: reason, Cause: cause}
}

// Predicate lowers a boolean expression used in WHERE or ON. Aggregates are
// rejected.
func (t *Translator) Predicate(e expr.Expr, s Scope) (domain.Node, error) {
	return t.predicate(e, s, whereMode)
}

// Having lowers a boolean expression over a group. Aggregates are allowed.
func (t *Translator) Having(e expr.Expr, s Scope) (domain.Node, error) {
	return t.predicate(e, s, valueMode)
}

// Scalar lowers a value expression.
func (t *Translator) Scalar(e expr.Expr, s Scope) (domain.Node, error) {
	return t.value(e, s, valueMode)
}

// Keys lowers ordering or grouping keys. A projection yields one key per field.
func (t *Translator) Keys(e expr.Expr, s Scope) ([]domain.Node, error) {
	e = expr.Unwrap(e)
	if e == nil {
		return nil, fail(e, "key expression is required")
	}
	var fields []expr.Expr
	if n, ok := e.(expr.NewExpr); ok {
		fields = n.Fields
	} else {
		fields = []expr.Expr{e}
	}
	keys := make([]domain.Node, 0, len(fields))
	for _, f := range fields {
		if named, ok := f.(expr.Field); ok {
			f = named.Value
		}
		n, err := t.value(f, s, valueMode)
		if err != nil {
			return nil, err
		}
		keys = append(keys, n)
	}
	return keys, nil
}

// Projection lowers a select expression into named output columns.
func (t *Translator) Projection(e expr.Expr, s Scope) (*domain.Projection, error) {
	e = expr.Unwrap(e)
	if e == nil {
		return nil, fail(e, "projection is required")
	}
	var fields []expr.Expr
	if n, ok := e.(expr.NewExpr); ok {
		fields = n.Fields
	} else {
		fields = []expr.Expr{e}
	}
	if len(fields) == 0 {
		return nil, fail(e, "projection is empty")
	}

	p := &domain.Projection{}
	for _, f := range fields {
		items, err := t.projectionItems(expr.Unwrap(f), s)
		if err != nil {
			return nil, err
		}
		p.Items = append(p.Items, items...)
	}
	return p, nil
}

func (t *Translator) projectionItems(f expr.Expr, s Scope) ([]domain.ProjectionItem, error) {
	switch v := f.(type) {
	case expr.Field:
		if v.Name == "" {
			return nil, fail(f, "projection field needs a name")
		}
		n, err := t.value(v.Value, s, valueMode)
		if err != nil {
			return nil, err
		}
		return []domain.ProjectionItem{{Name: v.Name, Node: n}}, nil
	case expr.Member:
		n, err := t.value(v, s, valueMode)
		if err != nil {
			return nil, err
		}
		return []domain.ProjectionItem{{Name: v.Path[len(v.Path)-1], Node: n}}, nil
	case expr.Table:
		return t.allColumns(v, s)
	case expr.Key:
		n, err := t.value(v, s, valueMode)
		if err != nil {
			return nil, err
		}
		name := "Key"
		if v.Index > 0 {
			name = fmt.Sprintf("Key%d", v.Index)
		}
		return []domain.ProjectionItem{{Name: name, Node: n}}, nil
	case nil:
		return nil, fail(f, "projection field is nil")
	}
	n, err := t.value(f, s, valueMode)
	if err != nil {
		return nil, err
	}
	return []domain.ProjectionItem{{Name: "Value", Node: n}}, nil
}

func (t *Translator) allColumns(tbl expr.Table, s Scope) ([]domain.ProjectionItem, error) {
	ref, err := s.Table(tbl.Index)
	if err != nil {
		return nil, failWith(tbl, err, "table is not in scope")
	}
	quoted := ref.Source == domain.SourceCte
	if ref.Entity == "" {
		items := make([]domain.ProjectionItem, len(ref.Columns))
		for i, c := range ref.Columns {
			items[i] = domain.ProjectionItem{Name: c, Node: domain.Column{Table: ref.Alias, Name: c, Member: c, Quoted: quoted}}
		}
		return items, nil
	}
	entity, err := t.registry.Entity(ref.Entity)
	if err != nil {
		return nil, failWith(tbl, err, "entity is not registered")
	}
	items := make([]domain.ProjectionItem, len(entity.Columns))
	for i, c := range entity.Columns {
		items[i] = domain.ProjectionItem{Name: c.Member, Node: domain.Column{Table: ref.Alias, Name: c.Name, Member: c.Member, Quoted: quoted}}
	}
	return items, nil
}

func (t *Translator) predicate(e expr.Expr, s Scope, m mode) (domain.Node, error) {
	e = expr.Unwrap(e)
	switch v := e.(type) {
	case nil:
		return nil, fail(e, "predicate is required")
	case expr.Binary:
		switch v.Op {
		case expr.OpAnd, expr.OpOr:
			left, err := t.predicate(v.Left, s, m)
			if err != nil {
				return nil, err
			}
			right, err := t.predicate(v.Right, s, m)
			if err != nil {
				return nil, err
			}
			if v.Op == expr.OpAnd {
				return domain.Conjoin(left, right), nil
			}
			return disjoin(left, right), nil
		case expr.OpEq, expr.OpNe, expr.OpGt, expr.OpGe, expr.OpLt, expr.OpLe:
			return t.compare(v, s, m)
		}
	case expr.Unary:
		if v.Op == expr.OpNot {
			operand, err := t.predicate(v.Operand, s, m)
			if err != nil {
				return nil, err
			}
			return domain.Not{Operand: operand}, nil
		}
	case expr.Const:
		b, ok := v.Value.(bool)
		if !ok {
			return nil, fail(e, "constant %T is not a predicate", v.Value)
		}
		right := "0"
		if b {
			right = "1"
		}
		return domain.Compare{Op: domain.OpEq, Left: domain.Literal{SQL: "1"}, Right: domain.Literal{SQL: right}}, nil
	case expr.Call:
		if isPredicateMethod(v.Method) {
			return t.value(v, s, m)
		}
	}

	n, err := t.value(e, s, m)
	if err != nil {
		return nil, err
	}
	if col, ok := n.(domain.Column); ok {
		return domain.Compare{Op: domain.OpEq, Left: col, Right: domain.Param{Value: true}}, nil
	}
	return nil, fail(e, "expression is not a predicate")
}

func disjoin(left, right domain.Node) domain.Node {
	var terms []domain.Node
	for _, n := range []domain.Node{left, right} {
		if o, ok := n.(domain.Or); ok {
			terms = append(terms, o.Terms...)
			continue
		}
		terms = append(terms, n)
	}
	return domain.Or{Terms: terms}
}

var compareOps = map[expr.Op]domain.CompareOp{
	expr.OpEq: domain.OpEq,
	expr.OpNe: domain.OpNe,
	expr.OpGt: domain.OpGt,
	expr.OpGe: domain.OpGe,
	expr.OpLt: domain.OpLt,
	expr.OpLe: domain.OpLe,
}

func (t *Translator) compare(b expr.Binary, s Scope, m mode) (domain.Node, error) {
	left, right := expr.Unwrap(b.Left), expr.Unwrap(b.Right)
	if isNil(left) {
		left, right = right, left
	}
	if isNil(right) {
		if isNil(left) {
			return nil, fail(b, "both operands are nil")
		}
		operand, err := t.value(left, s, m)
		if err != nil {
			return nil, err
		}
		switch b.Op {
		case expr.OpEq:
			return domain.Func{Name: domain.FnIsNull, Args: []domain.Node{operand}}, nil
		case expr.OpNe:
			return domain.Func{Name: domain.FnIsNotNull, Args: []domain.Node{operand}}, nil
		}
		return nil, fail(b, "operator %s cannot compare with nil", b.Op)
	}

	l, err := t.value(left, s, m)
	if err != nil {
		return nil, err
	}
	r, err := t.value(right, s, m)
	if err != nil {
		return nil, err
	}
	return domain.Compare{Op: compareOps[b.Op], Left: l, Right: r}, nil
}

func isNil(e expr.Expr) bool {
	c, ok := e.(expr.Const)
	return ok && nilValue(c.Value)
}

// nilValue reports an untyped nil or a nil pointer, map, slice or interface
// captured from a variable.
func nilValue(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

var arithOps = map[expr.Op]domain.ArithOp{
	expr.OpAdd: domain.OpAdd,
	expr.OpSub: domain.OpSub,
	expr.OpMul: domain.OpMul,
	expr.OpDiv: domain.OpDiv,
	expr.OpMod: domain.OpMod,
}

func (t *Translator) value(e expr.Expr, s Scope, m mode) (domain.Node, error) {
	e = expr.Unwrap(e)
	switch v := e.(type) {
	case nil:
		return nil, fail(e, "value is required")
	case expr.Member:
		return t.member(v, s)
	case expr.Const:
		if nilValue(v.Value) {
			return domain.Literal{SQL: "NULL"}, nil
		}
		if rv := reflect.ValueOf(v.Value); rv.Kind() == reflect.Ptr {
			return domain.Param{Value: rv.Elem().Interface()}, nil
		}
		return domain.Param{Value: v.Value}, nil
	case expr.Binary:
		if op, ok := arithOps[v.Op]; ok {
			left, err := t.value(v.Left, s, m)
			if err != nil {
				return nil, err
			}
			right, err := t.value(v.Right, s, m)
			if err != nil {
				return nil, err
			}
			return domain.Arith{Op: op, Left: left, Right: right}, nil
		}
		if _, ok := compareOps[v.Op]; ok || v.Op == expr.OpAnd || v.Op == expr.OpOr {
			return t.predicate(v, s, m)
		}
		return nil, fail(e, "unknown operator %s", v.Op)
	case expr.Unary:
		switch v.Op {
		case expr.OpNeg:
			operand, err := t.value(v.Operand, s, m)
			if err != nil {
				return nil, err
			}
			return domain.Arith{Op: domain.OpSub, Left: domain.Literal{SQL: "0"}, Right: operand}, nil
		case expr.OpNot:
			return t.predicate(v, s, m)
		}
		return nil, fail(e, "unknown operator %s", v.Op)
	case expr.Call:
		return t.call(v, s, m)
	case expr.Agg:
		if !m.aggregates {
			return nil, fail(e, "aggregates are not allowed here")
		}
		return t.aggregate(v, s)
	case expr.Key:
		n, err := s.GroupKey(v.Index)
		if err != nil {
			return nil, failWith(e, err, "grouping key is not available")
		}
		return n, nil
	case expr.Table:
		return nil, fail(e, "a table cannot be used as a value")
	case expr.Field, expr.NewExpr:
		return nil, fail(e, "projections are only allowed in Select")
	}
	return nil, fail(e, "unsupported expression %T", e)
}

func (t *Translator) member(m expr.Member, s Scope) (domain.Node, error) {
	if len(m.Path) == 0 {
		return nil, fail(m, "empty member path")
	}
	ref, err := s.Table(m.Table.Index)
	if err != nil {
		return nil, failWith(m, err, "table is not in scope")
	}

	for _, hop := range m.Path[:len(m.Path)-1] {
		if ref.Entity == "" || ref.Source != domain.SourceTable {
			return nil, fail(m, "cannot navigate through %s", ref.Alias)
		}
		entity, err := t.registry.Entity(ref.Entity)
		if err != nil {
			return nil, failWith(m, err, "entity is not registered")
		}
		nav, ok := entity.Navigation(hop)
		if !ok {
			return nil, fail(m, "%s has no navigation %s", entity.Name, hop)
		}
		if nav.Kind == schema.OneToMany {
			return nil, fail(m, "one-to-many navigation %s cannot be used in an expression", hop)
		}
		ref, err = s.Navigation(ref.Index, hop)
		if err != nil {
			return nil, failWith(m, err, "cannot join navigation "+hop)
		}
	}
	return t.column(m, ref, m.Path[len(m.Path)-1])
}

func (t *Translator) column(m expr.Member, ref domain.TableRef, member string) (domain.Node, error) {
	quoted := ref.Source == domain.SourceCte
	if ref.Source == domain.SourceTable || len(ref.Columns) == 0 {
		if ref.Entity == "" {
			return nil, fail(m, "%s has no known columns", ref.Alias)
		}
		entity, err := t.registry.Entity(ref.Entity)
		if err != nil {
			return nil, failWith(m, err, "entity is not registered")
		}
		col, err := entity.Column(member)
		if err != nil {
			if _, isNav := entity.Navigation(member); isNav {
				return nil, fail(m, "navigation %s is not a column", member)
			}
			return nil, failWith(m, err, "member is not mapped")
		}
		return domain.Column{Table: ref.Alias, Name: col.Name, Member: col.Member, Quoted: quoted}, nil
	}

	// Derived tables and CTEs output named columns: match the member first,
	// then the entity column it maps to.
	if name := containsFold(ref.Columns, member); name != "" {
		return domain.Column{Table: ref.Alias, Name: name, Member: member, Quoted: quoted}, nil
	}
	if ref.Entity != "" {
		if entity, err := t.registry.Entity(ref.Entity); err == nil {
			if col, err := entity.Column(member); err == nil {
				if name := containsFold(ref.Columns, col.Name); name != "" {
					return domain.Column{Table: ref.Alias, Name: name, Member: col.Member, Quoted: quoted}, nil
				}
			}
		}
	}
	return nil, fail(m, "%s does not output %s", ref.Alias, member)
}

func containsFold(names []string, name string) string {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return n
		}
	}
	return ""
}

func (t *Translator) aggregate(a expr.Agg, s Scope) (domain.Node, error) {
	var fn domain.AggFunc
	distinct := false
	switch a.Func {
	case expr.Count:
		fn = domain.AggCount
	case expr.CountDistinct:
		fn, distinct = domain.AggCount, true
	case expr.Sum:
		fn = domain.AggSum
	case expr.Avg:
		fn = domain.AggAvg
	case expr.Min:
		fn = domain.AggMin
	case expr.Max:
		fn = domain.AggMax
	default:
		return nil, fail(a, "unknown aggregate %s", a.Func)
	}
	if a.Arg == nil {
		if fn != domain.AggCount || distinct {
			return nil, fail(a, "%s needs an argument", a.Func)
		}
		return domain.Aggregate{Func: fn}, nil
	}
	arg, err := t.value(a.Arg, s, whereMode)
	if err != nil {
		return nil, err
	}
	return domain.Aggregate{Func: fn, Arg: arg, Distinct: distinct}, nil
}
