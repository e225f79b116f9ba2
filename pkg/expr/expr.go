// Package expr builds source expression trees for the fluent query surface.
//
// Query callbacks receive one Table per table in scope and return an Expr:
//
//	func(t expr.Tables) expr.Expr {
//		return t[0].F("Id").Gt(minID).And(t[1].F("Name").StartsWith("A"))
//	}
//
// Values that are not expressions (minID, "A") become parameters when the
// tree is translated; they never appear in SQL text.
package expr

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Expr is a node of a source expression tree.
type Expr interface {
	fmt.Stringer
	expr()
}

// Op is a binary or unary operator.
type Op string

// Operators.
const (
	OpEq  Op = "=="
	OpNe  Op = "!="
	OpGt  Op = ">"
	OpGe  Op = ">="
	OpLt  Op = "<"
	OpLe  Op = "<="
	OpAnd Op = "&&"
	OpOr  Op = "||"
	OpAdd Op = "+"
	OpSub Op = "-"
	OpMul Op = "*"
	OpDiv Op = "/"
	OpMod Op = "%"
	OpNot Op = "!"
	OpNeg Op = "neg"
)

// Method is a member call lowered to a SQL function.
type Method string

// Supported methods.
const (
	MethodContains   Method = "Contains"
	MethodStartsWith Method = "StartsWith"
	MethodEndsWith   Method = "EndsWith"
	MethodYear       Method = "Year"
	MethodMonth      Method = "Month"
	MethodDay        Method = "Day"
	MethodHour       Method = "Hour"
	MethodMinute     Method = "Minute"
	MethodSecond     Method = "Second"
	MethodLower      Method = "ToLower"
	MethodUpper      Method = "ToUpper"
	MethodLen        Method = "Len"
	MethodTrim       Method = "Trim"
	MethodIn         Method = "In"
	MethodNotIn      Method = "NotIn"
	MethodIsNull     Method = "IsNull"
	MethodIsNotNull  Method = "IsNotNull"
	MethodCoalesce   Method = "Coalesce"
)

// AggFunc is an aggregate helper function.
type AggFunc string

// Aggregate functions.
const (
	Count         AggFunc = "Count"
	CountDistinct AggFunc = "CountDistinct"
	Sum           AggFunc = "Sum"
	Avg           AggFunc = "Avg"
	Min           AggFunc = "Min"
	Max           AggFunc = "Max"
)

// Table is the lambda parameter bound to the table at Index.
type Table struct {
	Index int
	Name  string
}

// Tables are the lambda parameters of a query callback, in join order.
type Tables []Table

// Member is a member access, possibly through navigations (Customer.Name).
type Member struct {
	Table Table
	Path  []string
}

// Const is a literal or captured value.
type Const struct {
	Value any
}

// Binary is a binary operation.
type Binary struct {
	Op          Op
	Left, Right Expr
}

// Unary is a unary operation.
type Unary struct {
	Op      Op
	Operand Expr
}

// Call is a method call on Target.
type Call struct {
	Method Method
	Target Expr
	Args   []Expr
}

// Agg is an aggregate over a group. A nil Arg counts rows.
type Agg struct {
	Func AggFunc
	Arg  Expr
}

// Key refers to the Index-th grouping key.
type Key struct {
	Index int
}

// Field is a named projection member.
type Field struct {
	Name  string
	Value Expr
}

// NewExpr is an ordered projection of named fields.
type NewExpr struct {
	Fields []Expr
}

// Value wraps an expression with the operator methods. Every constructor in
// this package returns a Value so calls can be chained.
type Value struct {
	Expr
}

func (Table) expr()   {}
func (Member) expr()  {}
func (Const) expr()   {}
func (Binary) expr()  {}
func (Unary) expr()   {}
func (Call) expr()    {}
func (Agg) expr()     {}
func (Key) expr()     {}
func (Field) expr()   {}
func (NewExpr) expr() {}

// F accesses a member of the table.
func (t Table) F(member string) Value {
	return Value{Member{Table: t, Path: []string{member}}}
}

func (t Table) String() string {
	if t.Name != "" {
		return t.Name
	}
	return "t" + strconv.Itoa(t.Index)
}

func (m Member) String() string {
	return m.Table.String() + "." + strings.Join(m.Path, ".")
}

func (c Const) String() string {
	switch v := c.Value.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(v)
	}
	return fmt.Sprintf("%v", c.Value)
}

func (b Binary) String() string {
	return "(" + str(b.Left) + " " + string(b.Op) + " " + str(b.Right) + ")"
}

func (u Unary) String() string {
	if u.Op == OpNeg {
		return "-" + str(u.Operand)
	}
	return "!" + str(u.Operand)
}

func (c Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = str(a)
	}
	return str(c.Target) + "." + string(c.Method) + "(" + strings.Join(args, ", ") + ")"
}

func (a Agg) String() string {
	if a.Arg == nil {
		return string(a.Func) + "()"
	}
	return string(a.Func) + "(" + str(a.Arg) + ")"
}

func (k Key) String() string {
	return "g.Key(" + strconv.Itoa(k.Index) + ")"
}

func (f Field) String() string {
	return f.Name + " = " + str(f.Value)
}

func (n NewExpr) String() string {
	fields := make([]string, len(n.Fields))
	for i, f := range n.Fields {
		fields[i] = str(f)
	}
	return "new { " + strings.Join(fields, ", ") + " }"
}

func str(e Expr) string {
	if e == nil {
		return "<nil>"
	}
	return e.String()
}

func (v Value) String() string {
	return str(v.Expr)
}

// Unwrap strips Value wrappers.
func Unwrap(e Expr) Expr {
	for {
		v, ok := e.(Value)
		if !ok {
			return e
		}
		e = v.Expr
	}
}

// V wraps a value as an expression. Expressions are returned unchanged.
func V(v any) Value {
	switch x := v.(type) {
	case Value:
		return x
	case Expr:
		return Value{x}
	}
	return Value{Const{Value: v}}
}

func operand(v any) Expr {
	return Unwrap(V(v))
}

// F extends a member path through a navigation: t[0].F("Customer").F("Name").
// Calling F on anything other than a member yields an expression the
// translator rejects.
func (v Value) F(member string) Value {
	if m, ok := Unwrap(v).(Member); ok {
		path := append(append([]string(nil), m.Path...), member)
		return Value{Member{Table: m.Table, Path: path}}
	}
	return Value{Call{Method: Method("F"), Target: v.Expr, Args: []Expr{Const{Value: member}}}}
}

func (v Value) binary(op Op, other any) Value {
	return Value{Binary{Op: op, Left: Unwrap(v), Right: operand(other)}}
}

func (v Value) call(m Method, args ...any) Value {
	exprs := make([]Expr, len(args))
	for i, a := range args {
		exprs[i] = operand(a)
	}
	return Value{Call{Method: m, Target: Unwrap(v), Args: exprs}}
}

// Eq is v == other. Comparing with nil lowers to IS NULL.
func (v Value) Eq(other any) Value { return v.binary(OpEq, other) }

// Ne is v != other. Comparing with nil lowers to IS NOT NULL.
func (v Value) Ne(other any) Value { return v.binary(OpNe, other) }

// Gt is v > other.
func (v Value) Gt(other any) Value { return v.binary(OpGt, other) }

// Ge is v >= other.
func (v Value) Ge(other any) Value { return v.binary(OpGe, other) }

// Lt is v < other.
func (v Value) Lt(other any) Value { return v.binary(OpLt, other) }

// Le is v <= other.
func (v Value) Le(other any) Value { return v.binary(OpLe, other) }

// And is v && other.
func (v Value) And(other any) Value { return v.binary(OpAnd, other) }

// Or is v || other.
func (v Value) Or(other any) Value { return v.binary(OpOr, other) }

// Not is !v.
func (v Value) Not() Value { return Value{Unary{Op: OpNot, Operand: Unwrap(v)}} }

// Add is v + other.
func (v Value) Add(other any) Value { return v.binary(OpAdd, other) }

// Sub is v - other.
func (v Value) Sub(other any) Value { return v.binary(OpSub, other) }

// Mul is v * other.
func (v Value) Mul(other any) Value { return v.binary(OpMul, other) }

// Div is v / other.
func (v Value) Div(other any) Value { return v.binary(OpDiv, other) }

// Mod is v % other.
func (v Value) Mod(other any) Value { return v.binary(OpMod, other) }

// Contains matches strings containing s.
func (v Value) Contains(s any) Value { return v.call(MethodContains, s) }

// StartsWith matches strings with prefix s.
func (v Value) StartsWith(s any) Value { return v.call(MethodStartsWith, s) }

// EndsWith matches strings with suffix s.
func (v Value) EndsWith(s any) Value { return v.call(MethodEndsWith, s) }

// Year extracts the year of a date.
func (v Value) Year() Value { return v.call(MethodYear) }

// Month extracts the month of a date.
func (v Value) Month() Value { return v.call(MethodMonth) }

// Day extracts the day of month of a date.
func (v Value) Day() Value { return v.call(MethodDay) }

// Hour extracts the hour of a timestamp.
func (v Value) Hour() Value { return v.call(MethodHour) }

// Minute extracts the minute of a timestamp.
func (v Value) Minute() Value { return v.call(MethodMinute) }

// Second extracts the second of a timestamp.
func (v Value) Second() Value { return v.call(MethodSecond) }

// ToLower lowercases a string.
func (v Value) ToLower() Value { return v.call(MethodLower) }

// ToUpper uppercases a string.
func (v Value) ToUpper() Value { return v.call(MethodUpper) }

// Len is the length of a string.
func (v Value) Len() Value { return v.call(MethodLen) }

// Trim strips surrounding whitespace.
func (v Value) Trim() Value { return v.call(MethodTrim) }

// IsNull matches NULL.
func (v Value) IsNull() Value { return v.call(MethodIsNull) }

// IsNotNull matches non-NULL.
func (v Value) IsNotNull() Value { return v.call(MethodIsNotNull) }

// In matches any of values. A single slice argument is expanded.
func (v Value) In(values ...any) Value { return v.call(MethodIn, expand(values)...) }

// NotIn matches none of values. A single slice argument is expanded.
func (v Value) NotIn(values ...any) Value { return v.call(MethodNotIn, expand(values)...) }

// Coalesce returns the first non-NULL of v and fallbacks.
func (v Value) Coalesce(fallbacks ...any) Value { return v.call(MethodCoalesce, fallbacks...) }

// As names the value in a projection.
func (v Value) As(name string) Field {
	return Field{Name: name, Value: Unwrap(v)}
}

func expand(values []any) []any {
	if len(values) != 1 {
		return values
	}
	rv := reflect.ValueOf(values[0])
	if !rv.IsValid() || rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return values
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// And joins predicates with &&.
func And(preds ...Expr) Value {
	return fold(OpAnd, preds)
}

// Or joins predicates with ||.
func Or(preds ...Expr) Value {
	return fold(OpOr, preds)
}

func fold(op Op, preds []Expr) Value {
	if len(preds) == 0 {
		return Value{}
	}
	acc := Unwrap(preds[0])
	for _, p := range preds[1:] {
		acc = Binary{Op: op, Left: acc, Right: Unwrap(p)}
	}
	return Value{acc}
}

// Not negates a predicate.
func Not(pred Expr) Value {
	return Value{Unary{Op: OpNot, Operand: Unwrap(pred)}}
}

// New builds a projection. Members are named after their last path element;
// other values must be named with As.
func New(fields ...Expr) NewExpr {
	out := make([]Expr, len(fields))
	for i, f := range fields {
		out[i] = Unwrap(f)
	}
	return NewExpr{Fields: out}
}

// Group is the aggregate helper passed to grouped query callbacks.
type Group struct {
	Tables Tables
	Keys   int
}

// Key returns the grouping key at index i (0 when omitted).
func (g Group) Key(i ...int) Value {
	idx := 0
	if len(i) > 0 {
		idx = i[0]
	}
	return Value{Key{Index: idx}}
}

// Count counts rows in the group.
func (g Group) Count() Value { return Value{Agg{Func: Count}} }

// CountDistinct counts distinct values of e.
func (g Group) CountDistinct(e Expr) Value { return Value{Agg{Func: CountDistinct, Arg: Unwrap(e)}} }

// Sum sums e over the group.
func (g Group) Sum(e Expr) Value { return Value{Agg{Func: Sum, Arg: Unwrap(e)}} }

// Avg averages e over the group.
func (g Group) Avg(e Expr) Value { return Value{Agg{Func: Avg, Arg: Unwrap(e)}} }

// Min is the minimum of e over the group.
func (g Group) Min(e Expr) Value { return Value{Agg{Func: Min, Arg: Unwrap(e)}} }

// Max is the maximum of e over the group.
func (g Group) Max(e Expr) Value { return Value{Agg{Func: Max, Arg: Unwrap(e)}} }
