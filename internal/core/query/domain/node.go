package domain

// Node is an element of the intermediate predicate/value tree produced by the
// translator. Nodes are immutable once built.
type Node interface {
	node()
}

// CompareOp is a binary comparison operator.
type CompareOp string

// Comparison operators.
const (
	OpEq CompareOp = "="
	OpNe CompareOp = "<>"
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
)

// ArithOp is an arithmetic operator.
type ArithOp string

// Arithmetic operators.
const (
	OpAdd ArithOp = "+"
	OpSub ArithOp = "-"
	OpMul ArithOp = "*"
	OpDiv ArithOp = "/"
	OpMod ArithOp = "%"
)

// FuncName identifies a dialect-neutral function.
type FuncName string

// Functions lowered from member calls.
const (
	FnYear       FuncName = "year"
	FnMonth      FuncName = "month"
	FnDay        FuncName = "day"
	FnHour       FuncName = "hour"
	FnMinute     FuncName = "minute"
	FnSecond     FuncName = "second"
	FnContains   FuncName = "contains"
	FnStartsWith FuncName = "startswith"
	FnEndsWith   FuncName = "endswith"
	FnLower      FuncName = "lower"
	FnUpper      FuncName = "upper"
	FnLength     FuncName = "length"
	FnTrim       FuncName = "trim"
	FnCoalesce   FuncName = "coalesce"
	FnIn         FuncName = "in"
	FnNotIn      FuncName = "notin"
	FnIsNull     FuncName = "isnull"
	FnIsNotNull  FuncName = "isnotnull"
)

// AggFunc is an aggregate function.
type AggFunc string

// Aggregate functions.
const (
	AggCount AggFunc = "COUNT"
	AggSum   AggFunc = "SUM"
	AggAvg   AggFunc = "AVG"
	AggMin   AggFunc = "MIN"
	AggMax   AggFunc = "MAX"
)

// Column references alias.column.
type Column struct {
	Table  string
	Name   string
	Member string
	// Quoted marks aliases that need identifier quoting (CTE names).
	Quoted bool
}

// Param is a value bound as a statement parameter.
type Param struct {
	Value any
}

// Literal is a structural SQL token such as NULL, * or 1. It never carries
// user data.
type Literal struct {
	SQL string
}

// Compare is a binary comparison.
type Compare struct {
	Op          CompareOp
	Left, Right Node
}

// And is an n-ary conjunction.
type And struct {
	Terms []Node
}

// Or is an n-ary disjunction.
type Or struct {
	Terms []Node
}

// Not negates its operand.
type Not struct {
	Operand Node
}

// Arith is a binary arithmetic expression.
type Arith struct {
	Op          ArithOp
	Left, Right Node
}

// Func is a dialect-neutral function call.
type Func struct {
	Name FuncName
	Args []Node
}

// Aggregate is an aggregate call. A nil Arg means COUNT(*).
type Aggregate struct {
	Func     AggFunc
	Arg      Node
	Distinct bool
}

func (Column) node()    {}
func (Param) node()     {}
func (Literal) node()   {}
func (Compare) node()   {}
func (And) node()       {}
func (Or) node()        {}
func (Not) node()       {}
func (Arith) node()     {}
func (Func) node()      {}
func (Aggregate) node() {}

// Conjoin returns left AND right, flattening existing conjunctions so that
// chained appends and a single compound predicate build the same tree.
func Conjoin(left, right Node) Node {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	var terms []Node
	terms = appendTerms(terms, left)
	terms = appendTerms(terms, right)
	return And{Terms: terms}
}

func appendTerms(terms []Node, n Node) []Node {
	if a, ok := n.(And); ok {
		return append(terms, a.Terms...)
	}
	return append(terms, n)
}

// ContainsAggregate reports whether n has an aggregate anywhere in its tree.
func ContainsAggregate(n Node) bool {
	found := false
	Walk(n, func(n Node) bool {
		if _, ok := n.(Aggregate); ok {
			found = true
		}
		return !found
	})
	return found
}

// Walk visits n and its children depth first until fn returns false.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch v := n.(type) {
	case Compare:
		Walk(v.Left, fn)
		Walk(v.Right, fn)
	case And:
		for _, t := range v.Terms {
			Walk(t, fn)
		}
	case Or:
		for _, t := range v.Terms {
			Walk(t, fn)
		}
	case Not:
		Walk(v.Operand, fn)
	case Arith:
		Walk(v.Left, fn)
		Walk(v.Right, fn)
	case Func:
		for _, a := range v.Args {
			Walk(a, fn)
		}
	case Aggregate:
		Walk(v.Arg, fn)
	}
}
