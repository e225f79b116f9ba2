// Package dsl parses the small textual query language used by the command
// line and compiles it to a fluent query:
//
//	from Order o join Customer c on o.CustomerId = c.Id
//	where o.Total > 100 and c.Name startswith 'A'
//	select o.Id, c.Name as Customer order by o.Id desc take 10
package dsl

import (
	"io"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Query is the parse tree of one statement.
type Query struct {
	Pos      lexer.Position
	From     *Source     `"from" @@`
	Includes []*Path     `( "include" @@ )*`
	Joins    []*Join     `@@*`
	Where    *Expr       `( "where" @@ )?`
	Distinct bool        `( "select" @"distinct"?`
	Select   []*Item     `  @@ ( "," @@ )* )?`
	OrderBy  []*OrderKey `( "order" "by" @@ ( "," @@ )* )?`
	Skip     *int        `( "skip" @Number )?`
	Take     *int        `( "take" @Number )?`
}

// Source names an entity and an optional alias.
type Source struct {
	Pos    lexer.Position
	Entity string `@Ident`
	Alias  string `@Ident?`
}

// Name is the alias, or the entity name when there is none.
func (s *Source) Name() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Entity
}

// Path is a dotted member path.
type Path struct {
	Pos   lexer.Position
	Parts []string `@Ident ( "." @Ident )*`
}

func (p *Path) String() string { return strings.Join(p.Parts, ".") }

// Join is an explicit join clause.
type Join struct {
	Pos    lexer.Position
	Kind   string  `@( "left" | "inner" )?`
	Source *Source `"join" @@`
	On     *Expr   `"on" @@`
}

// Expr is a disjunction.
type Expr struct {
	Pos lexer.Position
	Or  []*Conjunction `@@ ( "or" @@ )*`
}

// Conjunction is a list of and-ed terms.
type Conjunction struct {
	And []*Negation `@@ ( "and" @@ )*`
}

// Negation is an optionally negated comparison.
type Negation struct {
	Not        bool        `@"not"?`
	Comparison *Comparison `@@`
}

// Comparison is an arithmetic operand with an optional test applied to it.
type Comparison struct {
	Pos   lexer.Position
	Left  *Sum       `@@`
	Op    string     `( @( "=" | "!=" | "<>" | "<=" | ">=" | "<" | ">" )`
	Right *Sum       `  @@`
	Null  *NullTest  `| "is" @@`
	In    *InList    `| @@`
	Text  *TextMatch `| @@ )?`
}

// NullTest is IS [NOT] NULL.
type NullTest struct {
	Not bool `@"not"? "null"`
}

// InList is [NOT] IN (v, ...).
type InList struct {
	Not    bool   `@"not"? "in"`
	Values []*Sum `"(" ( @@ ( "," @@ )* )? ")"`
}

// TextMatch is a string pattern test.
type TextMatch struct {
	Method string `@( "contains" | "startswith" | "endswith" )`
	Arg    *Sum   `@@`
}

// Sum is additive arithmetic.
type Sum struct {
	Left *Term         `@@`
	Rest []*SumOperand `@@*`
}

// SumOperand is one "+ term" or "- term" step.
type SumOperand struct {
	Op   string `@( "+" | "-" )`
	Term *Term  `@@`
}

// Term is multiplicative arithmetic.
type Term struct {
	Left *Factor        `@@`
	Rest []*TermOperand `@@*`
}

// TermOperand is one "* factor" step.
type TermOperand struct {
	Op     string  `@( "*" | "/" | "%" )`
	Factor *Factor `@@`
}

// Factor is a literal, a member reference or a parenthesized expression.
type Factor struct {
	Pos    lexer.Position
	Neg    bool    `@"-"?`
	Number *string `(  @Number`
	String *string `| @String`
	Bool   *string `| @( "true" | "false" )`
	Null   bool    `| @"null"`
	Ref    *Path   `| @@`
	Group  *Expr   `| "(" @@ ")" )`
}

// Item is one projected value.
type Item struct {
	Value *Expr  `@@`
	Alias string `( "as" @Ident )?`
}

// OrderKey is one ordering key.
type OrderKey struct {
	Value *Sum `@@`
	Desc  bool `( @"desc" | "asc" )?`
}

var parser = participle.MustBuild[Query](
	participle.Lexer(QueryLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(4),
)

// Parse parses one statement from r.
func Parse(filename string, r io.Reader) (*Query, error) {
	return parser.Parse(filename, r)
}

// ParseString parses one statement.
func ParseString(input string) (*Query, error) {
	return parser.ParseString("", input)
}
