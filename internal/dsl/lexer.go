package dsl

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// QueryLexer tokenizes the query language. Keywords are lower case so that
// entity names such as Order stay identifiers.
var QueryLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Keyword", Pattern: `\b(from|include|join|left|inner|on|where|select|distinct|order|by|asc|desc|skip|take|and|or|not|is|null|in|as|true|false|contains|startswith|endswith)\b`},

	{Name: "String", Pattern: `'(?:''|[^'])*'`},
	{Name: "Number", Pattern: `\d+(?:\.\d+)?`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},

	{Name: "Operator", Pattern: `<>|!=|<=|>=|=|<|>|\+|-|\*|/|%`},
	{Name: "Punct", Pattern: `[(),.]`},

	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})
