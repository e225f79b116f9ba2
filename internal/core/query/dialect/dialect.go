// Package dialect renders the provider-specific parts of SQL: identifier
// quoting, placeholders, pagination and functions.
package dialect

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/fluentsql/internal/core/query/domain"
)

// Writer receives SQL text and binds parameters.
type Writer interface {
	WriteString(s string)
	// Bind appends value to the parameter list and returns its placeholder.
	Bind(value any) string
}

// Capabilities are the optional features of a dialect.
type Capabilities struct {
	RecursiveCTE bool
	// RecursiveKeyword is true when recursive CTEs need WITH RECURSIVE.
	RecursiveKeyword bool
}

// Dialect is the rendering strategy of one database provider.
type Dialect interface {
	Name() string
	QuoteIdentifier(name string) string
	// Placeholder returns the placeholder of the 1-based parameter index.
	Placeholder(index int) string
	Capabilities() Capabilities
	// WriteTop writes a row limit that precedes the select list.
	WriteTop(w Writer, p domain.Pagination)
	// WritePagination writes the trailing row limit and offset.
	WritePagination(w Writer, p domain.Pagination, ordered bool)
	// Function renders fn over already rendered arguments.
	Function(fn domain.FuncName, args []string) (string, error)
}

// New creates the dialect for a provider name.
func New(provider string) (Dialect, error) {
	switch strings.ToLower(provider) {
	case "postgresql", "postgres", "pgx":
		return Postgres{}, nil
	case "mysql":
		return NewMySQL("")
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	case "sqlserver", "mssql":
		return SQLServer{}, nil
	}
	return nil, fmt.Errorf("unsupported provider: %s", provider)
}

func quoteWith(name, open, close string) string {
	return open + strings.ReplaceAll(name, close, close+close) + close
}

func unsupported(d Dialect, fn domain.FuncName) error {
	return &domain.RenderError{Dialect: d.Name(), Construct: "function " + string(fn), Reason: "not supported"}
}

// commonFunction renders the functions every dialect spells the same way.
func commonFunction(fn domain.FuncName, args []string) (string, bool) {
	switch fn {
	case domain.FnLower:
		return "LOWER(" + args[0] + ")", true
	case domain.FnUpper:
		return "UPPER(" + args[0] + ")", true
	case domain.FnTrim:
		return "TRIM(" + args[0] + ")", true
	case domain.FnCoalesce:
		return "COALESCE(" + strings.Join(args, ", ") + ")", true
	case domain.FnIn:
		return args[0] + " IN (" + strings.Join(args[1:], ", ") + ")", true
	case domain.FnNotIn:
		return args[0] + " NOT IN (" + strings.Join(args[1:], ", ") + ")", true
	case domain.FnIsNull:
		return args[0] + " IS NULL", true
	case domain.FnIsNotNull:
		return args[0] + " IS NOT NULL", true
	}
	return "", false
}

// likeEscape declares the backslash as LIKE escape character. Pattern values
// are escaped with it by the translator.
const likeEscape = ` ESCAPE '\'`

// likeConcat renders LIKE patterns with the || operator.
func likeConcat(fn domain.FuncName, args []string) (string, bool) {
	switch fn {
	case domain.FnContains:
		return args[0] + " LIKE '%' || " + args[1] + " || '%'" + likeEscape, true
	case domain.FnStartsWith:
		return args[0] + " LIKE " + args[1] + " || '%'" + likeEscape, true
	case domain.FnEndsWith:
		return args[0] + " LIKE '%' || " + args[1] + likeEscape, true
	}
	return "", false
}

func writeLimitOffset(w Writer, p domain.Pagination, noLimit string) {
	switch {
	case p.Take != nil:
		w.WriteString(" LIMIT " + w.Bind(*p.Take))
	case p.Skip != nil && noLimit != "":
		w.WriteString(" LIMIT " + noLimit)
	}
	if p.Skip != nil {
		w.WriteString(" OFFSET " + w.Bind(*p.Skip))
	}
}
