package dialect

import (
	"github.com/satishbabariya/fluentsql/internal/core/query/domain"
)

// SQLite renders SQLite.
type SQLite struct{}

var _ Dialect = SQLite{}

// Name returns the provider name.
func (SQLite) Name() string { return "sqlite" }

// QuoteIdentifier quotes with double quotes.
func (SQLite) QuoteIdentifier(name string) string { return quoteWith(name, `"`, `"`) }

// Placeholder returns ?.
func (SQLite) Placeholder(int) string { return "?" }

// Capabilities returns the supported features.
func (SQLite) Capabilities() Capabilities {
	return Capabilities{RecursiveCTE: true, RecursiveKeyword: true}
}

// WriteTop is a no-op.
func (SQLite) WriteTop(Writer, domain.Pagination) {}

// WritePagination writes LIMIT/OFFSET; an offset alone needs LIMIT -1.
func (SQLite) WritePagination(w Writer, p domain.Pagination, _ bool) {
	writeLimitOffset(w, p, "-1")
}

var sqliteParts = map[domain.FuncName]string{
	domain.FnYear:   "%Y",
	domain.FnMonth:  "%m",
	domain.FnDay:    "%d",
	domain.FnHour:   "%H",
	domain.FnMinute: "%M",
	domain.FnSecond: "%S",
}

// Function renders a function.
func (d SQLite) Function(fn domain.FuncName, args []string) (string, error) {
	if s, ok := commonFunction(fn, args); ok {
		return s, nil
	}
	if s, ok := likeConcat(fn, args); ok {
		return s, nil
	}
	if format, ok := sqliteParts[fn]; ok {
		return "CAST(strftime('" + format + "', " + args[0] + ") AS INTEGER)", nil
	}
	if fn == domain.FnLength {
		return "LENGTH(" + args[0] + ")", nil
	}
	return "", unsupported(d, fn)
}
