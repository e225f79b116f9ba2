package dialect

import (
	"strconv"

	"github.com/satishbabariya/fluentsql/internal/core/query/domain"
)

// Postgres renders PostgreSQL.
type Postgres struct{}

var _ Dialect = Postgres{}

// Name returns the provider name.
func (Postgres) Name() string { return "postgres" }

// QuoteIdentifier quotes with double quotes.
func (Postgres) QuoteIdentifier(name string) string { return quoteWith(name, `"`, `"`) }

// Placeholder returns $n.
func (Postgres) Placeholder(index int) string { return "$" + strconv.Itoa(index) }

// Capabilities returns the supported features.
func (Postgres) Capabilities() Capabilities {
	return Capabilities{RecursiveCTE: true, RecursiveKeyword: true}
}

// WriteTop is a no-op.
func (Postgres) WriteTop(Writer, domain.Pagination) {}

// WritePagination writes LIMIT/OFFSET.
func (Postgres) WritePagination(w Writer, p domain.Pagination, _ bool) {
	writeLimitOffset(w, p, "")
}

var postgresParts = map[domain.FuncName]string{
	domain.FnYear:   "YEAR",
	domain.FnMonth:  "MONTH",
	domain.FnDay:    "DAY",
	domain.FnHour:   "HOUR",
	domain.FnMinute: "MINUTE",
	domain.FnSecond: "SECOND",
}

// Function renders a function.
func (d Postgres) Function(fn domain.FuncName, args []string) (string, error) {
	if s, ok := commonFunction(fn, args); ok {
		return s, nil
	}
	if s, ok := likeConcat(fn, args); ok {
		return s, nil
	}
	if part, ok := postgresParts[fn]; ok {
		return "EXTRACT(" + part + " FROM " + args[0] + ")", nil
	}
	if fn == domain.FnLength {
		return "LENGTH(" + args[0] + ")", nil
	}
	return "", unsupported(d, fn)
}
