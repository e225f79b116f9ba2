package dialect

import (
	"strconv"

	"github.com/satishbabariya/fluentsql/internal/core/query/domain"
)

// SQLServer renders Microsoft SQL Server.
type SQLServer struct{}

var _ Dialect = SQLServer{}

// Name returns the provider name.
func (SQLServer) Name() string { return "sqlserver" }

// QuoteIdentifier quotes with square brackets.
func (SQLServer) QuoteIdentifier(name string) string { return quoteWith(name, "[", "]") }

// Placeholder returns @pN.
func (SQLServer) Placeholder(index int) string { return "@p" + strconv.Itoa(index) }

// Capabilities returns the supported features. Recursion needs no keyword.
func (SQLServer) Capabilities() Capabilities {
	return Capabilities{RecursiveCTE: true}
}

// WriteTop writes TOP (n) when only Take is set.
func (SQLServer) WriteTop(w Writer, p domain.Pagination) {
	if p.Take != nil && p.Skip == nil {
		w.WriteString("TOP (" + w.Bind(*p.Take) + ") ")
	}
}

// WritePagination writes OFFSET/FETCH when Skip is set. OFFSET requires an
// ORDER BY, so an unordered query gets ORDER BY (SELECT NULL).
func (SQLServer) WritePagination(w Writer, p domain.Pagination, ordered bool) {
	if p.Skip == nil {
		return
	}
	if !ordered {
		w.WriteString(" ORDER BY (SELECT NULL)")
	}
	w.WriteString(" OFFSET " + w.Bind(*p.Skip) + " ROWS")
	if p.Take != nil {
		w.WriteString(" FETCH NEXT " + w.Bind(*p.Take) + " ROWS ONLY")
	}
}

var sqlserverParts = map[domain.FuncName]string{
	domain.FnYear:   "year",
	domain.FnMonth:  "month",
	domain.FnDay:    "day",
	domain.FnHour:   "hour",
	domain.FnMinute: "minute",
	domain.FnSecond: "second",
}

// Function renders a function.
func (d SQLServer) Function(fn domain.FuncName, args []string) (string, error) {
	if part, ok := sqlserverParts[fn]; ok {
		return "DATEPART(" + part + ", " + args[0] + ")", nil
	}
	switch fn {
	case domain.FnContains:
		return args[0] + " LIKE '%' + " + args[1] + " + '%'" + likeEscape, nil
	case domain.FnStartsWith:
		return args[0] + " LIKE " + args[1] + " + '%'" + likeEscape, nil
	case domain.FnEndsWith:
		return args[0] + " LIKE '%' + " + args[1] + likeEscape, nil
	case domain.FnLength:
		return "LEN(" + args[0] + ")", nil
	case domain.FnTrim:
		return "LTRIM(RTRIM(" + args[0] + "))", nil
	}
	if s, ok := commonFunction(fn, args); ok {
		return s, nil
	}
	return "", unsupported(d, fn)
}
