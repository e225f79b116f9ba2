package dialect

import (
	"fmt"

	"github.com/hashicorp/go-version"

	"github.com/satishbabariya/fluentsql/internal/core/query/domain"
)

// DefaultMySQLVersion is assumed when no server version is configured.
const DefaultMySQLVersion = "8.0"

var recursiveCTESince = version.Must(version.NewVersion("8.0"))

// MySQL renders MySQL. Recursive CTEs depend on the server version.
type MySQL struct {
	version *version.Version
}

var _ Dialect = (*MySQL)(nil)

// NewMySQL creates a MySQL dialect for a server version such as "5.7.44" or
// "8.0.36". An empty version means DefaultMySQLVersion.
func NewMySQL(serverVersion string) (*MySQL, error) {
	if serverVersion == "" {
		serverVersion = DefaultMySQLVersion
	}
	v, err := version.NewVersion(serverVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql version %q: %w", serverVersion, err)
	}
	return &MySQL{version: v}, nil
}

// Name returns the provider name.
func (*MySQL) Name() string { return "mysql" }

// Version returns the configured server version.
func (d *MySQL) Version() string { return d.version.String() }

// QuoteIdentifier quotes with backticks.
func (*MySQL) QuoteIdentifier(name string) string { return quoteWith(name, "`", "`") }

// Placeholder returns ?.
func (*MySQL) Placeholder(int) string { return "?" }

// Capabilities returns the supported features.
func (d *MySQL) Capabilities() Capabilities {
	recursive := d.version.GreaterThanOrEqual(recursiveCTESince)
	return Capabilities{RecursiveCTE: recursive, RecursiveKeyword: recursive}
}

// WriteTop is a no-op.
func (*MySQL) WriteTop(Writer, domain.Pagination) {}

// WritePagination writes LIMIT/OFFSET. MySQL needs a LIMIT before OFFSET.
func (*MySQL) WritePagination(w Writer, p domain.Pagination, _ bool) {
	writeLimitOffset(w, p, "18446744073709551615")
}

var mysqlParts = map[domain.FuncName]string{
	domain.FnYear:   "YEAR",
	domain.FnMonth:  "MONTH",
	domain.FnDay:    "DAY",
	domain.FnHour:   "HOUR",
	domain.FnMinute: "MINUTE",
	domain.FnSecond: "SECOND",
}

// Function renders a function.
func (d *MySQL) Function(fn domain.FuncName, args []string) (string, error) {
	if s, ok := commonFunction(fn, args); ok {
		return s, nil
	}
	if part, ok := mysqlParts[fn]; ok {
		return part + "(" + args[0] + ")", nil
	}
	// The backslash is MySQL's default LIKE escape character.
	switch fn {
	case domain.FnContains:
		return args[0] + " LIKE CONCAT('%', " + args[1] + ", '%')", nil
	case domain.FnStartsWith:
		return args[0] + " LIKE CONCAT(" + args[1] + ", '%')", nil
	case domain.FnEndsWith:
		return args[0] + " LIKE CONCAT('%', " + args[1] + ")", nil
	case domain.FnLength:
		return "CHAR_LENGTH(" + args[0] + ")", nil
	}
	return "", unsupported(d, fn)
}
