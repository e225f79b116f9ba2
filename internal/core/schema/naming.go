package schema

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// ToSnakeCase converts CamelCase to snake_case, keeping acronyms together
// (OrderID → order_id).
func ToSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// TableName returns the default table name for an entity: the plural of its
// snake_case name.
func TableName(entity string) string {
	snake := ToSnakeCase(entity)
	parts := strings.Split(snake, "_")
	parts[len(parts)-1] = inflection.Plural(parts[len(parts)-1])
	return strings.Join(parts, "_")
}
