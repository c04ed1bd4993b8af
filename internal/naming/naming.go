package naming

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// Fixed column names of the auxiliary tables.
const (
	LinkColumnA        = "A"
	LinkColumnB        = "B"
	ListNodeIDColumn   = "nodeId"
	ListPositionColumn = "position"
	ListValueColumn    = "value"
)

// Namer applies the storage naming conventions.
type Namer struct {
	config Config
}

// New creates a Namer with the given configuration
func New(cfg Config) *Namer {
	if cfg.PluralOverrides == nil {
		cfg.PluralOverrides = map[string]string{}
	}
	return &Namer{config: cfg}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig())
}

// Pluralize converts a singular word to its plural form.
// Checks custom overrides first, then falls back to the inflection library.
func (n *Namer) Pluralize(word string) string {
	if override, ok := n.config.PluralOverrides[word]; ok {
		return override
	}
	return inflection.Plural(word)
}

// TableName returns the default table name for a model.
// Example: "BlogPost" -> "blog_posts"
func (n *Namer) TableName(modelName string) string {
	snake := ToSnakeCase(modelName)
	parts := strings.Split(snake, "_")
	parts[len(parts)-1] = n.Pluralize(parts[len(parts)-1])
	return strings.Join(parts, "_")
}

// LinkTable returns the link table name of a relation.
func LinkTable(relationName string) string {
	return "_" + relationName
}

// ListTable returns the auxiliary table that stores the values of a scalar list field.
func ListTable(modelTable, fieldName string) string {
	return modelTable + "_" + fieldName
}

// ToSnakeCase converts PascalCase or camelCase to snake_case.
// Example: "HTTPServer" -> "http_server", "userId" -> "user_id"
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
