// Package sqlutil provides identifier quoting shared by the SQL dialects.
package sqlutil

import "strings"

// QuoteFunc quotes a single identifier.
type QuoteFunc func(name string) string

// QuoteIdentifier quotes a MySQL identifier with backticks, doubling embedded backticks.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// QuoteANSIIdentifier quotes an identifier with double quotes, doubling embedded
// double quotes. PostgreSQL and SQLite use this form.
func QuoteANSIIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

// Qualified renders alias.column, or just column when alias is empty.
func Qualified(quote QuoteFunc, alias, column string) string {
	if alias == "" {
		return quote(column)
	}
	return quote(alias) + "." + quote(column)
}

// TableAs renders "table AS alias", or just the table when alias is empty or
// equal to the table name.
func TableAs(quote QuoteFunc, table, alias string) string {
	if alias == "" || alias == table {
		return quote(table)
	}
	return quote(table) + " AS " + quote(alias)
}
