package mssql

import (
	"fmt"
	"strings"
)

// quoteName brackets an identifier the way QUOTENAME does: ] is doubled.
func quoteName(identifier string) string {
	escaped := strings.ReplaceAll(identifier, "]", "]]")
	return fmt.Sprintf("[%s]", escaped)
}

// buildFullyQualifiedName builds a fully qualified table name: [schema].[table]
// Defaults to the dbo schema when none is given.
func buildFullyQualifiedName(schema, table string) string {
	if schema == "" {
		schema = "dbo"
	}
	return fmt.Sprintf("%s.%s", quoteName(schema), quoteName(table))
}

func quoteNames(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteName(n)
	}
	return strings.Join(quoted, ", ")
}
