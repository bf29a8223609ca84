// Package sql guards and inspects the SQL sourcesense sends to and reads from sources.
package sql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ekaya-inc/sourcesense/pkg/apperrors"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
	// ErrNotReadOnly indicates the statement could modify the source.
	ErrNotReadOnly = fmt.Errorf("%w: statement is not read-only", apperrors.ErrUnsafeQuery)
)

// writeKeywords may not appear anywhere outside literals in a guarded query,
// which also rules out data-modifying CTEs.
var writeKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "UPSERT": true,
	"DROP": true, "ALTER": true, "CREATE": true, "TRUNCATE": true, "GRANT": true,
	"REVOKE": true, "COPY": true, "CALL": true, "EXEC": true, "EXECUTE": true,
	"ATTACH": true, "DETACH": true, "VACUUM": true, "REINDEX": true, "REPLACE": true,
	"LOCK": true, "SET": true,
}

// ValidateAndNormalize strips a trailing semicolon and rejects input that
// still contains a statement separator outside literals and quoted identifiers.
func ValidateAndNormalize(sqlQuery string) (string, error) {
	normalized := stripTrailingSemicolon(strings.TrimSpace(sqlQuery))
	if normalized == "" {
		return "", nil
	}
	toks, err := tokenize(normalized)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrUnsafeQuery, err)
	}
	if hasStatementSeparator(toks) {
		return "", ErrMultipleStatements
	}
	return normalized, nil
}

// EnsureReadOnly normalizes a query and verifies it is a single SELECT (or
// WITH … SELECT) that contains no write keywords. Every catalog and sampling
// query goes through it before reaching a driver.
func EnsureReadOnly(sqlQuery string) (string, error) {
	normalized, err := ValidateAndNormalize(sqlQuery)
	if err != nil {
		return "", err
	}
	if normalized == "" {
		return "", fmt.Errorf("%w: empty query", apperrors.ErrUnsafeQuery)
	}

	toks, err := tokenize(normalized)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrUnsafeQuery, err)
	}
	switch toks[0].keyword() {
	case "SELECT", "WITH":
	default:
		return "", ErrNotReadOnly
	}
	for _, t := range toks {
		if writeKeywords[t.keyword()] {
			return "", fmt.Errorf("%w (found %s)", ErrNotReadOnly, t.keyword())
		}
	}
	return normalized, nil
}

// hasStatementSeparator reports whether a semicolon appears outside string
// literals, comments and quoted identifiers of every dialect.
func hasStatementSeparator(toks []token) bool {
	for _, t := range toks {
		if t.kind == tokPunct && t.text == ";" {
			return true
		}
	}
	return false
}

func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimRight(strings.TrimSuffix(sqlQuery, ";"), " \t\n\r")
	}
	return sqlQuery
}
