package sql

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuotedIdent
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string // identifiers are unquoted; words keep their original case
}

func (t token) keyword() string {
	if t.kind != tokWord {
		return ""
	}
	return strings.ToUpper(t.text)
}

func (t token) isIdent() bool {
	return t.kind == tokQuotedIdent || (t.kind == tokWord && !reservedWords[t.keyword()])
}

// reservedWords end a FROM list or cannot be a table alias.
var reservedWords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "JOIN": true, "INNER": true, "LEFT": true,
	"RIGHT": true, "FULL": true, "OUTER": true, "CROSS": true, "NATURAL": true, "ON": true,
	"USING": true, "GROUP": true, "ORDER": true, "BY": true, "HAVING": true, "LIMIT": true,
	"OFFSET": true, "UNION": true, "INTERSECT": true, "EXCEPT": true, "AS": true, "WITH": true,
	"LATERAL": true, "WINDOW": true, "FETCH": true, "FOR": true, "AND": true, "OR": true,
	"NOT": true, "CASE": true, "WHEN": true, "THEN": true, "ELSE": true, "END": true,
	"INTO": true, "VALUES": true, "TOP": true, "DISTINCT": true, "ALL": true, "STRAIGHT_JOIN": true,
}

// tokenize splits SQL text into tokens. Comments are dropped. It understands
// '…' strings, "…" and `…` identifiers and [...] identifiers used by SQL Server.
func tokenize(src string) ([]token, error) {
	var toks []token
	r := []rune(src)
	for i := 0; i < len(r); {
		c := r[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '-' && i+1 < len(r) && r[i+1] == '-':
			for i < len(r) && r[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(r) && r[i+1] == '*':
			end := strings.Index(string(r[i+2:]), "*/")
			if end < 0 {
				return nil, fmt.Errorf("unterminated comment")
			}
			i += 2 + len([]rune(string(r[i+2:])[:end])) + 2
		case c == '\'':
			text, next, err := readQuoted(r, i, '\'')
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: text})
			i = next
		case c == '"' || c == '`':
			text, next, err := readQuoted(r, i, c)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokQuotedIdent, text: text})
			i = next
		case c == '[':
			text, next, err := readQuoted(r, i, ']')
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokQuotedIdent, text: text})
			i = next
		case isWordStart(c):
			start := i
			for i < len(r) && isWordPart(r[i]) {
				i++
			}
			toks = append(toks, token{kind: tokWord, text: string(r[start:i])})
		case c >= '0' && c <= '9':
			start := i
			for i < len(r) && (r[i] >= '0' && r[i] <= '9' || r[i] == '.') {
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: string(r[start:i])})
		default:
			toks = append(toks, token{kind: tokPunct, text: string(c)})
			i++
		}
	}
	return toks, nil
}

// readQuoted reads a quoted run opened at r[start] and closed by q. A doubled
// q is an escaped q.
func readQuoted(r []rune, start int, q rune) (string, int, error) {
	var b strings.Builder
	for i := start + 1; i < len(r); i++ {
		if r[i] == q {
			if i+1 < len(r) && r[i+1] == q {
				b.WriteRune(q)
				i++
				continue
			}
			return b.String(), i + 1, nil
		}
		if r[i] == '\\' && q == '\'' && i+1 < len(r) {
			b.WriteRune(r[i+1])
			i++
			continue
		}
		b.WriteRune(r[i])
	}
	return "", 0, fmt.Errorf("unterminated quoted text starting at offset %d", start)
}

func isWordStart(c rune) bool {
	return c == '_' || c == '$' || c == '@' || c == '#' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c > 127
}

func isWordPart(c rune) bool {
	return isWordStart(c) || (c >= '0' && c <= '9')
}
