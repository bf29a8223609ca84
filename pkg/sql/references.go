package sql

import (
	"fmt"
	"sort"
	"strings"
)

// TableRef is a table named in a FROM or JOIN clause. Parts holds the
// qualified name as written, e.g. [public orders] or [shop dbo orders].
type TableRef struct {
	Parts []string
}

// Name is the unqualified table name.
func (r TableRef) Name() string { return r.Parts[len(r.Parts)-1] }

// Schema is the qualifier directly before the table name, or "".
func (r TableRef) Schema() string {
	if len(r.Parts) < 2 {
		return ""
	}
	return r.Parts[len(r.Parts)-2]
}

// Qualified reports whether the reference named a schema.
func (r TableRef) Qualified() bool { return len(r.Parts) > 1 }

func (r TableRef) String() string { return strings.Join(r.Parts, ".") }

// TableReferences extracts the tables a view definition reads from. It
// accepts a bare SELECT or a full CREATE VIEW statement. References are
// de-duplicated and sorted. A definition without a SELECT is an error.
func TableReferences(definition string) ([]TableRef, error) {
	if strings.TrimSpace(definition) == "" {
		return nil, fmt.Errorf("empty view definition")
	}
	toks, err := tokenize(definition)
	if err != nil {
		return nil, fmt.Errorf("tokenize view definition: %w", err)
	}

	hasSelect := false
	ctes := make(map[string]bool)
	for i, t := range toks {
		switch t.keyword() {
		case "SELECT":
			hasSelect = true
		case "AS":
			// WITH name AS ( ... ) and ", name AS (" introduce CTE names.
			if i > 0 && i+1 < len(toks) && toks[i+1].text == "(" && toks[i-1].isIdent() {
				ctes[strings.ToLower(toks[i-1].text)] = true
			}
		}
	}
	if !hasSelect {
		return nil, fmt.Errorf("view definition has no SELECT")
	}

	seen := make(map[string]bool)
	var refs []TableRef
	add := func(ref TableRef) {
		if len(ref.Parts) == 1 && ctes[strings.ToLower(ref.Name())] {
			return
		}
		key := strings.ToLower(ref.String())
		if !seen[key] {
			seen[key] = true
			refs = append(refs, ref)
		}
	}

	for i := 0; i < len(toks); i++ {
		kw := toks[i].keyword()
		if kw != "FROM" && kw != "JOIN" {
			continue
		}
		j := i + 1
		for {
			for j < len(toks) && toks[j].text == "(" {
				j++
			}
			ref, next, ok := readQualifiedName(toks, j)
			if !ok {
				break
			}
			add(ref)
			j = skipAlias(toks, next)
			// Only FROM takes a comma separated list.
			if kw != "FROM" || j >= len(toks) || toks[j].text != "," {
				break
			}
			j++
		}
	}

	sort.Slice(refs, func(a, b int) bool { return refs[a].String() < refs[b].String() })
	return refs, nil
}

// readQualifiedName reads ident(.ident)* at toks[i]. Function calls such as
// generate_series(...) are not table references.
func readQualifiedName(toks []token, i int) (TableRef, int, bool) {
	if i >= len(toks) || !toks[i].isIdent() {
		return TableRef{}, i, false
	}
	parts := []string{toks[i].text}
	i++
	for i+1 < len(toks) && toks[i].text == "." && toks[i+1].isIdent() {
		parts = append(parts, toks[i+1].text)
		i += 2
	}
	if i < len(toks) && toks[i].text == "(" {
		return TableRef{}, i, false
	}
	return TableRef{Parts: parts}, i, true
}

func skipAlias(toks []token, i int) int {
	for i < len(toks) && toks[i].text == ")" {
		i++
	}
	if i < len(toks) && toks[i].keyword() == "AS" {
		i++
	}
	if i < len(toks) && toks[i].isIdent() {
		i++
	}
	for i < len(toks) && toks[i].text == ")" {
		i++
	}
	return i
}
