package sql

import (
	"fmt"
	"strings"
	"unicode/utf8"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ekaya-inc/sourcesense/pkg/apperrors"
)

// MaxIdentifierLength bounds identifiers read from a catalog.
const MaxIdentifierLength = 256

// CheckIdentifier vets a catalog identifier before it is quoted into a
// generated query. Quoting already neutralizes it; this rejects names that
// only make sense as an attack (control characters, libinjection matches)
// so they are reported instead of sampled.
func CheckIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty identifier", apperrors.ErrUnsafeQuery)
	}
	if len(name) > MaxIdentifierLength || !utf8.ValidString(name) {
		return fmt.Errorf("%w: invalid identifier", apperrors.ErrUnsafeQuery)
	}
	if strings.ContainsAny(name, "\x00\n\r") {
		return fmt.Errorf("%w: identifier contains control characters", apperrors.ErrUnsafeQuery)
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(name); isSQLi {
		return fmt.Errorf("%w: identifier %q matches injection fingerprint %s", apperrors.ErrUnsafeQuery, name, fingerprint)
	}
	return nil
}

// CheckIdentifiers runs CheckIdentifier over every name and returns the first failure.
func CheckIdentifiers(names ...string) error {
	for _, n := range names {
		if err := CheckIdentifier(n); err != nil {
			return err
		}
	}
	return nil
}
