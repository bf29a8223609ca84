package sql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/sourcesense/pkg/apperrors"
)

func TestCheckIdentifier(t *testing.T) {
	clean := []string{"id", "customer_id", "Order Details", "createdAt", "amount_usd"}
	for _, name := range clean {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, CheckIdentifier(name))
		})
	}

	bad := []string{
		"",
		"name\x00",
		"col\nname",
		strings.Repeat("x", MaxIdentifierLength+1),
		"' OR '1'='1",
		"'; DROP TABLE users--",
		"admin'--",
	}
	for _, name := range bad {
		t.Run("bad", func(t *testing.T) {
			err := CheckIdentifier(name)
			assert.ErrorIs(t, err, apperrors.ErrUnsafeQuery)
		})
	}
}

func TestCheckIdentifiers(t *testing.T) {
	assert.NoError(t, CheckIdentifiers("public", "orders", "id"))
	assert.Error(t, CheckIdentifiers("public", "' OR '1'='1"))
}
