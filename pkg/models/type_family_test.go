package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyType(t *testing.T) {
	tests := []struct {
		dataType string
		want     TypeFamily
	}{
		{"integer", TypeFamilyNumeric},
		{"bigint", TypeFamilyNumeric},
		{"int unsigned", TypeFamilyNumeric},
		{"numeric(12,2)", TypeFamilyNumeric},
		{"double precision", TypeFamilyNumeric},
		{"money", TypeFamilyNumeric},
		{"timestamp with time zone", TypeFamilyTemporal},
		{"datetime2", TypeFamilyTemporal},
		{"date", TypeFamilyTemporal},
		{"character varying(255)", TypeFamilyText},
		{"nvarchar", TypeFamilyText},
		{"TEXT", TypeFamilyText},
		{"boolean", TypeFamilyBoolean},
		{"bit", TypeFamilyBoolean},
		{"uuid", TypeFamilyUUID},
		{"uniqueidentifier", TypeFamilyUUID},
		{"jsonb", TypeFamilyJSON},
		{"bytea", TypeFamilyBinary},
		{"longblob", TypeFamilyBinary},
		{"interval", TypeFamilyOther},
		{"point", TypeFamilyOther},
		{"", TypeFamilyOther},
	}
	for _, tt := range tests {
		t.Run(tt.dataType, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyType(tt.dataType))
		})
	}
}

func TestIsIntegerType(t *testing.T) {
	assert.True(t, IsIntegerType("INTEGER"))
	assert.True(t, IsIntegerType("bigserial"))
	assert.False(t, IsIntegerType("numeric(10,2)"))
}
