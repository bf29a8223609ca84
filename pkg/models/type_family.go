package models

import "strings"

// TypeFamily groups declared column types across dialects.
type TypeFamily string

const (
	TypeFamilyNumeric  TypeFamily = "numeric"
	TypeFamilyTemporal TypeFamily = "temporal"
	TypeFamilyText     TypeFamily = "text"
	TypeFamilyBoolean  TypeFamily = "boolean"
	TypeFamilyUUID     TypeFamily = "uuid"
	TypeFamilyJSON     TypeFamily = "json"
	TypeFamilyBinary   TypeFamily = "binary"
	TypeFamilyOther    TypeFamily = "other"
)

// normalizeType strips length/precision modifiers: "varchar(255)" -> "varchar".
func normalizeType(dataType string) string {
	t := strings.ToLower(strings.TrimSpace(dataType))
	if idx := strings.Index(t, "("); idx > 0 {
		t = strings.TrimSpace(t[:idx])
	}
	t = strings.TrimSuffix(t, " unsigned")
	return t
}

// ClassifyType maps a declared type from any supported dialect to a family.
func ClassifyType(dataType string) TypeFamily {
	t := normalizeType(dataType)
	switch {
	case t == "":
		return TypeFamilyOther
	case t == "uuid" || t == "uniqueidentifier":
		return TypeFamilyUUID
	case t == "bool" || t == "boolean" || t == "bit":
		return TypeFamilyBoolean
	case t == "json" || t == "jsonb":
		return TypeFamilyJSON
	case strings.HasPrefix(t, "timestamp"), strings.HasPrefix(t, "datetime"),
		t == "date", strings.HasPrefix(t, "time"), t == "smalldatetime", t == "year":
		return TypeFamilyTemporal
	case strings.Contains(t, "interval"), t == "point", t == "polygon", t == "linestring":
		return TypeFamilyOther
	case strings.Contains(t, "int"), t == "numeric", t == "decimal", t == "real",
		strings.HasPrefix(t, "double"), t == "float", t == "float4", t == "float8",
		t == "money", t == "smallmoney", t == "number", t == "serial", t == "bigserial":
		return TypeFamilyNumeric
	case strings.Contains(t, "char"), strings.Contains(t, "text"), t == "citext",
		t == "string", t == "clob", t == "name", t == "enum", t == "set", t == "xml":
		return TypeFamilyText
	case t == "bytea", strings.Contains(t, "blob"), strings.Contains(t, "binary"), t == "image":
		return TypeFamilyBinary
	}
	return TypeFamilyOther
}

// IsIntegerType reports whether the declared type stores whole numbers.
func IsIntegerType(dataType string) bool {
	t := normalizeType(dataType)
	return strings.Contains(t, "int") || t == "serial" || t == "bigserial"
}
