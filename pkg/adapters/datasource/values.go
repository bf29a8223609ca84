package datasource

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// NormalizeValue converts driver specific values into plain Go values:
// strings, int64, float64, bool, time.Time (UTC) or nil. Times of day
// become "15:04:05.999999" strings.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		if utf8.Valid(val) {
			return string(val)
		}
		return "\\x" + hex.EncodeToString(val)
	case [16]byte:
		return uuid.UUID(val).String()
	case uuid.UUID:
		return val.String()
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case pgtype.Time:
		if !val.Valid {
			return nil
		}
		return timeOfDay(val.Microseconds)
	case pgtype.Interval:
		if !val.Valid {
			return nil
		}
		return formatInterval(val)
	case time.Time:
		return val.UTC()
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	}
	return v
}

func timeOfDay(us int64) string {
	d := time.Duration(us) * time.Microsecond
	h := int64(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m := int64(d / time.Minute)
	d -= time.Duration(m) * time.Minute
	sec := int64(d / time.Second)
	frac := int64((d - time.Duration(sec)*time.Second) / time.Microsecond)
	if frac == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	}
	return strings.TrimRight(fmt.Sprintf("%02d:%02d:%02d.%06d", h, m, sec, frac), "0")
}

// formatInterval renders an interval the way Postgres prints it by default,
// e.g. "1 mon 2 days 03:04:05".
func formatInterval(iv pgtype.Interval) string {
	var parts []string
	if iv.Months != 0 {
		parts = append(parts, plural(int64(iv.Months), "mon"))
	}
	if iv.Days != 0 {
		parts = append(parts, plural(int64(iv.Days), "day"))
	}
	if iv.Microseconds != 0 || len(parts) == 0 {
		us := iv.Microseconds
		sign := ""
		if us < 0 {
			sign, us = "-", -us
		}
		parts = append(parts, sign+timeOfDay(us))
	}
	return strings.Join(parts, " ")
}

func plural(n int64, unit string) string {
	if n == 1 || n == -1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
