package value

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type kind int

const (
	kindText kind = iota
	kindInteger
	kindNumeric
	kindFloat
	kindBool
	kindUUID
	kindJSON
	kindDate
	kindTimestamp
	kindTimestampTZ
)

// kindOf — семейство типа колонки; имена как в information_schema и pg_type.
func kindOf(typ string) kind {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "smallint", "integer", "bigint", "int", "int2", "int4", "int8", "serial", "bigserial":
		return kindInteger
	case "numeric", "decimal", "money":
		return kindNumeric
	case "real", "double precision", "float4", "float8":
		return kindFloat
	case "boolean", "bool":
		return kindBool
	case "uuid":
		return kindUUID
	case "json", "jsonb":
		return kindJSON
	case "date":
		return kindDate
	case "timestamp", "timestamp without time zone":
		return kindTimestamp
	case "timestamptz", "timestamp with time zone":
		return kindTimestampTZ
	}
	return kindText
}

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05.999999999"
)

// без зоны время читается как UTC
var timeLayouts = []string{
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05Z07",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	dateLayout,
}

func parseTime(s string) (time.Time, bool) {
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatTime(t time.Time, k kind) string {
	switch k {
	case kindDate:
		return t.Format(dateLayout)
	case kindTimestampTZ:
		return t.UTC().Format(timestampLayout) + "Z"
	}
	return t.Format(timestampLayout)
}

// Normalize — текст значения для сравнения и ключей с учётом типа колонки.
// Несколько типов — составная колонка: части сравниваются каждая по своему типу.
// Без типа значение сравнивается как текст. Неразбираемое значение остаётся как есть.
func Normalize(v any, types ...string) string {
	if len(types) > 1 {
		parts, err := Split(Canonical(v), len(types))
		if err != nil {
			return strings.TrimSpace(Canonical(v))
		}
		for i, p := range parts {
			parts[i] = Normalize(p, types[i])
		}
		return Join(parts)
	}
	c := strings.TrimSpace(Canonical(v))
	if c == "" || len(types) == 0 {
		return c
	}
	switch k := kindOf(types[0]); k {
	case kindInteger, kindNumeric, kindFloat:
		if d, err := decimal.NewFromString(c); err == nil {
			return d.String()
		}
	case kindBool:
		if b, err := toBool(c); err == nil {
			return strconv.FormatBool(b)
		}
	case kindUUID:
		if u, err := uuid.Parse(c); err == nil {
			return u.String()
		}
	case kindJSON:
		var doc any
		if json.Unmarshal([]byte(c), &doc) == nil {
			if b, err := json.Marshal(doc); err == nil {
				return string(b)
			}
		}
	case kindDate, kindTimestamp, kindTimestampTZ:
		if t, ok := v.(time.Time); ok {
			return formatTime(t, k)
		}
		if t, ok := parseTime(c); ok {
			return formatTime(t, k)
		}
	}
	return c
}

// Equal сравнивает значения после нормализации по типам колонки: nil ≡ "",
// числа по величине только у числовых колонок, JSON по структуре.
func Equal(a, b any, types ...string) bool {
	return Normalize(a, types...) == Normalize(b, types...)
}
