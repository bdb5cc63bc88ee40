package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JSON — JSON-значение в виде строки: хешируется и годится в ключ записи.
type JSON string

// NewJSON компактит документ; невалидный JSON — ошибка.
func NewJSON(v any) (JSON, error) {
	switch t := v.(type) {
	case JSON:
		return t, nil
	case string:
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(t)); err != nil {
			return "", fmt.Errorf("invalid json: %w", err)
		}
		return JSON(buf.String()), nil
	case []byte:
		return NewJSON(string(t))
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return JSON(b), nil
}

// Unwrap возвращает JSON как обычную строку; остальные значения как есть.
func Unwrap(v any) any {
	if j, ok := v.(JSON); ok {
		return string(j)
	}
	return v
}

// Canonical — текст значения для сравнения и ключей. nil и "" совпадают.
func Canonical(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case JSON:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case decimal.Decimal:
		return t.String()
	case uuid.UUID:
		return t.String()
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(dateLayout)
		}
		return t.UTC().Format(timestampLayout)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err == nil {
			return string(b)
		}
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

// Empty: значение читается как отсутствующее
func Empty(v any) bool { return Canonical(v) == "" }
