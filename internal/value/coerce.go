package value

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	dateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`) // YYYY-MM-DD
	ErrBadJSON = errors.New("must be valid json")
)

// CoerceError — значение не приводится к типу колонки.
type CoerceError struct {
	Type  string
	Value string
	Msg   string
}

func (e *CoerceError) Error() string {
	return fmt.Sprintf("value %q for %s column: %s", e.Value, e.Type, e.Msg)
}

// Coerce приводит сырое значение ячейки к типу колонки. Пустая строка — null.
// Незнакомые типы остаются строкой: их разберёт база.
func Coerce(v any, typ string) (any, error) {
	v = Unwrap(v)
	s, isString := v.(string)
	if !isString {
		return v, nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	bad := func(msg string) error { return &CoerceError{Type: typ, Value: s, Msg: msg} }

	switch k := kindOf(typ); k {
	case kindInteger:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, bad("must be integer")
		}
		return n, nil
	case kindNumeric:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, bad("must be numeric")
		}
		return d, nil
	case kindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, bad("must be float")
		}
		return f, nil
	case kindBool:
		b, err := toBool(s)
		if err != nil {
			return nil, bad(err.Error())
		}
		return b, nil
	case kindUUID:
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, bad("must be uuid")
		}
		return u.String(), nil
	case kindJSON:
		if !json.Valid([]byte(s)) {
			return nil, bad(ErrBadJSON.Error())
		}
		j, err := NewJSON(s)
		if err != nil {
			return nil, bad(err.Error())
		}
		return string(j), nil
	case kindDate:
		if !dateRe.MatchString(s) {
			return nil, bad("must match YYYY-MM-DD")
		}
		if _, err := time.Parse(dateLayout, s); err != nil {
			return nil, bad("invalid date")
		}
		return s, nil
	case kindTimestamp, kindTimestampTZ:
		t, ok := parseTime(s)
		if !ok {
			return nil, bad("must be a timestamp (YYYY-MM-DD HH:MM[:SS])")
		}
		return formatTime(t, k), nil
	}
	return s, nil
}

func toBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "t", "1", "yes", "y", "on":
		return true, nil
	case "false", "f", "0", "no", "n", "off":
		return false, nil
	}
	return false, errors.New("must be boolean")
}
