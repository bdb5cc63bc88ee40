// Package value — значения ячеек: разбиение составных колонок, приведение
// к типу колонки и каноничное текстовое представление для сравнения.
package value

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnbalanced = errors.New("unbalanced quotes or brackets in composite value")

// ArityError — число частей составного значения не совпало с числом листьев.
type ArityError struct {
	Value string
	Want  int
	Got   int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("composite value %q: want %d parts, got %d", e.Value, e.Want, e.Got)
}

// Split режет составное значение "a:b:c" на n частей. Двоеточия внутри
// строк в кавычках и внутри JSON-объектов/массивов разделителями не считаются:
// `1234:{"a":"b"}:5678` даёт ровно [1234, {"a":"b"}, 5678]. Часть целиком
// в одинарных кавычках возвращается без них ('' внутри — одна кавычка).
func Split(s string, n int) ([]string, error) {
	if n <= 1 {
		return []string{s}, nil
	}
	parts, err := split(s)
	if err != nil {
		return nil, err
	}
	// пустая ячейка составной колонки — все части пустые
	if s == "" {
		return make([]string, n), nil
	}
	if len(parts) != n {
		return nil, &ArityError{Value: s, Want: n, Got: len(parts)}
	}
	return parts, nil
}

func split(s string) ([]string, error) {
	var (
		out     []string
		depth   int
		inQuote rune
		start   int
		closed  = -1 // где закрылась одинарная кавычка, открытая в начале части
	)
	cut := func(end int) {
		p := s[start:end]
		if closed == end-1 && end-start >= 2 && p[0] == '\'' {
			p = strings.ReplaceAll(p[1:len(p)-1], "''", "'")
		}
		out = append(out, p)
		start, closed = end+1, -1
	}
	for i := 0; i < len(s); i++ {
		c := rune(s[i])
		if inQuote != 0 {
			switch {
			case c == '\\' && inQuote == '"' && depth > 0:
				i++ // экранирование внутри JSON-строки
			case c == '\'' && inQuote == c && i+1 < len(s) && s[i+1] == '\'':
				i++ // '' внутри одинарных кавычек
			case c == inQuote:
				inQuote = 0
				if c == '\'' && depth == 0 {
					closed = i
				}
			}
			continue
		}
		switch c {
		case '"', '\'':
			// кавычка открывает строку только в начале части или внутри JSON
			if i == start || (depth > 0 && c == '"') {
				inQuote = c
			}
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth < 0 {
				return nil, ErrUnbalanced
			}
		case ':':
			if depth == 0 {
				cut(i)
			}
		}
	}
	if inQuote != 0 || depth != 0 {
		return nil, ErrUnbalanced
	}
	cut(len(s))
	return out, nil
}

// Join собирает части обратно в составное значение так, что Split вернёт их же:
// часть с двоеточием вне JSON или с ведущей одинарной кавычкой берётся в '...'.
// Все части пустые — пустая ячейка.
func Join(parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	if strings.Join(parts, "") == "" {
		return ""
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		if needsQuote(p) {
			p = "'" + strings.ReplaceAll(p, "'", "''") + "'"
		}
		out[i] = p
	}
	return strings.Join(out, ":")
}

func needsQuote(p string) bool {
	if strings.HasPrefix(p, "'") {
		return true
	}
	if !strings.ContainsRune(p, ':') {
		return false
	}
	parts, err := split(p)
	return err != nil || len(parts) != 1
}
