package pg

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"tablesync/internal/executor"
)

// PositionalBinder переписывает :name в $n для pgx. Повтор имени получает тот же номер.
// Строковые литералы, идентификаторы в кавычках и приведения :: не трогаются.
type PositionalBinder struct{}

func (PositionalBinder) Bind(query string, names []string, values map[string]any) (string, []any, error) {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	var (
		sb    strings.Builder
		args  []any
		index = map[string]int{}
	)
	sb.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'' || c == '"':
			j := i + 1
			for j < len(query) {
				if query[j] == c {
					if j+1 < len(query) && query[j+1] == c {
						j += 2
						continue
					}
					break
				}
				j++
			}
			if j >= len(query) {
				j = len(query) - 1
			}
			sb.WriteString(query[i : j+1])
			i = j
		case c == ':' && i+1 < len(query) && query[i+1] == ':':
			sb.WriteString("::")
			i++
		case c == ':' && i+1 < len(query) && isNameStart(query[i+1]):
			j := i + 1
			for j < len(query) && isNamePart(query[j]) {
				j++
			}
			name := query[i+1 : j]
			if !known[name] {
				sb.WriteString(query[i:j])
				i = j - 1
				continue
			}
			n, ok := index[name]
			if !ok {
				v, has := values[name]
				if !has {
					return "", nil, fmt.Errorf("%w %q", executor.ErrMissingParam, name)
				}
				args = append(args, v)
				n = len(args)
				index[name] = n
			}
			sb.WriteString("$" + strconv.Itoa(n))
			i = j - 1
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), args, nil
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNamePart(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}

// NewBackend — исполнение на Postgres: позиционные параметры и разбор ошибок ограничений.
func NewBackend(timeout time.Duration) *executor.SQLBackend {
	return &executor.SQLBackend{Binder: PositionalBinder{}, Timeout: timeout, Translate: Translate}
}
