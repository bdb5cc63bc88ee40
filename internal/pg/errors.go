package pg

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Violation — нарушение ограничения, разобранное из *pgconn.PgError.
type Violation struct {
	Code       string
	Kind       string
	Table      string
	Constraint string
	Column     string
	Detail     string
	Err        error
}

func (v *Violation) Error() string {
	var sb strings.Builder
	sb.WriteString(v.Kind)
	if v.Constraint != "" {
		fmt.Fprintf(&sb, " on %s", v.Constraint)
	} else if v.Column != "" {
		fmt.Fprintf(&sb, " on column %s", v.Column)
	}
	if v.Detail != "" {
		sb.WriteString(": " + v.Detail)
	}
	return sb.String()
}

func (v *Violation) Unwrap() error { return v.Err }

var kinds = map[string]string{
	"23505": "unique violation",
	"23503": "foreign key violation",
	"23502": "not null violation",
	"23514": "check violation",
	"22P02": "invalid input syntax",
	"22003": "numeric value out of range",
	"22001": "value too long",
	"21000": "subquery returned more than one row",
	"57014": "statement timeout",
}

// Translate превращает известные ошибки Postgres в Violation; прочие возвращает как есть.
func Translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	kind, ok := kinds[pgErr.Code]
	if !ok {
		return err
	}
	detail := strings.TrimSpace(pgErr.Detail)
	if detail == "" {
		detail = strings.TrimSpace(pgErr.Message)
	}
	return &Violation{
		Code:       pgErr.Code,
		Kind:       kind,
		Table:      pgErr.TableName,
		Constraint: pgErr.ConstraintName,
		Column:     pgErr.ColumnName,
		Detail:     detail,
		Err:        err,
	}
}
