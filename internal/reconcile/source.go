package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"tablesync/internal/diff"
	"tablesync/internal/executor"
	"tablesync/internal/mapping"
	"tablesync/internal/sqlgen"
	"tablesync/internal/value"
)

// Querier — то, что умеет выполнить select (*sql.DB, *sql.Tx).
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Namer переводит код справочника обратно в имя.
type Namer interface {
	Name(domain, code string) (string, error)
}

// Rejected — входящая строка, отбитая до диффа: повтор ключа или ошибка вычисления.
type Rejected struct {
	Record *diff.Record
	Err    error
}

// compared — колонки, у которых есть хотя бы один активный лист.
func compared(ent *mapping.Entity) (headers, unique []string) {
	for _, c := range ent.Columns {
		if c.Empty() || !hasActiveLeaf(c) {
			continue
		}
		headers = append(headers, c.Header())
		if c.Unique() {
			unique = append(unique, c.Header())
		}
	}
	return headers, unique
}

func hasActiveLeaf(c mapping.Column) bool {
	for _, l := range c.Leaves() {
		if l.Active {
			return true
		}
	}
	return false
}

// columnTypes — типы листьев по заголовку колонки. Подстановка сравнивается по имени,
// то есть как текст; поле jsonb по ключу тоже текст.
func columnTypes(ent *mapping.Entity) map[string][]string {
	out := map[string][]string{}
	for _, c := range ent.Columns {
		if c.Empty() || !hasActiveLeaf(c) {
			continue
		}
		leaves := c.Leaves()
		types := make([]string, len(leaves))
		for i, l := range leaves {
			types[i] = leafType(l)
		}
		out[c.Header()] = types
	}
	return out
}

func leafType(l mapping.Leaf) string {
	switch {
	case !l.Active, l.Attr.Substitute != "":
		return ""
	case l.Attr.Key != "":
		return "text"
	}
	return l.Attr.Type
}

// coerce приводит ячейки записи к типам колонок и кладёт их нормализованный текст.
// Неприводимое значение — RowValueError этой строки.
func coerce(ent *mapping.Entity, rec *diff.Record) error {
	for _, c := range ent.Columns {
		if c.Empty() || !hasActiveLeaf(c) {
			continue
		}
		h := c.Header()
		leaves := c.Leaves()
		parts, err := value.Split(value.Canonical(rec.Values[h]), len(leaves))
		if err != nil {
			return &executor.RowValueError{Line: rec.Line, Header: h, Err: err}
		}
		for i, l := range leaves {
			typ := leafType(l)
			if typ == "" {
				continue
			}
			v, err := value.Coerce(parts[i], typ)
			if err != nil {
				return &executor.RowValueError{Line: rec.Line, Header: l.Path, Err: err}
			}
			parts[i] = value.Normalize(v, typ)
		}
		rec.Values[h] = value.Join(parts)
	}
	return nil
}

// carry — заголовки колонок с корневыми extension-ссылками
func carry(ent *mapping.Entity) []string {
	var out []string
	for _, c := range ent.Columns {
		for _, n := range c.Nodes {
			if r, ok := n.(*mapping.Reference); ok && r.Extension && mapping.Active(r) {
				out = append(out, c.Header())
				break
			}
		}
	}
	return out
}

// ReadIncoming раскладывает строки данных по колонкам маппинга. Ячейка i идёт в слот i,
// недостающие ячейки пустые, полностью пустые строки пропускаются. firstLine — номер
// строки файла у rows[0].
func ReadIncoming(ctx context.Context, ent *mapping.Entity, rows [][]string, firstLine int, d *executor.Deriver) (*diff.RecordSet, []Rejected) {
	headers, unique := compared(ent)
	set := diff.NewRecordSet(headers, unique)
	set.Types = columnTypes(ent)
	dedupe := ent.Deduplicate()
	var rejected []Rejected

	for i, row := range rows {
		if blank(row) {
			continue
		}
		rec := &diff.Record{Line: firstLine + i, Values: make(map[string]any, len(headers))}
		for j, c := range ent.Columns {
			if c.Empty() || !hasActiveLeaf(c) {
				continue
			}
			cell := ""
			if j < len(row) {
				cell = row[j]
			}
			rec.Values[c.Header()] = cell
		}
		if d != nil {
			if err := d.Prepare(ctx, rec); err != nil {
				rejected = append(rejected, Rejected{Record: rec, Err: err})
				continue
			}
		}
		if err := coerce(ent, rec); err != nil {
			rejected = append(rejected, Rejected{Record: rec, Err: err})
			continue
		}
		if err := set.Add(rec, dedupe); err != nil {
			rejected = append(rejected, Rejected{Record: rec, Err: err})
		}
	}
	return set, rejected
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ReadCurrent выполняет select текущего состояния. Коды справочников переводятся в имена,
// чтобы сравнение шло в тех же терминах, что и входные данные.
func ReadCurrent(ctx context.Context, q Querier, binder executor.Binder, st *sqlgen.Statement, ent *mapping.Entity, names Namer) (*diff.RecordSet, error) {
	headers, unique := compared(ent)
	set := diff.NewRecordSet(headers, unique)
	set.Types = columnTypes(ent)

	query, args, err := binder.Bind(st.SQL, st.Params, nil)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", st.Table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	subst := substitutedColumns(ent)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := &diff.Record{Values: make(map[string]any, len(cols))}
		for i, c := range cols {
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			rec.Values[c] = v
		}
		if names != nil {
			if err := nameCodes(rec, subst, names); err != nil {
				return nil, err
			}
		}
		if err := set.Add(rec, false); err != nil {
			// база сама не гарантирует уникальность ключа маппинга
			log.Printf("select %s: %v, keeping the first row", st.Table, err)
		}
	}
	return set, rows.Err()
}

func substitutedColumns(ent *mapping.Entity) []mapping.Column {
	var out []mapping.Column
	for _, c := range ent.Columns {
		for _, l := range c.Leaves() {
			if l.Active && l.Attr.Substitute != "" {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func nameCodes(rec *diff.Record, cols []mapping.Column, names Namer) error {
	for _, c := range cols {
		h := c.Header()
		raw := value.Canonical(rec.Values[h])
		if raw == "" {
			continue
		}
		leaves := c.Leaves()
		parts, err := value.Split(raw, len(leaves))
		if err != nil {
			return fmt.Errorf("%s: %w", h, err)
		}
		for i, l := range leaves {
			if !l.Active || l.Attr.Substitute == "" || parts[i] == "" {
				continue
			}
			if parts[i], err = names.Name(l.Attr.Substitute, parts[i]); err != nil {
				return err
			}
		}
		rec.Values[h] = value.Join(parts)
	}
	return nil
}
