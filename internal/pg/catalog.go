package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"tablesync/internal/schema"
)

const columnsQuery = `
select column_name,
       case when data_type in ('USER-DEFINED', 'ARRAY') then udt_name else data_type end,
       is_nullable
from information_schema.columns
where table_schema = $1 and table_name = $2
order by ordinal_position`

const primaryKeyQuery = `
select kcu.column_name
from information_schema.table_constraints tc
join information_schema.key_column_usage kcu
  on kcu.constraint_schema = tc.constraint_schema
 and kcu.constraint_name = tc.constraint_name
 and kcu.table_name = tc.table_name
where tc.constraint_type = 'PRIMARY KEY' and tc.table_schema = $1 and tc.table_name = $2
order by kcu.ordinal_position`

// information_schema не сохраняет пары колонок составного ключа, поэтому pg_constraint
const foreignKeysQuery = `
select con.conname, a.attname, rt.relname, ra.attname
from pg_constraint con
join pg_class t on t.oid = con.conrelid
join pg_namespace n on n.oid = t.relnamespace
join pg_class rt on rt.oid = con.confrelid
cross join lateral unnest(con.conkey, con.confkey) with ordinality as k(col, refcol, ord)
join pg_attribute a on a.attrelid = con.conrelid and a.attnum = k.col
join pg_attribute ra on ra.attrelid = con.confrelid and ra.attnum = k.refcol
where con.contype = 'f' and n.nspname = $1 and t.relname = $2
order by con.conname, k.ord`

// Catalog — schema.Lookup поверх живой базы. Таблицы кешируются до Reset.
type Catalog struct {
	db     *sql.DB
	schema string

	mu     sync.RWMutex
	tables map[string]*schema.Table
}

func NewCatalog(db *sql.DB, schemaName string) *Catalog {
	if schemaName == "" {
		schemaName = "public"
	}
	return &Catalog{db: db, schema: schemaName, tables: map[string]*schema.Table{}}
}

// Reset сбрасывает кеш после миграций.
func (c *Catalog) Reset() {
	c.mu.Lock()
	c.tables = map[string]*schema.Table{}
	c.mu.Unlock()
}

func (c *Catalog) Table(ctx context.Context, name string) (*schema.Table, error) {
	key := strings.ToLower(name)
	c.mu.RLock()
	t, ok := c.tables[key]
	c.mu.RUnlock()
	if ok {
		return t, nil
	}

	t, err := c.load(ctx, name)
	if err != nil && strings.ToLower(name) != name {
		// имя без кавычек в postgres хранится в нижнем регистре
		t, err = c.load(ctx, strings.ToLower(name))
	}
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.tables[key] = t
	c.mu.Unlock()
	return t, nil
}

func (c *Catalog) PrimaryKeys(ctx context.Context, table string) ([]string, error) {
	t, err := c.Table(ctx, table)
	if err != nil {
		return nil, err
	}
	return t.PrimaryKey, nil
}

func (c *Catalog) ForeignKey(ctx context.Context, table, column string) (string, string, error) {
	t, err := c.Table(ctx, table)
	if err != nil {
		return "", "", err
	}
	target, col := t.ResolveForeignKey(column)
	return target, col, nil
}

func (c *Catalog) load(ctx context.Context, name string) (*schema.Table, error) {
	t := &schema.Table{Name: name}

	rows, err := c.db.QueryContext(ctx, columnsQuery, c.schema, name)
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", name, err)
	}
	for rows.Next() {
		var (
			col      schema.Column
			nullable string
		)
		if err := rows.Scan(&col.Name, &col.Type, &nullable); err != nil {
			rows.Close()
			return nil, err
		}
		col.Nullable = nullable == "YES"
		t.Columns = append(t.Columns, col)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("%w: %s.%s", schema.ErrTableNotFound, c.schema, name)
	}

	if t.PrimaryKey, err = c.names(ctx, primaryKeyQuery, name); err != nil {
		return nil, fmt.Errorf("primary key of %s: %w", name, err)
	}

	rows, err = c.db.QueryContext(ctx, foreignKeysQuery, c.schema, name)
	if err != nil {
		return nil, fmt.Errorf("foreign keys of %s: %w", name, err)
	}
	defer rows.Close()
	byName := map[string]*schema.ForeignKey{}
	var order []string
	for rows.Next() {
		var conname, col, ref, refCol string
		if err := rows.Scan(&conname, &col, &ref, &refCol); err != nil {
			return nil, err
		}
		fk, ok := byName[conname]
		if !ok {
			fk = &schema.ForeignKey{Name: conname, RefTable: ref}
			byName[conname] = fk
			order = append(order, conname)
		}
		fk.Columns = append(fk.Columns, col)
		fk.RefColumns = append(fk.RefColumns, refCol)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, n := range order {
		t.ForeignKeys = append(t.ForeignKeys, *byName[n])
	}
	return t, nil
}

func (c *Catalog) names(ctx context.Context, query, table string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, query, c.schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
