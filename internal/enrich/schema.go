// Package enrich привязывает разобранный маппинг к живой схеме и раздаёт
// уникальные алиасы соединений и имена bind-параметров.
package enrich

import (
	"context"
	"fmt"
	"strings"

	"tablesync/internal/mapping"
	"tablesync/internal/schema"
)

// ResolutionError — таблица/колонка не найдена, неоднозначная связь и т.п.
// Фатальна: SQL не строится.
type ResolutionError struct {
	Table  string
	Column string
	Msg    string
	Err    error
}

func (e *ResolutionError) Error() string {
	s := fmt.Sprintf("schema: %s", e.Table)
	if e.Column != "" {
		s += "." + e.Column
	}
	s += ": " + e.Msg
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Options — соглашение об общей extension-таблице.
type Options struct {
	GenericTable    string
	GenericIDColumn string
	QualifierColumn string
}

func DefaultOptions() Options {
	return Options{
		GenericTable:    "external_ids",
		GenericIDColumn: "res_id",
		QualifierColumn: "qualifier",
	}
}

// SchemaEnricher держит состояние одного запроса; создаётся заново на каждый маппинг.
type SchemaEnricher struct {
	lookup schema.Lookup
	opts   Options
}

func NewSchemaEnricher(lookup schema.Lookup, opts Options) *SchemaEnricher {
	def := DefaultOptions()
	if opts.GenericTable == "" {
		opts.GenericTable = def.GenericTable
	}
	if opts.GenericIDColumn == "" {
		opts.GenericIDColumn = def.GenericIDColumn
	}
	if opts.QualifierColumn == "" {
		opts.QualifierColumn = def.QualifierColumn
	}
	return &SchemaEnricher{lookup: lookup, opts: opts}
}

func (e *SchemaEnricher) Options() Options { return e.opts }

// Enrich проставляет типы, первичный ключ и цели ссылок. Дерево меняется на месте.
func (e *SchemaEnricher) Enrich(ctx context.Context, ent *mapping.Entity) (*mapping.Entity, error) {
	root, err := e.lookup.Table(ctx, ent.Table)
	if err != nil {
		return nil, &ResolutionError{Table: ent.Table, Msg: "cannot load table", Err: err}
	}
	pks, err := e.lookup.PrimaryKeys(ctx, ent.Table)
	if err != nil {
		return nil, &ResolutionError{Table: ent.Table, Msg: "cannot load primary key", Err: err}
	}
	if len(pks) == 1 {
		ent.PrimaryKey = pks[0]
	}

	for _, c := range ent.Columns {
		for _, n := range c.Nodes {
			if err := e.node(ctx, root, ent.PrimaryKey, n); err != nil {
				return nil, err
			}
		}
	}
	return ent, nil
}

func (e *SchemaEnricher) node(ctx context.Context, tbl *schema.Table, pk string, n mapping.Node) error {
	switch t := n.(type) {
	case *mapping.Attribute:
		return e.attribute(tbl, pk, t)
	case *mapping.Reference:
		return e.reference(ctx, tbl, pk, t)
	}
	return nil
}

func (e *SchemaEnricher) attribute(tbl *schema.Table, pk string, a *mapping.Attribute) error {
	if a.Skip || a.OrmOnly {
		return nil
	}
	col, ok := tbl.Column(a.Name)
	if !ok {
		return &ResolutionError{Table: tbl.Name, Column: a.Name, Msg: "column does not exist", Err: schema.ErrColumnNotFound}
	}
	a.Name = col.Name
	a.Type = col.Type
	if !a.EnabledSet {
		a.Enabled = true
	}
	if pk != "" && strings.EqualFold(col.Name, pk) {
		a.PrimaryKey = true
	}
	if a.Key != "" && !isJSONType(col.Type) {
		return &ResolutionError{Table: tbl.Name, Column: a.Name, Msg: fmt.Sprintf("key=%s needs a json column, got %s", a.Key, col.Type)}
	}
	return nil
}

func (e *SchemaEnricher) reference(ctx context.Context, tbl *schema.Table, pk string, r *mapping.Reference) error {
	if r.Skip || r.OrmOnly {
		return nil
	}
	target, targetCol, err := e.lookup.ForeignKey(ctx, tbl.Name, r.Name)
	if err != nil {
		return &ResolutionError{Table: tbl.Name, Column: r.Name, Msg: "cannot resolve foreign key", Err: err}
	}
	if r.ReturnID != "" {
		if _, ok := tbl.Column(r.ReturnID); !ok {
			return &ResolutionError{Table: tbl.Name, Column: r.ReturnID, Msg: "return-id column does not exist"}
		}
	}

	var next *schema.Table
	if target != "" {
		next, err = e.lookup.Table(ctx, target)
		if err != nil {
			return &ResolutionError{Table: target, Msg: "cannot load referenced table", Err: err}
		}
		r.TargetTable = next.Name
		r.TargetColumn = targetCol
		r.Extension = false
	} else {
		next, err = e.extension(ctx, tbl, pk, r)
		if err != nil {
			return err
		}
	}
	if !r.EnabledSet {
		r.Enabled = true
	}
	if col, ok := tbl.Column(r.Name); ok {
		r.Type = col.Type
	}
	if col, ok := next.Column(r.TargetColumn); ok {
		r.TargetType = col.Type
	}

	nextPK := ""
	if pks, err := e.lookup.PrimaryKeys(ctx, next.Name); err == nil && len(pks) == 1 {
		nextPK = pks[0]
	}
	for _, child := range r.Attributes {
		if err := e.node(ctx, next, nextPK, child); err != nil {
			return err
		}
	}
	return nil
}

// extension разрешает ссылку без внешнего ключа через общую таблицу.
func (e *SchemaEnricher) extension(ctx context.Context, tbl *schema.Table, pk string, r *mapping.Reference) (*schema.Table, error) {
	extName := r.ExtTable
	if extName == "" {
		extName = e.opts.GenericTable
	}
	if pk == "" {
		return nil, &ResolutionError{Table: tbl.Name, Column: r.Name, Msg: "extension relation needs a single-column primary key on " + tbl.Name}
	}
	generic := strings.EqualFold(extName, e.opts.GenericTable)
	if generic && r.Qualifier == "" {
		return nil, &ResolutionError{Table: tbl.Name, Column: r.Name, Msg: fmt.Sprintf("no foreign key and no qualifier for generic table %s", extName)}
	}
	ext, err := e.lookup.Table(ctx, extName)
	if err != nil {
		return nil, &ResolutionError{Table: extName, Column: r.Name, Msg: "cannot load extension table", Err: err}
	}
	targetCol := r.TargetName
	if targetCol == "" {
		targetCol = e.opts.GenericIDColumn
	}
	if _, ok := ext.Column(targetCol); !ok {
		return nil, &ResolutionError{Table: ext.Name, Column: targetCol, Msg: "extension id column does not exist", Err: schema.ErrColumnNotFound}
	}
	if r.Qualifier != "" {
		if _, ok := ext.Column(e.opts.QualifierColumn); !ok {
			return nil, &ResolutionError{Table: ext.Name, Column: e.opts.QualifierColumn, Msg: "qualifier column does not exist", Err: schema.ErrColumnNotFound}
		}
	}
	r.TargetTable = ext.Name
	r.TargetColumn = targetCol
	r.ParentKey = pk
	r.Extension = true
	return ext, nil
}

func isJSONType(t string) bool {
	t = strings.ToLower(t)
	return t == "json" || t == "jsonb"
}
