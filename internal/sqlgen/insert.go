package sqlgen

import (
	"strings"

	"tablesync/internal/mapping"
)

type fixedValue struct {
	col, value string
}

// insertInto строит insert ... select для узлов одного уровня. Extension-ссылка
// не пишется, а возвращается вызывающему: её строка вставляется отдельно.
func (b *builder) insertInto(table string, nodes []mapping.Node, fixed []fixedValue) (string, *mapping.Reference, error) {
	var (
		cols, vals, from, where []string
		keys                    jsonKeys
		ext                     *mapping.Reference
	)
	for _, f := range fixed {
		cols = append(cols, ident(f.col))
		vals = append(vals, f.value)
	}
	for _, n := range nodes {
		if !mapping.Active(n) {
			continue
		}
		switch t := n.(type) {
		case *mapping.Attribute:
			if t.Key != "" {
				keys.add(t)
				continue
			}
			cols = append(cols, ident(t.Name))
			vals = append(vals, b.typed(t))
		case *mapping.Reference:
			if t.Extension {
				if t.Null {
					continue
				}
				if ext != nil {
					return "", nil, ErrMultipleExtensions
				}
				ext = t
				continue
			}
			l, ok := b.foreignKeyWhere(scope{alias: table, root: true}, t, fkMode{insert: true, pkLookup: true})
			if !ok {
				continue
			}
			cols = append(cols, ident(t.Name))
			vals = append(vals, l.value)
			if !l.direct {
				from = append(from, l.from())
				where = append(where, l.conds...)
			}
		}
	}
	for _, c := range keys.cols {
		cols = append(cols, ident(c.name))
		vals = append(vals, b.buildObject(c))
	}

	if len(cols) == 0 {
		return "insert into " + ident(table) + " default values", ext, nil
	}
	var sb strings.Builder
	sb.WriteString("insert into ")
	sb.WriteString(ident(table))
	sb.WriteString("(")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(") select ")
	sb.WriteString(strings.Join(vals, ", "))
	if len(from) > 0 {
		sb.WriteString(" from ")
		sb.WriteString(strings.Join(from, ", "))
	}
	if len(where) > 0 {
		sb.WriteString(" where ")
		sb.WriteString(strings.Join(where, " and "))
	}
	return sb.String(), ext, nil
}

// Insert строит вставку одной записи. Ссылки превращаются в подзапрос по связанным
// таблицам: если связанная строка ещё не существует, вставится ноль строк.
// Корневая extension-ссылка даёт returning и зависимую вставку в extension-таблицу.
func (r *Renderer) Insert(ent *mapping.Entity) (*Plan, error) {
	b := r.newBuilder()
	sql, ext, err := b.insertInto(ent.Table, activeNodes(ent), nil)
	if err != nil {
		return nil, err
	}

	primary := b.statement(ent.Table, sql)
	if ext == nil {
		return &Plan{Primary: primary}, nil
	}

	ret := ext.ReturnID
	if ret == "" {
		ret = ent.PrimaryKey
	}
	if ret == "" {
		return nil, ErrNoReturnColumn
	}
	primary.SQL += " returning " + ident(ret)
	primary.Returning = ret

	db := r.newBuilder()
	fixed := []fixedValue{{col: ext.TargetColumn, value: castTo(db.param(ReturnedIDParam), ext.TargetType)}}
	if ext.Qualifier != "" {
		fixed = append(fixed, fixedValue{col: r.opts.QualifierColumn, value: quoteLiteral(ext.Qualifier)})
	}
	dsql, nested, err := db.insertInto(ext.TargetTable, ext.Attributes, fixed)
	if err != nil {
		return nil, err
	}
	if nested != nil {
		return nil, ErrNestedExtension
	}
	dep := db.statement(ext.TargetTable, dsql)
	dep.UsesReturnedID = true
	return &Plan{Primary: primary, Dependent: dep}, nil
}
