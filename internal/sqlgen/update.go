package sqlgen

import (
	"strings"

	"tablesync/internal/mapping"
)

// assignments — set-часть для узлов одного уровня под алиасом alias.
func (b *builder) assignments(alias string, nodes []mapping.Node) (sets, from, conds []string, ext *mapping.Reference, err error) {
	var keys jsonKeys
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
			sets = append(sets, ident(t.Name)+" = "+b.typed(t))
		case *mapping.Reference:
			if t.Extension {
				if ext != nil {
					return nil, nil, nil, nil, ErrMultipleExtensions
				}
				ext = t
				continue
			}
			l, ok := b.foreignKeyWhere(scope{alias: alias, root: true}, t, fkMode{pkLookup: true})
			if !ok {
				continue
			}
			sets = append(sets, ident(t.Name)+" = "+l.value)
			if !l.direct {
				from = append(from, l.from())
				conds = append(conds, l.conds...)
			}
		}
	}
	for _, c := range keys.cols {
		sets = append(sets, ident(c.name)+" = "+b.setKeys(alias, c))
	}
	return sets, from, conds, ext, nil
}

// Update строит обновление записи, найденной по ключевым колонкам. Изменённая корневая
// extension-ссылка пишется отдельным оператором: update строки extension-таблицы
// или её удаление, если новое значение пустое.
func (r *Renderer) Update(ent *mapping.Entity) (*Plan, error) {
	b := r.newBuilder()
	items, conds := b.identify(ent, fkMode{pkLookup: true})
	if len(conds) == 0 {
		return nil, ErrNoUniqueColumns
	}
	sets, setFrom, setConds, ext, err := b.assignments(ent.Table, rootNodes(ent, false))
	if err != nil {
		return nil, err
	}

	plan := &Plan{}
	if len(sets) > 0 {
		var sb strings.Builder
		sb.WriteString("update ")
		sb.WriteString(ident(ent.Table))
		sb.WriteString(" set ")
		sb.WriteString(strings.Join(sets, ", "))
		if from := append(items, setFrom...); len(from) > 0 {
			sb.WriteString(" from ")
			sb.WriteString(strings.Join(from, ", "))
		}
		sb.WriteString(" where ")
		sb.WriteString(strings.Join(append(conds, setConds...), " and "))
		plan.Primary = b.statement(ent.Table, sb.String())
	}
	if ext != nil {
		st, err := r.extensionWrite(ent, ext)
		if err != nil {
			return nil, err
		}
		if plan.Primary == nil {
			plan.Primary = st
		} else {
			plan.Dependent = st
		}
	}
	if plan.Primary == nil {
		return nil, ErrNothingToUpdate
	}
	return plan, nil
}

// extensionWrite — update или delete строки extension-таблицы, привязанной к записи.
func (r *Renderer) extensionWrite(ent *mapping.Entity, ext *mapping.Reference) (*Statement, error) {
	b := r.newBuilder()
	items, conds := b.identify(ent, fkMode{pkLookup: true})
	alias := aliasOf(ext)
	from := append([]string{ident(ent.Table)}, items...)
	where := append([]string{b.extensionLink(ent.Table, ext)}, conds...)

	var sb strings.Builder
	if ext.Null {
		sb.WriteString("delete from ")
		sb.WriteString(tableRef(ext.TargetTable, alias))
		sb.WriteString(" using ")
		sb.WriteString(strings.Join(from, ", "))
		sb.WriteString(" where ")
		sb.WriteString(strings.Join(where, " and "))
		return b.statement(ext.TargetTable, sb.String()), nil
	}

	sets, setFrom, setConds, nested, err := b.assignments(alias, ext.Attributes)
	if err != nil {
		return nil, err
	}
	if nested != nil {
		return nil, ErrNestedExtension
	}
	if len(sets) == 0 {
		return nil, ErrNothingToUpdate
	}
	sb.WriteString("update ")
	sb.WriteString(tableRef(ext.TargetTable, alias))
	sb.WriteString(" set ")
	sb.WriteString(strings.Join(sets, ", "))
	sb.WriteString(" from ")
	sb.WriteString(strings.Join(append(from, setFrom...), ", "))
	sb.WriteString(" where ")
	sb.WriteString(strings.Join(append(where, setConds...), " and "))
	return b.statement(ext.TargetTable, sb.String()), nil
}
