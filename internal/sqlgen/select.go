package sqlgen

import (
	"strings"

	"tablesync/internal/mapping"
)

// leafExpr — выражение листа в select; в составной колонке приводится к тексту.
func leafExpr(alias string, a *mapping.Attribute, group bool) string {
	col := qualified(alias, a.Name)
	if a.Key != "" {
		e := col + "->>" + quoteLiteral(a.Key)
		if group {
			return "coalesce(" + e + ", '')"
		}
		return e
	}
	if group {
		return "coalesce(cast(" + col + " as text), '')"
	}
	return col
}

// columnExpr собирает выражение колонки. Неактивные листья составной колонки дают '',
// чтобы позиции значений совпадали с входной ячейкой.
func columnExpr(root string, c mapping.Column) (expr string, active bool) {
	group := len(c.Leaves()) > 1
	var parts []string
	var walk func(alias string, on bool, n mapping.Node)
	walk = func(alias string, on bool, n mapping.Node) {
		on = on && mapping.Active(n)
		switch t := n.(type) {
		case *mapping.Attribute:
			if !on {
				parts = append(parts, "''")
				return
			}
			active = true
			parts = append(parts, leafExpr(alias, t, group))
		case *mapping.Reference:
			for _, child := range t.Attributes {
				walk(aliasOf(t), on, child)
			}
		}
	}
	for _, n := range c.Nodes {
		walk(root, true, n)
	}
	expr = strings.Join(parts, " || ':' || ")
	if group {
		// пустая составная колонка читается как null, а не ":"
		expr = "nullif(" + expr + ", " + quoteLiteral(strings.Repeat(":", len(parts)-1)) + ")"
	}
	return expr, active
}

// filters — предикаты filter-шаблонов: "$" заменяется выражением колонки
func filters(alias string, nodes []mapping.Node, out []string) []string {
	for _, n := range nodes {
		if !mapping.Active(n) {
			continue
		}
		switch t := n.(type) {
		case *mapping.Attribute:
			if t.Filter != "" {
				out = append(out, "("+strings.ReplaceAll(t.Filter, "$", leafExpr(alias, t, false))+")")
			}
		case *mapping.Reference:
			out = filters(aliasOf(t), t.Attributes, out)
		}
	}
	return out
}

// Select строит запрос текущего состояния таблицы: колонки под своими заголовками,
// ссылки через left join, extension через join, сортировка по ключевым колонкам.
func (r *Renderer) Select(ent *mapping.Entity) (*Statement, error) {
	b := r.newBuilder()
	root := ent.Table
	var cols, joins, where, order []string
	for _, c := range ent.Columns {
		if c.Empty() {
			continue
		}
		expr, active := columnExpr(root, c)
		if !active {
			continue
		}
		cols = append(cols, expr+" as "+quoteIdent(c.Header()))
		if c.Unique() {
			order = append(order, expr)
		}
		for _, n := range c.Nodes {
			ref, ok := n.(*mapping.Reference)
			if !ok {
				continue
			}
			l, ok := b.foreignKeyWhere(scope{alias: root, root: true}, ref, fkMode{outer: true})
			if !ok {
				continue
			}
			kw := "left join"
			if ref.Extension {
				kw = "join"
			}
			joins = append(joins, kw+" "+l.item+" on "+l.link)
			joins = append(joins, l.joins...)
		}
		where = filters(root, c.Nodes, where)
	}
	if len(cols) == 0 {
		return nil, ErrNoColumns
	}

	var sb strings.Builder
	sb.WriteString("select ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" from ")
	sb.WriteString(ident(root))
	for _, j := range joins {
		sb.WriteString(" ")
		sb.WriteString(j)
	}
	if len(where) > 0 {
		sb.WriteString(" where ")
		sb.WriteString(strings.Join(where, " and "))
	}
	if len(order) > 0 {
		sb.WriteString(" order by ")
		sb.WriteString(strings.Join(order, ", "))
	}
	return b.statement(root, sb.String()), nil
}
