package sqlgen

import (
	"strings"

	"tablesync/internal/mapping"
)

// fkMode — режим построителя условий по ссылкам; один построитель обслуживает все четыре оператора.
type fkMode struct {
	insert   bool // корневые extension пропускаются: ключа строки ещё нет
	delete   bool // на корне участвуют только ключевые колонки
	pkLookup bool // ссылка на первичный ключ пишется значением, без соединения
	outer    bool // select: left join, без предикатов по значениям
}

// scope — родитель ссылки
type scope struct {
	alias  string
	root   bool
	unique bool
}

// lookup — результат разбора одной ссылки
type lookup struct {
	item   string   // FROM-элемент
	joins  []string // вложенные соединения в порядке родитель -> потомок
	link   string   // связь с родителем
	value  string   // значение колонки внешнего ключа
	conds  []string // предикаты по значениям листьев
	direct bool     // FROM-элемент не нужен: null или pk-lookup
}

func (l lookup) from() string {
	if len(l.joins) == 0 {
		return l.item
	}
	return l.item + " " + strings.Join(l.joins, " ")
}

// pkChild возвращает единственный активный лист ссылки, если это целевой первичный ключ.
func pkChild(r *mapping.Reference) *mapping.Attribute {
	var found *mapping.Attribute
	for _, n := range r.Attributes {
		if !mapping.Active(n) {
			continue
		}
		a, ok := n.(*mapping.Attribute)
		if !ok || found != nil || !a.PrimaryKey || a.Key != "" || !strings.EqualFold(a.Name, r.TargetColumn) {
			return nil
		}
		found = a
	}
	return found
}

func (b *builder) extensionLink(parent string, r *mapping.Reference) string {
	alias := aliasOf(r)
	link := qualified(alias, r.TargetColumn) + " = " + qualified(parent, r.ParentKey)
	if r.Qualifier != "" {
		link += " and " + qualified(alias, b.opts.QualifierColumn) + " = " + quoteLiteral(r.Qualifier)
	}
	return link
}

// foreignKeyWhere разбирает ссылку r под родителем s. false — ссылка в этом режиме не участвует.
func (b *builder) foreignKeyWhere(s scope, r *mapping.Reference, m fkMode) (lookup, bool) {
	if !mapping.Active(r) {
		return lookup{}, false
	}
	if s.root && m.insert && r.Extension {
		return lookup{}, false
	}
	if s.root && m.delete && !s.unique {
		return lookup{}, false
	}

	alias := aliasOf(r)
	if r.Null && !m.outer {
		if r.Extension {
			return lookup{direct: true, link: "not exists (select 1 from " + tableRef(r.TargetTable, alias) +
				" where " + b.extensionLink(s.alias, r) + ")"}, true
		}
		return lookup{direct: true, value: castTo("null", r.Type), link: qualified(s.alias, r.Name) + " is null"}, true
	}
	if m.pkLookup && !r.Extension {
		if a := pkChild(r); a != nil {
			v := b.typed(a)
			return lookup{direct: true, value: v, link: qualified(s.alias, r.Name) + " = " + v}, true
		}
	}

	l := lookup{item: tableRef(r.TargetTable, alias)}
	if r.Extension {
		l.link = b.extensionLink(s.alias, r)
	} else {
		target := qualified(alias, r.TargetColumn)
		l.link = qualified(s.alias, r.Name) + " = " + target
		l.value = target
	}

	for _, child := range r.Attributes {
		switch c := child.(type) {
		case *mapping.Attribute:
			if mapping.Active(c) && !m.outer {
				l.conds = append(l.conds, b.compare(alias, c))
			}
		case *mapping.Reference:
			sub, ok := b.foreignKeyWhere(scope{alias: alias}, c, m)
			if !ok {
				continue
			}
			if sub.direct {
				l.conds = append(l.conds, sub.link)
				continue
			}
			kw := "join"
			if m.outer && !c.Extension {
				kw = "left join"
			}
			l.joins = append(l.joins, kw+" "+sub.item+" on "+sub.link)
			l.joins = append(l.joins, sub.joins...)
			l.conds = append(l.conds, sub.conds...)
		}
	}
	return l, true
}

// identify — FROM-элементы и предикаты, однозначно находящие строку по ключевым колонкам.
func (b *builder) identify(ent *mapping.Entity, m fkMode) (items, conds []string) {
	root := scope{alias: ent.Table, root: true, unique: true}
	for _, n := range rootNodes(ent, true) {
		switch t := n.(type) {
		case *mapping.Attribute:
			conds = append(conds, b.compare(ent.Table, t))
		case *mapping.Reference:
			l, ok := b.foreignKeyWhere(root, t, m)
			if !ok {
				continue
			}
			if l.direct {
				conds = append(conds, l.link)
				continue
			}
			items = append(items, l.from())
			conds = append(conds, l.link)
			conds = append(conds, l.conds...)
		}
	}
	return items, conds
}
