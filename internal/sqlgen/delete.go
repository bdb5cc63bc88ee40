package sqlgen

import (
	"strings"

	"tablesync/internal/mapping"
)

// Delete строит удаление записи по ключевым колонкам. Если в записи есть корневая
// extension-ссылка, удаление возвращает ключ и следом удаляет строку extension-таблицы.
func (r *Renderer) Delete(ent *mapping.Entity) (*Plan, error) {
	b := r.newBuilder()
	items, conds := b.identify(ent, fkMode{delete: true, pkLookup: true})
	if len(conds) == 0 {
		return nil, ErrNoUniqueColumns
	}
	var sb strings.Builder
	sb.WriteString("delete from ")
	sb.WriteString(ident(ent.Table))
	if len(items) > 0 {
		sb.WriteString(" using ")
		sb.WriteString(strings.Join(items, ", "))
	}
	sb.WriteString(" where ")
	sb.WriteString(strings.Join(conds, " and "))

	exts := ent.RootExtensions()
	if len(exts) > 1 {
		return nil, ErrMultipleExtensions
	}
	if len(exts) == 0 || exts[0].Null {
		return &Plan{Primary: b.statement(ent.Table, sb.String())}, nil
	}

	ext := exts[0]
	sb.WriteString(" returning ")
	sb.WriteString(qualified(ent.Table, ext.ParentKey))
	primary := b.statement(ent.Table, sb.String())
	primary.Returning = ext.ParentKey

	db := r.newBuilder()
	alias := aliasOf(ext)
	where := []string{qualified(alias, ext.TargetColumn) + " = " + castTo(db.param(ReturnedIDParam), ext.TargetType)}
	if ext.Qualifier != "" {
		where = append(where, qualified(alias, r.opts.QualifierColumn)+" = "+quoteLiteral(ext.Qualifier))
	}
	for _, n := range ext.Attributes {
		if a, ok := n.(*mapping.Attribute); ok && mapping.Active(a) {
			where = append(where, db.compare(alias, a))
		}
	}
	dep := db.statement(ext.TargetTable, "delete from "+tableRef(ext.TargetTable, alias)+" where "+strings.Join(where, " and "))
	dep.UsesReturnedID = true
	return &Plan{Primary: primary, Dependent: dep}, nil
}
