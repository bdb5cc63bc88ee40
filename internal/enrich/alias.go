package enrich

import (
	"errors"
	"fmt"

	"tablesync/internal/mapping"
)

var ErrAliasEnricherReused = errors.New("alias enricher is single-use")

// AliasEnricher раздаёт алиасы соединений и имена параметров.
// Счётчики не переиспользуются: один экземпляр — одно дерево.
type AliasEnricher struct {
	tables map[string]int
	params map[string]int
	taken  map[string]bool
	used   bool
}

func NewAliasEnricher() *AliasEnricher {
	return &AliasEnricher{
		tables: map[string]int{},
		params: map[string]int{},
		taken:  map[string]bool{},
	}
}

// Enrich обходит дерево в глубину в порядке списка атрибутов.
func (a *AliasEnricher) Enrich(ent *mapping.Entity) (*mapping.Entity, error) {
	if a.used || len(a.tables) > 0 || len(a.params) > 0 {
		return nil, ErrAliasEnricherReused
	}
	a.used = true

	// корневая таблица занимает своё имя: самоссылка получит books_1
	a.tables[ent.Table] = 1
	a.taken["t:"+ent.Table] = true

	for _, c := range ent.Columns {
		for _, n := range c.Nodes {
			a.node(n)
		}
	}
	return ent, nil
}

func (a *AliasEnricher) node(n mapping.Node) {
	if !mapping.Active(n) {
		return
	}
	switch t := n.(type) {
	case *mapping.Attribute:
		t.Parameter = a.next(a.params, "p:", t.Name)
	case *mapping.Reference:
		base := t.TargetTable
		if base == "" {
			base = t.Name
		}
		t.Alias = a.next(a.tables, "t:", base)
		for _, child := range t.Attributes {
			a.node(child)
		}
	}
}

func (a *AliasEnricher) next(counter map[string]int, ns, base string) string {
	for {
		n := counter[base]
		counter[base] = n + 1
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		if !a.taken[ns+name] {
			a.taken[ns+name] = true
			return name
		}
	}
}
