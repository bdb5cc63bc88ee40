package mapping

import "strings"

// Entity описывает разобранный заголовок: целевая таблица и колонки в порядке входных данных.
type Entity struct {
	Table      string   `json:"table"`
	PrimaryKey string   `json:"primaryKey,omitempty"`
	Columns    []Column `json:"columns"`
}

// Column — один слот заголовка. Пустой слот (без узлов) сохраняет позицию входной колонки.
// Несколько узлов означают составную колонку "a:b": одно значение ячейки на все узлы.
type Column struct {
	Nodes []Node `json:"nodes"`
}

// Node — закрытое объединение: *Attribute | *Reference.
type Node interface {
	Meta() *Base
	node()
}

// Base — общие поля атрибута и ссылки
type Base struct {
	Name         string  `json:"name"`
	Unique       bool    `json:"unique,omitempty"`
	Skip         bool    `json:"skip,omitempty"`
	OrmOnly      bool    `json:"ormOnly,omitempty"`
	Enabled      bool    `json:"enabled"`
	EnabledSet   bool    `json:"-"` // enabled задан модификатором явно
	PrimaryKey   bool    `json:"primaryKey,omitempty"`
	InUse        bool    `json:"inUse,omitempty"`
	Default      bool    `json:"default,omitempty"`
	Deduplicate  bool    `json:"deduplicate,omitempty"`
	Exp          string  `json:"exp,omitempty"`
	DefaultValue *string `json:"defaultValue,omitempty"`
	Substitute   string  `json:"substitute,omitempty"`
	Key          string  `json:"key,omitempty"` // подполе jsonb-колонки
}

func (b *Base) Meta() *Base { return b }

// Attribute — лист дерева: обычная колонка таблицы.
type Attribute struct {
	Base
	Type      string `json:"type,omitempty"`
	Parameter string `json:"parameter,omitempty"`
	Filter    string `json:"filter,omitempty"` // шаблон предиката, "$" заменяется на колонку
	URL       string `json:"url,omitempty"`
}

// Reference — узел соединения: внешний ключ или extension-отношение.
type Reference struct {
	Base
	Attributes   []Node `json:"attributes"`
	TargetTable  string `json:"targetTable,omitempty"`
	TargetColumn string `json:"targetColumn,omitempty"`
	Type         string `json:"type,omitempty"`       // тип колонки внешнего ключа
	TargetType   string `json:"targetType,omitempty"` // тип целевой колонки
	ParentKey    string `json:"parentKey,omitempty"`  // ключ родительской таблицы для extension
	Alias        string `json:"alias,omitempty"`
	Extension    bool   `json:"extension,omitempty"`
	Qualifier    string `json:"qualifier,omitempty"`
	ExtTable     string `json:"extTable,omitempty"`   // модификатор table
	TargetName   string `json:"targetName,omitempty"` // модификатор target-name / name
	ReturnID     string `json:"returnId,omitempty"`

	// Null выставляется на копии дерева, когда все значения ссылки пустые:
	// колонка пишется как null без соединения.
	Null bool `json:"-"`
}

func (*Attribute) node() {}
func (*Reference) node() {}

// Active: узел участвует в SQL.
func Active(n Node) bool {
	b := n.Meta()
	return b.Enabled && !b.Skip && !b.OrmOnly
}

func (c Column) Empty() bool { return len(c.Nodes) == 0 }

// Unique: колонка входит в ключ записи.
func (c Column) Unique() bool {
	for _, n := range c.Nodes {
		if n.Meta().Unique {
			return true
		}
	}
	return false
}

// Leaf — лист колонки вместе с путём от корня колонки.
// Active: лист и все его предки участвуют в SQL.
type Leaf struct {
	Path   string
	Attr   *Attribute
	Active bool
}

// Leaves возвращает все листья колонки в порядке обхода (в том числе skip/orm_only):
// позиция листа совпадает с позицией значения в составной ячейке.
func (c Column) Leaves() []Leaf {
	var out []Leaf
	for _, n := range c.Nodes {
		out = appendLeaves(out, "", n, true)
	}
	return out
}

func appendLeaves(out []Leaf, prefix string, n Node, active bool) []Leaf {
	active = active && Active(n)
	switch t := n.(type) {
	case *Attribute:
		path := prefix + t.Name
		if t.Key != "" {
			path += "->" + t.Key
		}
		return append(out, Leaf{Path: path, Attr: t, Active: active})
	case *Reference:
		for _, child := range t.Attributes {
			out = appendLeaves(out, prefix+t.Name+".", child, active)
		}
	}
	return out
}

// Header — каноничное имя колонки: пути листьев через ":" ("authorid.name", "a:b", "meta->isbn").
func (c Column) Header() string {
	leaves := c.Leaves()
	parts := make([]string, len(leaves))
	for i, l := range leaves {
		parts[i] = l.Path
	}
	return strings.Join(parts, ":")
}

// Headers возвращает заголовки непустых колонок в порядке слотов.
func (e *Entity) Headers() []string {
	out := make([]string, 0, len(e.Columns))
	for _, c := range e.Columns {
		if !c.Empty() {
			out = append(out, c.Header())
		}
	}
	return out
}

// UniqueHeaders — заголовки колонок, образующих ключ записи.
func (e *Entity) UniqueHeaders() []string {
	var out []string
	for _, c := range e.Columns {
		if !c.Empty() && c.Unique() {
			out = append(out, c.Header())
		}
	}
	return out
}

// RootExtensions — extension-ссылки верхнего уровня (на первичный ключ корневой таблицы).
func (e *Entity) RootExtensions() []*Reference {
	var out []*Reference
	for _, c := range e.Columns {
		for _, n := range c.Nodes {
			if r, ok := n.(*Reference); ok && r.Extension && Active(r) {
				out = append(out, r)
			}
		}
	}
	return out
}

// Deduplicate: хотя бы один атрибут разрешает схлопывать дубликаты ключа.
func (e *Entity) Deduplicate() bool {
	found := false
	for _, c := range e.Columns {
		Walk(c.Nodes, func(n Node) bool {
			if n.Meta().Deduplicate {
				found = true
			}
			return !found
		})
	}
	return found
}

// Walk обходит дерево в глубину в порядке списка атрибутов. fn=false останавливает спуск в узел.
func Walk(nodes []Node, fn func(Node) bool) {
	for _, n := range nodes {
		if !fn(n) {
			continue
		}
		if r, ok := n.(*Reference); ok {
			Walk(r.Attributes, fn)
		}
	}
}

// Clone делает глубокую копию сущности; узлы копии можно менять независимо.
func (e *Entity) Clone() *Entity {
	out := &Entity{Table: e.Table, PrimaryKey: e.PrimaryKey, Columns: make([]Column, len(e.Columns))}
	for i, c := range e.Columns {
		out.Columns[i] = Column{Nodes: cloneNodes(c.Nodes)}
	}
	return out
}

func cloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		switch t := n.(type) {
		case *Attribute:
			cp := *t
			out[i] = &cp
		case *Reference:
			cp := *t
			cp.Attributes = cloneNodes(t.Attributes)
			out[i] = &cp
		}
	}
	return out
}

// Only возвращает копию, в которой оставлены только колонки с заданными заголовками;
// остальные слоты становятся пустыми (позиции сохраняются).
func (e *Entity) Only(headers map[string]bool) *Entity {
	out := e.Clone()
	for i, c := range out.Columns {
		if c.Empty() || !headers[c.Header()] {
			out.Columns[i] = Column{}
			continue
		}
		Walk(c.Nodes, func(n Node) bool {
			n.Meta().InUse = true
			return true
		})
	}
	return out
}
