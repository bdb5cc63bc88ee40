// Package sqlgen рендерит обогащённое дерево маппинга в параметризованный SQL:
// select текущего состояния и insert/update/delete для одной записи.
//
// Значения никогда не подставляются в текст: каждый лист пишется как :param,
// литералами идут только квалификаторы extension-таблиц и ключи jsonb.
package sqlgen

import (
	"errors"
	"strings"

	"tablesync/internal/mapping"
)

var (
	ErrNoColumns          = errors.New("mapping has no active columns")
	ErrNoUniqueColumns    = errors.New("mapping has no unique columns to identify a row")
	ErrNothingToUpdate    = errors.New("no settable columns in update")
	ErrMultipleExtensions = errors.New("more than one root extension relation in one row")
	ErrNestedExtension    = errors.New("extension relation inside an extension write is not supported")
	ErrNoReturnColumn     = errors.New("extension write needs a primary key or return_id on the root table")
)

// ReturnedIDParam — параметр зависимого оператора: значение из returning основного.
const ReturnedIDParam = "returned_id"

// Statement — один SQL-оператор с именами параметров в порядке первого появления.
type Statement struct {
	Table     string   `json:"table"`
	SQL       string   `json:"sql"`
	Params    []string `json:"params"`
	Returning string   `json:"returning,omitempty"`
	// UsesReturnedID: оператор ждёт :returned_id от основного
	UsesReturnedID bool `json:"usesReturnedId,omitempty"`
}

// Plan — основной оператор и (не всегда) второй, выполняемый следом в той же точке сохранения.
type Plan struct {
	Primary   *Statement `json:"primary"`
	Dependent *Statement `json:"dependent,omitempty"`
}

// Statements возвращает операторы плана в порядке выполнения.
func (p *Plan) Statements() []*Statement {
	if p.Dependent == nil {
		return []*Statement{p.Primary}
	}
	return []*Statement{p.Primary, p.Dependent}
}

type Options struct {
	QualifierColumn string
}

type Renderer struct {
	opts Options
}

func New(opts Options) *Renderer {
	if opts.QualifierColumn == "" {
		opts.QualifierColumn = "qualifier"
	}
	return &Renderer{opts: opts}
}

func (r *Renderer) newBuilder() *builder {
	return &builder{opts: r.opts, seen: map[string]bool{}}
}

// builder копит параметры одного оператора
type builder struct {
	opts   Options
	params []string
	seen   map[string]bool
}

func (b *builder) param(name string) string {
	if !b.seen[name] {
		b.seen[name] = true
		b.params = append(b.params, name)
	}
	return ":" + name
}

func castTo(expr, typ string) string {
	if typ == "" {
		return expr
	}
	return "cast(" + expr + " as " + typ + ")"
}

func (b *builder) typed(a *mapping.Attribute) string { return castTo(b.param(a.Parameter), a.Type) }

func (b *builder) text(a *mapping.Attribute) string { return castTo(b.param(a.Parameter), "text") }

// compare — предикат листа: alias.col = :p или alias.col->>'key' = :p
func (b *builder) compare(alias string, a *mapping.Attribute) string {
	if a.Key != "" {
		return qualified(alias, a.Name) + "->>" + quoteLiteral(a.Key) + " = " + b.text(a)
	}
	return qualified(alias, a.Name) + " = " + b.typed(a)
}

func (b *builder) statement(table, sql string) *Statement {
	return &Statement{Table: table, SQL: sql, Params: append([]string(nil), b.params...)}
}

func aliasOf(r *mapping.Reference) string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.TargetTable
}

// jsonKeys группирует key-атрибуты по колонке в порядке появления
type jsonKeys struct {
	cols []*jsonColumn
}

type jsonColumn struct {
	name, typ string
	attrs     []*mapping.Attribute
}

func (k *jsonKeys) add(a *mapping.Attribute) {
	for _, c := range k.cols {
		if c.name == a.Name {
			c.attrs = append(c.attrs, a)
			return
		}
	}
	k.cols = append(k.cols, &jsonColumn{name: a.Name, typ: a.Type, attrs: []*mapping.Attribute{a}})
}

func asJSONType(expr, typ string) string {
	if strings.EqualFold(typ, "json") {
		return castTo(expr, "json")
	}
	return expr
}

// buildObject: jsonb_build_object('k1', :p1, 'k2', :p2)
func (b *builder) buildObject(c *jsonColumn) string {
	parts := make([]string, 0, len(c.attrs)*2)
	for _, a := range c.attrs {
		parts = append(parts, quoteLiteral(a.Key), b.text(a))
	}
	return asJSONType("jsonb_build_object("+strings.Join(parts, ", ")+")", c.typ)
}

// setKeys: цепочка jsonb_set поверх текущего значения колонки
func (b *builder) setKeys(alias string, c *jsonColumn) string {
	expr := "coalesce(" + castTo(qualified(alias, c.name), "jsonb") + ", cast('{}' as jsonb))"
	for _, a := range c.attrs {
		expr = "jsonb_set(" + expr + ", " + quoteLiteral("{"+a.Key+"}") + ", to_jsonb(" + b.text(a) + "))"
	}
	return asJSONType(expr, c.typ)
}

func activeNodes(ent *mapping.Entity) []mapping.Node {
	var out []mapping.Node
	for _, c := range ent.Columns {
		for _, n := range c.Nodes {
			if mapping.Active(n) {
				out = append(out, n)
			}
		}
	}
	return out
}

// rootNodes — активные узлы непустых колонок; unique=true берёт ключевые колонки, false — остальные.
func rootNodes(ent *mapping.Entity, unique bool) []mapping.Node {
	var out []mapping.Node
	for _, c := range ent.Columns {
		if c.Empty() || c.Unique() != unique {
			continue
		}
		for _, n := range c.Nodes {
			if mapping.Active(n) {
				out = append(out, n)
			}
		}
	}
	return out
}
