package executor

import (
	"errors"
	"fmt"
	"strings"

	"tablesync/internal/diff"
	"tablesync/internal/mapping"
	"tablesync/internal/sqlgen"
	"tablesync/internal/value"
)

var ErrMissingParam = errors.New("no value for bind parameter")

// Substituter переводит имя из входных данных в код справочника.
type Substituter interface {
	Code(domain, name string) (string, bool, error)
}

// Creator строит исполнителей из строк диффа для одного обогащённого маппинга.
type Creator struct {
	ent      *mapping.Entity
	renderer *sqlgen.Renderer
	subst    Substituter
}

func NewCreator(ent *mapping.Entity, r *sqlgen.Renderer, subst Substituter) *Creator {
	return &Creator{ent: ent, renderer: r, subst: subst}
}

// NewFailed — исполнитель для строки, отвергнутой до рендера (например, повтор ключа).
func NewFailed(line int, op Operation, table string, err error) *Executor {
	return failedExecutor(line, op, table, err)
}

// CreateAll: inserts, updates, deletes в порядке диффа.
func (c *Creator) CreateAll(res diff.Result) []*Executor {
	out := make([]*Executor, 0, len(res.Inserts)+len(res.Updates)+len(res.Deletes))
	for _, r := range res.Inserts {
		out = append(out, c.Create(OpInsert, r))
	}
	for _, r := range res.Updates {
		out = append(out, c.Create(OpUpdate, r))
	}
	for _, r := range res.Deletes {
		out = append(out, c.Create(OpDelete, r))
	}
	return out
}

// Create никогда не возвращает ошибку: сбой подготовки строки даёт FAILED-исполнителя.
func (c *Creator) Create(op Operation, rec *diff.Record) *Executor {
	ex, err := c.create(op, rec)
	if err != nil {
		var rv *RowValueError
		if !errors.As(err, &rv) {
			err = &RowValueError{Line: rec.Line, Err: err}
		}
		return failedExecutor(rec.Line, op, c.ent.Table, err)
	}
	return ex
}

func (c *Creator) create(op Operation, rec *diff.Record) (*Executor, error) {
	// 1-2. дерево только из колонок, для которых в строке есть значение
	present := map[string]bool{}
	for _, col := range c.ent.Columns {
		if col.Empty() {
			continue
		}
		h := col.Header()
		v, ok := rec.Values[h]
		if !ok {
			continue
		}
		if op == OpInsert && value.Empty(v) && hasDefault(col) {
			continue
		}
		present[h] = true
	}
	ent := c.ent.Only(present)

	// 4-6. значения по параметрам: деление составных ячеек и приведение типов
	params := map[string]any{}
	for _, col := range ent.Columns {
		if col.Empty() {
			continue
		}
		h := col.Header()
		leaves := col.Leaves()
		parts, err := value.Split(value.Canonical(rec.Values[h]), len(leaves))
		if err != nil {
			return nil, &RowValueError{Line: rec.Line, Header: h, Err: err}
		}
		for i, leaf := range leaves {
			if !leaf.Active {
				continue
			}
			v, err := c.scalar(leaf.Attr, parts[i])
			if err != nil {
				return nil, &RowValueError{Line: rec.Line, Header: leaf.Path, Err: err}
			}
			params[leaf.Attr.Parameter] = v
		}
	}
	markNull(ent, params)

	n := 0
	for _, r := range ent.RootExtensions() {
		if !r.Null {
			n++
		}
	}
	if n > 1 {
		return nil, &RowValueError{Line: rec.Line, Err: sqlgen.ErrMultipleExtensions}
	}

	// 3. рендер отфильтрованного дерева
	var (
		plan *sqlgen.Plan
		err  error
	)
	switch op {
	case OpInsert:
		plan, err = c.renderer.Insert(ent)
	case OpUpdate:
		plan, err = c.renderer.Update(ent)
	case OpDelete:
		plan, err = c.renderer.Delete(ent)
	default:
		err = fmt.Errorf("unknown operation %q", op)
	}
	if err != nil {
		return nil, &RowValueError{Line: rec.Line, Err: err}
	}

	bound := map[string]any{}
	for _, st := range plan.Statements() {
		for _, p := range st.Params {
			if p == sqlgen.ReturnedIDParam && st.UsesReturnedID {
				continue
			}
			v, ok := params[p]
			if !ok {
				return nil, &RowValueError{Line: rec.Line, Err: fmt.Errorf("%w %q", ErrMissingParam, p)}
			}
			bound[p] = v
		}
	}
	line := rec.Line
	if op == OpDelete {
		line = 0
	}
	return &Executor{Line: line, Operation: op, Table: c.ent.Table, Plan: plan, Params: bound, Status: Pending}, nil
}

// scalar: подстановка по справочнику, затем приведение к типу колонки
func (c *Creator) scalar(a *mapping.Attribute, raw string) (any, error) {
	s := raw
	if a.Substitute != "" && strings.TrimSpace(s) != "" {
		if c.subst == nil {
			return nil, fmt.Errorf("substitute=%s but no catalog loaded", a.Substitute)
		}
		code, ok, err := c.subst.Code(a.Substitute, s)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%q is not in substitution domain %s", strings.TrimSpace(s), a.Substitute)
		}
		s = code
	}
	typ := a.Type
	if a.Key != "" {
		typ = "text"
	}
	return value.Coerce(s, typ)
}

func hasDefault(col mapping.Column) bool {
	for _, l := range col.Leaves() {
		if l.Attr.Default {
			return true
		}
	}
	for _, n := range col.Nodes {
		if n.Meta().Default {
			return true
		}
	}
	return false
}

// markNull помечает ссылки, у которых все активные листья пустые.
func markNull(ent *mapping.Entity, params map[string]any) {
	for _, col := range ent.Columns {
		mapping.Walk(col.Nodes, func(n mapping.Node) bool {
			r, ok := n.(*mapping.Reference)
			if !ok || !mapping.Active(r) {
				return true
			}
			if allNull(r.Attributes, params) {
				r.Null = true
				return false
			}
			return true
		})
	}
}

func allNull(nodes []mapping.Node, params map[string]any) bool {
	seen := false
	for _, n := range nodes {
		if !mapping.Active(n) {
			continue
		}
		switch t := n.(type) {
		case *mapping.Attribute:
			seen = true
			if params[t.Parameter] != nil {
				return false
			}
		case *mapping.Reference:
			seen = true
			if !allNull(t.Attributes, params) {
				return false
			}
		}
	}
	return seen
}
