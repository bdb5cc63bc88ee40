package mapping

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// SyntaxError — некорректная ячейка заголовка. Разбор прерывается на первой ошибке.
type SyntaxError struct {
	Cell  int    // индекс ячейки (с 0)
	Token string // токен, на котором остановились
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("mapping cell %d: %s (at %q)", e.Cell, e.Msg, e.Token)
}

var ErrEmptyHeader = errors.New("mapping header is empty")

// булевы модификаторы: значение приводится к bool
var boolModifiers = map[string]func(*Base, bool){
	"unique":      func(b *Base, v bool) { b.Unique = v },
	"skip":        func(b *Base, v bool) { b.Skip = v },
	"orm_only":    func(b *Base, v bool) { b.OrmOnly = v },
	"enabled":     func(b *Base, v bool) { b.Enabled, b.EnabledSet = v, true },
	"primary_key": func(b *Base, v bool) { b.PrimaryKey = v },
	"in_use":      func(b *Base, v bool) { b.InUse = v },
	"default":     func(b *Base, v bool) { b.Default = v },
	"deduplicate": func(b *Base, v bool) { b.Deduplicate = v },
}

// Parse разбирает одну CSV-строку заголовка в Entity.
func Parse(table, header string) (*Entity, error) {
	if strings.TrimSpace(header) == "" {
		return nil, ErrEmptyHeader
	}
	r := csv.NewReader(strings.NewReader(header))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	cells, err := r.Read()
	if err != nil {
		return nil, &SyntaxError{Cell: 0, Token: header, Msg: "header is not a valid CSV line: " + err.Error()}
	}

	ent := &Entity{Table: table, Columns: make([]Column, 0, len(cells))}
	seen := map[string]int{}
	for i, cell := range cells {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			ent.Columns = append(ent.Columns, Column{})
			continue
		}
		p := &cellParser{cell: i, src: []rune(cell)}
		nodes, err := p.parseGroup(true)
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if !p.eof() {
			return nil, p.errorf("unexpected trailing input")
		}
		col := Column{Nodes: nodes}
		h := col.Header()
		if prev, dup := seen[h]; dup {
			return nil, &SyntaxError{Cell: i, Token: cell, Msg: fmt.Sprintf("duplicate header %q (also cell %d)", h, prev)}
		}
		seen[h] = i
		ent.Columns = append(ent.Columns, col)
	}
	return ent, nil
}

// cellParser — рекурсивный спуск по одной ячейке:
//
//	group     := attr (':' attr)*
//	attr      := NAME ['(' group ')'] modifiers*
//	modifiers := '[' kv (':' kv)* ']'
//	kv        := KEY ['=' (bare | "quoted")]
type cellParser struct {
	cell int
	src  []rune
	pos  int
}

func (p *cellParser) eof() bool { return p.pos >= len(p.src) }

func (p *cellParser) peek() rune {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *cellParser) skipSpace() {
	for !p.eof() && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

// token — текст текущего токена для сообщения об ошибке
func (p *cellParser) token() string {
	if p.eof() {
		return "<end of cell>"
	}
	start := p.pos
	end := start
	for end < len(p.src) && isNameRune(p.src[end]) {
		end++
	}
	if end == start {
		end = start + 1
	}
	return string(p.src[start:end])
}

func (p *cellParser) errorf(format string, args ...any) error {
	return &SyntaxError{Cell: p.cell, Token: p.token(), Msg: fmt.Sprintf(format, args...)}
}

func isNameRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (p *cellParser) name() (string, error) {
	p.skipSpace()
	start := p.pos
	for !p.eof() && isNameRune(p.src[p.pos]) {
		p.pos++
	}
	if start == p.pos {
		return "", p.errorf("expected name")
	}
	return string(p.src[start:p.pos]), nil
}

func (p *cellParser) parseGroup(top bool) ([]Node, error) {
	var out []Node
	for {
		n, err := p.parseAttr(top)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
		p.skipSpace()
		if p.peek() != ':' {
			return out, nil
		}
		p.pos++
	}
}

func (p *cellParser) parseAttr(top bool) (Node, error) {
	name, err := p.name()
	if err != nil {
		return nil, err
	}
	var node Node
	p.skipSpace()
	if p.peek() == '(' {
		p.pos++
		p.skipSpace()
		if p.peek() == ')' {
			return nil, p.errorf("reference %q has empty attribute list", name)
		}
		children, err := p.parseGroup(false)
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return nil, p.errorf("expected ')' to close %q", name)
		}
		p.pos++
		node = &Reference{Base: Base{Name: name, Enabled: top}, Attributes: children}
	} else {
		node = &Attribute{Base: Base{Name: name, Enabled: top}}
	}

	for {
		p.skipSpace()
		if p.peek() != '[' {
			return node, nil
		}
		p.pos++
		if err := p.parseModifiers(node); err != nil {
			return nil, err
		}
	}
}

func (p *cellParser) parseModifiers(node Node) error {
	for {
		key, err := p.name()
		if err != nil {
			return err
		}
		key = normalizeKey(key)
		p.skipSpace()

		var (
			val    string
			hasVal bool
		)
		if p.peek() == '=' {
			p.pos++
			p.skipSpace()
			if p.peek() == '"' {
				val, err = p.quoted()
			} else {
				val, err = p.bare()
			}
			if err != nil {
				return err
			}
			hasVal = true
		}
		if err := p.apply(node, key, val, hasVal); err != nil {
			return err
		}

		p.skipSpace()
		switch p.peek() {
		case ':':
			p.pos++
		case ']':
			p.pos++
			return nil
		default:
			return p.errorf("expected ':' or ']' in modifiers")
		}
	}
}

// quoted читает "..." с удвоенной кавычкой как экранированием
func (p *cellParser) quoted() (string, error) {
	p.pos++ // открывающая "
	var sb strings.Builder
	for !p.eof() {
		r := p.src[p.pos]
		p.pos++
		if r == '"' {
			if p.peek() == '"' {
				sb.WriteRune('"')
				p.pos++
				continue
			}
			return sb.String(), nil
		}
		sb.WriteRune(r)
	}
	return "", p.errorf("unterminated quoted value")
}

// bare — значение без кавычек до ':' или ']'
func (p *cellParser) bare() (string, error) {
	start := p.pos
	for !p.eof() && p.src[p.pos] != ':' && p.src[p.pos] != ']' {
		p.pos++
	}
	v := strings.TrimSpace(string(p.src[start:p.pos]))
	if v == "" {
		return "", p.errorf("empty modifier value")
	}
	return v, nil
}

func normalizeKey(k string) string {
	return strings.ReplaceAll(strings.ToLower(k), "-", "_")
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y", "on":
		return true, true
	case "false", "0", "no", "n", "off":
		return false, true
	}
	return false, false
}

func (p *cellParser) apply(node Node, key, val string, hasVal bool) error {
	if set, ok := boolModifiers[key]; ok {
		v := true
		if hasVal {
			b, ok := parseBool(val)
			if !ok {
				return p.errorf("modifier %q expects a boolean, got %q", key, val)
			}
			v = b
		}
		set(node.Meta(), v)
		return nil
	}
	if !hasVal {
		return p.errorf("modifier %q requires a value", key)
	}

	b := node.Meta()
	switch key {
	case "exp":
		b.Exp = val
		return nil
	case "default_value":
		v := val
		b.DefaultValue = &v
		return nil
	case "substitute":
		b.Substitute = val
		return nil
	case "key":
		b.Key = val
		return nil
	}

	switch n := node.(type) {
	case *Attribute:
		switch key {
		case "filter":
			n.Filter = val
			return nil
		case "url":
			n.URL = val
			return nil
		}
	case *Reference:
		switch key {
		case "table":
			n.ExtTable = val
			return nil
		case "target_name", "name":
			n.TargetName = val
			return nil
		case "qualifier":
			n.Qualifier = val
			return nil
		case "return_id":
			n.ReturnID = val
			return nil
		}
	}
	return p.errorf("unknown modifier %q for %q", key, b.Name)
}
