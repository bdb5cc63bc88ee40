package diff

import "tablesync/internal/value"

// Options — какие операции нужны и какие поля переносить всегда.
type Options struct {
	Insert bool
	Update bool
	Delete bool
	// Carry — заголовки корневых extension-ссылок: едут в delete-записях
	// и в Previous у update, чтобы зависимый оператор знал старое значение.
	Carry []string
}

func All() Options { return Options{Insert: true, Update: true, Delete: true} }

// Result — три непересекающихся набора записей.
type Result struct {
	Inserts []*Record `json:"inserts"`
	Updates []*Record `json:"updates"`
	Deletes []*Record `json:"deletes"`
}

func (r Result) Empty() bool {
	return len(r.Inserts) == 0 && len(r.Updates) == 0 && len(r.Deletes) == 0
}

// Diff: insert = incoming − current, delete = current − incoming,
// update = общие ключи, где отличается хотя бы одно неключевое поле.
// Update несёт только ключ и отличающиеся поля; nil и "" равны, остальное
// сравнивается по типам колонок (Types).
func Diff(incoming, current *RecordSet, opts Options) Result {
	var res Result
	unique := map[string]bool{}
	for _, h := range incoming.Unique {
		unique[h] = true
	}
	types := incoming.Types
	if types == nil {
		types = current.Types
	}

	for _, key := range incoming.order {
		in := incoming.records[key]
		cur, ok := current.records[key]
		if !ok {
			if opts.Insert {
				res.Inserts = append(res.Inserts, &Record{Line: in.Line, Values: copyValues(in.Values, incoming.Headers)})
			}
			continue
		}
		if !opts.Update {
			continue
		}
		changed := map[string]any{}
		for _, h := range incoming.Headers {
			if unique[h] {
				continue
			}
			if !value.Equal(in.Values[h], cur.Values[h], types[h]...) {
				changed[h] = in.Values[h]
			}
		}
		if len(changed) == 0 {
			continue
		}
		upd := &Record{Line: in.Line, Values: changed, Previous: map[string]any{}}
		for h := range unique {
			upd.Values[h] = in.Values[h]
		}
		for h := range changed {
			upd.Previous[h] = cur.Values[h]
		}
		for _, h := range opts.Carry {
			if _, ok := cur.Values[h]; ok {
				upd.Previous[h] = cur.Values[h]
			}
		}
		res.Updates = append(res.Updates, upd)
	}

	if opts.Delete {
		for _, key := range current.order {
			if _, ok := incoming.records[key]; ok {
				continue
			}
			cur := current.records[key]
			del := &Record{Values: map[string]any{}}
			for _, h := range current.Unique {
				del.Values[h] = cur.Values[h]
			}
			for _, h := range opts.Carry {
				if v, ok := cur.Values[h]; ok {
					del.Values[h] = v
				}
			}
			res.Deletes = append(res.Deletes, del)
		}
	}
	return res
}

func copyValues(src map[string]any, headers []string) map[string]any {
	out := make(map[string]any, len(headers))
	for _, h := range headers {
		if v, ok := src[h]; ok {
			out[h] = v
		}
	}
	return out
}
