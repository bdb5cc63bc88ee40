package executor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/ext"

	"tablesync/internal/diff"
	"tablesync/internal/mapping"
	"tablesync/internal/value"
)

// Fetcher получает значение для url-модификатора.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher — GET по адресу, тело ответа без пробелов по краям.
type HTTPFetcher struct {
	Client  *http.Client
	MaxBody int64
}

func (f HTTPFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	limit := f.MaxBody
	if limit <= 0 {
		limit = 1 << 20
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("GET %s: %s", rawURL, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// Deriver вычисляет производные значения входящих строк до диффа:
// default_value, exp (CEL: value, row) и url. Неактивные листья
// составных колонок обнуляются, чтобы совпасть с тем, что читает select.
type Deriver struct {
	ent     *mapping.Entity
	progs   map[*mapping.Attribute]cel.Program
	fetcher Fetcher
}

// NewDeriver компилирует все exp-выражения маппинга; ошибка компиляции — ошибка маппинга.
func NewDeriver(ent *mapping.Entity, fetcher Fetcher) (*Deriver, error) {
	d := &Deriver{ent: ent, progs: map[*mapping.Attribute]cel.Program{}, fetcher: fetcher}
	var env *cel.Env
	for _, c := range ent.Columns {
		for _, leaf := range c.Leaves() {
			if leaf.Attr.Exp == "" || !leaf.Active {
				continue
			}
			if env == nil {
				var err error
				env, err = cel.NewEnv(
					cel.Variable("value", cel.DynType),
					cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)),
					ext.Strings(),
				)
				if err != nil {
					return nil, err
				}
			}
			ast, iss := env.Compile(leaf.Attr.Exp)
			if iss != nil && iss.Err() != nil {
				return nil, fmt.Errorf("exp for %s: %w", leaf.Path, iss.Err())
			}
			prg, err := env.Program(ast)
			if err != nil {
				return nil, fmt.Errorf("exp for %s: %w", leaf.Path, err)
			}
			d.progs[leaf.Attr] = prg
		}
	}
	return d, nil
}

// Prepare меняет значения записи на месте. Ошибка — RowValueError этой строки.
func (d *Deriver) Prepare(ctx context.Context, rec *diff.Record) error {
	row := make(map[string]any, len(rec.Values))
	for h, v := range rec.Values {
		row[h] = value.Canonical(v)
	}
	for _, c := range d.ent.Columns {
		if c.Empty() {
			continue
		}
		h := c.Header()
		raw, ok := rec.Values[h]
		if !ok {
			continue
		}
		leaves := c.Leaves()
		parts, err := value.Split(value.Canonical(raw), len(leaves))
		if err != nil {
			return &RowValueError{Line: rec.Line, Header: h, Err: err}
		}
		changed := false
		for i, leaf := range leaves {
			if !leaf.Active {
				if parts[i] != "" {
					parts[i], changed = "", true
				}
				continue
			}
			v, err := d.leaf(ctx, leaf.Attr, parts[i], row)
			if err != nil {
				return &RowValueError{Line: rec.Line, Header: h, Err: err}
			}
			if v != parts[i] {
				parts[i], changed = v, true
			}
		}
		if changed {
			rec.Values[h] = value.Join(parts)
		}
	}
	return nil
}

func (d *Deriver) leaf(ctx context.Context, a *mapping.Attribute, v string, row map[string]any) (string, error) {
	if strings.TrimSpace(v) == "" && a.DefaultValue != nil {
		v = *a.DefaultValue
	}
	if prg, ok := d.progs[a]; ok {
		out, _, err := prg.Eval(map[string]any{"value": v, "row": row})
		if err != nil {
			return "", fmt.Errorf("exp %q: %w", a.Exp, err)
		}
		if out.Type() == types.NullType {
			v = ""
		} else {
			v = value.Canonical(out.Value())
		}
	}
	if a.URL != "" && strings.TrimSpace(v) != "" {
		if d.fetcher == nil {
			return "", fmt.Errorf("url modifier on %s but no fetcher configured", a.Name)
		}
		fetched, err := d.fetcher.Fetch(ctx, strings.ReplaceAll(a.URL, "$", url.QueryEscape(v)))
		if err != nil {
			return "", err
		}
		v = fetched
	}
	return v, nil
}
