package enrich

import (
	"context"

	"tablesync/internal/mapping"
	"tablesync/internal/schema"
)

// Build — разбор заголовка и обе стадии обогащения со свежими экземплярами энричеров.
func Build(ctx context.Context, lookup schema.Lookup, opts Options, table, header string) (*mapping.Entity, error) {
	ent, err := mapping.Parse(table, header)
	if err != nil {
		return nil, err
	}
	if _, err := NewSchemaEnricher(lookup, opts).Enrich(ctx, ent); err != nil {
		return nil, err
	}
	return NewAliasEnricher().Enrich(ent)
}
