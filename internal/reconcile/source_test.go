package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablesync/internal/diff"
	"tablesync/internal/enrich"
	"tablesync/internal/executor"
	"tablesync/internal/mapping"
	"tablesync/internal/reference"
	"tablesync/internal/schema"
)

func entityFor(t *testing.T, header string) *mapping.Entity {
	t.Helper()
	lookup, err := schema.ParseStaticYAML([]byte(libraryYAML))
	require.NoError(t, err)
	ent, err := enrich.Build(context.Background(), lookup, enrich.DefaultOptions(), "books", header)
	require.NoError(t, err)
	return ent
}

func TestReadIncomingSlots(t *testing.T) {
	ent := entityFor(t, "title[unique], , year, genre[skip]")
	set, rejected := ReadIncoming(context.Background(), ent, [][]string{
		{"Dune", "ignored", "1965", "x"},
		{" ", ""},
		{"Walden"},
	}, 2, nil)

	assert.Empty(t, rejected)
	assert.Equal(t, []string{"title", "year"}, set.Headers)
	assert.Equal(t, []string{"title"}, set.Unique)
	recs := set.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, map[string]any{"title": "Dune", "year": "1965"}, recs[0].Values)
	assert.Equal(t, 2, recs[0].Line)
	assert.Equal(t, map[string]any{"title": "Walden", "year": ""}, recs[1].Values)
	assert.Equal(t, 4, recs[1].Line)
}

func TestReadIncomingDeriveAndDuplicates(t *testing.T) {
	ent := entityFor(t, `title[unique], "year[exp=""int(value) + 1""]"`)
	d, err := executor.NewDeriver(ent, nil)
	require.NoError(t, err)

	set, rejected := ReadIncoming(context.Background(), ent, [][]string{
		{"Dune", "1964"},
		{"Odes", "x"},
		{"Dune", "1970"},
	}, 2, d)

	require.Equal(t, 1, set.Len())
	assert.Equal(t, "1965", set.Records()[0].Values["year"])
	require.Len(t, rejected, 2)
	var rv *executor.RowValueError
	assert.True(t, errors.As(rejected[0].Err, &rv))
	var dup *diff.DuplicateKeyError
	assert.True(t, errors.As(rejected[1].Err, &dup))
}

func TestDeduplicateKeepsFirstRow(t *testing.T) {
	ent := entityFor(t, "title[unique: deduplicate], year")
	set, rejected := ReadIncoming(context.Background(), ent, [][]string{{"Dune", "1965"}, {"Dune", "1966"}}, 2, nil)
	assert.Empty(t, rejected)
	assert.Equal(t, "1965", set.Records()[0].Values["year"])
}

const stockYAML = `
tables:
  - name: stock
    primary_key: [id]
    columns:
      - {name: id, type: integer}
      - {name: code, type: text}
      - {name: zip, type: text}
      - {name: active, type: boolean}
      - {name: checked, type: timestamp without time zone}
      - {name: qty, type: numeric}
`

func stockEntity(t *testing.T, header string) *mapping.Entity {
	t.Helper()
	lookup, err := schema.ParseStaticYAML([]byte(stockYAML))
	require.NoError(t, err)
	ent, err := enrich.Build(context.Background(), lookup, enrich.DefaultOptions(), "stock", header)
	require.NoError(t, err)
	return ent
}

func stockCurrent(ent *mapping.Entity, values map[string]any) *diff.RecordSet {
	headers, unique := compared(ent)
	set := diff.NewRecordSet(headers, unique)
	set.Types = columnTypes(ent)
	_ = set.Add(&diff.Record{Values: values}, false)
	return set
}

func TestReadIncomingRoundTripHasNoUpdates(t *testing.T) {
	ent := stockEntity(t, "code[unique], zip, active, checked, qty")
	incoming, rejected := ReadIncoming(context.Background(), ent, [][]string{
		{"A", "0123", "1", "2024-01-02 10:00:00", "12.50"},
	}, 2, nil)
	require.Empty(t, rejected)
	assert.Equal(t, map[string]any{
		"code": "A", "zip": "0123", "active": "true", "checked": "2024-01-02 10:00:00", "qty": "12.5",
	}, incoming.Records()[0].Values)

	current := stockCurrent(ent, map[string]any{
		"code":    "A",
		"zip":     "0123",
		"active":  true,
		"checked": time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		"qty":     "12.5000",
	})
	assert.True(t, diff.Diff(incoming, current, diff.All()).Empty())

	// ведущий ноль в текстовой колонке значим
	current = stockCurrent(ent, map[string]any{
		"code": "A", "zip": "123", "active": true,
		"checked": time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), "qty": "12.5",
	})
	res := diff.Diff(incoming, current, diff.All())
	require.Len(t, res.Updates, 1)
	assert.Equal(t, map[string]any{"code": "A", "zip": "0123"}, res.Updates[0].Values)
}

func TestReadIncomingRejectsUncoercibleValues(t *testing.T) {
	ent := stockEntity(t, "code[unique], active, checked")
	set, rejected := ReadIncoming(context.Background(), ent, [][]string{
		{"A", "maybe", ""},
		{"B", "no", "tomorrow"},
		{"C", "", ""},
	}, 2, nil)

	require.Len(t, rejected, 2)
	var rv *executor.RowValueError
	require.True(t, errors.As(rejected[0].Err, &rv))
	assert.Equal(t, "active", rv.Header)
	require.True(t, errors.As(rejected[1].Err, &rv))
	assert.Equal(t, "checked", rv.Header)
	assert.Equal(t, 3, rv.Line)
	assert.Equal(t, 1, set.Len())
}

func TestReadIncomingQuotesCompositeParts(t *testing.T) {
	ent := stockEntity(t, "code:checked[unique]")
	set, rejected := ReadIncoming(context.Background(), ent, [][]string{
		{"A:'2024-01-02T10:00'"},
	}, 2, nil)
	require.Empty(t, rejected)
	v := set.Records()[0].Values["code:checked"]
	assert.Equal(t, "A:'2024-01-02 10:00:00'", v)
}

func TestNameCodes(t *testing.T) {
	ent := entityFor(t, "title:genre[substitute=genre][unique]")
	cat := reference.NewCatalog(reference.Domain{Name: "genre", Items: []reference.Item{{Code: "NOV", Name: "Novel"}}})
	rec := &diff.Record{Values: map[string]any{"title:genre": "Dune:NOV"}}
	require.NoError(t, nameCodes(rec, substitutedColumns(ent), cat))
	assert.Equal(t, "Dune:Novel", rec.Values["title:genre"])
}

func TestReadCSV(t *testing.T) {
	header, rows, err := ReadCSV(strings.NewReader(
		"title[unique],\"year[exp=\"\"int(value) + 1\"\"]\"\nDune,1964\n\"Catch, 22\",1961\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, `title[unique],"year[exp=""int(value) + 1""]"`, header)
	assert.Equal(t, [][]string{{"Dune", "1964"}, {"Catch, 22", "1961"}}, rows)

	_, _, err = ReadCSV(strings.NewReader(""), 0)
	assert.ErrorIs(t, err, ErrNoHeader)

	header, _, err = ReadCSV(strings.NewReader("title[unique];year\n"), ';')
	require.NoError(t, err)
	assert.Equal(t, "title[unique],year", header, "header is re-encoded with commas for the mapping parser")
}
