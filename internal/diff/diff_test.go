package diff

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func set(t *testing.T, headers, unique []string, rows ...map[string]any) *RecordSet {
	t.Helper()
	s := NewRecordSet(headers, unique)
	for i, r := range rows {
		require.NoError(t, s.Add(&Record{Line: i + 2, Values: r}, false))
	}
	return s
}

var bookHeaders = []string{"title", "year", "authorid.name"}

func TestDiffPartition(t *testing.T) {
	incoming := set(t, bookHeaders, []string{"title"},
		map[string]any{"title": "Dune", "year": "1965", "authorid.name": "Herbert"},
		map[string]any{"title": "Emma", "year": "1815", "authorid.name": "Austen"},
		map[string]any{"title": "Ulysses", "year": "1922", "authorid.name": "Joyce"},
	)
	current := set(t, bookHeaders, []string{"title"},
		map[string]any{"title": "Dune", "year": int64(1965), "authorid.name": "Herbert"},
		map[string]any{"title": "Emma", "year": int64(1816), "authorid.name": "Austen"},
		map[string]any{"title": "Walden", "year": int64(1854), "authorid.name": "Thoreau"},
	)

	res := Diff(incoming, current, All())

	require.Len(t, res.Inserts, 1)
	assert.Equal(t, "Ulysses", res.Inserts[0].Values["title"])
	assert.Equal(t, 4, res.Inserts[0].Line)

	require.Len(t, res.Updates, 1)
	upd := res.Updates[0]
	assert.Equal(t, map[string]any{"title": "Emma", "year": "1815"}, upd.Values, "only key and changed fields")
	assert.Equal(t, map[string]any{"year": int64(1816)}, upd.Previous)
	assert.Equal(t, 3, upd.Line)

	require.Len(t, res.Deletes, 1)
	assert.Equal(t, map[string]any{"title": "Walden"}, res.Deletes[0].Values)
	assert.Zero(t, res.Deletes[0].Line)
}

func TestDiffNullEqualsEmpty(t *testing.T) {
	incoming := set(t, bookHeaders, []string{"title"},
		map[string]any{"title": "Dune", "year": "", "authorid.name": "Herbert"})
	current := set(t, bookHeaders, []string{"title"},
		map[string]any{"title": "Dune", "year": nil, "authorid.name": "Herbert"})

	assert.True(t, Diff(incoming, current, All()).Empty())
}

func TestDiffFlags(t *testing.T) {
	incoming := set(t, bookHeaders, []string{"title"},
		map[string]any{"title": "A", "year": "1"},
		map[string]any{"title": "B", "year": "2"})
	current := set(t, bookHeaders, []string{"title"},
		map[string]any{"title": "B", "year": "3"},
		map[string]any{"title": "C", "year": "4"})

	res := Diff(incoming, current, Options{Insert: true})
	assert.Len(t, res.Inserts, 1)
	assert.Empty(t, res.Updates)
	assert.Empty(t, res.Deletes)

	res = Diff(incoming, current, Options{Delete: true})
	assert.Empty(t, res.Inserts)
	assert.Len(t, res.Deletes, 1)
}

func TestDiffCompositeKeyAndCarry(t *testing.T) {
	headers := []string{"title", "year", "bookid.name"}
	unique := []string{"title", "year"}
	incoming := set(t, headers, unique,
		map[string]any{"title": "Dune", "year": "1965", "bookid.name": "new"})
	current := set(t, headers, unique,
		map[string]any{"title": "Dune", "year": int64(1965), "bookid.name": "old"},
		map[string]any{"title": "Dune", "year": int64(1984), "bookid.name": "film"})

	res := Diff(incoming, current, Options{Insert: true, Update: true, Delete: true, Carry: []string{"bookid.name"}})
	require.Len(t, res.Updates, 1)
	assert.Equal(t, "old", res.Updates[0].Previous["bookid.name"])
	require.Len(t, res.Deletes, 1)
	assert.Equal(t, map[string]any{"title": "Dune", "year": int64(1984), "bookid.name": "film"}, res.Deletes[0].Values)
}

func TestDuplicateKeys(t *testing.T) {
	s := NewRecordSet(bookHeaders, []string{"title"})
	require.NoError(t, s.Add(&Record{Line: 2, Values: map[string]any{"title": "Dune", "year": "1965"}}, false))

	err := s.Add(&Record{Line: 4, Values: map[string]any{"title": "Dune", "year": "1966"}}, false)
	var de *DuplicateKeyError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 2, de.PrevLine)
	assert.Equal(t, 4, de.Line)
	assert.Equal(t, 1, s.Len())
}

func TestDeduplicateKeepsFirst(t *testing.T) {
	s := NewRecordSet(bookHeaders, []string{"title"})
	require.NoError(t, s.Add(&Record{Line: 2, Values: map[string]any{"title": "Dune", "year": "1965"}}, true))
	require.NoError(t, s.Add(&Record{Line: 3, Values: map[string]any{"title": "Dune", "year": "1966"}}, true))

	rec, ok := s.Get(s.Key(map[string]any{"title": "Dune"}))
	require.True(t, ok)
	assert.Equal(t, 2, rec.Line)
	assert.Equal(t, 1, s.Len())
}

func TestKeyNormalizesNull(t *testing.T) {
	s := NewRecordSet(bookHeaders, []string{"title", "year"})
	assert.Equal(t, s.Key(map[string]any{"title": "A", "year": nil}), s.Key(map[string]any{"title": "A", "year": ""}))
	assert.Equal(t, s.Key(map[string]any{"title": "A", "year": int64(5)}), s.Key(map[string]any{"title": "A", "year": "5"}))
}

func TestDiffComparesByColumnType(t *testing.T) {
	headers := []string{"code", "zip", "qty"}
	types := map[string][]string{"code": {"text"}, "zip": {"text"}, "qty": {"numeric"}}
	typed := func(rows ...map[string]any) *RecordSet {
		s := NewRecordSet(headers, []string{"code"})
		s.Types = types
		for i, r := range rows {
			require.NoError(t, s.Add(&Record{Line: i + 2, Values: r}, false))
		}
		return s
	}

	incoming := typed(
		map[string]any{"code": "A", "zip": "123", "qty": "100"},
		map[string]any{"code": "B", "zip": "1e2", "qty": "1e2"},
	)
	current := typed(
		map[string]any{"code": "A", "zip": "0123", "qty": "100.00"},
		map[string]any{"code": "B", "zip": "100", "qty": int64(100)},
	)

	res := Diff(incoming, current, All())
	require.Len(t, res.Updates, 2)
	assert.Equal(t, map[string]any{"code": "A", "zip": "123"}, res.Updates[0].Values)
	assert.Equal(t, map[string]any{"code": "B", "zip": "1e2"}, res.Updates[1].Values)
	assert.Empty(t, res.Inserts)
	assert.Empty(t, res.Deletes)
}

func TestKeyUsesColumnTypes(t *testing.T) {
	s := NewRecordSet([]string{"id"}, []string{"id"})
	s.Types = map[string][]string{"id": {"integer"}}
	assert.Equal(t, s.Key(map[string]any{"id": "007"}), s.Key(map[string]any{"id": int64(7)}))

	text := NewRecordSet([]string{"id"}, []string{"id"})
	assert.NotEqual(t, text.Key(map[string]any{"id": "007"}), text.Key(map[string]any{"id": "7"}))
}
