package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	urls []string
	body string
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.urls = append(f.urls, url)
	return f.body, f.err
}

func TestDeriveDefaultValue(t *testing.T) {
	d, err := NewDeriver(entity(t, "title[unique], year[default_value=1900]"), nil)
	require.NoError(t, err)

	r := rec(2, "title", "Dune", "year", " ")
	require.NoError(t, d.Prepare(context.Background(), r))
	assert.Equal(t, "1900", r.Values["year"])

	r = rec(3, "title", "Dune", "year", "1965")
	require.NoError(t, d.Prepare(context.Background(), r))
	assert.Equal(t, "1965", r.Values["year"])
}

func TestDeriveExpression(t *testing.T) {
	d, err := NewDeriver(entity(t, `title[unique], "year[exp=""int(value) + 1""]", "price[exp=""row['title'] == 'Free' ? '0' : value""]"`), nil)
	require.NoError(t, err)

	r := rec(2, "title", "Free", "year", "1965", "price", "12.5")
	require.NoError(t, d.Prepare(context.Background(), r))
	assert.Equal(t, "1966", r.Values["year"])
	assert.Equal(t, "0", r.Values["price"])

	r = rec(3, "title", "Dune", "year", "x", "price", "12.5")
	err = d.Prepare(context.Background(), r)
	var rv *RowValueError
	require.True(t, errors.As(err, &rv))
	assert.Equal(t, 3, rv.Line)
	assert.Equal(t, "year", rv.Header)
}

func TestDeriveExpressionCompileError(t *testing.T) {
	_, err := NewDeriver(entity(t, `title[unique], "year[exp=""value +""]"`), nil)
	assert.Error(t, err)
}

func TestDeriveURL(t *testing.T) {
	f := &fakeFetcher{body: "42"}
	d, err := NewDeriver(entity(t, `title[unique], "year[url=""http://lookup.local/year?t=$""]"`), f)
	require.NoError(t, err)

	r := rec(2, "title", "Dune", "year", "a b")
	require.NoError(t, d.Prepare(context.Background(), r))
	assert.Equal(t, "42", r.Values["year"])
	assert.Equal(t, []string{"http://lookup.local/year?t=a+b"}, f.urls)

	// пустое значение не запрашивается
	r = rec(3, "title", "Dune", "year", "")
	require.NoError(t, d.Prepare(context.Background(), r))
	assert.Len(t, f.urls, 1)

	f.err = errors.New("boom")
	r = rec(4, "title", "Dune", "year", "c")
	assert.Error(t, d.Prepare(context.Background(), r))
}

func TestDeriveBlanksInactiveCompositeLeaf(t *testing.T) {
	d, err := NewDeriver(entity(t, "title[unique], colour[skip]:year"), nil)
	require.NoError(t, err)

	r := rec(2, "title", "Dune", "colour:year", "red:1965")
	require.NoError(t, d.Prepare(context.Background(), r))
	assert.Equal(t, ":1965", r.Values["colour:year"])
}

func TestDeriveKeepsColonInCompositePart(t *testing.T) {
	header := `"title[exp=""value + ':2'""]:year[unique]"`
	d, err := NewDeriver(entity(t, header), nil)
	require.NoError(t, err)

	r := rec(2, "title:year", "Dune:1965")
	require.NoError(t, d.Prepare(context.Background(), r))
	assert.Equal(t, "'Dune:2':1965", r.Values["title:year"])

	ex := creator(t, header).Create(OpInsert, r)
	require.Equal(t, Pending, ex.Status, "%v", ex.Err)
	assert.Equal(t, "Dune:2", ex.Params["title"])
	assert.Equal(t, int64(1965), ex.Params["year"])
}
