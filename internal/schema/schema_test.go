package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticYAML(t *testing.T) {
	s, err := LoadStaticYAML("testdata/library.yaml")
	require.NoError(t, err)
	ctx := context.Background()

	books, err := s.Table(ctx, "Books")
	require.NoError(t, err)
	assert.Equal(t, "id", books.SinglePrimaryKey())

	col, ok := books.Column("META")
	require.True(t, ok)
	assert.Equal(t, "jsonb", col.Type)

	pk, err := s.PrimaryKeys(ctx, "authors")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, pk)

	_, err = s.Table(ctx, "nope")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestForeignKeyResolution(t *testing.T) {
	s, err := LoadStaticYAML("testdata/library.yaml")
	require.NoError(t, err)
	ctx := context.Background()

	tbl, col, err := s.ForeignKey(ctx, "books", "authorid")
	require.NoError(t, err)
	assert.Equal(t, "authors", tbl)
	assert.Equal(t, "id", col)

	tbl, _, err = s.ForeignKey(ctx, "books", "reviewerid")
	require.NoError(t, err)
	assert.Empty(t, tbl, "two constraints on one column are ambiguous")

	tbl, _, err = s.ForeignKey(ctx, "books", "title")
	require.NoError(t, err)
	assert.Empty(t, tbl)
}

func TestParseStaticYAMLRejectsNamelessTable(t *testing.T) {
	_, err := ParseStaticYAML([]byte("tables:\n  - columns: []\n"))
	assert.Error(t, err)
}
