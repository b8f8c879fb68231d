package compiler

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qinfer/internal/cqn"
	"github.com/roach88/qinfer/internal/csn"
)

var bookshopPath = filepath.Join("..", "..", "testdata", "models", "bookshop.cue")

func TestLoadModelFile(t *testing.T) {
	c, err := LoadModel(bookshopPath)
	require.NoError(t, err)

	names := []string{}
	for _, e := range c.Model.Entities() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"Authors", "Books", "Editions", "Genres", "Prints", "Reviews"}, names)

	books, ok := c.Model.Entity("Books")
	require.True(t, ok)
	author, ok := books.Element("author")
	require.True(t, ok)
	assert.Equal(t, "Authors", author.TargetEntity().Name)
	_, ok = books.Element("author_ID")
	assert.True(t, ok, "managed association generates its foreign key")

	prints, ok := c.Model.Entity("Prints")
	require.True(t, ok)
	_, ok = prints.Element("edition_book_ID")
	assert.True(t, ok)

	assert.Empty(t, c.Warnings)
	assert.Len(t, c.Hash, 64)
}

func TestLoadModelDirectory(t *testing.T) {
	fromDir, err := LoadModel(filepath.Dir(bookshopPath))
	require.NoError(t, err)
	fromFile, err := LoadModel(bookshopPath)
	require.NoError(t, err)

	assert.Equal(t, fromFile.Hash, fromDir.Hash)
}

func TestLoadModelQueries(t *testing.T) {
	c, err := LoadModel(bookshopPath)
	require.NoError(t, err)

	names := make([]string, len(c.Queries))
	for i, q := range c.Queries {
		names[i] = q.Name
	}
	assert.Equal(t, []string{"booksWithAuthor", "expensiveBooks", "printsWithBook", "renameAuthor"}, names)

	q := c.Query("booksWithAuthor")
	require.NotNil(t, q)
	sel, ok := q.Query.(*cqn.Select)
	require.True(t, ok)
	require.Len(t, sel.Columns, 2)
	assert.Equal(t, "author", sel.Columns[1].As)

	upd, ok := c.Query("renameAuthor").Query.(*cqn.Update)
	require.True(t, ok)
	assert.Equal(t, "Authors", upd.Entity.Ref.String())

	assert.Nil(t, c.Query("missing"))
}

func TestLoadModelMissing(t *testing.T) {
	_, err := LoadModel(filepath.Join(t.TempDir(), "nope.cue"))
	require.Error(t, err)
}

func TestCompileModelValidationErrors(t *testing.T) {
	v := compileString(t, `
		entities: Books: elements: {
			title:  "Text"
			author: association: "Writers"
		}
	`)

	_, err := CompileModel(v)
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 2)
	assert.Equal(t, ErrUnknownType, verrs[0].Code)
	assert.Equal(t, ErrUnknownTarget, verrs[1].Code)
	assert.Contains(t, err.Error(), "2 validation error(s)")
}

func TestCompileModelLinkError(t *testing.T) {
	v := compileString(t, `
		entities: {
			A: elements: b: {association: "B", key: true}
			B: elements: a: {association: "A", key: true}
		}
	`)

	_, err := CompileModel(v)
	require.Error(t, err)
	assert.True(t, csn.IsModelError(err))
}

func TestCompileModelWarnings(t *testing.T) {
	v := compileString(t, `
		entities: T: elements: {
			ID: {type: "Integer", key: true}
			a:  {type: "Integer", value: "b + 1"}
			b:  {type: "Integer", value: "a - 1"}
		}
	`)

	c, err := CompileModel(v)
	require.NoError(t, err)
	require.Len(t, c.Warnings, 1)
	assert.Equal(t, []string{"T.a", "T.b", "T.a"}, c.Warnings[0].Path)
}

func TestCompileModelBadQuery(t *testing.T) {
	v := compileString(t, `
		entities: T: elements: ID: {type: "Integer", key: true}
		queries: broken: SELECT: columns: ["*"]
	`)

	_, err := CompileModel(v)
	require.Error(t, err)

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, "queries.broken", compileErr.Field)
}

func TestModelHash(t *testing.T) {
	compile := func(src string) string {
		c, err := CompileModel(compileString(t, src))
		require.NoError(t, err)
		return c.Hash
	}

	base := compile(`entities: T: elements: {ID: {type: "Integer", key: true}, name: "String"}`)

	reformatted := compile(`
		entities: T: elements: {
			ID: {key: true, type: "Integer"}
			name: "String"
		}
	`)
	assert.Equal(t, base, reformatted, "field order inside an element does not change the hash")

	withQuery := compile(`
		entities: T: elements: {ID: {type: "Integer", key: true}, name: "String"}
		queries: all: SELECT: from: ref: ["T"]
	`)
	assert.Equal(t, base, withQuery, "queries are not part of the model hash")

	changed := compile(`entities: T: elements: {ID: {type: "Integer", key: true}, name: "LargeString"}`)
	assert.NotEqual(t, base, changed)
}
