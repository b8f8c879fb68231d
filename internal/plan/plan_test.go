package plan

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qinfer/internal/cqn"
	"github.com/roach88/qinfer/internal/infer"
	"github.com/roach88/qinfer/internal/testutil"
)

func build(t *testing.T, src string) *Plan {
	t.Helper()
	q, err := cqn.Unmarshal([]byte(src))
	require.NoError(t, err)
	inf := infer.New(testutil.Bookshop(),
		infer.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		infer.WithIDGenerator(infer.NewFixedGenerator()))
	res, err := inf.Resolve(q)
	require.NoError(t, err)
	p, err := Build(res)
	require.NoError(t, err)
	return p
}

func TestBuild_ManagedJoin(t *testing.T) {
	p := build(t, `{"SELECT": {"from": "Books", "columns": [{"ref": ["ID"]}, {"ref": ["author", "name"]}]}}`)

	require.Len(t, p.Joins, 1)
	j := p.Joins[0]
	assert.Equal(t, "Books", j.ParentAlias)
	assert.Equal(t, "author", j.Alias)
	assert.Equal(t, "Books.author", j.Association)
	assert.Equal(t, "Authors", j.Target)
	assert.Equal(t, KindLeft, j.Kind)
	assert.Equal(t, []KeyPair{{Parent: "author_ID", Target: "ID"}}, j.Keys)
	assert.Nil(t, j.On)
	assert.Empty(t, p.Substitutions)
}

func TestBuild_ForeignKeySubstitution(t *testing.T) {
	p := build(t, `{"SELECT": {"from": "Books", "columns": [{"ref": ["author", "ID"]}],
		"where": [{"ref": ["author", "ID"]}, "=", {"val": 1}]}}`)

	assert.Empty(t, p.Joins)
	require.Len(t, p.Substitutions, 1, "equal paths are substituted once")
	assert.Equal(t, &Substitution{Path: "author.ID", Alias: "Books", Columns: []string{"author_ID"}}, p.Substitutions[0])
}

func TestBuild_SubstitutionDropsOnceJoined(t *testing.T) {
	p := build(t, `{"SELECT": {"from": "Books", "columns": [{"ref": ["author", "ID"]}, {"ref": ["author", "name"]}]}}`)
	require.Len(t, p.Joins, 1)
	assert.Empty(t, p.Substitutions)
}

func TestBuild_NestedForeignKey(t *testing.T) {
	p := build(t, `{"SELECT": {"from": "Prints", "columns": [{"ref": ["edition", "book", "ID"]}]}}`)
	assert.Empty(t, p.Joins)
	require.Len(t, p.Substitutions, 1)
	assert.Equal(t, []string{"edition_book_ID"}, p.Substitutions[0].Columns)

	p = build(t, `{"SELECT": {"from": "Prints", "columns": [{"ref": ["edition", "number"]}, {"ref": ["edition", "book", "title"]}]}}`)
	require.Len(t, p.Joins, 2)
	assert.Equal(t, []KeyPair{
		{Parent: "edition_number", Target: "number"},
		{Parent: "edition_book_ID", Target: "book_ID"},
	}, p.Joins[0].Keys)
	assert.Equal(t, "edition", p.Joins[1].ParentAlias)
	assert.Equal(t, []KeyPair{{Parent: "book_ID", Target: "ID"}}, p.Joins[1].Keys)
}

func TestBuild_UnmanagedJoin(t *testing.T) {
	p := build(t, `{"SELECT": {"from": "Authors", "columns": [{"ref": ["books", "title"]}]}}`)
	require.Len(t, p.Joins, 1)
	j := p.Joins[0]
	assert.Equal(t, "Authors.books", j.Association)
	assert.Empty(t, j.Keys)
	require.NotNil(t, j.On)
	assert.Equal(t, cqn.Format(j.On), j.OnCondition)
}

func TestBuild_DepthFirstOrder(t *testing.T) {
	p := build(t, `{"SELECT": {"from": "Books", "columns": [
		{"ref": ["genre", "parent", "name"]},
		{"ref": ["author", "name"]},
		{"ref": [{"id": "genre", "where": [{"ref": ["name"]}, "=", {"val": "Drama"}]}, "name"], "as": "drama"}
	]}}`)

	var got [][2]string
	for _, j := range p.Joins {
		got = append(got, [2]string{j.ParentAlias, j.Alias})
	}
	assert.Equal(t, [][2]string{
		{"Books", "genre"},
		{"genre", "parent"},
		{"Books", "author"},
		{"Books", "genre2"},
	}, got)
	assert.NotEmpty(t, p.Joins[3].FilterText)
	assert.Empty(t, p.Joins[0].FilterText)
}

func TestBuild_JoinBoundariesSkipForeignKeyOnlyNodes(t *testing.T) {
	p := build(t, `{"SELECT": {"from": "Books", "columns": [
		{"ref": ["author", "ID"]},
		{"ref": ["genre", "parent", "ID"]},
		{"ref": ["reviews", "book", "ID"]}
	]}}`)

	var got [][2]string
	for _, j := range p.Joins {
		got = append(got, [2]string{j.ParentAlias, j.Alias})
	}
	assert.Equal(t, [][2]string{
		{"Books", "genre"},
		{"Books", "reviews"},
	}, got)

	require.Len(t, p.Substitutions, 3)
	assert.Equal(t, &Substitution{Path: "author.ID", Alias: "Books", Columns: []string{"author_ID"}}, p.Substitutions[0])
	assert.Equal(t, &Substitution{Path: "genre.parent.ID", Alias: "genre", Columns: []string{"parent_ID"}}, p.Substitutions[1])
	assert.Equal(t, &Substitution{Path: "reviews.book.ID", Alias: "reviews", Columns: []string{"book_ID"}}, p.Substitutions[2])
}

func TestBuild_CorrelatedJoinAlias(t *testing.T) {
	p := build(t, `{"SELECT": {"from": {"ref": ["Books"], "as": "b"}, "columns": [{"ref": ["ID"]}],
		"where": ["exists", {"SELECT": {"from": {"ref": ["Authors"], "as": "author"}, "columns": [{"ref": ["ID"]}],
			"where": [{"ref": ["b", "author", "name"]}, "=", {"ref": ["author", "name"]}]}}]}}`)

	require.Len(t, p.Joins, 1)
	assert.Equal(t, "b", p.Joins[0].ParentAlias)
	assert.Equal(t, "author2", p.Joins[0].Alias)
	require.Len(t, p.Subqueries, 1)
	assert.Empty(t, p.Subqueries[0].Joins)
}

func TestBuild_NestedResults(t *testing.T) {
	p := build(t, `{"SELECT": {"from": "Books", "columns": [
		{"ref": ["title"]},
		{"ref": ["author"], "expand": [{"ref": ["name"]}, {"ref": ["books"], "expand": [{"ref": ["genre", "name"]}]}]}
	]}}`)
	assert.Empty(t, p.Joins)
	require.Len(t, p.Subqueries, 1)
	author := p.Subqueries[0]
	assert.Empty(t, author.Joins)
	require.Len(t, author.Subqueries, 1)
	require.Len(t, author.Subqueries[0].Joins, 1)
	assert.Equal(t, "Genres", author.Subqueries[0].Joins[0].Target)
}

func TestBuild_NoResult(t *testing.T) {
	_, err := Build(nil)
	require.Error(t, err)
}
