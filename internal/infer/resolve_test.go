package infer

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qinfer/internal/cqn"
	"github.com/roach88/qinfer/internal/csn"
	"github.com/roach88/qinfer/internal/jointree"
	"github.com/roach88/qinfer/internal/testutil"
)

func newTestInferrer(t *testing.T, model *csn.Model, opts ...Option) *Inferrer {
	t.Helper()
	if model == nil {
		model = testutil.Bookshop()
	}
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithIDGenerator(NewFixedGenerator("res-1", "res-2", "res-3")),
	}
	return New(model, append(base, opts...)...)
}

func mustQuery(t *testing.T, src string) cqn.Query {
	t.Helper()
	q, err := cqn.Unmarshal([]byte(src))
	require.NoError(t, err)
	return q
}

func resolve(t *testing.T, src string) *Result {
	t.Helper()
	res, err := newTestInferrer(t, nil).Resolve(mustQuery(t, src))
	require.NoError(t, err)
	return res
}

func resolveErr(t *testing.T, src string) *Error {
	t.Helper()
	_, err := newTestInferrer(t, nil).Resolve(mustQuery(t, src))
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	return e
}

func elementNames(elems []*Element) []string {
	names := make([]string, len(elems))
	for i, e := range elems {
		names[i] = e.Name
	}
	return names
}

func rootOf(t *testing.T, res *Result, alias string) *jointree.Root {
	t.Helper()
	root, ok := res.JoinTree.Root(alias)
	require.True(t, ok, "root %q", alias)
	return root
}

func columnRef(t *testing.T, res *Result, i int) *RefInfo {
	t.Helper()
	sel := res.Query.(*cqn.Select)
	info, ok := res.Ref(sel.Columns[i].Ref())
	require.True(t, ok, "column %d not resolved", i)
	return info
}

func TestResolve_ProjectedPathJoinsAssociation(t *testing.T) {
	res := resolve(t, `{"SELECT": {"from": "Books", "columns": [
		{"ref": ["ID"]}, {"ref": ["title"]}, {"ref": ["author", "name"]}
	]}}`)

	assert.Equal(t, "res-1", res.ID)
	assert.Equal(t, []string{"ID", "title", "author_name"}, elementNames(res.Elements))
	assert.Equal(t, "Books", res.Target.Name)

	root := rootOf(t, res, "Books")
	require.Len(t, root.Children(), 1)
	author := root.Children()[0]
	assert.Equal(t, "author", author.Alias)
	assert.False(t, author.OnlyForeignKeyAccess)

	info := columnRef(t, res, 2)
	assert.Equal(t, "author_name", info.FlatName)
	assert.Equal(t, csn.TypeString, info.Type)
	assert.True(t, info.JoinRelevant)
	assert.Same(t, author, info.Links[0].Node)
	assert.Equal(t, "Books", info.Source.Alias)
}

func TestResolve_GeneratedForeignKeyNeedsNoJoin(t *testing.T) {
	res := resolve(t, `{"SELECT": {"from": "Books", "columns": [{"ref": ["ID"]}, {"ref": ["author_ID"]}]}}`)

	assert.Equal(t, []string{"ID", "author_ID"}, elementNames(res.Elements))
	assert.Empty(t, rootOf(t, res, "Books").Children())
	assert.Equal(t, csn.TypeInteger, res.Elements[1].Type)
}

func TestResolve_ForeignKeyOnlyAccess(t *testing.T) {
	res := resolve(t, `{"SELECT": {"from": "Books", "columns": [{"ref": ["author", "ID"]}]}}`)

	root := rootOf(t, res, "Books")
	require.Len(t, root.Children(), 1)
	assert.True(t, root.Children()[0].OnlyForeignKeyAccess)
	assert.False(t, columnRef(t, res, 0).JoinRelevant)

	res = resolve(t, `{"SELECT": {"from": "Books", "columns": [
		{"ref": ["author", "ID"]}, {"ref": ["author", "name"]}
	]}}`)
	root = rootOf(t, res, "Books")
	require.Len(t, root.Children(), 1)
	assert.False(t, root.Children()[0].OnlyForeignKeyAccess)
}

func TestResolve_WhereClauseTriggersJoin(t *testing.T) {
	res := resolve(t, `{"SELECT": {"from": "Books", "columns": [{"ref": ["ID"]}],
		"where": [{"ref": ["author", "name"]}, "=", {"val": "X"}]}}`)

	assert.Equal(t, []string{"ID"}, elementNames(res.Elements))
	root := rootOf(t, res, "Books")
	require.Len(t, root.Children(), 1)
	assert.Equal(t, "author", root.Children()[0].Alias)
	assert.False(t, root.Children()[0].OnlyForeignKeyAccess)
}

func TestResolve_DuplicateElement(t *testing.T) {
	e := resolveErr(t, `{"SELECT": {"from": "Books", "columns": [{"ref": ["title"]}, {"ref": ["title"]}]}}`)
	assert.Equal(t, CodeDuplicateElement, e.Code)

	res := resolve(t, `{"SELECT": {"from": "Books", "columns": [{"ref": ["title"]}, {"ref": ["title"], "as": "t"}]}}`)
	assert.Equal(t, []string{"title", "t"}, elementNames(res.Elements))
}

func TestResolve_AmbiguousAcrossSources(t *testing.T) {
	const from = `{"join": "cross", "args": [{"ref": ["Books"], "as": "b"}, {"ref": ["Authors"], "as": "a"}]}`

	e := resolveErr(t, `{"SELECT": {"from": `+from+`, "columns": [{"ref": ["ID"]}]}}`)
	assert.Equal(t, CodeAmbiguousReference, e.Code)
	assert.Equal(t, []string{"b", "a"}, e.Candidates)
	assert.True(t, IsAmbiguousReference(e))

	res := resolve(t, `{"SELECT": {"from": `+from+`, "columns": [{"ref": ["a", "ID"]}, {"ref": ["title"]}]}}`)
	info := columnRef(t, res, 0)
	require.NotNil(t, info.Source)
	assert.Equal(t, "a", info.Source.Alias)
	assert.Equal(t, "Authors", info.Links[1].Definition.Owner().Name)
	assert.Equal(t, "ID", info.FlatName)
	assert.Nil(t, res.Target, "no single target with two sources")
	assert.Equal(t, []string{"ID", "title"}, elementNames(res.Elements))
}

func TestResolve_MultipleSourcesNeedSelectList(t *testing.T) {
	e := resolveErr(t, `{"SELECT": {"from": {"join": "inner", "args": ["Books", "Authors"],
		"on": [{"ref": ["Books", "author_ID"]}, "=", {"ref": ["Authors", "ID"]}]}}}`)
	assert.Equal(t, CodeAmbiguousReference, e.Code)
	assert.Equal(t, []string{"Books", "Authors"}, e.Candidates)
}

func TestResolve_DuplicateAlias(t *testing.T) {
	e := resolveErr(t, `{"SELECT": {"from": {"join": "cross", "args": [
		{"ref": ["Books"], "as": "x"}, {"ref": ["Authors"], "as": "x"}
	]}, "columns": [{"ref": ["x", "ID"]}]}}`)
	assert.Equal(t, CodeDuplicateAlias, e.Code)
}

func TestResolve_Unresolved(t *testing.T) {
	tests := []struct {
		name  string
		query string
		path  string
	}{
		{"unknown entity", `{"SELECT": {"from": "Nope"}}`, "Nope"},
		{"unknown column", `{"SELECT": {"from": "Books", "columns": [{"ref": ["nope"]}]}}`, "nope"},
		{"unknown step", `{"SELECT": {"from": "Books", "columns": [{"ref": ["author", "nope"]}]}}`, "author.nope"},
		{"step past scalar", `{"SELECT": {"from": "Books", "columns": [{"ref": ["title", "x"]}]}}`, "title.x"},
		{"unknown self column", `{"SELECT": {"from": "Books", "columns": [{"ref": ["ID"]}],
			"where": [{"ref": ["$self", "nope"]}, "=", {"val": 1}]}}`, "$self.nope"},
		{"non association source step", `{"SELECT": {"from": {"ref": ["Books", "title"]}}}`, "Books.title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := resolveErr(t, tt.query)
			assert.Equal(t, CodeUnresolvedReference, e.Code, e.Error())
			assert.Equal(t, tt.path, e.Path)
			assert.True(t, IsUnresolvedReference(e))
		})
	}
}

func TestResolve_Idempotent(t *testing.T) {
	inf := newTestInferrer(t, nil)
	q := mustQuery(t, `{"SELECT": {"from": "Books", "columns": [
		{"ref": ["title"]},
		{"ref": [{"id": "author", "where": [{"ref": ["ID"]}, ">", {"val": 5}]}, "name"], "as": "a1"},
		{"ref": ["genre", "parent", "parent", "name"]},
		{"ref": ["author", "placeOfBirth"]},
		{"ref": ["authorName"]}
	], "orderBy": [{"ref": ["genre", "name"]}]}}`)

	first, err := inf.Resolve(q)
	require.NoError(t, err)
	second, err := inf.Resolve(q)
	require.NoError(t, err)

	assert.Equal(t, first.Snapshot(), second.Snapshot())
	assert.Equal(t, "res-1", first.ID)
	assert.Equal(t, "res-2", second.ID)
}

func TestResolve_JoinDeduplication(t *testing.T) {
	res := resolve(t, `{"SELECT": {"from": "Books", "columns": [
		{"ref": ["author", "name"]},
		{"ref": ["author", "placeOfBirth"]},
		{"ref": [{"id": "author", "where": [{"ref": ["ID"]}, "=", {"val": 1}]}, "name"], "as": "first"},
		{"ref": [{"id": "author", "where": [{"ref": ["ID"]}, "=", {"val": 1}]}, "placeOfBirth"], "as": "firstBorn"}
	]}}`)

	root := rootOf(t, res, "Books")
	require.Len(t, root.Children(), 2)
	plain, filtered := root.Children()[0], root.Children()[1]
	assert.Equal(t, "author", plain.Alias)
	assert.Equal(t, "author2", filtered.Alias)
	assert.NotNil(t, filtered.Where)

	assert.Same(t, plain, columnRef(t, res, 0).Links[0].Node)
	assert.Same(t, plain, columnRef(t, res, 1).Links[0].Node)
	assert.Same(t, filtered, columnRef(t, res, 2).Links[0].Node)
	assert.Same(t, filtered, columnRef(t, res, 3).Links[0].Node)
}

func TestResolve_QueryModifiersPreferOwnElements(t *testing.T) {
	res := resolve(t, `{"SELECT": {"from": "Books",
		"columns": [{"ref": ["author", "name"], "as": "writer"}, {"ref": ["stock"]}],
		"groupBy": [{"ref": ["writer"]}],
		"having": [{"func": "sum", "args": [{"ref": ["stock"]}]}, ">", {"val": 10}],
		"orderBy": [{"ref": ["writer"], "sort": "desc"}, {"ref": ["title"]}]}}`)

	sel := res.Query.(*cqn.Select)
	groupBy, ok := res.Ref(sel.GroupBy[0].(*cqn.Ref))
	require.True(t, ok)
	require.NotNil(t, groupBy.Links[0].Element)
	assert.Equal(t, "writer", groupBy.Links[0].Element.Name)
	assert.Nil(t, groupBy.Path)

	title, ok := res.Ref(sel.OrderBy[1].Expr.(*cqn.Ref))
	require.True(t, ok)
	assert.Nil(t, title.Links[0].Element, "not a column: resolved against the source")
	assert.Equal(t, "Books", title.Source.Alias)

	e := resolveErr(t, `{"SELECT": {"from": "Books", "columns": [{"ref": ["title"], "as": "t"}],
		"where": [{"ref": ["t"]}, "=", {"val": "x"}]}}`)
	assert.Equal(t, CodeUnresolvedReference, e.Code, "where does not see column aliases")
}

func TestResolve_PseudoRoots(t *testing.T) {
	res := resolve(t, `{"SELECT": {"from": "Books", "columns": [
		{"ref": ["ID"]}, {"ref": ["$now"], "as": "at"}, {"ref": ["$user", "id"]}
	], "where": [{"ref": ["$user", "locale"]}, "=", {"val": "en"}]}}`)

	assert.Equal(t, []string{"ID", "at", "user_id"}, elementNames(res.Elements))
	assert.Equal(t, csn.TypeTimestamp, res.Elements[1].Type)
	assert.Equal(t, csn.TypeString, res.Elements[2].Type)
	info := columnRef(t, res, 2)
	assert.True(t, info.Pseudo)
	assert.Nil(t, info.Path)
	assert.Empty(t, rootOf(t, res, "Books").Children())
}

func TestResolve_SourcePath(t *testing.T) {
	res := resolve(t, `{"SELECT": {"from": {"ref": [
		{"id": "Books", "where": [{"ref": ["ID"]}, "=", {"val": 201}]},
		{"id": "author", "where": [{"ref": ["name"]}, "like", {"val": "E%"}]}
	]}, "columns": [{"ref": ["name"]}]}}`)

	require.Len(t, res.Sources, 1)
	src := res.Sources[0]
	assert.Equal(t, "author", src.Alias)
	assert.Equal(t, "Authors", src.Entity.Name)
	assert.Equal(t, "Authors", res.Target.Name)
	assert.Equal(t, []string{"name"}, elementNames(res.Elements))
}

func TestResolve_SubQuerySource(t *testing.T) {
	res := resolve(t, `{"SELECT": {"from": {"SELECT": {"from": "Books", "columns": [
		{"ref": ["ID"]}, {"ref": ["title"]}, {"ref": ["author"]}
	]}, "as": "B"}, "columns": [{"ref": ["B", "title"]}, {"ref": ["author", "name"]}]}}`)

	require.Len(t, res.Sources, 1)
	src := res.Sources[0]
	assert.Equal(t, "B", src.Alias)
	require.NotNil(t, src.Query)
	assert.Nil(t, src.Entity)
	assert.Nil(t, res.Target)
	assert.Equal(t, []string{"ID", "title", "author"}, elementNames(src.Query.Elements))

	assert.Equal(t, []string{"title", "author_name"}, elementNames(res.Elements))
	info := columnRef(t, res, 1)
	require.NotNil(t, info.Links[0].Element)
	assert.Nil(t, info.Path, "paths into a sub-query are not merged")
	assert.Empty(t, res.JoinTree.Roots())
	assert.True(t, res.JoinTree.IsReserved("B"))

	res = resolve(t, `{"SELECT": {"from": {"SELECT": {"from": "Books"}}, "columns": [{"ref": ["title"]}]}}`)
	assert.Equal(t, cqn.DefaultSubQueryAlias, res.Sources[0].Alias)
}

func TestResolve_CorrelatedSubQuery(t *testing.T) {
	res := resolve(t, `{"SELECT": {"from": {"ref": ["Authors"], "as": "a"}, "columns": [{"ref": ["name"]}],
		"where": ["exists", {"SELECT": {"from": {"ref": ["Books"], "as": "b"}, "columns": [{"ref": ["ID"]}],
			"where": [{"ref": ["b", "author_ID"]}, "=", {"ref": ["a", "ID"]}, "and", {"ref": ["a", "books", "stock"]}, ">", {"val": 0}]}}]}}`)

	require.Len(t, res.Subqueries, 1)
	sub := res.Subqueries[0]
	assert.Same(t, res.JoinTree, sub.JoinTree.Outer())

	var outer []*RefInfo
	for _, info := range sub.OrderedRefs() {
		if info.Outer {
			outer = append(outer, info)
		}
	}
	require.Len(t, outer, 2)
	assert.Equal(t, "a", outer[0].Source.Alias)

	root := rootOf(t, res, "a")
	require.Len(t, root.Children(), 1, "correlated paths merge into the outer tree")
	assert.Equal(t, "books", root.Children()[0].Alias)
	assert.Empty(t, rootOf(t, sub, "b").Children())
}

func TestResolve_CorrelatedJoinAliasAvoidsInnerSources(t *testing.T) {
	res := resolve(t, `{"SELECT": {"from": {"ref": ["Books"], "as": "b"}, "columns": [{"ref": ["ID"]}],
		"where": ["exists", {"SELECT": {"from": {"ref": ["Authors"], "as": "author"}, "columns": [{"ref": ["ID"]}],
			"where": [{"ref": ["b", "author", "name"]}, "=", {"ref": ["author", "name"]}]}}]}}`)

	require.Len(t, res.Subqueries, 1)
	sub := res.Subqueries[0]
	assert.Equal(t, "author", sub.Sources[0].Alias)

	root := rootOf(t, res, "b")
	require.Len(t, root.Children(), 1)
	join := root.Children()[0]
	assert.Equal(t, "author2", join.Alias)
	assert.False(t, join.OnlyForeignKeyAccess)
	assert.True(t, res.JoinTree.IsReserved("author2"))
	assert.False(t, res.JoinTree.IsReserved("author"), "the inner source alias stays local to the sub-query")
}

func TestResolve_FilterPlacement(t *testing.T) {
	tests := []struct {
		name  string
		query string
		code  ErrorCode
	}{
		{
			name:  "structured element",
			query: `{"SELECT": {"from": "Books", "columns": [{"ref": [{"id": "dimensions", "where": [{"ref": ["height"]}, ">", {"val": 1}]}, "height"]}]}}`,
			code:  CodeInvalidFilterPlacement,
		},
		{
			name:  "last step of a column",
			query: `{"SELECT": {"from": "Books", "columns": [{"ref": [{"id": "author", "where": [{"ref": ["ID"]}, "=", {"val": 1}]}]}]}}`,
			code:  CodeInvalidFilterPlacement,
		},
		{
			name:  "source alias",
			query: `{"SELECT": {"from": {"ref": ["Books"], "as": "b"}, "columns": [{"ref": [{"id": "b", "where": [{"ref": ["ID"]}, "=", {"val": 1}]}, "title"]}]}}`,
			code:  CodeInvalidFilterPlacement,
		},
		{
			name:  "managed association past its keys",
			query: `{"SELECT": {"from": "Books", "columns": [{"ref": [{"id": "genre", "where": [{"ref": ["parent", "name"]}, "=", {"val": "x"}]}, "name"]}]}}`,
			code:  CodeRestrictedFilterAccess,
		},
		{
			name:  "unmanaged association",
			query: `{"SELECT": {"from": "Books", "columns": [{"ref": [{"id": "author", "where": [{"ref": ["books", "ID"]}, "=", {"val": 1}]}, "name"]}]}}`,
			code:  CodeRestrictedFilterAccess,
		},
		{
			name:  "foreign key of an association",
			query: `{"SELECT": {"from": "Books", "columns": [{"ref": [{"id": "genre", "where": [{"ref": ["parent", "ID"]}, "=", {"val": 1}]}, "name"]}]}}`,
		},
		{
			name: "exists lifts the restriction",
			query: `{"SELECT": {"from": "Books", "columns": [{"ref": ["ID"]}],
				"where": ["exists", {"ref": [{"id": "genre", "where": [{"ref": ["parent", "name"]}, "=", {"val": "x"}]}]}]}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestInferrer(t, nil).Resolve(mustQuery(t, tt.query))
			if tt.code == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err), err.Error())
		})
	}
}

func TestResolve_InvalidQuery(t *testing.T) {
	_, err := newTestInferrer(t, nil).Resolve(&cqn.Select{})
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeInvalidQuery))
}

func TestError_Message(t *testing.T) {
	e := newAmbiguousError("name", "name", []string{"b", "a"})
	assert.Equal(t, `AMBIGUOUS_REFERENCE: ambiguous reference to "name", qualify it with one of the source aliases (path=name) [b, a]`, e.Error())
	assert.Equal(t, CodeAmbiguousReference, CodeOf(e))
	assert.Equal(t, ErrorCode(""), CodeOf(assert.AnError))
}
