package cqn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qinfer/internal/ir"
)

func TestUnmarshal_Select(t *testing.T) {
	q, err := Unmarshal([]byte(`{"SELECT": {
		"from": {"ref": ["sap.capire.Books"], "as": "B"},
		"columns": [
			{"ref": ["title"]},
			{"ref": ["author", "name"], "as": "author"},
			{"val": 4.99, "as": "price"},
			"*"
		],
		"where": [{"ref": ["stock"]}, ">", {"val": 5}],
		"orderBy": [{"ref": ["title"], "sort": "desc", "nulls": "LAST"}],
		"limit": {"rows": {"val": 10}, "offset": 20}
	}}`))
	require.NoError(t, err)

	sel, ok := q.(*Select)
	require.True(t, ok, "expected *Select, got %T", q)

	src, ok := sel.From.(*EntitySource)
	require.True(t, ok)
	assert.Equal(t, []string{"sap.capire.Books"}, src.Ref.IDs())
	assert.Equal(t, "B", src.Alias())

	require.Len(t, sel.Columns, 4)
	assert.Equal(t, []string{"title"}, sel.Columns[0].Ref().IDs())
	assert.Equal(t, "author", sel.Columns[1].As)
	assert.Equal(t, []string{"author", "name"}, sel.Columns[1].Ref().IDs())
	assert.Equal(t, &Val{Value: ir.MustIRDecimal("4.99")}, sel.Columns[2].Expr)
	assert.True(t, sel.Columns[3].Star)

	where, ok := sel.Where.(*Xpr)
	require.True(t, ok)
	require.Len(t, where.Items, 3)
	assert.Equal(t, Keyword(">"), where.Items[1])
	assert.Equal(t, &Val{Value: ir.IRInt(5)}, where.Items[2])

	require.Len(t, sel.OrderBy, 1)
	assert.True(t, sel.OrderBy[0].Desc)
	assert.Equal(t, "last", sel.OrderBy[0].Nulls)

	require.NotNil(t, sel.Limit)
	assert.Equal(t, &Val{Value: ir.IRInt(10)}, sel.Limit.Rows)
	assert.Equal(t, &Val{Value: ir.IRInt(20)}, sel.Limit.Offset)
}

func TestUnmarshal_StepFilterAndArgs(t *testing.T) {
	q, err := Unmarshal([]byte(`{"SELECT": {
		"from": {"ref": [{"id": "Books", "where": [{"ref": ["ID"]}, "=", {"val": 1}]}, "author"]},
		"columns": [{"ref": [{"id": "books", "args": {"p": {"val": "x"}}}, "title"]}]
	}}`))
	require.NoError(t, err)
	sel := q.(*Select)

	src := sel.From.(*EntitySource)
	require.Len(t, src.Ref.Steps, 2)
	assert.True(t, src.Ref.Steps[0].HasFilter())
	assert.False(t, src.Ref.Steps[1].HasFilter())
	assert.Equal(t, "author", src.Alias())

	step := sel.Columns[0].Ref().Steps[0]
	assert.Nil(t, step.Where)
	assert.Equal(t, &Val{Value: ir.IRString("x")}, step.Args["p"])
	assert.True(t, step.HasFilter())
}

func TestUnmarshal_ExpandAndInline(t *testing.T) {
	q, err := Unmarshal([]byte(`{"SELECT": {
		"from": {"ref": ["Books"]},
		"columns": [
			{"ref": ["author"], "expand": ["*"]},
			{"ref": ["dimensions"], "inline": [{"ref": ["height"]}]},
			{"ref": ["genre"], "expand": []}
		]
	}}`))
	require.NoError(t, err)
	cols := q.(*Select).Columns

	assert.True(t, cols[0].IsExpand())
	require.Len(t, cols[0].Expand, 1)
	assert.True(t, cols[0].Expand[0].Star)

	assert.True(t, cols[1].IsInline())
	assert.False(t, cols[1].IsExpand())

	assert.True(t, cols[2].IsExpand(), "empty expand stays an expand")
	assert.Empty(t, cols[2].Expand)
}

func TestUnmarshal_Sources(t *testing.T) {
	t.Run("plain name", func(t *testing.T) {
		q, err := Unmarshal([]byte(`{"SELECT": {"from": "Books"}}`))
		require.NoError(t, err)
		assert.Equal(t, "Books", q.(*Select).From.(*EntitySource).Alias())
	})

	t.Run("sub-query default alias", func(t *testing.T) {
		q, err := Unmarshal([]byte(`{"SELECT": {"from": {"SELECT": {"from": {"ref": ["Books"]}}}}}`))
		require.NoError(t, err)
		sq, ok := q.(*Select).From.(*SubQuerySource)
		require.True(t, ok)
		assert.Equal(t, DefaultSubQueryAlias, sq.Alias())
	})

	t.Run("join", func(t *testing.T) {
		q, err := Unmarshal([]byte(`{"SELECT": {"from": {
			"join": "LEFT",
			"args": [{"ref": ["Books"], "as": "B"}, {"ref": ["Authors"], "as": "A"}],
			"on": [{"ref": ["B", "author_ID"]}, "=", {"ref": ["A", "ID"]}]
		}}}`))
		require.NoError(t, err)
		js, ok := q.(*Select).From.(*JoinSource)
		require.True(t, ok)
		assert.Equal(t, "left", js.Kind)
		require.Len(t, js.Args, 2)
		assert.NotNil(t, js.On)
	})
}

func TestUnmarshal_Expressions(t *testing.T) {
	q, err := Unmarshal([]byte(`{"SELECT": {
		"from": {"ref": ["Books"]},
		"where": [
			"exists", {"ref": ["author"]}, "and",
			{"ref": ["ID"]}, "in", {"list": [{"val": 1}, {"val": 2}]}, "and",
			{"ref": ["?"], "param": true}, "=", {"func": "count", "args": ["*"]}, "or",
			{"xpr": [{"ref": ["stock"]}, "+", 1]}, "in", {"SELECT": {"from": {"ref": ["Stock"]}}}
		]
	}}`))
	require.NoError(t, err)
	items := q.(*Select).Where.(*Xpr).Items

	assert.Equal(t, Keyword("exists"), items[0])
	assert.IsType(t, &Ref{}, items[1])
	assert.IsType(t, &List{}, items[5])
	assert.Equal(t, &Param{Name: "?"}, items[7])
	assert.Equal(t, &Func{Name: "count", Args: []Expr{Keyword("*")}}, items[9])

	inner, ok := items[11].(*Xpr)
	require.True(t, ok)
	assert.Equal(t, &Val{Value: ir.IRInt(1)}, inner.Items[2])
	assert.IsType(t, &SubQuery{}, items[13])
}

func TestUnmarshal_DML(t *testing.T) {
	t.Run("insert entries", func(t *testing.T) {
		q, err := Unmarshal([]byte(`{"INSERT": {"into": "Books", "entries": [{"ID": 1, "price": 1.50}]}}`))
		require.NoError(t, err)
		ins := q.(*Insert)
		assert.Equal(t, "Books", ins.Into.Alias())
		require.Len(t, ins.Entries, 1)
		assert.Equal(t, ir.IRInt(1), ins.Entries[0]["ID"])
		assert.Equal(t, "1.5", ins.Entries[0]["price"].(ir.IRDecimal).Text())
	})

	t.Run("insert as select", func(t *testing.T) {
		q, err := Unmarshal([]byte(`{"INSERT": {"into": {"ref": ["Archive"]}, "as": {"SELECT": {"from": {"ref": ["Books"]}}}}}`))
		require.NoError(t, err)
		require.NotNil(t, q.(*Insert).As)
	})

	t.Run("upsert rows", func(t *testing.T) {
		q, err := Unmarshal([]byte(`{"UPSERT": {"into": "Books", "columns": ["ID", "title"], "rows": [[1, "a"]]}}`))
		require.NoError(t, err)
		up := q.(*Upsert)
		assert.Equal(t, []string{"ID", "title"}, up.Columns)
		require.Len(t, up.Rows, 1)
	})

	t.Run("update with sorted assignments", func(t *testing.T) {
		q, err := Unmarshal([]byte(`{"UPDATE": {
			"entity": {"ref": ["Books"]},
			"data": {"title": "x"},
			"with": {"stock": {"xpr": [{"ref": ["stock"]}, "-", {"val": 1}]}, "author_ID": {"val": 2}},
			"where": [{"ref": ["ID"]}, "=", {"val": 1}]
		}}`))
		require.NoError(t, err)
		upd := q.(*Update)
		require.Len(t, upd.With, 2)
		assert.Equal(t, "author_ID", upd.With[0].Element)
		assert.Equal(t, "stock", upd.With[1].Element)
		assert.Equal(t, ir.IRString("x"), upd.Data["title"])
	})

	t.Run("delete", func(t *testing.T) {
		q, err := Unmarshal([]byte(`{"DELETE": {"from": "Books", "where": [{"ref": ["stock"]}, "=", {"val": 0}]}}`))
		require.NoError(t, err)
		assert.NotNil(t, q.(*Delete).Where)
	})
}

func TestUnmarshal_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"two statements", `{"SELECT": {"from": "A"}, "DELETE": {"from": "A"}}`, "exactly one statement"},
		{"unknown statement", `{"MERGE": {}}`, "unknown statement"},
		{"missing from", `{"SELECT": {}}`, "from is required"},
		{"unknown select key", `{"SELECT": {"from": "A", "wher": []}}`, "unknown field"},
		{"bad column", `{"SELECT": {"from": "A", "columns": ["title"]}}`, "unexpected column"},
		{"unknown expression", `{"SELECT": {"from": "A", "where": [{"foo": 1}]}}`, "unknown expression"},
		{"bad sort", `{"SELECT": {"from": "A", "orderBy": [{"ref": ["x"], "sort": "up"}]}}`, "unknown sort direction"},
		{"upsert as", `{"UPSERT": {"into": "A", "as": {"SELECT": {"from": "B"}}}}`, "does not take a sub-select"},
		{"entry not object", `{"INSERT": {"into": "A", "entries": [1]}}`, "entry must be an object"},
		{"delete from join", `{"DELETE": {"from": {"join": "inner", "args": ["A", "B"]}}}`, "expected an entity path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.doc))
			require.Error(t, err)
			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	docs := []string{
		`{"SELECT":{"columns":[{"ref":["title"]},{"as":"a","expand":["*"],"ref":["author"]},"*"],"from":{"as":"B","ref":[{"id":"Books","where":[{"ref":["ID"]},"=",{"val":1}]}]},"orderBy":[{"ref":["title"],"sort":"desc"}],"where":[{"ref":["stock"]},">",{"val":1.5}]}}`,
		`{"UPDATE":{"entity":{"ref":["Books"]},"where":[{"ref":["ID"]},"=",{"param":true,"ref":["?"]}],"with":{"stock":{"val":0}}}}`,
		`{"DELETE":{"from":{"ref":["Books"]}}}`,
	}

	for _, doc := range docs {
		q, err := Unmarshal([]byte(doc))
		require.NoError(t, err)

		out, err := Marshal(q)
		require.NoError(t, err)
		assert.Equal(t, doc, string(out))
	}
}
