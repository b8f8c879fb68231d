package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qinfer/internal/cqn"
	"github.com/roach88/qinfer/internal/ir"
)

func TestParseExpr(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want cqn.Expr
	}{
		{
			name: "single path",
			src:  "author.name",
			want: cqn.NewRef("author", "name"),
		},
		{
			name: "arithmetic",
			src:  "price * stock",
			want: cqn.NewXpr(cqn.NewRef("price"), "*", cqn.NewRef("stock")),
		},
		{
			name: "backlink on-condition",
			src:  "reviews.book = $self",
			want: cqn.NewXpr(cqn.NewRef("reviews", "book"), "=", cqn.NewRef("$self")),
		},
		{
			name: "keywords are lowercased",
			src:  "stock > 5 AND NOT title is null",
			want: cqn.NewXpr(
				cqn.NewRef("stock"), ">", &cqn.Val{Value: ir.IRInt(5)},
				"and", "not", cqn.NewRef("title"), "is", "null",
			),
		},
		{
			name: "quoted string",
			src:  "'it''s'",
			want: &cqn.Val{Value: ir.IRString("it's")},
		},
		{
			name: "boolean",
			src:  "true",
			want: &cqn.Val{Value: ir.IRBool(true)},
		},
		{
			name: "function with star",
			src:  "count(*)",
			want: &cqn.Func{Name: "count", Args: []cqn.Expr{cqn.Keyword("*")}},
		},
		{
			name: "function with arguments",
			src:  "concat(title, ' ', descr)",
			want: &cqn.Func{Name: "concat", Args: []cqn.Expr{
				cqn.NewRef("title"),
				&cqn.Val{Value: ir.IRString(" ")},
				cqn.NewRef("descr"),
			}},
		},
		{
			name: "value list",
			src:  "ID in (1, 2)",
			want: cqn.NewXpr(cqn.NewRef("ID"), "in", &cqn.List{Items: []cqn.Expr{
				&cqn.Val{Value: ir.IRInt(1)},
				&cqn.Val{Value: ir.IRInt(2)},
			}}),
		},
		{
			name: "parenthesized operand",
			src:  "(price)",
			want: &cqn.Xpr{Items: []cqn.Expr{cqn.NewRef("price")}},
		},
		{
			name: "filtered step",
			src:  "books[stock > 5].title",
			want: &cqn.Ref{Steps: []*cqn.Step{
				{ID: "books", Where: cqn.NewXpr(cqn.NewRef("stock"), ">", &cqn.Val{Value: ir.IRInt(5)})},
				{ID: "title"},
			}},
		},
		{
			name: "single operand filter is wrapped",
			src:  "books[active]",
			want: &cqn.Ref{Steps: []*cqn.Step{
				{ID: "books", Where: &cqn.Xpr{Items: []cqn.Expr{cqn.NewRef("active")}}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExpr(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseExprDecimal(t *testing.T) {
	got, err := ParseExpr("price * 1.5")
	require.NoError(t, err)

	x, ok := got.(*cqn.Xpr)
	require.True(t, ok)
	require.Len(t, x.Items, 3)
	val, ok := x.Items[2].(*cqn.Val)
	require.True(t, ok)
	assert.IsType(t, ir.IRDecimal{}, val.Value)
	assert.Equal(t, "price * 1.5", cqn.Format(got))
}

func TestParseExprErrors(t *testing.T) {
	for _, src := range []string{"", "(price", "books[stock", "count(", "price # 2"} {
		t.Run(src, func(t *testing.T) {
			_, err := ParseExpr(src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "parse expression")
		})
	}
}
