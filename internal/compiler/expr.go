package compiler

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/roach88/qinfer/internal/cqn"
	"github.com/roach88/qinfer/internal/ir"
)

// exprLexer tokenizes the expression shorthand used for on-conditions and
// calculated values in model files, e.g. `reviews.book = $self` or
// `price * stock`.
var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Keyword", Pattern: `(?i)\b(and|or|not|like|in|is|null|exists|between|case|when|then|else|end)\b`},
	{Name: "Bool", Pattern: `\b(true|false)\b`},
	{Name: "Ident", Pattern: `\$?[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Number", Pattern: `\d+(?:\.\d+)?`},
	{Name: "String", Pattern: `'(?:[^']|'')*'`},
	{Name: "Operator", Pattern: `<>|!=|<=|>=|\|\||[=<>+\-*/]`},
	{Name: "Punct", Pattern: `[().,\[\]]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

type xprAST struct {
	Items []*itemAST `parser:"@@+"`
}

type itemAST struct {
	Keyword  *string   `parser:"  @Keyword"`
	Operator *string   `parser:"| @Operator"`
	Bool     *string   `parser:"| @Bool"`
	Number   *string   `parser:"| @Number"`
	String   *string   `parser:"| @String"`
	Func     *funcAST  `parser:"| @@"`
	Path     *pathAST  `parser:"| @@"`
	Group    *groupAST `parser:"| @@"`
}

type funcAST struct {
	Name string    `parser:"@Ident '('"`
	Args []*xprAST `parser:"( @@ ( ',' @@ )* )? ')'"`
}

type pathAST struct {
	Steps []*stepAST `parser:"@@ ( '.' @@ )*"`
}

type stepAST struct {
	Name   string  `parser:"@Ident"`
	Filter *xprAST `parser:"( '[' @@ ']' )?"`
}

// groupAST is a parenthesized expression, or a value list when it has more
// than one entry: `x in (1, 2)`.
type groupAST struct {
	Items []*xprAST `parser:"'(' @@ ( ',' @@ )* ')'"`
}

var exprParser = participle.MustBuild[xprAST](
	participle.Lexer(exprLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// ParseExpr parses the expression shorthand into a query expression. A
// single operand is returned as is; anything longer becomes an Xpr.
func ParseExpr(src string) (cqn.Expr, error) {
	ast, err := exprParser.ParseString("", src)
	if err != nil {
		return nil, fmt.Errorf("parse expression %q: %w", src, err)
	}
	return ast.expr()
}

func (x *xprAST) expr() (cqn.Expr, error) {
	items := make([]cqn.Expr, 0, len(x.Items))
	for _, it := range x.Items {
		e, err := it.expr()
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if len(items) == 1 {
		return items[0], nil
	}
	return &cqn.Xpr{Items: items}, nil
}

func (it *itemAST) expr() (cqn.Expr, error) {
	switch {
	case it.Keyword != nil:
		return cqn.Keyword(strings.ToLower(*it.Keyword)), nil
	case it.Operator != nil:
		return cqn.Keyword(*it.Operator), nil
	case it.Bool != nil:
		return &cqn.Val{Value: ir.IRBool(*it.Bool == "true")}, nil
	case it.Number != nil:
		v, err := ir.ParseNumber(*it.Number)
		if err != nil {
			return nil, err
		}
		return &cqn.Val{Value: v}, nil
	case it.String != nil:
		s := *it.String
		s = strings.ReplaceAll(s[1:len(s)-1], "''", "'")
		return &cqn.Val{Value: ir.IRString(s)}, nil
	case it.Func != nil:
		f := &cqn.Func{Name: it.Func.Name}
		for _, a := range it.Func.Args {
			e, err := a.expr()
			if err != nil {
				return nil, err
			}
			f.Args = append(f.Args, e)
		}
		return f, nil
	case it.Path != nil:
		ref := &cqn.Ref{}
		for _, s := range it.Path.Steps {
			st := &cqn.Step{ID: s.Name}
			if s.Filter != nil {
				w, err := s.Filter.expr()
				if err != nil {
					return nil, err
				}
				st.Where = asXpr(w)
			}
			ref.Steps = append(ref.Steps, st)
		}
		return ref, nil
	case it.Group != nil:
		if len(it.Group.Items) == 1 {
			e, err := it.Group.Items[0].expr()
			if err != nil {
				return nil, err
			}
			return asXpr(e), nil
		}
		l := &cqn.List{}
		for _, g := range it.Group.Items {
			e, err := g.expr()
			if err != nil {
				return nil, err
			}
			l.Items = append(l.Items, e)
		}
		return l, nil
	}
	return nil, fmt.Errorf("empty expression item")
}

func asXpr(e cqn.Expr) cqn.Expr {
	if _, ok := e.(*cqn.Xpr); ok {
		return e
	}
	return &cqn.Xpr{Items: []cqn.Expr{e}}
}
