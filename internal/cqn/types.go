package cqn

import (
	"strings"

	"github.com/roach88/qinfer/internal/ir"
)

// Query is one of the five statement shapes: *Select, *Insert, *Upsert,
// *Update or *Delete.
//
// This is a sealed interface. The marker method keeps implementations in
// this package so resolvers can switch exhaustively.
type Query interface {
	queryNode()
}

// Source is a query source: *EntitySource, *SubQuerySource or *JoinSource.
type Source interface {
	sourceNode()
}

// Expr is any expression node that can appear in a clause or inside an
// infix filter: *Ref, *Val, *Param, *Func, *Xpr, *List, *SubQuery or Keyword.
type Expr interface {
	exprNode()
}

// Select reads from one or more sources.
//
//	SELECT <columns> FROM <from> WHERE <where>
//	GROUP BY <groupBy> HAVING <having> ORDER BY <orderBy> LIMIT <limit>
//
// An empty Columns list means "*".
type Select struct {
	From      Source
	Columns   []*Column
	Excluding []string
	Where     Expr
	GroupBy   []Expr
	Having    Expr
	OrderBy   []*OrderBy
	Limit     *Limit
	Distinct  bool
	One       bool
}

func (*Select) queryNode() {}

// Insert adds entries, rows, or the result of a sub-select to an entity.
type Insert struct {
	Into    *EntitySource
	Columns []string
	Entries []ir.IRObject
	Rows    []ir.IRArray
	As      *Select
}

func (*Insert) queryNode() {}

// Upsert inserts or updates entries by primary key.
type Upsert struct {
	Into    *EntitySource
	Columns []string
	Entries []ir.IRObject
	Rows    []ir.IRArray
}

func (*Upsert) queryNode() {}

// Update changes rows of one entity. Data holds plain values, With holds
// computed assignments.
type Update struct {
	Entity *EntitySource
	Data   ir.IRObject
	With   []*Assignment
	Where  Expr
}

func (*Update) queryNode() {}

// Delete removes rows of one entity.
type Delete struct {
	From  *EntitySource
	Where Expr
}

func (*Delete) queryNode() {}

// Assignment is one `element = expression` pair of an update.
type Assignment struct {
	Element string
	Value   Expr
}

// EntitySource is a path to an entity, optionally navigating associations
// (`Books[ID=1].author`), with an optional alias.
type EntitySource struct {
	Ref *Ref
	As  string
}

func (*EntitySource) sourceNode() {}

// Alias returns the explicit alias, or the last dotted segment of the last
// path step (`sap.capire.Books` → `Books`).
func (s *EntitySource) Alias() string {
	if s.As != "" {
		return s.As
	}
	if s.Ref == nil || len(s.Ref.Steps) == 0 {
		return ""
	}
	id := s.Ref.Steps[len(s.Ref.Steps)-1].ID
	if i := strings.LastIndex(id, "."); i >= 0 {
		return id[i+1:]
	}
	return id
}

// SubQuerySource is a nested select used as a source.
type SubQuerySource struct {
	Query *Select
	As    string
}

func (*SubQuerySource) sourceNode() {}

// DefaultSubQueryAlias is the alias of a sub-query source without one.
const DefaultSubQueryAlias = "__select__"

// Alias returns the explicit alias or DefaultSubQueryAlias.
func (s *SubQuerySource) Alias() string {
	if s.As != "" {
		return s.As
	}
	return DefaultSubQueryAlias
}

// JoinSource joins two or more sources.
type JoinSource struct {
	Kind string // "inner", "left", "right", "full", "cross"
	Args []Source
	On   Expr
}

func (*JoinSource) sourceNode() {}

// Column is one projection entry: an expression with optional alias and
// cast, the "*" marker, or a path with a nested expand/inline projection.
type Column struct {
	Expr   Expr
	Star   bool
	As     string
	Cast   string
	Expand []*Column
	Inline []*Column
}

// IsExpand reports whether the column carries a nested expand projection.
func (c *Column) IsExpand() bool { return c.Expand != nil }

// IsInline reports whether the column carries a nested inline projection.
func (c *Column) IsInline() bool { return c.Inline != nil }

// Ref returns the column's expression as a reference, or nil.
func (c *Column) Ref() *Ref {
	r, _ := c.Expr.(*Ref)
	return r
}

// OrderBy is one ordering term.
type OrderBy struct {
	Expr  Expr
	Desc  bool
	Nulls string // "", "first", "last"
}

// Limit holds row count and offset expressions.
type Limit struct {
	Rows   Expr
	Offset Expr
}

// Ref is a path: an ordered list of steps.
type Ref struct {
	Steps []*Step
}

func (*Ref) exprNode() {}

// NewRef builds an unfiltered path from plain step names.
func NewRef(ids ...string) *Ref {
	steps := make([]*Step, len(ids))
	for i, id := range ids {
		steps[i] = &Step{ID: id}
	}
	return &Ref{Steps: steps}
}

// IDs returns the step names.
func (r *Ref) IDs() []string {
	ids := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		ids[i] = s.ID
	}
	return ids
}

// Step is one path segment, optionally carrying an infix filter and
// parameter arguments.
type Step struct {
	ID    string
	Where Expr
	Args  map[string]Expr
}

// HasFilter reports whether the step carries a filter or arguments.
func (s *Step) HasFilter() bool {
	return s.Where != nil || len(s.Args) > 0
}

// Val is a literal.
type Val struct {
	Value ir.IRValue
}

func (*Val) exprNode() {}

// NewVal wraps a Go literal. It panics on values ir.FromGo rejects.
func NewVal(v any) *Val {
	iv, err := ir.FromGo(v)
	if err != nil {
		panic(err)
	}
	return &Val{Value: iv}
}

// Param is a bind parameter (`?` or a named parameter).
type Param struct {
	Name string
}

func (*Param) exprNode() {}

// Func is a function call. A `count(*)` argument is the Keyword "*".
type Func struct {
	Name string
	Args []Expr
}

func (*Func) exprNode() {}

// Xpr is a flat token sequence of operands and Keywords, e.g.
// [ref(stock), ">", val(5), "and", ...].
type Xpr struct {
	Items []Expr
}

func (*Xpr) exprNode() {}

// NewXpr builds an Xpr; string arguments become Keywords.
func NewXpr(items ...any) *Xpr {
	x := &Xpr{Items: make([]Expr, 0, len(items))}
	for _, it := range items {
		switch v := it.(type) {
		case string:
			x.Items = append(x.Items, Keyword(v))
		case Expr:
			x.Items = append(x.Items, v)
		default:
			x.Items = append(x.Items, NewVal(v))
		}
	}
	return x
}

// Keyword is an operator or keyword token inside an Xpr (`=`, `and`, `exists`).
type Keyword string

func (Keyword) exprNode() {}

// Is compares case-insensitively.
func (k Keyword) Is(word string) bool {
	return strings.EqualFold(string(k), word)
}

// List is a parenthesized value list, e.g. the right side of `in`.
type List struct {
	Items []Expr
}

func (*List) exprNode() {}

// SubQuery is a nested select used as an expression (`exists (select ...)`,
// `x in (select ...)`).
type SubQuery struct {
	Query *Select
}

func (*SubQuery) exprNode() {}
