package cqn

import (
	"fmt"
	"strings"

	"github.com/roach88/qinfer/internal/ir"
)

// ValidationError lists every structural problem found in a query.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid query: " + strings.Join(e.Problems, "; ")
}

// Validator checks the shape of a query tree before resolution. It does not
// look at the model; unknown names are the resolver's concern.
type Validator struct {
	problems []string
}

// NewValidator creates a validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate returns a *ValidationError when the query is malformed, nil otherwise.
func Validate(q Query) error {
	return NewValidator().Validate(q)
}

// Validate checks q and returns a *ValidationError on problems.
func (v *Validator) Validate(q Query) error {
	v.problems = nil

	switch s := q.(type) {
	case nil:
		v.addf("query", "missing statement")
	case *Select:
		v.validateSelect(s, "SELECT")
	case *Insert:
		v.validateInsert(s.Into, s.Columns, s.Entries != nil, s.Rows, s.As != nil, "INSERT")
		if s.As != nil {
			v.validateSelect(s.As, "INSERT.as")
		}
	case *Upsert:
		v.validateInsert(s.Into, s.Columns, s.Entries != nil, s.Rows, false, "UPSERT")
	case *Update:
		v.validateEntity(s.Entity, "UPDATE.entity")
		for _, a := range s.With {
			if a.Element == "" {
				v.addf("UPDATE.with", "assignment without element name")
			}
			v.validateExpr(a.Value, "UPDATE.with."+a.Element)
		}
		v.validateExpr(s.Where, "UPDATE.where")
	case *Delete:
		v.validateEntity(s.From, "DELETE.from")
		v.validateExpr(s.Where, "DELETE.where")
	default:
		v.addf("query", "unknown statement type %T", q)
	}

	if len(v.problems) > 0 {
		return &ValidationError{Problems: v.problems}
	}
	return nil
}

func (v *Validator) addf(path, format string, args ...any) {
	v.problems = append(v.problems, path+": "+fmt.Sprintf(format, args...))
}

func (v *Validator) validateSelect(s *Select, path string) {
	if s.From == nil {
		v.addf(path, "from is required")
	} else {
		v.validateSource(s.From, path+".from")
	}
	v.validateColumns(s.Columns, path+".columns")
	v.validateExpr(s.Where, path+".where")
	for i, g := range s.GroupBy {
		v.validateExpr(g, fmt.Sprintf("%s.groupBy[%d]", path, i))
	}
	v.validateExpr(s.Having, path+".having")
	for i, o := range s.OrderBy {
		if o.Expr == nil {
			v.addf(fmt.Sprintf("%s.orderBy[%d]", path, i), "missing expression")
		}
		v.validateExpr(o.Expr, fmt.Sprintf("%s.orderBy[%d]", path, i))
	}
}

func (v *Validator) validateColumns(cols []*Column, path string) {
	for i, c := range cols {
		p := fmt.Sprintf("%s[%d]", path, i)
		if c == nil {
			v.addf(p, "nil column")
			continue
		}
		if c.Star {
			if c.Expr != nil || c.As != "" || c.Cast != "" || c.Expand != nil || c.Inline != nil {
				v.addf(p, "\"*\" cannot carry an expression, alias, cast or nested projection")
			}
			continue
		}
		if c.Expr == nil {
			v.addf(p, "missing expression")
			continue
		}
		if c.Expand != nil && c.Inline != nil {
			v.addf(p, "column cannot both expand and inline")
		}
		if (c.Expand != nil || c.Inline != nil) && c.Ref() == nil {
			v.addf(p, "nested projection requires a path")
		}
		v.validateExpr(c.Expr, p)
		if c.Expand != nil {
			v.validateColumns(c.Expand, p+".expand")
		}
		if c.Inline != nil {
			v.validateColumns(c.Inline, p+".inline")
		}
	}
}

func (v *Validator) validateSource(src Source, path string) {
	switch s := src.(type) {
	case *EntitySource:
		v.validateEntity(s, path)
	case *SubQuerySource:
		if s.Query == nil {
			v.addf(path, "sub-query source without query")
			return
		}
		v.validateSelect(s.Query, path+".SELECT")
	case *JoinSource:
		if len(s.Args) < 2 {
			v.addf(path, "join needs at least two sources, got %d", len(s.Args))
		}
		switch s.Kind {
		case "inner", "left", "right", "full", "cross":
		default:
			v.addf(path, "unknown join kind %q", s.Kind)
		}
		for i, a := range s.Args {
			v.validateSource(a, fmt.Sprintf("%s.args[%d]", path, i))
		}
		v.validateExpr(s.On, path+".on")
	default:
		v.addf(path, "unknown source type %T", src)
	}
}

func (v *Validator) validateEntity(s *EntitySource, path string) {
	if s == nil {
		v.addf(path, "entity is required")
		return
	}
	if s.Ref == nil || len(s.Ref.Steps) == 0 {
		v.addf(path, "entity path is empty")
		return
	}
	v.validateRef(s.Ref, path)
}

func (v *Validator) validateInsert(into *EntitySource, columns []string, hasEntries bool, rows []ir.IRArray, hasSelect bool, path string) {
	v.validateEntity(into, path+".into")
	kinds := 0
	for _, b := range []bool{hasEntries, rows != nil, hasSelect} {
		if b {
			kinds++
		}
	}
	if kinds > 1 {
		v.addf(path, "entries, rows and as are mutually exclusive")
	}
	for i, r := range rows {
		if len(columns) > 0 && len(r) != len(columns) {
			v.addf(fmt.Sprintf("%s.rows[%d]", path, i), "has %d values for %d columns", len(r), len(columns))
		}
	}
}

func (v *Validator) validateRef(r *Ref, path string) {
	if len(r.Steps) == 0 {
		v.addf(path, "empty path")
	}
	for i, s := range r.Steps {
		if s == nil || s.ID == "" {
			v.addf(fmt.Sprintf("%s[%d]", path, i), "empty step")
			continue
		}
		v.validateExpr(s.Where, fmt.Sprintf("%s[%d].where", path, i))
		for name, a := range s.Args {
			v.validateExpr(a, fmt.Sprintf("%s[%d].args.%s", path, i, name))
		}
	}
}

func (v *Validator) validateExpr(e Expr, path string) {
	switch x := e.(type) {
	case nil, Keyword, *Val:
	case *Ref:
		v.validateRef(x, path)
	case *Param:
		if x.Name == "" {
			v.addf(path, "parameter without name")
		}
	case *Func:
		if x.Name == "" {
			v.addf(path, "function without name")
		}
		for i, a := range x.Args {
			v.validateExpr(a, fmt.Sprintf("%s.args[%d]", path, i))
		}
	case *Xpr:
		for i, it := range x.Items {
			v.validateExpr(it, fmt.Sprintf("%s[%d]", path, i))
		}
	case *List:
		for i, it := range x.Items {
			v.validateExpr(it, fmt.Sprintf("%s[%d]", path, i))
		}
	case *SubQuery:
		if x.Query == nil {
			v.addf(path, "sub-query without select")
			return
		}
		v.validateSelect(x.Query, path+".SELECT")
	default:
		v.addf(path, "unknown expression type %T", e)
	}
}
