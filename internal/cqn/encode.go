package cqn

import (
	"fmt"

	"github.com/roach88/qinfer/internal/ir"
)

// Marshal writes a query as canonical JSON. Unmarshal reads the output back
// into an equivalent tree.
func Marshal(q Query) ([]byte, error) {
	doc, err := Encode(q)
	if err != nil {
		return nil, err
	}
	return ir.MarshalCanonical(doc)
}

// Encode converts a query into the generic map form used for canonical
// hashing and for storage.
func Encode(q Query) (map[string]any, error) {
	switch v := q.(type) {
	case *Select:
		return map[string]any{"SELECT": encodeSelect(v)}, nil
	case *Insert:
		body := encodeInsertBody(v.Into, v.Columns, v.Entries, v.Rows)
		if v.As != nil {
			body["as"] = map[string]any{"SELECT": encodeSelect(v.As)}
		}
		return map[string]any{"INSERT": body}, nil
	case *Upsert:
		return map[string]any{"UPSERT": encodeInsertBody(v.Into, v.Columns, v.Entries, v.Rows)}, nil
	case *Update:
		body := map[string]any{"entity": encodeSource(v.Entity)}
		if v.Data != nil {
			body["data"] = v.Data
		}
		if len(v.With) > 0 {
			with := make(map[string]any, len(v.With))
			for _, a := range v.With {
				with[a.Element] = EncodeExpr(a.Value)
			}
			body["with"] = with
		}
		if v.Where != nil {
			body["where"] = encodeClause(v.Where)
		}
		return map[string]any{"UPDATE": body}, nil
	case *Delete:
		body := map[string]any{"from": encodeSource(v.From)}
		if v.Where != nil {
			body["where"] = encodeClause(v.Where)
		}
		return map[string]any{"DELETE": body}, nil
	default:
		return nil, fmt.Errorf("encode query: unknown statement type %T", q)
	}
}

func encodeSelect(s *Select) map[string]any {
	body := map[string]any{"from": encodeSource(s.From)}
	if len(s.Columns) > 0 {
		body["columns"] = encodeColumns(s.Columns)
	}
	if len(s.Excluding) > 0 {
		body["excluding"] = s.Excluding
	}
	if s.Where != nil {
		body["where"] = encodeClause(s.Where)
	}
	if len(s.GroupBy) > 0 {
		body["groupBy"] = encodeExprs(s.GroupBy)
	}
	if s.Having != nil {
		body["having"] = encodeClause(s.Having)
	}
	if len(s.OrderBy) > 0 {
		terms := make([]any, len(s.OrderBy))
		for i, o := range s.OrderBy {
			m := encodeExprMap(o.Expr)
			if o.Desc {
				m["sort"] = "desc"
			}
			if o.Nulls != "" {
				m["nulls"] = o.Nulls
			}
			terms[i] = m
		}
		body["orderBy"] = terms
	}
	if s.Limit != nil {
		lim := map[string]any{}
		if s.Limit.Rows != nil {
			lim["rows"] = EncodeExpr(s.Limit.Rows)
		}
		if s.Limit.Offset != nil {
			lim["offset"] = EncodeExpr(s.Limit.Offset)
		}
		body["limit"] = lim
	}
	if s.Distinct {
		body["distinct"] = true
	}
	if s.One {
		body["one"] = true
	}
	return body
}

func encodeInsertBody(into *EntitySource, columns []string, entries []ir.IRObject, rows []ir.IRArray) map[string]any {
	body := map[string]any{"into": encodeSource(into)}
	if len(columns) > 0 {
		body["columns"] = columns
	}
	if len(entries) > 0 {
		arr := make(ir.IRArray, len(entries))
		for i, e := range entries {
			arr[i] = e
		}
		body["entries"] = arr
	}
	if len(rows) > 0 {
		arr := make(ir.IRArray, len(rows))
		for i, r := range rows {
			arr[i] = r
		}
		body["rows"] = arr
	}
	return body
}

func encodeSource(src Source) any {
	switch v := src.(type) {
	case *EntitySource:
		m := map[string]any{"ref": encodeSteps(v.Ref)}
		if v.As != "" {
			m["as"] = v.As
		}
		return m
	case *SubQuerySource:
		m := map[string]any{"SELECT": encodeSelect(v.Query)}
		if v.As != "" {
			m["as"] = v.As
		}
		return m
	case *JoinSource:
		args := make([]any, len(v.Args))
		for i, a := range v.Args {
			args[i] = encodeSource(a)
		}
		m := map[string]any{"join": v.Kind, "args": args}
		if v.On != nil {
			m["on"] = encodeClause(v.On)
		}
		return m
	default:
		return nil
	}
}

func encodeColumns(cols []*Column) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		if c.Star {
			out[i] = "*"
			continue
		}
		m := encodeExprMap(c.Expr)
		if c.As != "" {
			m["as"] = c.As
		}
		if c.Cast != "" {
			m["cast"] = map[string]any{"type": c.Cast}
		}
		if c.Expand != nil {
			m["expand"] = encodeColumns(c.Expand)
		}
		if c.Inline != nil {
			m["inline"] = encodeColumns(c.Inline)
		}
		out[i] = m
	}
	return out
}

func encodeSteps(r *Ref) []any {
	if r == nil {
		return []any{}
	}
	steps := make([]any, len(r.Steps))
	for i, s := range r.Steps {
		if !s.HasFilter() {
			steps[i] = s.ID
			continue
		}
		m := map[string]any{"id": s.ID}
		if s.Where != nil {
			m["where"] = encodeClause(s.Where)
		}
		if len(s.Args) > 0 {
			args := make(map[string]any, len(s.Args))
			for name, a := range s.Args {
				args[name] = EncodeExpr(a)
			}
			m["args"] = args
		}
		steps[i] = m
	}
	return steps
}

// encodeClause writes a clause as a token array.
func encodeClause(e Expr) []any {
	if x, ok := e.(*Xpr); ok {
		return encodeExprs(x.Items)
	}
	return []any{EncodeExpr(e)}
}

func encodeExprs(items []Expr) []any {
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = EncodeExpr(it)
	}
	return out
}

// encodeExprMap returns a fresh map for an expression so callers can add
// column or ordering keys. Keywords cannot carry such keys and become
// {"xpr": [kw]}.
func encodeExprMap(e Expr) map[string]any {
	if m, ok := EncodeExpr(e).(map[string]any); ok {
		return m
	}
	return map[string]any{"xpr": []any{EncodeExpr(e)}}
}

// EncodeExpr converts one expression into its generic JSON form. A Keyword
// becomes a bare string, every other node an object.
func EncodeExpr(e Expr) any {
	switch v := e.(type) {
	case nil:
		return nil
	case Keyword:
		return string(v)
	case *Ref:
		return map[string]any{"ref": encodeSteps(v)}
	case *Val:
		if v.Value == nil {
			return map[string]any{"val": ir.IRNull{}}
		}
		return map[string]any{"val": v.Value}
	case *Param:
		return map[string]any{"ref": []any{v.Name}, "param": true}
	case *Func:
		m := map[string]any{"func": v.Name}
		if len(v.Args) > 0 {
			m["args"] = encodeExprs(v.Args)
		}
		return m
	case *Xpr:
		return map[string]any{"xpr": encodeExprs(v.Items)}
	case *List:
		return map[string]any{"list": encodeExprs(v.Items)}
	case *SubQuery:
		return map[string]any{"SELECT": encodeSelect(v.Query)}
	default:
		return nil
	}
}
