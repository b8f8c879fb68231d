package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/qinfer/internal/cqn"
)

// NamedQuery is a query declared in a model file under `queries`.
type NamedQuery struct {
	Name  string
	Query cqn.Query
}

// CompileQueries decodes the optional `queries` struct of a model value.
// Each query is written in the JSON query notation:
//
//	queries: booksByAuthor: SELECT: {
//		from:    "Books"
//		columns: [{ref: ["title"]}, {ref: ["author", "name"]}]
//	}
func CompileQueries(v cue.Value) ([]NamedQuery, error) {
	queriesVal := v.LookupPath(cue.ParsePath("queries"))
	if !queriesVal.Exists() {
		return nil, nil
	}
	iter, err := queriesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []NamedQuery
	for iter.Next() {
		q, err := CompileQuery(iter.Value())
		if err != nil {
			return nil, &CompileError{Field: "queries." + iter.Label(), Message: err.Error(), Pos: iter.Value().Pos()}
		}
		out = append(out, NamedQuery{Name: iter.Label(), Query: q})
	}
	return out, nil
}

// CompileQuery exports one concrete CUE value as JSON and decodes it.
func CompileQuery(v cue.Value) (cqn.Query, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	return cqn.Unmarshal(data)
}
