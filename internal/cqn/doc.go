// Package cqn defines the query tree that the resolver consumes.
//
// A query is one of Select, Insert, Upsert, Update or Delete. Sources,
// expressions and statements are sealed interfaces using the marker method
// pattern, so the resolver and the planner can switch over them exhaustively:
//
//	switch q := query.(type) {
//	case *cqn.Select:
//	    // resolve columns, where, group by, having, order by
//	case *cqn.Update:
//	    // resolve where and assignments
//	}
//
// Paths are the central node. A Ref is an ordered list of Steps and each
// step may carry an infix filter (`books[stock > 5]`) and arguments. The
// tree is never annotated in place: resolution results live in side tables
// keyed by node pointer.
//
// The JSON form read by Unmarshal and written by Marshal follows the common
// CQN object notation:
//
//	{"SELECT": {
//	  "from":    {"ref": ["Books"], "as": "B"},
//	  "columns": [{"ref": ["author", "name"], "as": "author"}, "*"],
//	  "where":   [{"ref": ["stock"]}, ">", {"val": 5}]
//	}}
//
// Marshal writes RFC 8785 canonical JSON via ir.MarshalCanonical so that the
// encoded form can be hashed into a stable query id.
package cqn
