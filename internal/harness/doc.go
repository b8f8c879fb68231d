// Package harness runs conformance scenarios against the resolver.
//
// A scenario is a YAML file naming a CUE model and a list of cases. Each
// case is a query, given inline in the JSON query notation or by the name
// of a query declared in the model, and the outcome it must produce:
//
//	name: bookshop-basics
//	description: Association paths become joins
//	model: ../models/bookshop.cue
//	cases:
//	  - name: author name
//	    query: {SELECT: {from: {ref: [Books]}, columns: [{ref: [title]}, {ref: [author, name]}]}}
//	    expect:
//	      elements: [title, author_name]
//	      joins:
//	        - {alias: author, parent: Books, target: Authors}
//
// Resolution ids are deterministic within a run ("resolution-1",
// "resolution-2", ...). Failed expectations never abort a run; they are
// collected in the Result. Golden files hold the canonical JSON of the
// per-case snapshots and are compared with goldie.
package harness
