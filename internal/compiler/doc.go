// Package compiler turns CUE model files into a linked schema model.
//
// A model file declares entities and, optionally, named queries:
//
//	entities: Books: elements: {
//		ID:     {type: "Integer", key: true}
//		author: association: "Authors"
//		total:  {type: "Decimal", value: "price * stock"}
//	}
//	queries: titles: SELECT: {from: ref: ["Books"], columns: [{ref: ["title"]}]}
//
// On-conditions and calculated values use a small expression shorthand
// parsed by ParseExpr. CompileModel validates the entities (all problems are
// reported at once), links them with csn.NewModel and runs a static cycle
// analysis over calculated elements.
package compiler
