// Package csn is the schema graph queries are resolved against.
//
// A Model holds entities; entities hold elements in declaration order.
// Elements are scalars of a builtin type, structured elements with nested
// elements, or associations/compositions. A managed association carries
// foreign keys into its target; an unmanaged one carries an arbitrary on
// condition. Non-association elements may be calculated: their Value is an
// expression over other elements, expanded at resolution time unless Stored.
//
// NewModel links a set of entities and enforces the graph invariants:
// every association target exists and every foreign key names an element of
// the target. It also adds the flat foreign key columns (`author_ID`) that
// let a resolver satisfy `author.ID` without a join.
//
// Pseudo exposes the fixed pseudo roots ($user, $now, $at, $from, $to,
// $locale, $tenant) that resolve without an entity.
//
// A linked Model is never mutated again and is safe for concurrent reads.
package csn
