// Package plan turns the join tree of a resolved query into join
// descriptors for SQL generation.
//
// Only nodes that need a physical join are emitted. A path that merely
// reads the foreign keys of an association is rewritten to the flat
// foreign key columns of the association's owner instead. No SQL text is
// produced here.
package plan
