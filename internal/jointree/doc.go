// Package jointree builds the deduplicated tree of association traversals
// a query needs.
//
// Each entity source of a query is a Root. Every association step of a
// resolved path becomes a Node below its root, keyed by the step name plus
// a structural hash of its filter and arguments:
//
//	Books (root)
//	├── author            author.name, author.ID
//	└── author2 [ID > 5]  author[ID > 5].name
//
// Two references through the same sequence of (association, filter) steps
// land on the same Node, which is what lets a SQL generator emit one join
// per node. A Node reached only to read the association's own foreign keys
// keeps OnlyForeignKeyAccess and needs no join at all.
//
// Aliases are allocated case-insensitively and never collide with aliases
// reserved by outer trees, so correlated sub-queries stay unambiguous.
package jointree
