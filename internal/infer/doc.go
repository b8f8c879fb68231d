// Package infer resolves queries against a schema model.
//
// Resolve binds every path of a query to schema elements, source aliases,
// pseudo roots or the query's own columns, and records the result in side
// tables: per-reference step bindings, the ordered projection, the
// combined elements of all sources and a join tree of the association
// traversals the query needs.
//
// # Name resolution
//
// The first step of a path is tried in order against pseudo roots ($user,
// $now, ...), the enclosing base (infix filters, inline and structured
// projections, calculated element values), source aliases, $self,
// aliases of enclosing queries and finally the elements of all sources.
// A name found in more than one source is ambiguous. Group by, having and
// order by match single names against the query's own columns first.
//
// # Infix filters
//
// Inside a filter only the foreign keys of an association may be
// followed. An exists predicate lifts the restriction and also allows a
// filter on the last step of its path.
//
// # Calculated elements
//
// A calculated element is expanded where it is reached: its value is
// resolved at the element's owner, and its paths are merged below the
// path that led to it. Each (element, path) pair is linked once; reaching
// an element again while it is being linked is a self reference.
//
// # Deferred columns
//
// Columns referring to other columns through $self are resolved after the
// rest of the projection, repeatedly, until a round makes no progress.
// Columns still waiting then reference each other in a cycle.
package infer
