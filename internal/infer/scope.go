package infer

import (
	"github.com/roach88/qinfer/internal/jointree"
)

// clause identifies the query clause a reference appears in.
type clause int

const (
	clauseColumns clause = iota
	clauseFrom
	clauseOn
	clauseWhere
	clauseGroupBy
	clauseHaving
	clauseOrderBy
	clauseWith
)

// isModifier reports whether names in the clause match the query's own
// elements first.
func (c clause) isModifier() bool {
	return c == clauseGroupBy || c == clauseHaving || c == clauseOrderBy
}

// scope is the resolution state of one (sub-)query. Scopes of enclosing
// queries are reachable through outer for correlated references.
type scope struct {
	res   *Result
	tree  *jointree.Tree
	outer *scope
	depth int

	// explicit holds the names of explicit columns, known before they are
	// resolved. A $self reference to one of them may be deferred.
	explicit    map[string]bool
	columnsDone bool
	own         string // predicted name of the unaliased column being resolved
}

func newScope(res *Result, outer *scope, depth int) *scope {
	return &scope{
		res:      res,
		tree:     res.JoinTree,
		outer:    outer,
		depth:    depth,
		explicit: make(map[string]bool),
	}
}

// addSource registers src and its elements in Combined.
func (sc *scope) addSource(src *Source) {
	sc.res.Sources = append(sc.res.Sources, src)
	sc.res.bySource[src.Alias] = src
	for _, name := range src.elementNames() {
		sc.res.Combined[name] = append(sc.res.Combined[name], src)
	}
}

func (sc *scope) source(alias string) (*Source, bool) {
	src, ok := sc.res.bySource[alias]
	return src, ok
}

// addElement appends a projected element, rejecting duplicate names.
func (sc *scope) addElement(e *Element) error {
	if _, dup := sc.res.byName[e.Name]; dup {
		return errorf(CodeDuplicateElement, "", "duplicate definition of element %q", e.Name)
	}
	sc.res.byName[e.Name] = e
	return nil
}

func (sc *scope) aliases(sources []*Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.Alias
	}
	return out
}
