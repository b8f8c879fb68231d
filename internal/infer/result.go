package infer

import (
	"github.com/roach88/qinfer/internal/cqn"
	"github.com/roach88/qinfer/internal/csn"
	"github.com/roach88/qinfer/internal/jointree"
)

// Result is a resolved query. The input query is not modified; everything
// the resolver learned lives in side tables keyed by the query's own nodes.
type Result struct {
	// ID correlates log lines and recorded snapshots of one resolution.
	// Nested results share the id of the top-level resolution.
	ID    string
	Kind  string // SELECT, INSERT, UPSERT, UPDATE or DELETE
	Query cqn.Query

	// Sources in declaration order. Target is set when the query has exactly
	// one entity source.
	Sources []*Source
	Target  *csn.Entity

	// Elements is the ordered projection of a select, or the target's
	// elements for DML.
	Elements []*Element

	// Combined maps every element name of every source to the sources
	// providing it, in source order.
	Combined map[string][]*Source

	JoinTree *jointree.Tree

	// Refs holds one entry per resolved reference of this query (not of its
	// nested queries, which have their own Result).
	Refs map[*cqn.Ref]*RefInfo

	// Calculated lists every calculated element linked while resolving this
	// query, with the references found in its value.
	Calculated []*CalculatedLink

	// Subqueries are the results of sub-selects in expressions and of DML
	// sub-selects, in resolution order.
	Subqueries []*Result

	refOrder []*cqn.Ref
	byName   map[string]*Element
	bySource map[string]*Source
}

func newResult(q cqn.Query, kind string, tree *jointree.Tree) *Result {
	return &Result{
		Kind:     kind,
		Query:    q,
		Combined: make(map[string][]*Source),
		JoinTree: tree,
		Refs:     make(map[*cqn.Ref]*RefInfo),
		byName:   make(map[string]*Element),
		bySource: make(map[string]*Source),
	}
}

// Element returns the projected element with the given name.
func (r *Result) Element(name string) (*Element, bool) {
	e, ok := r.byName[name]
	return e, ok
}

// Source returns the source registered under alias.
func (r *Result) Source(alias string) (*Source, bool) {
	s, ok := r.bySource[alias]
	return s, ok
}

// Ref returns the resolution of one reference node of the query.
func (r *Result) Ref(ref *cqn.Ref) (*RefInfo, bool) {
	info, ok := r.Refs[ref]
	return info, ok
}

// OrderedRefs returns the resolved references in resolution order.
func (r *Result) OrderedRefs() []*RefInfo {
	out := make([]*RefInfo, 0, len(r.refOrder))
	for _, ref := range r.refOrder {
		out = append(out, r.Refs[ref])
	}
	return out
}

func (r *Result) addRef(info *RefInfo) {
	if _, seen := r.Refs[info.Ref]; !seen {
		r.refOrder = append(r.refOrder, info.Ref)
	}
	r.Refs[info.Ref] = info
}

// Source is one aliased query source: an entity reached by a path, or a
// nested select.
type Source struct {
	Alias  string
	Ref    *cqn.Ref
	Entity *csn.Entity         // nil for sub-query sources
	Args   map[string]cqn.Expr // arguments of the last path step
	Query  *Result             // set for sub-query sources
}

// elementNames lists the names the source contributes to Combined.
func (s *Source) elementNames() []string {
	if s.Query != nil {
		names := make([]string, len(s.Query.Elements))
		for i, e := range s.Query.Elements {
			names[i] = e.Name
		}
		return names
	}
	names := make([]string, len(s.Entity.Elements))
	for i, el := range s.Entity.Elements {
		names[i] = el.Name
	}
	return names
}

func (s *Source) lookup(name string) (Link, bool) {
	if s.Query != nil {
		e, ok := s.Query.Element(name)
		if !ok {
			return Link{}, false
		}
		return Link{Name: name, Definition: e.Definition, Element: e}, true
	}
	el, ok := s.Entity.Element(name)
	if !ok {
		return Link{}, false
	}
	return Link{Name: name, Definition: el}, true
}

// Element is one entry of a query's projection.
type Element struct {
	Name string
	Type string // builtin type, "" when unknown

	// Definition is the schema element a plain path column selects.
	Definition *csn.Element

	// Elements are the fields of a structured or expanded element.
	Elements []*Element

	// Many marks a to-many expand (a collection of records).
	Many bool

	// Expand is the sub-query of an association expand.
	Expand *Result
}

// IsStructured reports whether the element is a nested record.
func (e *Element) IsStructured() bool {
	return e.Elements != nil
}

func (e *Element) child(name string) (*Element, bool) {
	for _, c := range e.Elements {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// RefInfo is the resolution of one reference.
type RefInfo struct {
	Ref *cqn.Ref

	// Links has one entry per step of the reference.
	Links []Link

	// FlatName is the underscore-joined path relative to its source
	// ("author_name"), used as the default column name.
	FlatName string
	Type     string

	// Source is the query source the path starts from; nil for pseudo
	// paths and $self references.
	Source *Source

	// Outer marks a correlated reference into an enclosing query.
	Outer bool

	// Pseudo marks a path starting at a pseudo root such as $user.
	Pseudo bool

	// JoinRelevant reports whether any association step needs a join.
	JoinRelevant bool

	// Path is the path merged into the join tree, or nil when the reference
	// was not merged (filters, exists predicates, query elements).
	Path *jointree.Path
}

// Link is the binding of one path step.
type Link struct {
	Name       string
	Definition *csn.Element
	Element    *Element       // query element ($self, modifiers, sub-query sources)
	Source     *Source        // set when the step names a source alias
	Node       *jointree.Node // canonical join node of a merged association step
}

// CalculatedLink records one expansion of a calculated element.
type CalculatedLink struct {
	Element *csn.Element

	// Root and Prefix locate the path that reached the element; the value's
	// own paths were merged below it.
	Root   string
	Prefix string

	Refs []*RefInfo
}

func elementFromDefinition(name string, def *csn.Element) *Element {
	e := &Element{Name: name, Type: def.Type, Definition: def}
	switch {
	case def.IsAssociation():
		e.Many = def.Many
	case def.IsStructured():
		e.Elements = make([]*Element, 0, len(def.Elements))
		for _, c := range def.Elements {
			e.Elements = append(e.Elements, elementFromDefinition(c.Name, c))
		}
	}
	return e
}
