package infer

import (
	"sort"
	"strings"

	"github.com/roach88/qinfer/internal/cqn"
	"github.com/roach88/qinfer/internal/csn"
	"github.com/roach88/qinfer/internal/jointree"
)

// base is the context first steps resolve against when a path does not
// start at a query source: the target of a filtered association, the
// association or structure of an inline/expand, or the owner of a
// calculated element. prefix holds the steps that led there, so merged
// paths hang below them.
type base struct {
	root    string
	tree    *jointree.Tree // nil when nothing below the base is merged
	prefix  []jointree.Step
	flat    []string // name prefix of inlined columns
	entity  *csn.Entity
	element *csn.Element // structured element, instead of entity
	source  *Source
}

func (b *base) lookup(name string) (Link, bool) {
	var (
		el *csn.Element
		ok bool
	)
	if b.element != nil {
		el, ok = b.element.Element(name)
	} else {
		el, ok = b.entity.Element(name)
	}
	if !ok {
		return Link{}, false
	}
	return Link{Name: name, Definition: el}, true
}

func (b *base) describe() string {
	if b.element != nil {
		return b.element.QualifiedName()
	}
	return b.entity.Name
}

// names lists the elements a "*" below the base expands to.
func (b *base) names() []string {
	var els []*csn.Element
	if b.element != nil {
		els = b.element.Elements
	} else {
		els = b.entity.Elements
	}
	out := make([]string, len(els))
	for i, el := range els {
		out[i] = el.Name
	}
	return out
}

// resolved is a reference together with the path the resolver built for it.
type resolved struct {
	info *RefInfo
	root string
	tree *jointree.Tree

	// steps is the path below root: base prefix followed by the reference's
	// own steps. stepLink maps each step to its index in info.Links, or -1
	// for prefix steps.
	steps    []jointree.Step
	stepLink []int
	flat     []string
}

func (rs *resolved) last() Link {
	return rs.info.Links[len(rs.info.Links)-1]
}

// bind appends the binding of one reference step.
func (rs *resolved) bind(st *cqn.Step, l Link) {
	rs.info.Links = append(rs.info.Links, l)
	rs.steps = append(rs.steps, jointree.Step{
		Name:    st.ID,
		Element: l.Definition,
		Where:   st.Where,
		Args:    st.Args,
	})
	rs.stepLink = append(rs.stepLink, len(rs.info.Links)-1)
	rs.flat = append(rs.flat, st.ID)
}

func (r *resolver) resolveRef(sc *scope, ref *cqn.Ref, rc refCtx) (*resolved, error) {
	path := ref.String()
	steps := ref.Steps
	first := steps[0]
	rs := &resolved{info: &RefInfo{Ref: ref}}
	start := 1

	if pseudo, ok := csn.Pseudo(first.ID); ok {
		rs.info.Pseudo = true
		rs.info.Links = append(rs.info.Links, Link{Name: first.ID, Definition: pseudo})
		rs.flat = append(rs.flat, trimDollar(first.ID))
	} else if err := r.resolveFirst(sc, rs, rc, path); err != nil {
		return nil, err
	} else if len(rs.info.Links) == 2 {
		// $self.<element> binds two steps at once
		start = 2
	}

	for k := start; k < len(steps); k++ {
		st := steps[k]
		prev := rs.last()
		if rc.restricted {
			if err := checkRestricted(prev, st.ID, path); err != nil {
				return nil, err
			}
		}
		l, ok := next(prev, st.ID)
		if !ok {
			return nil, errorf(CodeUnresolvedReference, path, "%q not found in %s", st.ID, describeLink(prev))
		}
		rs.bind(st, l)
	}

	if err := r.resolveFilters(sc, rs, rc, path); err != nil {
		return nil, err
	}

	last := rs.last()
	switch {
	case last.Element != nil:
		rs.info.Type = last.Element.Type
	case last.Definition != nil:
		rs.info.Type = last.Definition.Type
	}

	if def := last.Definition; last.Element == nil && def != nil && def.IsCalculated() {
		if err := r.linkCalculated(sc, def, calculatedBase(rs, def, rc), rc); err != nil {
			return nil, err
		}
	}

	relevance := jointree.JoinRelevance(rs.steps)
	for _, rel := range relevance {
		rs.info.JoinRelevant = rs.info.JoinRelevant || rel
	}
	if rc.merges() && rs.tree != nil && len(rs.steps) > 0 {
		p := &jointree.Path{Root: rs.root, Steps: rs.steps}
		if rs.tree.MergePathFrom(p, sc.tree) {
			rs.info.Path = p
			for j, n := range p.Nodes {
				if n != nil && rs.stepLink[j] >= 0 {
					rs.info.Links[rs.stepLink[j]].Node = n
				}
			}
			r.log.Debug("merged path", "path", path, "root", rs.root, "joinRelevant", rs.info.JoinRelevant)
		}
	}

	rs.info.FlatName = strings.Join(rs.flat, "_")
	if rc.sink != nil {
		*rc.sink = append(*rc.sink, rs.info)
	} else {
		sc.res.addRef(rs.info)
	}
	return rs, nil
}

// resolveFirst binds the first step of a non-pseudo path: against the
// base, a source alias, $self, an outer source alias, the query's own
// elements in modifier clauses, and finally the combined elements.
func (r *resolver) resolveFirst(sc *scope, rs *resolved, rc refCtx, path string) error {
	steps := rs.info.Ref.Steps
	first := steps[0]

	if b := rc.base; b != nil {
		l, ok := b.lookup(first.ID)
		if !ok {
			return errorf(CodeUnresolvedReference, path, "%q not found in %s", first.ID, b.describe())
		}
		rs.root, rs.tree = b.root, b.tree
		rs.info.Source = b.source
		rs.steps = append(rs.steps, b.prefix...)
		for range b.prefix {
			rs.stepLink = append(rs.stepLink, -1)
		}
		rs.flat = append(rs.flat, b.flat...)
		rs.bind(first, l)
		return nil
	}

	if src, ok := sc.source(first.ID); ok && len(steps) > 1 {
		if first.HasFilter() {
			return errorf(CodeInvalidFilterPlacement, path, "source alias %q cannot carry a filter", first.ID)
		}
		rs.root, rs.tree = src.Alias, sc.tree
		rs.info.Source = src
		rs.info.Links = append(rs.info.Links, Link{Name: first.ID, Source: src})
		return nil
	}

	if (first.ID == "$self" || first.ID == "$projection") && len(steps) > 1 {
		name := steps[1].ID
		qe, ok := sc.res.Element(name)
		if !ok {
			if !sc.columnsDone && sc.explicit[name] && name != sc.own {
				return errDeferred
			}
			return errorf(CodeUnresolvedReference, path, "%q is not an element of the query", name)
		}
		rs.info.Links = append(rs.info.Links, Link{Name: first.ID})
		rs.bind(steps[1], Link{Name: name, Definition: qe.Definition, Element: qe})
		return nil
	}

	if len(steps) > 1 {
		for o := sc.outer; o != nil; o = o.outer {
			if src, ok := o.source(first.ID); ok {
				rs.root, rs.tree = src.Alias, o.tree
				rs.info.Source = src
				rs.info.Outer = true
				rs.info.Links = append(rs.info.Links, Link{Name: first.ID, Source: src})
				return nil
			}
		}
	}

	if rc.clause.isModifier() && len(steps) == 1 {
		if qe, ok := sc.res.Element(first.ID); ok {
			rs.bind(first, Link{Name: first.ID, Definition: qe.Definition, Element: qe})
			return nil
		}
	}

	sources := sc.res.Combined[first.ID]
	switch len(sources) {
	case 0:
		return errorf(CodeUnresolvedReference, path, "%q not found in %s", first.ID, strings.Join(sc.aliases(sc.res.Sources), ", "))
	case 1:
	default:
		return newAmbiguousError(path, first.ID, sc.aliases(sources))
	}
	src := sources[0]
	l, _ := src.lookup(first.ID)
	rs.root, rs.tree = src.Alias, sc.tree
	rs.info.Source = src
	rs.bind(first, l)
	return nil
}

// next binds name below the previous step: in an association's target, a
// structured element, a source, or a structured query element.
func next(prev Link, name string) (Link, bool) {
	switch {
	case prev.Element != nil && prev.Element.IsStructured() && prev.Element.Expand == nil:
		e, ok := prev.Element.child(name)
		if !ok {
			return Link{}, false
		}
		return Link{Name: name, Definition: e.Definition, Element: e}, true
	case prev.Source != nil && prev.Definition == nil:
		return prev.Source.lookup(name)
	case prev.Definition == nil:
		return Link{}, false
	case prev.Definition.IsAssociation():
		el, ok := prev.Definition.TargetEntity().Element(name)
		return Link{Name: name, Definition: el}, ok
	case prev.Definition.IsStructured():
		el, ok := prev.Definition.Element(name)
		return Link{Name: name, Definition: el}, ok
	}
	return Link{}, false
}

func describeLink(l Link) string {
	switch {
	case l.Definition != nil:
		return l.Definition.QualifiedName()
	case l.Source != nil:
		return l.Source.Alias
	}
	return l.Name
}

// checkRestricted rejects a step past an association inside an infix
// filter unless the step is one of the association's foreign keys.
func checkRestricted(prev Link, name, path string) error {
	def := prev.Definition
	if def == nil || !def.IsAssociation() {
		return nil
	}
	if !def.IsManaged() {
		return errorf(CodeRestrictedFilterAccess, path,
			"unmanaged association %s cannot be followed inside a filter", def.QualifiedName())
	}
	if def.ForeignKey(name) == nil {
		return errorf(CodeRestrictedFilterAccess, path,
			"only foreign keys of %s can be accessed inside a filter, not %q", def.QualifiedName(), name)
	}
	return nil
}

// resolveFilters checks filter placement and resolves each step's filter
// against the association target.
func (r *resolver) resolveFilters(sc *scope, rs *resolved, rc refCtx, path string) error {
	steps := rs.info.Ref.Steps
	for k, st := range steps {
		if !st.HasFilter() || (k == 0 && rs.info.Links[0].Source != nil) {
			continue
		}
		def := rs.info.Links[k].Definition
		if def == nil || !def.IsAssociation() {
			return errorf(CodeInvalidFilterPlacement, path, "filter on %q: only associations can be filtered", st.ID)
		}
		last := k == len(steps)-1
		if last && !rc.dangling {
			return errorf(CodeInvalidFilterPlacement, path, "filter on the last step %q is not allowed here", st.ID)
		}
		if last && rc.skipLastFilter {
			continue
		}
		if err := r.resolveStepFilter(sc, st, def.TargetEntity(), rc, !rc.exists); err != nil {
			return err
		}
	}
	return nil
}

// calculatedBase places a calculated element's value at its owner: the
// path up to the element, without the structured elements enclosing it.
func calculatedBase(rs *resolved, def *csn.Element, rc refCtx) *base {
	prefix := rs.steps[:len(rs.steps)-1]
	for len(prefix) > 0 && prefix[len(prefix)-1].Element != nil && prefix[len(prefix)-1].Element.IsStructured() {
		prefix = prefix[:len(prefix)-1]
	}
	b := &base{
		root:   rs.root,
		prefix: append([]jointree.Step(nil), prefix...),
		entity: def.Owner(),
		source: rs.info.Source,
	}
	if rc.merges() {
		b.tree = rs.tree
	}
	return b
}

func sortedArgNames(args map[string]cqn.Expr) []string {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
