package jointree

import (
	"strconv"

	"github.com/roach88/qinfer/internal/cqn"
	"github.com/roach88/qinfer/internal/csn"
)

// Step is one resolved path step: the bound element plus the step's
// filter and arguments.
type Step struct {
	Name    string
	Element *csn.Element
	Where   cqn.Expr
	Args    map[string]cqn.Expr
}

// HasFilter reports whether the step carries a filter or arguments.
func (s Step) HasFilter() bool {
	return s.Where != nil || len(s.Args) > 0
}

// Path is a resolved reference relative to one root: the root alias and the
// steps after it. MergePath fills Nodes with the canonical node of every
// association step it merged; Nodes[i] is nil for other steps.
type Path struct {
	Root  string
	Steps []Step
	Nodes []*Node
}

// MergePath merges the association steps of p into the tree. Steps with an
// identical (name, filter, arguments) identity below the same node reuse
// that node, so equivalent references share one join. New nodes get a fresh
// alias based on the step name.
//
// Merging stops below an association reached through foreign keys only: the
// remaining steps are its key columns. It returns false, and merges nothing,
// when p.Root is not a root of this tree.
func (t *Tree) MergePath(p *Path) bool {
	return t.MergePathFrom(p, t)
}

// MergePathFrom is MergePath for a path resolved in from, a tree nested in
// t (a correlated sub-query). New aliases are free in from and every tree
// enclosing it, so no source of the inner query shadows the join.
func (t *Tree) MergePathFrom(p *Path, from *Tree) bool {
	if from == nil {
		from = t
	}
	root, ok := t.Root(p.Root)
	if !ok {
		return false
	}
	p.Nodes = make([]*Node, len(p.Steps))
	relevant := JoinRelevance(p.Steps)

	var parent *Node
	b := &root.branch
	prefix := ""
	for i, s := range p.Steps {
		el := s.Element
		if el == nil {
			break
		}
		if el.IsStructured() {
			prefix += s.Name + "."
			continue
		}
		if !el.IsAssociation() {
			break
		}

		name := prefix + s.Name
		prefix = ""
		key := stepIdentity(name, s.Where, s.Args)
		n := b.child(key)
		if n == nil {
			n = &Node{
				Alias:                t.aliasFor(s.Name, from),
				Name:                 name,
				Element:              el,
				Where:                s.Where,
				Args:                 s.Args,
				OnlyForeignKeyAccess: true,
				Root:                 root,
				Parent:               parent,
				key:                  key,
			}
			t.reserved[t.fold.String(n.Alias)] = true
			b.add(n)
		}
		if relevant[i] {
			n.OnlyForeignKeyAccess = false
		}
		p.Nodes[i] = n

		if !relevant[i] {
			break
		}
		parent = n
		b = &n.branch
	}
	return true
}

// aliasFor returns the first candidate for base that is free both in t and
// in the chain of from.
func (t *Tree) aliasFor(base string, from *Tree) string {
	taken := func(alias string) bool {
		return from.IsReserved(alias) || t.IsReserved(alias)
	}
	if !taken(base) {
		return base
	}
	for i := 2; ; i++ {
		candidate := base + strconv.Itoa(i)
		if !taken(candidate) {
			return candidate
		}
	}
}

// JoinRelevance classifies every step of a path. An association step is
// join relevant when it is unmanaged, carries a filter, or when the path
// continues past its foreign keys into other elements of the target.
// A key that is itself a managed association is followed recursively, and
// once a step is join relevant every association before it is too.
func JoinRelevance(steps []Step) []bool {
	relevant := make([]bool, len(steps))
	for i, s := range steps {
		if s.Element != nil && s.Element.IsAssociation() {
			relevant[i] = !foreignKeyOnly(steps, i)
		}
	}
	last := -1
	for i := len(steps) - 1; i >= 0; i-- {
		if relevant[i] {
			last = i
			break
		}
	}
	for i := 0; i < last; i++ {
		if steps[i].Element != nil && steps[i].Element.IsAssociation() {
			relevant[i] = true
		}
	}
	return relevant
}

// foreignKeyOnly reports whether the association at steps[i] is only used
// to reach its own foreign keys.
func foreignKeyOnly(steps []Step, i int) bool {
	assoc := steps[i].Element
	if !assoc.IsManaged() || steps[i].HasFilter() {
		return false
	}
	if i == len(steps)-1 {
		return true
	}
	fk := assoc.ForeignKey(steps[i+1].Name)
	if fk == nil {
		return false
	}

	// Follow the key's own path through the target.
	j := i + 1
	for k := 0; k < len(fk.Ref); k++ {
		if j >= len(steps) {
			// path stops inside a structured key: all of it is key columns
			return true
		}
		if steps[j].Name != fk.Ref[k] || steps[j].HasFilter() {
			return false
		}
		j++
	}

	key := fk.TargetElement
	if j >= len(steps) {
		return true
	}
	switch {
	case key.IsManaged():
		return foreignKeyOnly(steps, j-1)
	case key.IsStructured():
		// remaining steps select inside the structured key
		for ; j < len(steps); j++ {
			if steps[j].HasFilter() || (steps[j].Element != nil && steps[j].Element.IsAssociation()) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
