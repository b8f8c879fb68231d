package infer

import (
	"github.com/roach88/qinfer/internal/csn"
)

// linkStack tracks the calculated elements currently being linked.
//
// An element already on the stack is being expanded again from inside its
// own value: a self-referential definition, directly or through other
// calculated elements.
type linkStack struct {
	active map[*csn.Element]bool
	order  []*csn.Element
}

func newLinkStack() *linkStack {
	return &linkStack{active: make(map[*csn.Element]bool)}
}

// WouldCycle reports whether entering el would close a cycle.
func (s *linkStack) WouldCycle(el *csn.Element) bool {
	return s.active[el]
}

// Enter pushes el.
func (s *linkStack) Enter(el *csn.Element) {
	s.active[el] = true
	s.order = append(s.order, el)
}

// Leave pops el, which must be the top of the stack.
func (s *linkStack) Leave(el *csn.Element) {
	delete(s.active, el)
	s.order = s.order[:len(s.order)-1]
}

// Depth returns the number of elements being linked.
func (s *linkStack) Depth() int {
	return len(s.order)
}

// Chain returns the qualified names from the outermost element to el.
func (s *linkStack) Chain(el *csn.Element) []string {
	start := 0
	for i, e := range s.order {
		if e == el {
			start = i
			break
		}
	}
	out := make([]string, 0, len(s.order)-start+1)
	for _, e := range s.order[start:] {
		out = append(out, e.QualifiedName())
	}
	return append(out, el.QualifiedName())
}
