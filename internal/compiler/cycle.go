package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/qinfer/internal/cqn"
	"github.com/roach88/qinfer/internal/csn"
)

// CycleWarning represents a cycle between calculated elements.
//
// Cycles are warnings, not errors: the model links fine, but any query
// reaching one of the elements fails to resolve with a self-reference error.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["Books.a", "Books.b", "Books.a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning"
}

// AnalyzeCycles performs static cycle analysis on the calculated elements
// of a linked model.
//
// The algorithm:
//  1. Build a calculated element → calculated element graph from the paths
//     in each value, following associations to their targets
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop as a cycle warning
//
// A model without cycles returns an empty warning list.
func AnalyzeCycles(m *csn.Model) []CycleWarning {
	graph := buildDependencyGraph(m)
	if len(graph) == 0 {
		return []CycleWarning{}
	}

	sccs := tarjanSCC(graph)

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	return warnings
}

// dependencyGraph maps a calculated element to the calculated elements its
// value reads.
type dependencyGraph map[string][]string

func buildDependencyGraph(m *csn.Model) dependencyGraph {
	graph := make(dependencyGraph)
	var visit func(elements []*csn.Element)
	visit = func(elements []*csn.Element) {
		for _, el := range elements {
			if el.IsStructured() {
				visit(el.Elements)
			}
			if !el.IsCalculated() {
				continue
			}
			from := el.QualifiedName()
			if graph[from] == nil {
				graph[from] = []string{}
			}
			walkRefs(el.Value, func(ref *cqn.Ref) {
				if dep := calculatedTarget(el.Owner(), ref); dep != nil {
					graph[from] = append(graph[from], dep.QualifiedName())
				}
			})
		}
	}
	for _, e := range m.Entities() {
		visit(e.Elements)
	}
	return graph
}

// calculatedTarget follows ref from the owner entity and returns the first
// calculated element it reaches, or nil.
func calculatedTarget(owner *csn.Entity, ref *cqn.Ref) *csn.Element {
	ids := ref.IDs()
	if len(ids) > 0 && (ids[0] == "$self" || ids[0] == "$projection") {
		ids = ids[1:]
	}
	lookup := owner.Element
	for _, id := range ids {
		el, ok := lookup(id)
		if !ok {
			return nil
		}
		switch {
		case el.IsCalculated():
			return el
		case el.IsAssociation():
			lookup = el.TargetEntity().Element
		case el.IsStructured():
			lookup = el.Element
		default:
			return nil
		}
	}
	return nil
}

// walkRefs calls fn for every path in e, including paths in step filters.
func walkRefs(e cqn.Expr, fn func(*cqn.Ref)) {
	switch e := e.(type) {
	case *cqn.Ref:
		fn(e)
		for _, s := range e.Steps {
			if s.Where != nil {
				walkRefs(s.Where, fn)
			}
		}
	case *cqn.Func:
		for _, a := range e.Args {
			walkRefs(a, fn)
		}
	case *cqn.Xpr:
		for _, it := range e.Items {
			walkRefs(it, fn)
		}
	case *cqn.List:
		for _, it := range e.Items {
			walkRefs(it, fn)
		}
	}
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so the result is deterministic.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack into an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sort.Strings(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		name := scc[0]
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("calculated element %s references itself", name),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("calculated elements reference each other: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath starts at the first node of the SCC and follows
// edges to other members until it returns to the start.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
