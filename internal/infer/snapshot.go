package infer

import (
	"strings"

	"github.com/roach88/qinfer/internal/ir"
)

// Snapshot returns a deterministic, JSON-friendly view of the result:
// sources, elements, join tree, references and calculated elements. Two
// resolutions of the same query against the same model have equal
// snapshots. The resolution id is not part of it.
func (r *Result) Snapshot() map[string]any {
	m := map[string]any{
		"kind":     r.Kind,
		"sources":  snapshotSources(r.Sources),
		"elements": snapshotElements(r.Elements),
		"joinTree": r.JoinTree.Snapshot(),
	}
	if r.Target != nil {
		m["target"] = r.Target.Name
	}
	refs := make([]any, 0, len(r.refOrder))
	for _, info := range r.OrderedRefs() {
		refs = append(refs, snapshotRef(info))
	}
	m["refs"] = refs
	if len(r.Calculated) > 0 {
		calc := make([]any, 0, len(r.Calculated))
		for _, c := range r.Calculated {
			entry := map[string]any{
				"element": c.Element.QualifiedName(),
				"root":    c.Root,
			}
			if c.Prefix != "" {
				entry["prefix"] = c.Prefix
			}
			calc = append(calc, entry)
		}
		m["calculated"] = calc
	}
	if len(r.Subqueries) > 0 {
		subs := make([]any, 0, len(r.Subqueries))
		for _, sub := range r.Subqueries {
			subs = append(subs, sub.Snapshot())
		}
		m["subqueries"] = subs
	}
	return m
}

// CanonicalSnapshot returns the snapshot as canonical JSON.
func (r *Result) CanonicalSnapshot() ([]byte, error) {
	return ir.MarshalCanonical(r.Snapshot())
}

func snapshotSources(sources []*Source) []any {
	out := make([]any, 0, len(sources))
	for _, s := range sources {
		entry := map[string]any{"alias": s.Alias}
		if s.Entity != nil {
			entry["entity"] = s.Entity.Name
		}
		if s.Query != nil {
			entry["query"] = s.Query.Snapshot()
		}
		out = append(out, entry)
	}
	return out
}

func snapshotElements(elems []*Element) []any {
	out := make([]any, 0, len(elems))
	for _, e := range elems {
		entry := map[string]any{"name": e.Name}
		if e.Type != "" {
			entry["type"] = e.Type
		}
		if e.Many {
			entry["many"] = true
		}
		switch {
		case e.Expand != nil:
			entry["expand"] = e.Expand.Snapshot()
		case e.Elements != nil:
			entry["elements"] = snapshotElements(e.Elements)
		}
		out = append(out, entry)
	}
	return out
}

func snapshotRef(info *RefInfo) map[string]any {
	links := make([]any, 0, len(info.Links))
	for _, l := range info.Links {
		s := l.Name
		if l.Node != nil {
			s += "@" + l.Node.Alias
		}
		links = append(links, s)
	}
	entry := map[string]any{
		"path":         info.Ref.String(),
		"links":        links,
		"joinRelevant": info.JoinRelevant,
	}
	if info.FlatName != "" {
		entry["flatName"] = info.FlatName
	}
	if info.Type != "" {
		entry["type"] = info.Type
	}
	var flags []string
	if info.Outer {
		flags = append(flags, "outer")
	}
	if info.Pseudo {
		flags = append(flags, "pseudo")
	}
	if len(flags) > 0 {
		entry["flags"] = strings.Join(flags, ",")
	}
	return entry
}
