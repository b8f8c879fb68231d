package jointree

import "github.com/roach88/qinfer/internal/cqn"

// Snapshot returns a deterministic, JSON-shaped view of the tree for
// golden files, replay comparison and CLI output.
func (t *Tree) Snapshot() []any {
	roots := make([]any, 0, len(t.roots))
	for _, r := range t.roots {
		entry := map[string]any{
			"alias":  r.Alias,
			"entity": r.Entity.Name,
		}
		if children := snapshotNodes(r.order); len(children) > 0 {
			entry["children"] = children
		}
		roots = append(roots, entry)
	}
	return roots
}

func snapshotNodes(nodes []*Node) []any {
	out := make([]any, 0, len(nodes))
	for _, n := range nodes {
		entry := map[string]any{
			"alias":                n.Alias,
			"name":                 n.Name,
			"target":               n.Target().Name,
			"onlyForeignKeyAccess": n.OnlyForeignKeyAccess,
		}
		if n.Where != nil {
			entry["where"] = cqn.Format(n.Where)
		}
		if children := snapshotNodes(n.order); len(children) > 0 {
			entry["children"] = children
		}
		out = append(out, entry)
	}
	return out
}
