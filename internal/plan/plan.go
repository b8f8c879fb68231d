package plan

import (
	"fmt"
	"strings"

	"github.com/roach88/qinfer/internal/cqn"
	"github.com/roach88/qinfer/internal/infer"
	"github.com/roach88/qinfer/internal/jointree"
)

// KindLeft is the join kind of every association traversal, to-one and
// to-many alike.
const KindLeft = "left"

// Plan is the join layout of one resolved query.
type Plan struct {
	Joins         []*Join         `json:"joins"`
	Substitutions []*Substitution `json:"substitutions,omitempty"`

	// Subqueries are the plans of nested selects, expands and sub-query
	// sources, in resolution order.
	Subqueries []*Plan `json:"subqueries,omitempty"`
}

// Join is one physical join.
type Join struct {
	ParentAlias string `json:"parentAlias"`
	Alias       string `json:"alias"`
	Association string `json:"association"`
	Target      string `json:"target"`
	Kind        string `json:"kind"`

	// Keys are set for managed associations: parent column = target column.
	Keys []KeyPair `json:"keys,omitempty"`

	// On is the declared on-condition of an unmanaged association, with
	// paths relative to the association's owner.
	On          cqn.Expr `json:"-"`
	OnCondition string   `json:"on,omitempty"`

	// Filter is the infix filter of the step, relative to the target.
	Filter     cqn.Expr            `json:"-"`
	FilterText string              `json:"filter,omitempty"`
	Args       map[string]cqn.Expr `json:"-"`
}

// KeyPair is one foreign key comparison of a managed association join.
type KeyPair struct {
	Parent string `json:"parent"`
	Target string `json:"target"`
}

// Substitution replaces a path ending in the foreign keys of an
// association that is not joined with the flat foreign key columns of the
// association's owner: author.ID reads Books.author_ID.
type Substitution struct {
	Path    string   `json:"path"`
	Alias   string   `json:"alias"`
	Columns []string `json:"columns"`
}

// Build flattens the join tree of res, and of every nested result, into
// join descriptors. Nodes reached through foreign keys only produce
// substitutions instead of joins.
func Build(res *infer.Result) (*Plan, error) {
	if res == nil || res.JoinTree == nil {
		return nil, fmt.Errorf("plan: result has no join tree")
	}
	p := &Plan{Joins: []*Join{}}

	for _, root := range res.JoinTree.Roots() {
		if root.FindNextJoinRelevant() == nil {
			continue
		}
		if err := p.addJoins(root.Children()); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool)
	refs := res.OrderedRefs()
	for _, c := range res.Calculated {
		refs = append(refs, c.Refs...)
	}
	for _, info := range refs {
		sub, err := substitution(info)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			continue
		}
		key := sub.Alias + "." + sub.Path
		if seen[key] {
			continue
		}
		seen[key] = true
		p.Substitutions = append(p.Substitutions, sub)
	}

	for _, nested := range nestedResults(res) {
		sp, err := Build(nested)
		if err != nil {
			return nil, err
		}
		p.Subqueries = append(p.Subqueries, sp)
	}
	return p, nil
}

// addJoins appends the joins below one branch depth first, parents before
// their children. Each child starts a join boundary at its first join
// relevant node; foreign key only nodes are left to substitutions.
func (p *Plan) addJoins(nodes []*jointree.Node) error {
	for _, c := range nodes {
		n := c.FindNextJoinRelevant()
		if n == nil {
			continue
		}
		if n != c {
			return fmt.Errorf("plan: %s joins %s below a node reached through foreign keys only", n.Alias, n.ParentAlias())
		}
		j, err := newJoin(n)
		if err != nil {
			return err
		}
		p.Joins = append(p.Joins, j)
		if err := p.addJoins(n.Children()); err != nil {
			return err
		}
	}
	return nil
}

func newJoin(n *jointree.Node) (*Join, error) {
	el := n.Element
	j := &Join{
		ParentAlias: n.ParentAlias(),
		Alias:       n.Alias,
		Association: el.QualifiedName(),
		Target:      n.Target().Name,
		Kind:        KindLeft,
		Filter:      n.Where,
		Args:        n.Args,
	}
	if n.Where != nil {
		j.FilterText = cqn.Format(n.Where)
	}
	if !el.IsManaged() {
		j.On = el.On
		j.OnCondition = cqn.Format(el.On)
		return j, nil
	}

	prefix := structPrefix(n.Name)
	for _, fk := range el.Keys {
		for _, col := range fk.Elements {
			if col.TargetColumn == "" {
				return nil, fmt.Errorf("plan: foreign key %s of %s has no target column", col.Name, el.QualifiedName())
			}
			j.Keys = append(j.Keys, KeyPair{Parent: prefix + col.Name, Target: col.TargetColumn})
		}
	}
	if len(j.Keys) == 0 {
		return nil, fmt.Errorf("plan: managed association %s has no foreign keys", el.QualifiedName())
	}
	return j, nil
}

// structPrefix turns the structured elements enclosing an association
// ("address.country") into a column prefix ("address_").
func structPrefix(nodeName string) string {
	i := strings.LastIndex(nodeName, ".")
	if i < 0 {
		return ""
	}
	return strings.ReplaceAll(nodeName[:i], ".", "_") + "_"
}

// substitution returns the column rewrite of a path whose first foreign
// key only association is not joined, or nil.
func substitution(info *infer.RefInfo) (*Substitution, error) {
	path := info.Path
	if path == nil {
		return nil, nil
	}
	for i, n := range path.Nodes {
		if n == nil {
			continue
		}
		if !n.OnlyForeignKeyAccess {
			continue
		}
		cols, err := foreignKeyColumns(n, path.Steps[i+1:])
		if err != nil {
			return nil, err
		}
		return &Substitution{
			Path:    info.Ref.String(),
			Alias:   n.ParentAlias(),
			Columns: cols,
		}, nil
	}
	return nil, nil
}

// foreignKeyColumns maps the steps following a foreign key only
// association to the owner's flat columns. No steps select every key.
func foreignKeyColumns(n *jointree.Node, rest []jointree.Step) ([]string, error) {
	el := n.Element
	prefix := structPrefix(n.Name)
	names := make([]string, len(rest))
	for i, s := range rest {
		names[i] = s.Name
	}
	want := strings.Join(names, "_")

	var cols []string
	for _, fk := range el.Keys {
		for _, col := range fk.Elements {
			if want == "" || col.TargetColumn == want || strings.HasPrefix(col.TargetColumn, want+"_") {
				cols = append(cols, prefix+col.Name)
			}
		}
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("plan: %s is not a foreign key of %s", want, el.QualifiedName())
	}
	return cols, nil
}

// nestedResults lists the results a query embeds.
func nestedResults(res *infer.Result) []*infer.Result {
	var out []*infer.Result
	for _, src := range res.Sources {
		if src.Query != nil {
			out = append(out, src.Query)
		}
	}
	var walk func(elems []*infer.Element)
	walk = func(elems []*infer.Element) {
		for _, e := range elems {
			if e.Expand != nil {
				out = append(out, e.Expand)
				continue
			}
			walk(e.Elements)
		}
	}
	walk(res.Elements)
	return append(out, res.Subqueries...)
}
