package jointree

import (
	"fmt"
	"strconv"

	"golang.org/x/text/cases"

	"github.com/roach88/qinfer/internal/cqn"
	"github.com/roach88/qinfer/internal/csn"
	"github.com/roach88/qinfer/internal/ir"
)

// Tree records the association traversals of one query: one Root per
// entity source and a child Node per distinct (association, filter) step.
//
// A Tree is owned by a single resolution and is not safe for concurrent use.
type Tree struct {
	outer    *Tree
	roots    []*Root
	byAlias  map[string]*Root
	reserved map[string]bool
	fold     cases.Caser
}

// New creates an empty tree. outer is the tree of the syntactically
// enclosing query, or nil; aliases reserved there are never reused here.
func New(outer *Tree) *Tree {
	return &Tree{
		outer:    outer,
		byAlias:  make(map[string]*Root),
		reserved: make(map[string]bool),
		fold:     cases.Fold(),
	}
}

// Outer returns the enclosing query's tree.
func (t *Tree) Outer() *Tree {
	return t.outer
}

// Roots returns the roots in the order they were added.
func (t *Tree) Roots() []*Root {
	return t.roots
}

// Root returns the root registered under alias (case-insensitive).
func (t *Tree) Root(alias string) (*Root, bool) {
	r, ok := t.byAlias[t.fold.String(alias)]
	return r, ok
}

// AliasError reports an alias that is already reserved in the tree.
type AliasError struct {
	Alias string
}

func (e *AliasError) Error() string {
	return fmt.Sprintf("alias %q is already in use", e.Alias)
}

// AddRoot registers an entity source under alias. The alias must not be
// reserved in this tree yet.
func (t *Tree) AddRoot(alias string, entity *csn.Entity) (*Root, error) {
	if err := t.Reserve(alias); err != nil {
		return nil, err
	}
	r := &Root{Alias: alias, Entity: entity}
	t.roots = append(t.roots, r)
	t.byAlias[t.fold.String(alias)] = r
	return r, nil
}

// Reserve claims an alias without a root, e.g. for a sub-query source.
func (t *Tree) Reserve(alias string) error {
	key := t.fold.String(alias)
	if t.reserved[key] {
		return &AliasError{Alias: alias}
	}
	t.reserved[key] = true
	return nil
}

// IsReserved reports whether alias is taken in this tree or any outer tree.
func (t *Tree) IsReserved(alias string) bool {
	for cur := t; cur != nil; cur = cur.outer {
		if cur.reserved[cur.fold.String(alias)] {
			return true
		}
	}
	return false
}

// NextAvailableAlias returns base, or base2, base3, ... the first candidate
// not reserved in this tree or in any outer tree. It does not reserve it.
func (t *Tree) NextAvailableAlias(base string) string {
	if !t.IsReserved(base) {
		return base
	}
	for i := 2; ; i++ {
		candidate := base + strconv.Itoa(i)
		if !t.IsReserved(candidate) {
			return candidate
		}
	}
}

// Root is one entity source of the query.
type Root struct {
	Alias  string
	Entity *csn.Entity
	branch
}

// Node is one association traversal below a root.
//
// OnlyForeignKeyAccess starts true for a new node and is switched off the
// first time a path needs a real join through it. It is never switched back on.
type Node struct {
	Alias                string
	Name                 string // step name, prefixed by enclosing structured elements ("address.country")
	Element              *csn.Element
	Where                cqn.Expr
	Args                 map[string]cqn.Expr
	OnlyForeignKeyAccess bool

	Root   *Root
	Parent *Node // nil for direct children of the root
	key    string
	branch
}

// Target returns the association's target entity.
func (n *Node) Target() *csn.Entity {
	return n.Element.TargetEntity()
}

// ParentAlias returns the alias of the node's parent, or of the root.
func (n *Node) ParentAlias() string {
	if n.Parent != nil {
		return n.Parent.Alias
	}
	return n.Root.Alias
}

// FindNextJoinRelevant returns n when it needs a join, otherwise the first
// descendant (depth first) that does, or nil.
func (n *Node) FindNextJoinRelevant() *Node {
	if !n.OnlyForeignKeyAccess {
		return n
	}
	return n.branch.FindNextJoinRelevant()
}

type branch struct {
	children map[string]*Node
	order    []*Node
}

// Children returns the child nodes in creation order.
func (b *branch) Children() []*Node {
	return b.order
}

// FindNextJoinRelevant searches the children depth first, skipping nodes
// reached through foreign keys only.
func (b *branch) FindNextJoinRelevant() *Node {
	for _, c := range b.order {
		if found := c.FindNextJoinRelevant(); found != nil {
			return found
		}
	}
	return nil
}

func (b *branch) child(key string) *Node {
	return b.children[key]
}

func (b *branch) add(n *Node) {
	if b.children == nil {
		b.children = make(map[string]*Node)
	}
	b.children[n.key] = n
	b.order = append(b.order, n)
}

// stepIdentity is the structural key of a traversal: the step name plus a
// hash of its canonical filter and arguments.
func stepIdentity(name string, where cqn.Expr, args map[string]cqn.Expr) string {
	if where == nil && len(args) == 0 {
		return name
	}
	var filter any
	if where != nil {
		filter = cqn.EncodeExpr(where)
	}
	var encodedArgs any
	if len(args) > 0 {
		m := make(map[string]any, len(args))
		for k, v := range args {
			m[k] = cqn.EncodeExpr(v)
		}
		encodedArgs = m
	}
	key, err := ir.StepKey(filter, encodedArgs)
	if err != nil {
		// Only non-canonical literals fail to hash; fall back to the text form.
		return name + "[" + cqn.Format(where) + "]"
	}
	return name + "#" + key
}
