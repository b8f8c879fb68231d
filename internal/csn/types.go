package csn

import (
	"sort"
	"strings"

	"github.com/roach88/qinfer/internal/cqn"
)

// Model is a linked schema graph. It is read-only once NewModel returns and
// may be shared by concurrent resolutions.
type Model struct {
	entities map[string]*Entity
	names    []string // sorted
}

// Entity returns the entity with the given fully qualified name.
func (m *Model) Entity(name string) (*Entity, bool) {
	e, ok := m.entities[name]
	return e, ok
}

// Entities returns all entities sorted by name.
func (m *Model) Entities() []*Entity {
	out := make([]*Entity, len(m.names))
	for i, n := range m.names {
		out[i] = m.entities[n]
	}
	return out
}

// Entity is a named set of elements in declaration order.
type Entity struct {
	Name     string
	Elements []*Element
	index    map[string]*Element
}

// NewEntity builds an entity from its elements.
func NewEntity(name string, elements ...*Element) *Entity {
	return &Entity{Name: name, Elements: elements}
}

// Element looks up a direct element by name.
func (e *Entity) Element(name string) (*Element, bool) {
	el, ok := e.index[name]
	return el, ok
}

// Keys returns the primary key elements in declaration order.
func (e *Entity) Keys() []*Element {
	var keys []*Element
	for _, el := range e.Elements {
		if el.Key {
			keys = append(keys, el)
		}
	}
	return keys
}

// ShortName is the last dotted segment of the entity name.
func (e *Entity) ShortName() string {
	if i := strings.LastIndex(e.Name, "."); i >= 0 {
		return e.Name[i+1:]
	}
	return e.Name
}

// Element is one schema element: a scalar, a structured element with
// nested Elements, or an association/composition. Any non-association
// element may be calculated (Value set).
type Element struct {
	Name string
	Type string // builtin type name, e.g. "cds.String"; empty for structured elements
	Key  bool

	// Structured elements.
	Elements []*Element

	// Associations and compositions. Keys nil on a managed association
	// means "the target's primary keys".
	Target string
	Keys   []*ForeignKey
	On     cqn.Expr
	Many   bool

	// Calculated elements. Stored ones behave as plain columns.
	Value  cqn.Expr
	Stored bool

	// Set for foreign key elements generated (or declared) for a managed
	// association: the association and the flat column it matches in the
	// target ("ID", "author_ID", "dims_height").
	ForeignKeyOf *Element
	TargetColumn string

	owner  *Entity
	parent *Element
	target *Entity
	index  map[string]*Element
}

// IsAssociation reports whether the element links to another entity.
func (el *Element) IsAssociation() bool {
	return el.Type == TypeAssociation || el.Type == TypeComposition
}

// IsComposition reports whether the element is a composition.
func (el *Element) IsComposition() bool {
	return el.Type == TypeComposition
}

// IsManaged reports whether the element is an association backed by foreign keys.
func (el *Element) IsManaged() bool {
	return el.IsAssociation() && el.On == nil
}

// IsStructured reports whether the element has nested elements.
func (el *Element) IsStructured() bool {
	return !el.IsAssociation() && el.Elements != nil
}

// IsCalculated reports whether the element has a value expression that
// must be expanded at resolution time.
func (el *Element) IsCalculated() bool {
	return el.Value != nil && !el.Stored
}

// IsToMany reports whether the element is a to-many association.
func (el *Element) IsToMany() bool {
	return el.IsAssociation() && el.Many
}

// TargetEntity returns the linked target of an association.
func (el *Element) TargetEntity() *Entity {
	return el.target
}

// Owner returns the entity declaring the element, or nil for pseudo elements.
func (el *Element) Owner() *Entity {
	return el.owner
}

// Parent returns the enclosing structured element, if any.
func (el *Element) Parent() *Element {
	return el.parent
}

// Element looks up a nested element of a structured element.
func (el *Element) Element(name string) (*Element, bool) {
	e, ok := el.index[name]
	return e, ok
}

// ForeignKey returns the key of a managed association whose path starts
// with name, or nil.
func (el *Element) ForeignKey(name string) *ForeignKey {
	if !el.IsManaged() {
		return nil
	}
	for _, fk := range el.Keys {
		if len(fk.Ref) > 0 && fk.Ref[0] == name {
			return fk
		}
	}
	return nil
}

// QualifiedName is Entity.element[.nested] for messages.
func (el *Element) QualifiedName() string {
	parts := []string{el.Name}
	for p := el.parent; p != nil; p = p.parent {
		parts = append(parts, p.Name)
	}
	if el.owner != nil {
		parts = append(parts, el.owner.Name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

// ForeignKey is one key of a managed association: a path into the target
// and an optional rename.
type ForeignKey struct {
	Ref []string
	As  string

	// TargetElement is the element Ref points at inside the target.
	TargetElement *Element

	// Elements are the flat foreign key columns this key contributes to the
	// association's owner, in order.
	Elements []*Element
}

// Name is the key's local name: As, or the ref joined with "_".
func (fk *ForeignKey) Name() string {
	if fk.As != "" {
		return fk.As
	}
	return strings.Join(fk.Ref, "_")
}

func sortedNames(m map[string]*Entity) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
