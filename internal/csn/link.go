package csn

import (
	"errors"
	"fmt"
	"strings"
)

// ModelError reports a broken schema invariant found while linking.
type ModelError struct {
	Entity  string
	Element string
	Message string
}

func (e *ModelError) Error() string {
	switch {
	case e.Element != "":
		return fmt.Sprintf("model: %s.%s: %s", e.Entity, e.Element, e.Message)
	case e.Entity != "":
		return fmt.Sprintf("model: %s: %s", e.Entity, e.Message)
	default:
		return "model: " + e.Message
	}
}

// IsModelError reports whether err is (or wraps) a *ModelError.
func IsModelError(err error) bool {
	var me *ModelError
	return errors.As(err, &me)
}

// NewModel links entities into a Model:
//   - indexes elements and normalizes short type names ("String")
//   - binds every association to its target entity
//   - fills default keys (the target's primary keys) for managed
//     associations declared without keys
//   - generates flat foreign key elements (`author_ID`) next to each
//     managed association unless an element of that name is declared
//
// It fails with a *ModelError when a target or a key does not exist.
// Entities passed in are modified and must not be linked into another model.
func NewModel(entities ...*Entity) (*Model, error) {
	m := &Model{entities: make(map[string]*Entity, len(entities))}
	for _, e := range entities {
		if e == nil || e.Name == "" {
			return nil, &ModelError{Message: "entity without name"}
		}
		if _, dup := m.entities[e.Name]; dup {
			return nil, &ModelError{Entity: e.Name, Message: "duplicate entity"}
		}
		m.entities[e.Name] = e
	}
	m.names = sortedNames(m.entities)

	l := &linker{model: m, resolving: make(map[*Element]bool)}
	for _, e := range m.Entities() {
		if err := l.prepare(e, nil, e.Elements); err != nil {
			return nil, err
		}
		e.index = indexElements(e.Elements)
	}
	for _, e := range m.Entities() {
		if err := l.bindTargets(e.Elements); err != nil {
			return nil, err
		}
	}
	for _, e := range m.Entities() {
		if err := l.resolveAllKeys(e.Elements); err != nil {
			return nil, err
		}
	}
	for _, e := range m.Entities() {
		e.Elements = l.generateForeignKeys(e, nil, e.Elements)
		e.index = indexElements(e.Elements)
	}
	return m, nil
}

// MustModel is like NewModel but panics on error. For fixtures and tests.
func MustModel(entities ...*Entity) *Model {
	m, err := NewModel(entities...)
	if err != nil {
		panic(err)
	}
	return m
}

type linker struct {
	model     *Model
	resolving map[*Element]bool
}

func (l *linker) fail(el *Element, format string, args ...any) error {
	me := &ModelError{Element: el.Name, Message: fmt.Sprintf(format, args...)}
	if el.owner != nil {
		me.Entity = el.owner.Name
	}
	if el.parent != nil {
		me.Element = el.QualifiedName()
		if el.owner != nil {
			me.Element = me.Element[len(el.owner.Name)+1:]
		}
	}
	return me
}

// prepare sets owners and parents, infers and normalizes types, and checks
// the shape of each element.
func (l *linker) prepare(owner *Entity, parent *Element, elements []*Element) error {
	seen := make(map[string]bool, len(elements))
	for _, el := range elements {
		el.owner = owner
		el.parent = parent
		if el.Name == "" {
			return &ModelError{Entity: owner.Name, Message: "element without name"}
		}
		if seen[el.Name] {
			return l.fail(el, "duplicate element")
		}
		seen[el.Name] = true

		switch {
		case el.Type == "" && el.Elements != nil:
			// structured
		case el.Type == "" && el.Target != "":
			el.Type = TypeAssociation
		case el.Type == "" && el.Value != nil:
			// calculated, type inferred at resolution
		case el.Type == "":
			return l.fail(el, "missing type")
		default:
			t, ok := NormalizeType(el.Type)
			if !ok {
				return l.fail(el, "unknown type %q", el.Type)
			}
			el.Type = t
		}

		if el.IsAssociation() {
			if el.Target == "" {
				return l.fail(el, "association without target")
			}
			if el.Elements != nil {
				return l.fail(el, "association cannot have nested elements")
			}
			if el.On != nil && el.Keys != nil {
				return l.fail(el, "association cannot have both keys and an on condition")
			}
			if el.Value != nil {
				return l.fail(el, "association cannot be calculated")
			}
		} else if el.Target != "" {
			return l.fail(el, "target on non-association element")
		}

		if el.Elements != nil {
			if err := l.prepare(owner, el, el.Elements); err != nil {
				return err
			}
			el.index = indexElements(el.Elements)
		}
	}
	return nil
}

func (l *linker) bindTargets(elements []*Element) error {
	for _, el := range elements {
		if el.IsAssociation() {
			target, ok := l.model.Entity(el.Target)
			if !ok {
				return l.fail(el, "target %q not found", el.Target)
			}
			el.target = target
		}
		if el.IsStructured() {
			if err := l.bindTargets(el.Elements); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *linker) resolveAllKeys(elements []*Element) error {
	for _, el := range elements {
		if el.IsManaged() {
			if err := l.resolveKeys(el); err != nil {
				return err
			}
		}
		if el.IsStructured() {
			if err := l.resolveAllKeys(el.Elements); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveKeys fills default keys, binds every key to its target element and
// computes the flat foreign key columns. Keys that are themselves managed
// associations are resolved recursively.
func (l *linker) resolveKeys(assoc *Element) error {
	if len(assoc.Keys) > 0 && len(assoc.Keys[0].Elements) > 0 {
		return nil
	}
	if l.resolving[assoc] {
		return l.fail(assoc, "cyclic foreign key")
	}
	l.resolving[assoc] = true
	defer delete(l.resolving, assoc)

	target := assoc.target
	if assoc.Keys == nil {
		pks := target.Keys()
		if len(pks) == 0 {
			return l.fail(assoc, "target %s has no primary key", target.Name)
		}
		for _, pk := range pks {
			assoc.Keys = append(assoc.Keys, &ForeignKey{Ref: []string{pk.Name}})
		}
	}

	for _, fk := range assoc.Keys {
		if len(fk.Ref) == 0 {
			return l.fail(assoc, "empty foreign key")
		}
		te, ok := target.Element(fk.Ref[0])
		for _, step := range fk.Ref[1:] {
			if !ok || !te.IsStructured() {
				ok = false
				break
			}
			te, ok = te.Element(step)
		}
		if !ok {
			return l.fail(assoc, "foreign key %q is not an element of %s", fk.Name(), target.Name)
		}
		fk.TargetElement = te

		leaves, err := l.flatten(assoc, assoc.Name+"_"+fk.Name(), strings.Join(fk.Ref, "_"), te)
		if err != nil {
			return err
		}
		fk.Elements = leaves
	}
	return nil
}

// flatten turns one key into leaf columns. Generated columns are not yet
// attached to an owner; generateForeignKeys does that.
func (l *linker) flatten(assoc *Element, local, targetColumn string, te *Element) ([]*Element, error) {
	switch {
	case te.IsStructured():
		var out []*Element
		for _, c := range te.Elements {
			leaves, err := l.flatten(assoc, local+"_"+c.Name, targetColumn+"_"+c.Name, c)
			if err != nil {
				return nil, err
			}
			out = append(out, leaves...)
		}
		return out, nil

	case te.IsManaged():
		if err := l.resolveKeys(te); err != nil {
			return nil, err
		}
		var out []*Element
		for _, fk2 := range te.Keys {
			leaves, err := l.flatten(assoc, local+"_"+fk2.Name(), targetColumn+"_"+fk2.Name(), fk2.TargetElement)
			if err != nil {
				return nil, err
			}
			out = append(out, leaves...)
		}
		return out, nil

	case te.IsAssociation():
		return nil, l.fail(assoc, "foreign key %s uses unmanaged association %s", local, te.Name)

	default:
		return []*Element{{
			Name:         local,
			Type:         te.Type,
			Key:          assoc.Key,
			ForeignKeyOf: assoc,
			TargetColumn: targetColumn,
		}}, nil
	}
}

// generateForeignKeys returns elements with each managed association's
// foreign key columns inserted right after it. Declared elements with the
// same name are adopted instead of duplicated.
func (l *linker) generateForeignKeys(owner *Entity, parent *Element, elements []*Element) []*Element {
	declared := make(map[string]*Element, len(elements))
	for _, el := range elements {
		declared[el.Name] = el
	}

	out := make([]*Element, 0, len(elements))
	for _, el := range elements {
		out = append(out, el)

		if el.IsStructured() {
			el.Elements = l.generateForeignKeys(owner, el, el.Elements)
			el.index = indexElements(el.Elements)
		}
		if !el.IsManaged() {
			continue
		}
		for _, fk := range el.Keys {
			for i, gen := range fk.Elements {
				if d, ok := declared[gen.Name]; ok && d != gen {
					d.ForeignKeyOf = el
					d.TargetColumn = gen.TargetColumn
					fk.Elements[i] = d
					continue
				}
				gen.owner = owner
				gen.parent = parent
				out = append(out, gen)
			}
		}
	}
	return out
}

func indexElements(elements []*Element) map[string]*Element {
	idx := make(map[string]*Element, len(elements))
	for _, el := range elements {
		idx[el.Name] = el
	}
	return idx
}
