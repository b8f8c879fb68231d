package compiler

import (
	"fmt"

	"github.com/roach88/qinfer/internal/csn"
)

// Validation error codes (E120-E129)
const (
	ErrEntityNoElements   = "E120" // entity declares no elements
	ErrDuplicateName      = "E121" // duplicate entity or element name
	ErrUnknownType        = "E122" // type is not a builtin type
	ErrMissingType        = "E123" // element has no type, target, elements or value
	ErrUnknownTarget      = "E124" // association target does not exist
	ErrInvalidAssociation = "E125" // association shape (keys and on, nested elements, value)
	ErrInvalidForeignKey  = "E126" // key is not an element of the target, or target has no key
	ErrCalculatedKey      = "E127" // key element is calculated
)

// ValidationError is one problem found in a model.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Entity  string `json:"entity"`
	Element string `json:"element,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Element != "" {
		return fmt.Sprintf("[%s] %s.%s: %s", e.Code, e.Entity, e.Element, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Entity, e.Message)
}

// ValidateEntities checks compiled, not yet linked entities and returns
// every problem found (does not fail fast), in declaration order.
func ValidateEntities(entities []*csn.Entity) []ValidationError {
	v := &modelValidator{byName: make(map[string]*csn.Entity, len(entities))}
	for _, e := range entities {
		if _, dup := v.byName[e.Name]; dup {
			v.add(ErrDuplicateName, e.Name, "", "duplicate entity %q", e.Name)
			continue
		}
		v.byName[e.Name] = e
	}
	for _, e := range entities {
		if len(e.Elements) == 0 {
			v.add(ErrEntityNoElements, e.Name, "", "entity declares no elements")
			continue
		}
		v.validateElements(e, "", e.Elements)
	}
	return v.errs
}

type modelValidator struct {
	byName map[string]*csn.Entity
	errs   []ValidationError
}

func (v *modelValidator) add(code, entity, element, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Entity:  entity,
		Element: element,
	})
}

func (v *modelValidator) validateElements(e *csn.Entity, prefix string, elements []*csn.Element) {
	seen := make(map[string]bool, len(elements))
	for _, el := range elements {
		name := prefix + el.Name
		if seen[el.Name] {
			v.add(ErrDuplicateName, e.Name, name, "duplicate element %q", el.Name)
			continue
		}
		seen[el.Name] = true

		isAssoc := el.Target != ""
		switch {
		case el.Type != "" && !isAssoc:
			if _, ok := csn.NormalizeType(el.Type); !ok {
				v.add(ErrUnknownType, e.Name, name, "unknown type %q", el.Type)
			}
		case el.Type == "" && !isAssoc && el.Elements == nil && el.Value == nil:
			v.add(ErrMissingType, e.Name, name, "element needs a type, a target, nested elements or a value")
		}

		if el.Key && el.Value != nil && !el.Stored {
			v.add(ErrCalculatedKey, e.Name, name, "a key cannot be calculated")
		}
		if isAssoc {
			v.validateAssociation(e, name, el)
		}
		if el.Elements != nil && !isAssoc {
			v.validateElements(e, name+".", el.Elements)
		}
	}
}

func (v *modelValidator) validateAssociation(e *csn.Entity, name string, el *csn.Element) {
	target, ok := v.byName[el.Target]
	if !ok {
		v.add(ErrUnknownTarget, e.Name, name, "target %q not found", el.Target)
	}
	if el.Keys != nil && el.On != nil {
		v.add(ErrInvalidAssociation, e.Name, name, "an association cannot have both keys and an on condition")
	}
	if el.Elements != nil {
		v.add(ErrInvalidAssociation, e.Name, name, "an association cannot have nested elements")
	}
	if el.Value != nil {
		v.add(ErrInvalidAssociation, e.Name, name, "an association cannot be calculated")
	}
	if !ok || el.On != nil {
		return
	}

	if el.Keys == nil {
		if !hasKey(target.Elements) {
			v.add(ErrInvalidForeignKey, e.Name, name, "target %s has no primary key", target.Name)
		}
		return
	}
	for _, fk := range el.Keys {
		if findPath(target.Elements, fk.Ref) == nil {
			v.add(ErrInvalidForeignKey, e.Name, name, "key %q is not an element of %s", fk.Name(), target.Name)
		}
	}
}

func hasKey(elements []*csn.Element) bool {
	for _, el := range elements {
		if el.Key {
			return true
		}
	}
	return false
}

// findPath walks a key path through nested elements of unlinked entities.
func findPath(elements []*csn.Element, path []string) *csn.Element {
	var found *csn.Element
	for _, step := range path {
		found = nil
		for _, el := range elements {
			if el.Name == step {
				found = el
				break
			}
		}
		if found == nil {
			return nil
		}
		elements = found.Elements
	}
	return found
}
