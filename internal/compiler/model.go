package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/qinfer/internal/csn"
)

// CompileEntities parses the `entities` struct of a model value into
// unlinked schema entities, in declaration order.
//
//	entities: Books: elements: {
//		ID:     {type: "Integer", key: true}
//		author: {association: "Authors"}
//		total:  {type: "Decimal", value: "price * stock"}
//	}
//
// The entities still need ValidateEntities and csn.NewModel.
func CompileEntities(v cue.Value) ([]*csn.Entity, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	entitiesVal := v.LookupPath(cue.ParsePath("entities"))
	if !entitiesVal.Exists() {
		return nil, &CompileError{Field: "entities", Message: "entities are required", Pos: v.Pos()}
	}

	iter, err := entitiesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var entities []*csn.Entity
	for iter.Next() {
		e, err := CompileEntity(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// CompileEntity parses one entity definition.
func CompileEntity(name string, v cue.Value) (*csn.Entity, error) {
	elementsVal := v.LookupPath(cue.ParsePath("elements"))
	if !elementsVal.Exists() {
		return nil, &CompileError{
			Field:   "entities." + name + ".elements",
			Message: "elements are required",
			Pos:     v.Pos(),
		}
	}
	elements, err := compileElements(elementsVal, "entities."+name)
	if err != nil {
		return nil, err
	}
	return csn.NewEntity(name, elements...), nil
}

func compileElements(v cue.Value, field string) ([]*csn.Element, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	elements := []*csn.Element{}
	for iter.Next() {
		el, err := compileElement(iter.Label(), iter.Value(), field+"."+iter.Label())
		if err != nil {
			return nil, err
		}
		elements = append(elements, el)
	}
	return elements, nil
}

func compileElement(name string, v cue.Value, field string) (*csn.Element, error) {
	el := &csn.Element{Name: name}

	// Shorthand: `title: "String"`.
	if s, err := v.String(); err == nil {
		el.Type = s
		return el, nil
	}

	var err error
	if el.Type, err = optionalString(v, "type"); err != nil {
		return nil, err
	}
	if el.Key, err = optionalBool(v, "key"); err != nil {
		return nil, err
	}

	assoc, err := optionalString(v, "association")
	if err != nil {
		return nil, err
	}
	comp, err := optionalString(v, "composition")
	if err != nil {
		return nil, err
	}
	switch {
	case assoc != "" && comp != "":
		return nil, &CompileError{Field: field, Message: "association and composition are exclusive", Pos: v.Pos()}
	case assoc != "":
		el.Type, el.Target = csn.TypeAssociation, assoc
	case comp != "":
		el.Type, el.Target = csn.TypeComposition, comp
	}
	if el.Many, err = optionalBool(v, "many"); err != nil {
		return nil, err
	}

	if on, err := optionalString(v, "on"); err != nil {
		return nil, err
	} else if on != "" {
		if el.On, err = ParseExpr(on); err != nil {
			return nil, &CompileError{Field: field + ".on", Message: err.Error(), Pos: v.Pos()}
		}
	}
	if el.Keys, err = compileKeys(v, field); err != nil {
		return nil, err
	}

	if value, err := optionalString(v, "value"); err != nil {
		return nil, err
	} else if value != "" {
		if el.Value, err = ParseExpr(value); err != nil {
			return nil, &CompileError{Field: field + ".value", Message: err.Error(), Pos: v.Pos()}
		}
	}
	if el.Stored, err = optionalBool(v, "stored"); err != nil {
		return nil, err
	}

	if nested := v.LookupPath(cue.ParsePath("elements")); nested.Exists() {
		if el.Elements, err = compileElements(nested, field); err != nil {
			return nil, err
		}
	}
	return el, nil
}

// compileKeys parses `keys: ["ID", "code as isoCode", "dims.height"]`.
func compileKeys(v cue.Value, field string) ([]*csn.ForeignKey, error) {
	keysVal := v.LookupPath(cue.ParsePath("keys"))
	if !keysVal.Exists() {
		return nil, nil
	}
	iter, err := keysVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	keys := []*csn.ForeignKey{}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		fk, err := parseKey(s)
		if err != nil {
			return nil, &CompileError{Field: field + ".keys", Message: err.Error(), Pos: iter.Value().Pos()}
		}
		keys = append(keys, fk)
	}
	return keys, nil
}

func parseKey(s string) (*csn.ForeignKey, error) {
	fields := strings.Fields(s)
	fk := &csn.ForeignKey{}
	switch {
	case len(fields) == 1:
	case len(fields) == 3 && strings.EqualFold(fields[1], "as"):
		fk.As = fields[2]
	default:
		return nil, fmt.Errorf("invalid key %q, expected \"path\" or \"path as name\"", s)
	}
	fk.Ref = strings.Split(fields[0], ".")
	for _, step := range fk.Ref {
		if step == "" {
			return nil, fmt.Errorf("invalid key path %q", fields[0])
		}
	}
	return fk, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, field string) (bool, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// First error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
