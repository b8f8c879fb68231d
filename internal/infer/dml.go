package infer

import (
	"github.com/roach88/qinfer/internal/cqn"
	"github.com/roach88/qinfer/internal/csn"
	"github.com/roach88/qinfer/internal/ir"
	"github.com/roach88/qinfer/internal/jointree"
)

// newDMLScope resolves the target of a modifying statement. Its elements
// are the target entity's elements.
func (r *resolver) newDMLScope(q cqn.Query, kind string, target *cqn.EntitySource) (*scope, *Source, error) {
	res := newResult(q, kind, jointree.New(nil))
	sc := newScope(res, nil, 0)
	sc.columnsDone = true
	src, err := r.addEntitySource(sc, target)
	if err != nil {
		return nil, nil, err
	}
	res.Target = src.Entity
	for _, el := range src.Entity.Elements {
		e := elementFromDefinition(el.Name, el)
		res.Elements = append(res.Elements, e)
		res.byName[e.Name] = e
	}
	return sc, src, nil
}

func (r *resolver) resolveInsert(q cqn.Query, kind string, into *cqn.EntitySource, columns []string, entries []ir.IRObject, as *cqn.Select) (*Result, error) {
	sc, src, err := r.newDMLScope(q, kind, into)
	if err != nil {
		return nil, err
	}
	for _, c := range columns {
		if err := checkElement(src.Entity, c); err != nil {
			return nil, err
		}
	}
	for _, entry := range entries {
		if err := checkEntry(src.Entity, entry); err != nil {
			return nil, err
		}
	}
	if as != nil {
		sub, err := r.resolveSelect(as, nil, 1)
		if err != nil {
			return nil, err
		}
		sc.res.Subqueries = append(sc.res.Subqueries, sub)
	}
	return sc.res, nil
}

func (r *resolver) resolveUpdate(q *cqn.Update) (*Result, error) {
	sc, src, err := r.newDMLScope(q, "UPDATE", q.Entity)
	if err != nil {
		return nil, err
	}
	if err := checkEntry(src.Entity, q.Data); err != nil {
		return nil, err
	}
	for _, a := range q.With {
		if err := checkElement(src.Entity, a.Element); err != nil {
			return nil, err
		}
		if err := r.walk(sc, a.Value, refCtx{clause: clauseWith}); err != nil {
			return nil, err
		}
	}
	if err := r.walk(sc, q.Where, refCtx{clause: clauseWhere}); err != nil {
		return nil, err
	}
	return sc.res, nil
}

func (r *resolver) resolveDelete(q *cqn.Delete) (*Result, error) {
	sc, _, err := r.newDMLScope(q, "DELETE", q.From)
	if err != nil {
		return nil, err
	}
	if err := r.walk(sc, q.Where, refCtx{clause: clauseWhere}); err != nil {
		return nil, err
	}
	return sc.res, nil
}

func checkElement(entity *csn.Entity, name string) error {
	if _, ok := entity.Element(name); !ok {
		return errorf(CodeUnresolvedReference, name, "%q not found in %s", name, entity.Name)
	}
	return nil
}

// checkEntry validates the keys of one data entry, descending into
// structured elements and the entries of compositions.
func checkEntry(entity *csn.Entity, entry ir.IRObject) error {
	for _, key := range entry.SortedKeys() {
		el, ok := entity.Element(key)
		if !ok {
			return errorf(CodeUnresolvedReference, key, "%q not found in %s", key, entity.Name)
		}
		if err := checkValue(el, entry[key], key); err != nil {
			return err
		}
	}
	return nil
}

func checkValue(el *csn.Element, v ir.IRValue, path string) error {
	switch {
	case el.IsStructured():
		obj, ok := v.(ir.IRObject)
		if !ok {
			return nil
		}
		for _, key := range obj.SortedKeys() {
			child, ok := el.Element(key)
			if !ok {
				return errorf(CodeUnresolvedReference, path+"."+key, "%q not found in %s", key, el.QualifiedName())
			}
			if err := checkValue(child, obj[key], path+"."+key); err != nil {
				return err
			}
		}
	case el.IsComposition():
		switch val := v.(type) {
		case ir.IRObject:
			return checkEntry(el.TargetEntity(), val)
		case ir.IRArray:
			for _, item := range val {
				if obj, ok := item.(ir.IRObject); ok {
					if err := checkEntry(el.TargetEntity(), obj); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
