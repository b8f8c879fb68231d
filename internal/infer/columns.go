package infer

import (
	"errors"
	"strings"

	"github.com/roach88/qinfer/internal/cqn"
	"github.com/roach88/qinfer/internal/csn"
	"github.com/roach88/qinfer/internal/ir"
	"github.com/roach88/qinfer/internal/jointree"
)

// resolveColumns builds the projection of a select in two phases: every
// column that does not wait for another column, then the deferred $self
// columns until no more can be resolved.
func (r *resolver) resolveColumns(sc *scope, sel *cqn.Select) error {
	cols := sel.Columns
	if len(cols) == 0 {
		if len(sc.res.Sources) > 1 {
			return &Error{
				Code:       CodeAmbiguousReference,
				Message:    "a query with several sources needs an explicit select list",
				Candidates: sc.aliases(sc.res.Sources),
			}
		}
		cols = []*cqn.Column{{Star: true}}
	}
	for _, col := range cols {
		if name := columnName(sc, col); name != "" {
			sc.explicit[name] = true
		}
	}

	// wildcard elements first, so $self columns listed before "*" see them
	entries := make([][]*Element, len(cols))
	for i, col := range cols {
		if !col.Star {
			continue
		}
		elems, err := r.wildcard(sc, sel.Excluding)
		if err != nil {
			return err
		}
		entries[i] = elems
	}

	var pending []int
	for i, col := range cols {
		if col.Star {
			continue
		}
		elems, err := r.selectColumn(sc, col)
		if errors.Is(err, errDeferred) {
			r.log.Debug("deferred column", "column", columnName(sc, col))
			pending = append(pending, i)
			continue
		}
		if err != nil {
			return err
		}
		if err := addElements(sc, elems); err != nil {
			return err
		}
		entries[i] = elems
	}

	if err := r.resolveDeferred(sc, cols, entries, pending); err != nil {
		return err
	}
	sc.columnsDone = true
	for _, elems := range entries {
		sc.res.Elements = append(sc.res.Elements, elems...)
	}
	return nil
}

// resolveDeferred retries deferred columns, at most once per deferred
// column. A round without progress means the remaining columns wait for
// each other.
func (r *resolver) resolveDeferred(sc *scope, cols []*cqn.Column, entries [][]*Element, pending []int) error {
	q := newDeferredQueue(pending)
	rounds := q.Len()
	for round := 0; round < rounds && q.Len() > 0; round++ {
		progress := false
		for _, i := range q.Drain() {
			elems, err := r.selectColumn(sc, cols[i])
			if errors.Is(err, errDeferred) {
				q.Push(i)
				continue
			}
			if err != nil {
				return err
			}
			if err := addElements(sc, elems); err != nil {
				return err
			}
			entries[i] = elems
			progress = true
		}
		if !progress {
			break
		}
	}
	if q.Len() == 0 {
		return nil
	}
	var names []string
	for _, i := range q.Drain() {
		names = append(names, columnName(sc, cols[i]))
	}
	return &Error{
		Code:       CodeCyclicReference,
		Message:    "columns reference each other through $self",
		Candidates: names,
	}
}

// selectColumn resolves one column of the select list. An unaliased $self
// column never waits for the name it predicts for itself.
func (r *resolver) selectColumn(sc *scope, col *cqn.Column) ([]*Element, error) {
	if col.As == "" {
		sc.own = columnName(sc, col)
		defer func() { sc.own = "" }()
	}
	return r.resolveColumn(sc, col, nil)
}

func addElements(sc *scope, elems []*Element) error {
	for _, e := range elems {
		if err := sc.addElement(e); err != nil {
			return err
		}
	}
	return nil
}

// columnName predicts the name of an explicit column before it is
// resolved, or returns "" when it cannot.
func columnName(sc *scope, col *cqn.Column) string {
	if col.As != "" {
		return col.As
	}
	switch e := col.Expr.(type) {
	case *cqn.Ref:
		if col.IsInline() {
			return ""
		}
		ids := e.IDs()
		if len(ids) > 1 {
			if _, ok := sc.source(ids[0]); ok || ids[0] == "$self" || ids[0] == "$projection" {
				ids = ids[1:]
			}
		}
		if _, ok := csn.Pseudo(ids[0]); ok {
			ids[0] = trimDollar(ids[0])
		}
		return strings.Join(ids, "_")
	case *cqn.Func:
		return e.Name
	}
	return ""
}

// wildcard expands "*" to the elements of every source, skipping explicit
// columns, excluded names and large binaries.
func (r *resolver) wildcard(sc *scope, excluding []string) ([]*Element, error) {
	excluded := make(map[string]bool, len(excluding))
	for _, name := range excluding {
		excluded[name] = true
	}
	var out []*Element
	for _, src := range sc.res.Sources {
		for _, name := range src.elementNames() {
			if sc.explicit[name] || excluded[name] {
				continue
			}
			l, _ := src.lookup(name)
			if isLargeBinary(l) {
				continue
			}
			if owners := sc.res.Combined[name]; len(owners) > 1 {
				return nil, newAmbiguousError("*", name, sc.aliases(owners))
			}
			if def := l.Definition; l.Element == nil && def.IsCalculated() {
				b := &base{root: src.Alias, tree: sc.tree, entity: src.Entity, source: src}
				if err := r.linkCalculated(sc, def, b, refCtx{clause: clauseColumns}); err != nil {
					return nil, err
				}
			}
			e := elementFromLink(name, l, "")
			if err := sc.addElement(e); err != nil {
				return nil, err
			}
			out = append(out, e)
		}
	}
	return out, nil
}

func isLargeBinary(l Link) bool {
	switch {
	case l.Element != nil:
		return l.Element.Type == csn.TypeLargeBinary
	case l.Definition != nil:
		return l.Definition.Type == csn.TypeLargeBinary
	}
	return false
}

// resolveColumn resolves one non-star column. b is set for columns nested
// in an inline or structured projection.
func (r *resolver) resolveColumn(sc *scope, col *cqn.Column, b *base) ([]*Element, error) {
	if ref, ok := col.Expr.(*cqn.Ref); ok {
		switch {
		case col.IsExpand():
			e, err := r.expandColumn(sc, col, ref, b)
			if err != nil {
				return nil, err
			}
			return []*Element{e}, nil
		case col.IsInline():
			return r.inlineColumn(sc, col, ref, b)
		}
		rs, err := r.resolveRef(sc, ref, refCtx{clause: clauseColumns, base: b})
		if err != nil {
			return nil, err
		}
		e := elementFromLink(nestedName(b, col.As, rs.info.FlatName), rs.last(), rs.info.Type)
		if col.Cast != "" {
			if err := castElement(e, col.Cast, ref.String()); err != nil {
				return nil, err
			}
		}
		return []*Element{e}, nil
	}

	name := col.As
	if name == "" {
		f, ok := col.Expr.(*cqn.Func)
		if !ok {
			return nil, errorf(CodeExpectedAlias, "", "expression %s needs an alias", cqn.Format(col.Expr))
		}
		name = f.Name
	}
	typ, err := r.expressionColumn(sc, col.Expr, refCtx{clause: clauseColumns, base: b})
	if err != nil {
		return nil, err
	}
	e := &Element{Name: nestedName(b, name, ""), Type: typ}
	if col.Cast != "" {
		if err := castElement(e, col.Cast, ""); err != nil {
			return nil, err
		}
	}
	return []*Element{e}, nil
}

// nestedName prefixes an explicit alias with the inline prefix. Without an
// alias the flat name of the path is used as is.
func nestedName(b *base, alias, flat string) string {
	if alias == "" {
		return flat
	}
	if b == nil || len(b.flat) == 0 {
		return alias
	}
	return strings.Join(b.flat, "_") + "_" + alias
}

func elementFromLink(name string, l Link, typ string) *Element {
	switch {
	case l.Element != nil:
		return &Element{
			Name:       name,
			Type:       l.Element.Type,
			Definition: l.Element.Definition,
			Elements:   l.Element.Elements,
			Many:       l.Element.Many,
			Expand:     l.Element.Expand,
		}
	case l.Definition != nil:
		return elementFromDefinition(name, l.Definition)
	}
	return &Element{Name: name, Type: typ}
}

func castElement(e *Element, cast, path string) error {
	if e.IsStructured() || (e.Definition != nil && e.Definition.IsAssociation()) {
		return errorf(CodeIllegalCast, path, "structured element %q cannot be cast", e.Name)
	}
	t, ok := csn.NormalizeType(cast)
	if !ok {
		return errorf(CodeIllegalCast, path, "unknown type %q in cast of %q", cast, e.Name)
	}
	e.Type = t
	return nil
}

// expressionColumn resolves a computed column and infers its type.
func (r *resolver) expressionColumn(sc *scope, e cqn.Expr, rc refCtx) (string, error) {
	if sq, ok := e.(*cqn.SubQuery); ok {
		sub, err := r.resolveSelect(sq.Query, sc, sc.depth+1)
		if err != nil {
			return "", err
		}
		sc.res.Subqueries = append(sc.res.Subqueries, sub)
		if len(sub.Elements) == 1 {
			return sub.Elements[0].Type, nil
		}
		return "", nil
	}
	if err := r.walk(sc, e, rc); err != nil {
		return "", err
	}
	return typeOf(sc, e), nil
}

// expandColumn resolves `path { ... }`: a sub-query against the target of
// an association, or a nested record of a structured element.
func (r *resolver) expandColumn(sc *scope, col *cqn.Column, ref *cqn.Ref, b *base) (*Element, error) {
	rc := refCtx{clause: clauseColumns, base: b, noMerge: true, dangling: true, skipLastFilter: true}
	rs, err := r.resolveRef(sc, ref, rc)
	if err != nil {
		return nil, err
	}
	name := nestedName(b, col.As, rs.info.FlatName)
	last := rs.last()
	def := last.Definition

	switch {
	case def != nil && def.IsAssociation():
		if len(rs.steps) > 1 && rs.tree != nil {
			rs.tree.MergePathFrom(&jointree.Path{Root: rs.root, Steps: rs.steps[:len(rs.steps)-1]}, sc.tree)
		}
		lastStep := ref.Steps[len(ref.Steps)-1]
		sub, err := r.expandAssociation(sc, def, lastStep.Where, col.Expand)
		if err != nil {
			return nil, err
		}
		e := &Element{
			Name:       name,
			Type:       def.Type,
			Definition: def,
			Many:       def.IsToMany(),
			Expand:     sub,
			Elements:   sub.Elements,
		}
		if e.Elements == nil {
			e.Elements = []*Element{}
		}
		return e, nil

	case def != nil && def.IsStructured():
		nb := &base{root: rs.root, tree: rs.tree, prefix: rs.steps, element: def, source: rs.info.Source}
		children, err := r.resolveNested(sc, col.Expand, nb)
		if err != nil {
			return nil, err
		}
		return &Element{Name: name, Definition: def, Elements: children}, nil
	}
	return nil, errorf(CodeInvalidExpand, ref.String(), "%s has no elements to expand", describeLink(last))
}

// expandAssociation resolves an association expand as a correlated
// sub-query. The step filter becomes its where clause. The sub-query's
// alias is reserved in the enclosing tree so later joins there avoid it.
func (r *resolver) expandAssociation(sc *scope, assoc *csn.Element, where cqn.Expr, cols []*cqn.Column) (*Result, error) {
	target := assoc.TargetEntity()
	alias := sc.tree.NextAvailableAlias(assoc.Name)
	if err := sc.tree.Reserve(alias); err != nil {
		return nil, duplicateAlias(alias)
	}
	sel := &cqn.Select{
		From:    &cqn.EntitySource{Ref: cqn.NewRef(target.Name), As: alias},
		Columns: cols,
		Where:   where,
	}
	return r.resolveSelect(sel, sc, sc.depth+1)
}

// inlineColumn resolves `path.{ ... }`: the nested columns are flattened
// into the parent with the path as name prefix.
func (r *resolver) inlineColumn(sc *scope, col *cqn.Column, ref *cqn.Ref, b *base) ([]*Element, error) {
	rc := refCtx{clause: clauseColumns, base: b, noMerge: true, dangling: true}
	rs, err := r.resolveRef(sc, ref, rc)
	if err != nil {
		return nil, err
	}
	last := rs.last()
	nb := &base{
		root:   rs.root,
		tree:   rs.tree,
		prefix: rs.steps,
		flat:   []string{nestedName(b, col.As, rs.info.FlatName)},
		source: rs.info.Source,
	}
	switch def := last.Definition; {
	case def != nil && def.IsAssociation():
		nb.entity = def.TargetEntity()
	case def != nil && def.IsStructured():
		nb.element = def
	default:
		return nil, errorf(CodeInvalidExpand, ref.String(), "%s has no elements to inline", describeLink(last))
	}
	return r.resolveNested(sc, col.Inline, nb)
}

// resolveNested resolves the columns of an inline or structured projection
// below nb.
func (r *resolver) resolveNested(sc *scope, cols []*cqn.Column, nb *base) ([]*Element, error) {
	explicit := make(map[string]bool)
	for _, col := range cols {
		switch {
		case col.As != "":
			explicit[col.As] = true
		case col.Ref() != nil:
			explicit[strings.Join(col.Ref().IDs(), "_")] = true
		}
	}

	var out []*Element
	seen := make(map[string]bool)
	add := func(elems []*Element) error {
		for _, e := range elems {
			if seen[e.Name] {
				return errorf(CodeDuplicateElement, "", "duplicate definition of element %q", e.Name)
			}
			seen[e.Name] = true
			out = append(out, e)
		}
		return nil
	}

	for _, col := range cols {
		if !col.Star {
			elems, err := r.resolveColumn(sc, col, nb)
			if err != nil {
				return nil, err
			}
			if err := add(elems); err != nil {
				return nil, err
			}
			continue
		}
		for _, name := range nb.names() {
			l, _ := nb.lookup(name)
			if explicit[name] || isLargeBinary(l) {
				continue
			}
			rc := refCtx{clause: clauseColumns, base: nb, noMerge: l.Definition.IsAssociation()}
			rs, err := r.resolveRef(sc, cqn.NewRef(name), rc)
			if err != nil {
				return nil, err
			}
			if err := add([]*Element{elementFromLink(rs.info.FlatName, rs.last(), rs.info.Type)}); err != nil {
				return nil, err
			}
		}
	}
	if out == nil {
		out = []*Element{}
	}
	return out, nil
}

// typeOf infers the type of a resolved expression.
func typeOf(sc *scope, e cqn.Expr) string {
	switch e := e.(type) {
	case *cqn.Val:
		return literalType(e.Value)
	case *cqn.Ref:
		if info, ok := sc.res.Refs[e]; ok {
			return info.Type
		}
	case *cqn.Func:
		return funcType(sc, e)
	case *cqn.Xpr:
		if len(e.Items) == 1 {
			return typeOf(sc, e.Items[0])
		}
		for _, it := range e.Items {
			if kw, ok := it.(cqn.Keyword); ok && isPredicateKeyword(kw) {
				return csn.TypeBoolean
			}
		}
		for _, it := range e.Items {
			if _, ok := it.(cqn.Keyword); !ok {
				return typeOf(sc, it)
			}
		}
	}
	return ""
}

func literalType(v ir.IRValue) string {
	switch v.(type) {
	case ir.IRString:
		return csn.TypeString
	case ir.IRBool:
		return csn.TypeBoolean
	case ir.IRInt:
		return csn.TypeInteger
	case ir.IRDecimal:
		return csn.TypeDecimal
	}
	return ""
}

func funcType(sc *scope, f *cqn.Func) string {
	switch strings.ToLower(f.Name) {
	case "count", "countdistinct", "length", "year", "month", "day", "hour", "minute", "second":
		return csn.TypeInteger
	case "concat", "lower", "upper", "tolower", "toupper", "trim", "substring":
		return csn.TypeString
	case "contains", "startswith", "endswith":
		return csn.TypeBoolean
	case "avg", "average":
		return csn.TypeDecimal
	case "current_date":
		return csn.TypeDate
	case "current_time":
		return csn.TypeTime
	case "current_timestamp", "now":
		return csn.TypeTimestamp
	case "min", "max", "sum", "coalesce", "round", "floor", "ceiling", "abs":
		if len(f.Args) > 0 {
			return typeOf(sc, f.Args[0])
		}
	}
	return ""
}

var predicateKeywords = []string{
	"=", "==", "!=", "<>", "<", ">", "<=", ">=",
	"and", "or", "not", "like", "in", "is", "between", "exists",
}

func isPredicateKeyword(kw cqn.Keyword) bool {
	for _, p := range predicateKeywords {
		if kw.Is(p) {
			return true
		}
	}
	return false
}
