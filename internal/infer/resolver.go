package infer

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/qinfer/internal/cqn"
	"github.com/roach88/qinfer/internal/csn"
	"github.com/roach88/qinfer/internal/jointree"
)

// resolver carries the state of one Resolve call through every nested
// query it visits. Per-query state lives in scope.
type resolver struct {
	inf     *Inferrer
	log     *slog.Logger
	linking *linkStack
	linked  map[linkKey]bool
}

// Resolve binds every reference of q against the model, builds the join
// tree and computes the projected elements.
//
// Resolution is deterministic: resolving the same query twice yields
// identical elements, sources and join trees, alias numbering included.
// The first error aborts the whole resolution.
func (i *Inferrer) Resolve(q cqn.Query) (*Result, error) {
	id := i.ids.Generate()
	r := &resolver{
		inf:     i,
		log:     i.logger.With("resolution", id),
		linking: newLinkStack(),
		linked:  make(map[linkKey]bool),
	}
	kind := kindOf(q)
	r.log.Debug("resolving query", "kind", kind)

	if err := cqn.Validate(q); err != nil {
		return nil, &Error{Code: CodeInvalidQuery, Message: err.Error()}
	}

	var (
		res *Result
		err error
	)
	switch q := q.(type) {
	case *cqn.Select:
		res, err = r.resolveSelect(q, nil, 0)
	case *cqn.Insert:
		res, err = r.resolveInsert(q, kind, q.Into, q.Columns, q.Entries, q.As)
	case *cqn.Upsert:
		res, err = r.resolveInsert(q, kind, q.Into, q.Columns, q.Entries, nil)
	case *cqn.Update:
		res, err = r.resolveUpdate(q)
	case *cqn.Delete:
		res, err = r.resolveDelete(q)
	default:
		err = &Error{Code: CodeInvalidQuery, Message: fmt.Sprintf("unsupported query %T", q)}
	}
	if err != nil {
		r.log.Debug("resolution failed", "kind", kind, "error", err)
		return nil, err
	}
	setID(res, id)
	r.log.Debug("resolved query",
		"kind", kind,
		"elements", len(res.Elements),
		"sources", len(res.Sources),
		"calculated", len(res.Calculated))
	return res, nil
}

func setID(res *Result, id string) {
	res.ID = id
	for _, src := range res.Sources {
		if src.Query != nil {
			setID(src.Query, id)
		}
	}
	for _, e := range res.Elements {
		setElementID(e, id)
	}
	for _, sub := range res.Subqueries {
		setID(sub, id)
	}
}

func setElementID(e *Element, id string) {
	if e.Expand != nil {
		setID(e.Expand, id)
	}
	for _, c := range e.Elements {
		setElementID(c, id)
	}
}

func kindOf(q cqn.Query) string {
	switch q.(type) {
	case *cqn.Select:
		return "SELECT"
	case *cqn.Insert:
		return "INSERT"
	case *cqn.Upsert:
		return "UPSERT"
	case *cqn.Update:
		return "UPDATE"
	case *cqn.Delete:
		return "DELETE"
	}
	return ""
}

// resolveSelect resolves a select. outer is the scope of the enclosing
// query for correlated sub-queries and expands, nil otherwise.
func (r *resolver) resolveSelect(sel *cqn.Select, outer *scope, depth int) (*Result, error) {
	if depth > r.inf.maxDepth {
		return nil, errorf(CodeRecursionLimit, "", "query nesting exceeds the maximum depth of %d", r.inf.maxDepth)
	}
	var outerTree *jointree.Tree
	if outer != nil {
		outerTree = outer.tree
	}
	res := newResult(sel, "SELECT", jointree.New(outerTree))
	sc := newScope(res, outer, depth)

	if err := r.resolveSource(sc, sel.From); err != nil {
		return nil, err
	}
	if len(res.Sources) == 1 && res.Sources[0].Entity != nil {
		res.Target = res.Sources[0].Entity
	}

	if err := r.resolveColumns(sc, sel); err != nil {
		return nil, err
	}
	if err := r.walk(sc, sel.Where, refCtx{clause: clauseWhere}); err != nil {
		return nil, err
	}
	for _, g := range sel.GroupBy {
		if err := r.walk(sc, g, refCtx{clause: clauseGroupBy}); err != nil {
			return nil, err
		}
	}
	if err := r.walk(sc, sel.Having, refCtx{clause: clauseHaving}); err != nil {
		return nil, err
	}
	for _, o := range sel.OrderBy {
		if err := r.walk(sc, o.Expr, refCtx{clause: clauseOrderBy}); err != nil {
			return nil, err
		}
	}
	if sel.Limit != nil {
		if err := r.walk(sc, sel.Limit.Rows, refCtx{clause: clauseWhere}); err != nil {
			return nil, err
		}
		if err := r.walk(sc, sel.Limit.Offset, refCtx{clause: clauseWhere}); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// resolveSource registers the sources of a from clause in declaration order.
func (r *resolver) resolveSource(sc *scope, src cqn.Source) error {
	switch s := src.(type) {
	case *cqn.EntitySource:
		_, err := r.addEntitySource(sc, s)
		return err

	case *cqn.SubQuerySource:
		// from sub-queries see no outer scope
		sub, err := r.resolveSelect(s.Query, nil, sc.depth+1)
		if err != nil {
			return err
		}
		alias := s.Alias()
		if err := sc.tree.Reserve(alias); err != nil {
			return duplicateAlias(alias)
		}
		sc.addSource(&Source{Alias: alias, Query: sub})
		return nil

	case *cqn.JoinSource:
		for _, arg := range s.Args {
			if err := r.resolveSource(sc, arg); err != nil {
				return err
			}
		}
		return r.walk(sc, s.On, refCtx{clause: clauseOn})
	}
	return &Error{Code: CodeInvalidQuery, Message: fmt.Sprintf("unsupported source %T", src)}
}

func duplicateAlias(alias string) *Error {
	return errorf(CodeDuplicateAlias, alias, "duplicate source alias %q", alias)
}

// addEntitySource resolves a source path such as Books[ID=1].author and
// adds the reached entity as a join tree root.
func (r *resolver) addEntitySource(sc *scope, s *cqn.EntitySource) (*Source, error) {
	entity, args, err := r.resolveSourcePath(sc, s.Ref)
	if err != nil {
		return nil, err
	}
	alias := s.Alias()
	if _, err := sc.tree.AddRoot(alias, entity); err != nil {
		var ae *jointree.AliasError
		if errors.As(err, &ae) {
			return nil, duplicateAlias(alias)
		}
		return nil, err
	}
	src := &Source{Alias: alias, Ref: s.Ref, Entity: entity, Args: args}
	sc.addSource(src)
	return src, nil
}

func (r *resolver) resolveSourcePath(sc *scope, ref *cqn.Ref) (*csn.Entity, map[string]cqn.Expr, error) {
	path := ref.String()
	first := ref.Steps[0]
	entity, ok := r.inf.model.Entity(first.ID)
	if !ok {
		return nil, nil, errorf(CodeUnresolvedReference, path, "entity %q not found", first.ID)
	}
	rc := refCtx{clause: clauseFrom}
	if err := r.resolveStepFilter(sc, first, entity, rc, false); err != nil {
		return nil, nil, err
	}
	args := first.Args
	for _, st := range ref.Steps[1:] {
		el, ok := entity.Element(st.ID)
		if !ok {
			return nil, nil, errorf(CodeUnresolvedReference, path, "%q not found in %s", st.ID, entity.Name)
		}
		if !el.IsAssociation() {
			return nil, nil, errorf(CodeUnresolvedReference, path, "%s is not an association and cannot be a source", el.QualifiedName())
		}
		entity = el.TargetEntity()
		if err := r.resolveStepFilter(sc, st, entity, rc, false); err != nil {
			return nil, nil, err
		}
		args = st.Args
	}
	return entity, args, nil
}

// refCtx describes where a reference appears.
type refCtx struct {
	clause clause

	// base resolves first steps against an entity or structured element
	// instead of the query sources: infix filters, inline and nested
	// projections, calculated element values.
	base *base

	// filter marks an infix filter; restricted limits it to foreign keys.
	filter     bool
	restricted bool

	// exists marks an exists predicate path and everything inside it.
	exists bool

	// dangling allows a filter on the last step of a path.
	dangling bool

	// noMerge leaves the path out of the join tree.
	noMerge bool

	// skipLastFilter leaves the last step's filter to the caller.
	skipLastFilter bool

	// sink receives the references instead of the result's Refs table.
	sink *[]*RefInfo
}

func (rc refCtx) merges() bool {
	return !rc.filter && !rc.exists && !rc.noMerge
}

// walk resolves every reference inside an expression.
func (r *resolver) walk(sc *scope, e cqn.Expr, rc refCtx) error {
	switch e := e.(type) {
	case nil:
		return nil
	case *cqn.Ref:
		_, err := r.resolveRef(sc, e, rc)
		return err
	case *cqn.Func:
		for _, a := range e.Args {
			if err := r.walk(sc, a, rc); err != nil {
				return err
			}
		}
	case *cqn.List:
		for _, it := range e.Items {
			if err := r.walk(sc, it, rc); err != nil {
				return err
			}
		}
	case *cqn.Xpr:
		return r.walkXpr(sc, e, rc)
	case *cqn.SubQuery:
		sub, err := r.resolveSelect(e.Query, sc, sc.depth+1)
		if err != nil {
			return err
		}
		sc.res.Subqueries = append(sc.res.Subqueries, sub)
	}
	return nil
}

func (r *resolver) walkXpr(sc *scope, x *cqn.Xpr, rc refCtx) error {
	for i := 0; i < len(x.Items); i++ {
		item := x.Items[i]
		if kw, ok := item.(cqn.Keyword); ok && kw.Is("exists") && i+1 < len(x.Items) {
			if ref, ok := x.Items[i+1].(*cqn.Ref); ok {
				i++
				erc := rc
				erc.exists = true
				erc.dangling = true
				erc.restricted = false
				if _, err := r.resolveRef(sc, ref, erc); err != nil {
					return err
				}
				continue
			}
		}
		if err := r.walk(sc, item, rc); err != nil {
			return err
		}
	}
	return nil
}

// resolveStepFilter resolves the filter and arguments of one path step
// against the entity the step reaches.
func (r *resolver) resolveStepFilter(sc *scope, st *cqn.Step, target *csn.Entity, rc refCtx, restricted bool) error {
	if st.Where != nil {
		frc := refCtx{
			clause:     rc.clause,
			base:       &base{entity: target},
			filter:     true,
			restricted: restricted,
			exists:     rc.exists,
			dangling:   rc.exists,
			sink:       rc.sink,
		}
		if err := r.walk(sc, st.Where, frc); err != nil {
			return err
		}
	}
	for _, name := range sortedArgNames(st.Args) {
		arc := refCtx{clause: rc.clause, exists: rc.exists, noMerge: true, sink: rc.sink}
		if err := r.walk(sc, st.Args[name], arc); err != nil {
			return err
		}
	}
	return nil
}

func trimDollar(name string) string {
	return strings.TrimPrefix(name, "$")
}
