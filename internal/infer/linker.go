package infer

import (
	"fmt"
	"strings"

	"github.com/roach88/qinfer/internal/cqn"
	"github.com/roach88/qinfer/internal/csn"
	"github.com/roach88/qinfer/internal/jointree"
)

// linkKey identifies one expansion of a calculated element: the element
// and the path that reached it. The same element reached through
// different paths merges its value's paths below each of them.
type linkKey struct {
	el     *csn.Element
	tree   *jointree.Tree
	prefix string
}

func (b *base) key() string {
	var sb strings.Builder
	sb.WriteString(b.root)
	for _, s := range b.prefix {
		sb.WriteByte('/')
		sb.WriteString(s.Name)
		if s.Where != nil {
			sb.WriteString("[" + cqn.Format(s.Where) + "]")
		}
	}
	return sb.String()
}

func (b *base) prefixName() string {
	names := make([]string, len(b.prefix))
	for i, s := range b.prefix {
		names[i] = s.Name
	}
	return strings.Join(names, ".")
}

// linkCalculated resolves the value of a calculated element as if it were
// written at the element's owner, below the path in b.
func (r *resolver) linkCalculated(sc *scope, el *csn.Element, b *base, rc refCtx) error {
	key := linkKey{el: el, tree: b.tree, prefix: b.key()}
	if r.linked[key] {
		return nil
	}
	if r.linking.WouldCycle(el) {
		return &Error{
			Code:       CodeSelfReferentialCalculated,
			Message:    fmt.Sprintf("calculated element %s references itself", el.QualifiedName()),
			Candidates: r.linking.Chain(el),
		}
	}
	if r.linking.Depth() >= r.inf.maxDepth {
		return errorf(CodeRecursionLimit, "",
			"calculated element %s nests deeper than %d levels", el.QualifiedName(), r.inf.maxDepth)
	}

	r.linking.Enter(el)
	defer r.linking.Leave(el)

	link := &CalculatedLink{Element: el, Root: b.root, Prefix: b.prefixName()}
	crc := refCtx{
		clause:     rc.clause,
		base:       b,
		filter:     rc.filter,
		restricted: rc.restricted,
		exists:     rc.exists,
		noMerge:    b.tree == nil,
		sink:       &link.Refs,
	}
	if err := r.walk(sc, el.Value, crc); err != nil {
		return err
	}

	r.linked[key] = true
	sc.res.Calculated = append(sc.res.Calculated, link)
	r.log.Debug("linked calculated element",
		"element", el.QualifiedName(),
		"root", b.root,
		"prefix", link.Prefix,
		"refs", len(link.Refs))
	return nil
}
