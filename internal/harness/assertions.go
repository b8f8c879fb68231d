package harness

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/qinfer/internal/infer"
	"github.com/roach88/qinfer/internal/jointree"
	"github.com/roach88/qinfer/internal/plan"
)

// AssertionError is returned when an expectation fails.
type AssertionError struct {
	Field    string // expectation that failed, e.g. "elements"
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

// Check evaluates the expectations of a case against its resolution and
// join plan. resErr is the resolution error; res and p are nil when it is
// set. Returns one message per failed expectation.
func Check(exp Expect, res *infer.Result, p *plan.Plan, resErr error) []string {
	var failures []string
	add := func(err error) {
		if err != nil {
			failures = append(failures, err.Error())
		}
	}

	if exp.Error != "" {
		add(checkError(exp, resErr))
		return failures
	}
	if resErr != nil {
		return []string{fmt.Sprintf("unexpected error: %v", resErr)}
	}

	if exp.Elements != nil {
		add(checkList("elements", exp.Elements, elementNames(res)))
	}
	add(checkTypes(exp.Types, res))
	if exp.Joins != nil {
		add(checkJoins(exp.Joins, res.JoinTree))
	}
	if exp.Plan != nil && p != nil {
		aliases := make([]string, len(p.Joins))
		for i, j := range p.Joins {
			aliases[i] = j.Alias
		}
		add(checkList("plan", exp.Plan, aliases))
	}
	if exp.Substitutions != nil && p != nil {
		paths := make([]string, len(p.Substitutions))
		for i, s := range p.Substitutions {
			paths[i] = s.Path
		}
		add(checkList("substitutions", exp.Substitutions, paths))
	}
	if exp.Calculated != nil {
		names := make([]string, len(res.Calculated))
		for i, c := range res.Calculated {
			names[i] = c.Element.QualifiedName()
		}
		add(checkList("calculated", exp.Calculated, names))
	}
	return failures
}

func checkError(exp Expect, resErr error) error {
	if resErr == nil {
		return &AssertionError{Field: "error", Expected: exp.Error, Actual: "success"}
	}
	var ierr *infer.Error
	if !errors.As(resErr, &ierr) {
		return &AssertionError{Field: "error", Expected: exp.Error, Actual: resErr.Error()}
	}
	if string(ierr.Code) != exp.Error {
		return &AssertionError{Field: "error", Expected: exp.Error, Actual: ierr.Error()}
	}
	if exp.Candidates != nil {
		return checkList("candidates", exp.Candidates, ierr.Candidates)
	}
	return nil
}

func checkList(field string, expected, actual []string) error {
	if slices.Equal(expected, actual) {
		return nil
	}
	return &AssertionError{Field: field, Expected: formatList(expected), Actual: formatList(actual)}
}

func checkTypes(types map[string]string, res *infer.Result) error {
	var mismatches []string
	for _, name := range sortedKeys(types) {
		e, ok := res.Element(name)
		switch {
		case !ok:
			mismatches = append(mismatches, fmt.Sprintf("%s missing", name))
		case e.Type != types[name]:
			mismatches = append(mismatches, fmt.Sprintf("%s is %q, not %q", name, e.Type, types[name]))
		}
	}
	if len(mismatches) == 0 {
		return nil
	}
	return fmt.Errorf("types: %s", strings.Join(mismatches, "; "))
}

func checkJoins(expected []JoinExpect, tree *jointree.Tree) error {
	actual := joinNodes(tree)
	if len(actual) != len(expected) {
		return &AssertionError{
			Field:    "joins",
			Expected: fmt.Sprintf("%d nodes", len(expected)),
			Actual:   fmt.Sprintf("%d nodes %s", len(actual), formatList(nodeAliases(actual))),
		}
	}
	for i, want := range expected {
		n := actual[i]
		got := describeNode(n)
		if n.Alias != want.Alias || n.ParentAlias() != want.Parent ||
			(want.Name != "" && n.Name != want.Name) ||
			(want.Target != "" && n.Target().Name != want.Target) ||
			(want.ForeignKeyOnly != nil && n.OnlyForeignKeyAccess != *want.ForeignKeyOnly) {
			return &AssertionError{
				Field:    fmt.Sprintf("joins[%d]", i),
				Expected: describeExpect(want),
				Actual:   got,
			}
		}
	}
	return nil
}

// joinNodes lists the nodes of a join tree depth first, parents before
// their children.
func joinNodes(tree *jointree.Tree) []*jointree.Node {
	var out []*jointree.Node
	var walk func(nodes []*jointree.Node)
	walk = func(nodes []*jointree.Node) {
		for _, n := range nodes {
			out = append(out, n)
			walk(n.Children())
		}
	}
	if tree == nil {
		return out
	}
	for _, root := range tree.Roots() {
		walk(root.Children())
	}
	return out
}

func nodeAliases(nodes []*jointree.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Alias
	}
	return out
}

func describeNode(n *jointree.Node) string {
	return fmt.Sprintf("%s <- %s.%s -> %s (fk_only=%t)",
		n.Alias, n.ParentAlias(), n.Name, n.Target().Name, n.OnlyForeignKeyAccess)
}

func describeExpect(j JoinExpect) string {
	s := fmt.Sprintf("%s <- %s.%s -> %s", j.Alias, j.Parent, j.Name, j.Target)
	if j.ForeignKeyOnly != nil {
		s += fmt.Sprintf(" (fk_only=%t)", *j.ForeignKeyOnly)
	}
	return s
}

func elementNames(res *infer.Result) []string {
	names := make([]string, len(res.Elements))
	for i, e := range res.Elements {
		names[i] = e.Name
	}
	return names
}

func formatList(items []string) string {
	return "[" + strings.Join(items, ", ") + "]"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
