package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/qinfer/internal/infer"
	"github.com/roach88/qinfer/internal/ir"
	"github.com/roach88/qinfer/internal/plan"
)

// caseSnapshot is the compact, id-free view of one case compared against
// golden files: the projection, the joins of the plan, or the error code.
func caseSnapshot(name string, res *infer.Result, p *plan.Plan, resErr error) map[string]any {
	snap := map[string]any{"name": name}
	if resErr != nil {
		code := string(infer.CodeOf(resErr))
		if code == "" {
			code = "INTERNAL"
		}
		snap["error"] = code
		return snap
	}

	snap["kind"] = res.Kind
	snap["elements"] = snapshotElements(res.Elements)
	joins := []any{}
	if p != nil {
		for _, j := range p.Joins {
			joins = append(joins, snapshotJoin(j))
		}
	}
	snap["joins"] = joins
	return snap
}

func snapshotElements(elems []*infer.Element) []any {
	out := make([]any, 0, len(elems))
	for _, e := range elems {
		m := map[string]any{"name": e.Name, "type": e.Type}
		if e.IsStructured() {
			m["elements"] = snapshotElements(e.Elements)
		}
		out = append(out, m)
	}
	return out
}

func snapshotJoin(j *plan.Join) map[string]any {
	m := map[string]any{
		"alias":       j.Alias,
		"parent":      j.ParentAlias,
		"association": j.Association,
		"target":      j.Target,
	}
	if len(j.Keys) > 0 {
		keys := make([]string, len(j.Keys))
		for i, k := range j.Keys {
			keys[i] = k.Parent + "=" + k.Target
		}
		m["keys"] = keys
	}
	if j.OnCondition != "" {
		m["on"] = j.OnCondition
	}
	if j.FilterText != "" {
		m["filter"] = j.FilterText
	}
	return m
}

// Snapshot renders a scenario result as canonical JSON.
func (r *Result) Snapshot(scenarioName string) ([]byte, error) {
	cases := make([]any, len(r.Cases))
	for i, c := range r.Cases {
		cases[i] = c.Snapshot
	}
	return ir.MarshalCanonical(map[string]any{
		"scenario": scenarioName,
		"cases":    cases,
	})
}

// RunWithGolden executes a scenario and compares the case snapshots against
// a golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := result.Snapshot(scenarioName)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
