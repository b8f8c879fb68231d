package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qinfer/internal/cqn"
	"github.com/roach88/qinfer/internal/infer"
	"github.com/roach88/qinfer/internal/plan"
	"github.com/roach88/qinfer/internal/testutil"
)

func resolveBookshop(t *testing.T, src string) (*infer.Result, *plan.Plan, error) {
	t.Helper()
	q, err := cqn.Unmarshal([]byte(src))
	require.NoError(t, err)

	res, err := infer.New(testutil.Bookshop(), infer.WithLogger(discardLogger())).Resolve(q)
	if err != nil {
		return nil, nil, err
	}
	p, err := plan.Build(res)
	require.NoError(t, err)
	return res, p, nil
}

func boolPtr(b bool) *bool { return &b }

func TestCheck_Pass(t *testing.T) {
	res, p, err := resolveBookshop(t, `{"SELECT": {"from": "Books", "columns": [{"ref": ["title"]}, {"ref": ["author", "name"]}]}}`)
	require.NoError(t, err)

	failures := Check(Expect{
		Elements: []string{"title", "author_name"},
		Types:    map[string]string{"author_name": "cds.String"},
		Joins:    []JoinExpect{{Alias: "author", Parent: "Books", Name: "author", Target: "Authors", ForeignKeyOnly: boolPtr(false)}},
		Plan:     []string{"author"},
	}, res, p, nil)
	assert.Empty(t, failures)
}

func TestCheck_Failures(t *testing.T) {
	res, p, err := resolveBookshop(t, `{"SELECT": {"from": "Books", "columns": [{"ref": ["author", "ID"]}]}}`)
	require.NoError(t, err)

	failures := Check(Expect{
		Elements:      []string{"author"},
		Types:         map[string]string{"author_ID": "cds.String", "missing": "cds.String"},
		Joins:         []JoinExpect{{Alias: "author", Parent: "Books", ForeignKeyOnly: boolPtr(false)}},
		Plan:          []string{"author"},
		Substitutions: []string{},
	}, res, p, nil)

	assert.Equal(t, []string{
		"elements: expected [author], got [author_ID]",
		`types: author_ID is "cds.Integer", not "cds.String"; missing missing`,
		"joins[0]: expected author <- Books. ->  (fk_only=false), got author <- Books.author -> Authors (fk_only=true)",
		"plan: expected [author], got []",
		"substitutions: expected [], got [author.ID]",
	}, failures)
}

func TestCheck_JoinCount(t *testing.T) {
	res, p, err := resolveBookshop(t, `{"SELECT": {"from": "Books", "columns": [{"ref": ["title"]}]}}`)
	require.NoError(t, err)

	failures := Check(Expect{Joins: []JoinExpect{{Alias: "author", Parent: "Books"}}}, res, p, nil)
	assert.Equal(t, []string{"joins: expected 1 nodes, got 0 nodes []"}, failures)
}

func TestCheck_ExpectedError(t *testing.T) {
	_, _, resErr := resolveBookshop(t, `{"SELECT": {"from": "Books", "columns": [{"ref": ["nope"]}]}}`)
	require.Error(t, resErr)

	assert.Empty(t, Check(Expect{Error: "UNRESOLVED_REFERENCE"}, nil, nil, resErr))

	failures := Check(Expect{Error: "AMBIGUOUS_REFERENCE"}, nil, nil, resErr)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "error: expected AMBIGUOUS_REFERENCE, got UNRESOLVED_REFERENCE")

	res, p, err := resolveBookshop(t, `{"SELECT": {"from": "Books", "columns": [{"ref": ["title"]}]}}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"error: expected UNRESOLVED_REFERENCE, got success"},
		Check(Expect{Error: "UNRESOLVED_REFERENCE"}, res, p, nil))
}

func TestCheck_UnexpectedError(t *testing.T) {
	_, _, resErr := resolveBookshop(t, `{"SELECT": {"from": "Books", "columns": [{"ref": ["nope"]}]}}`)
	require.Error(t, resErr)

	failures := Check(Expect{Elements: []string{"nope"}}, nil, nil, resErr)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "unexpected error: UNRESOLVED_REFERENCE")
}

func TestCheck_Candidates(t *testing.T) {
	err := &infer.Error{Code: infer.CodeAmbiguousReference, Message: "ID is ambiguous", Candidates: []string{"b", "a"}}

	assert.Empty(t, Check(Expect{Error: "AMBIGUOUS_REFERENCE", Candidates: []string{"b", "a"}}, nil, nil, err))
	assert.Equal(t, []string{"candidates: expected [a, b], got [b, a]"},
		Check(Expect{Error: "AMBIGUOUS_REFERENCE", Candidates: []string{"a", "b"}}, nil, nil, err))
}

func TestAssertionError(t *testing.T) {
	err := &AssertionError{Field: "plan", Expected: "[author]", Actual: "[]"}
	assert.Equal(t, "plan: expected [author], got []", err.Error())
}
