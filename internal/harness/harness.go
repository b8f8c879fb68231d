package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/qinfer/internal/compiler"
	"github.com/roach88/qinfer/internal/cqn"
	"github.com/roach88/qinfer/internal/infer"
	"github.com/roach88/qinfer/internal/plan"
	"github.com/roach88/qinfer/internal/store"
	"github.com/roach88/qinfer/internal/testutil"
)

// Harness is the test execution engine.
// It resolves scenario cases with deterministic resolution ids.
type Harness struct {
	compiled *compiler.Compiled
	inferrer *infer.Inferrer
	ids      *testutil.SequenceGenerator
	store    *store.Store
	logger   *slog.Logger
	scenario string
}

// Option configures a scenario run.
type Option func(*Harness)

// WithStore records every successful resolution in st.
func WithStore(st *store.Store) Option {
	return func(h *Harness) {
		h.store = st
	}
}

// WithLogger sets the logger of the harness and of its resolver.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario compiles its model afresh, and resolution ids restart at
// "resolution-1", so results are reproducible.
//
// Execution flow:
// 1. Load and compile the model
// 2. Resolve each case's query
// 3. Check the case's expectations
// 4. Optionally record successful resolutions
// 5. Return result with pass/fail, per-case snapshots, and errors
//
// The returned error reports a scenario that could not run at all; failed
// expectations are reported in the result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	return RunContext(context.Background(), scenario, opts...)
}

// RunContext is Run with a context for recording.
func RunContext(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	compiled, err := compiler.LoadModel(scenario.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	h := &Harness{
		compiled: compiled,
		ids:      testutil.NewSequenceGenerator("resolution"),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		scenario: scenario.Name,
	}
	for _, opt := range opts {
		opt(h)
	}

	inferOpts := []infer.Option{
		infer.WithLogger(h.logger),
		infer.WithIDGenerator(h.ids),
	}
	if scenario.MaxDepth > 0 {
		inferOpts = append(inferOpts, infer.WithMaxDepth(scenario.MaxDepth))
	}
	h.inferrer = infer.New(compiled.Model, inferOpts...)

	result := NewResult()
	for _, c := range scenario.Cases {
		cr, err := h.runCase(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("case %s: %w", c.Name, err)
		}
		result.AddCase(cr)
	}
	return result, nil
}

// runCase resolves one case. Only recording failures are returned as
// errors; everything else is a case failure.
func (h *Harness) runCase(ctx context.Context, c Case) (*CaseResult, error) {
	cr := &CaseResult{Name: c.Name, Pass: true}

	q, err := c.query(h.compiled)
	if err != nil {
		cr.fail(err.Error())
		cr.Snapshot = map[string]any{"name": c.Name, "error": "INVALID_CASE"}
		return cr, nil
	}

	res, resErr := h.inferrer.Resolve(q)
	var p *plan.Plan
	if resErr == nil {
		cr.ResolutionID = res.ID
		p, err = plan.Build(res)
		if err != nil {
			cr.fail(fmt.Sprintf("plan: %v", err))
		}
	} else {
		cr.Code = string(infer.CodeOf(resErr))
	}

	for _, msg := range Check(c.Expect, res, p, resErr) {
		cr.fail(msg)
	}
	cr.Snapshot = caseSnapshot(c.Name, res, p, resErr)

	h.logger.Info("case resolved",
		"scenario", h.scenario,
		"case", c.Name,
		"resolution_id", cr.ResolutionID,
		"code", cr.Code,
		"pass", cr.Pass,
	)

	if h.store != nil && resErr == nil {
		if err := h.record(ctx, c.Name, q, res); err != nil {
			return nil, err
		}
	}
	return cr, nil
}

func (h *Harness) record(ctx context.Context, name string, q cqn.Query, res *infer.Result) error {
	snapshot, err := res.CanonicalSnapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	r, err := store.NewResolution(res.ID, h.scenario+"/"+name, h.compiled.Hash, q, snapshot)
	if err != nil {
		return err
	}
	if _, err := h.store.WriteResolution(ctx, r); err != nil {
		return err
	}
	return nil
}

func (c *CaseResult) fail(msg string) {
	c.Pass = false
	c.Errors = append(c.Errors, msg)
}
