package harness

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every case passed.
	Pass bool `json:"pass"`

	// Cases holds one entry per scenario case, in file order.
	Cases []*CaseResult `json:"cases"`

	// Errors collects the failures of all cases, prefixed by case name.
	Errors []string `json:"errors,omitempty"`
}

// CaseResult is the outcome of one case.
type CaseResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`

	// ResolutionID is the id of the resolution, empty when it failed.
	ResolutionID string `json:"resolution_id,omitempty"`

	// Code is the resolution error code, empty on success.
	Code string `json:"code,omitempty"`

	// Snapshot is the compact view of the case used for golden files.
	Snapshot map[string]any `json:"snapshot"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Cases:  []*CaseResult{},
		Errors: []string{},
	}
}

// AddCase appends a case result and folds its errors into the result.
func (r *Result) AddCase(c *CaseResult) {
	r.Cases = append(r.Cases, c)
	for _, err := range c.Errors {
		r.AddError(c.Name + ": " + err)
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
