package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/qinfer/internal/compiler"
	"github.com/roach88/qinfer/internal/cqn"
)

// Scenario defines a conformance test scenario: a model and a list of
// queries resolved against it, each with the expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Model is the path of the CUE model file or package directory.
	// Relative paths are resolved against the scenario file location.
	Model string `yaml:"model"`

	// MaxDepth overrides the resolver's nesting limit when positive.
	MaxDepth int `yaml:"max_depth,omitempty"`

	Cases []Case `yaml:"cases"`
}

// Case is one query and its expectations. Exactly one of Query and Named is set.
type Case struct {
	Name string `yaml:"name"`

	// Query is an inline query in the JSON query notation, written either
	// as YAML or as a JSON string.
	Query any `yaml:"query,omitempty"`

	// Named selects a query declared in the model's `queries` section.
	Named string `yaml:"named,omitempty"`

	Expect Expect `yaml:"expect"`
}

// Expect lists what a case checks. Empty fields are not checked.
type Expect struct {
	// Elements is the exact, ordered list of projected element names.
	Elements []string `yaml:"elements,omitempty"`

	// Types maps element names to their expected builtin type.
	Types map[string]string `yaml:"types,omitempty"`

	// Joins is the exact list of join tree nodes, depth first.
	Joins []JoinExpect `yaml:"joins,omitempty"`

	// Plan is the ordered list of join aliases of the join plan.
	Plan []string `yaml:"plan,omitempty"`

	// Substitutions lists the paths replaced by foreign key columns.
	Substitutions []string `yaml:"substitutions,omitempty"`

	// Calculated lists the qualified names of linked calculated elements.
	Calculated []string `yaml:"calculated,omitempty"`

	// Error is the expected error code. When set, resolution must fail.
	Error string `yaml:"error,omitempty"`

	// Candidates are the expected candidates of the error.
	Candidates []string `yaml:"candidates,omitempty"`
}

// JoinExpect describes one join tree node.
type JoinExpect struct {
	Alias  string `yaml:"alias"`
	Parent string `yaml:"parent"`
	Name   string `yaml:"name,omitempty"`
	Target string `yaml:"target,omitempty"`

	// ForeignKeyOnly is checked when set.
	ForeignKeyOnly *bool `yaml:"fk_only,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Model != "" && !filepath.IsAbs(scenario.Model) {
		scenario.Model = filepath.Join(filepath.Dir(path), scenario.Model)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml file of a directory, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios in %s", dir)
	}
	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Model == "" {
		return fmt.Errorf("model is required")
	}
	if _, err := os.Stat(s.Model); os.IsNotExist(err) {
		return fmt.Errorf("model not found: %s", s.Model)
	}

	if s.MaxDepth < 0 {
		return fmt.Errorf("max_depth must be non-negative")
	}

	if len(s.Cases) == 0 {
		return fmt.Errorf("cases list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Cases))
	for i, c := range s.Cases {
		if c.Name == "" {
			return fmt.Errorf("cases[%d]: name is required", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("cases[%d]: duplicate case name %q", i, c.Name)
		}
		seen[c.Name] = true

		if (c.Query == nil) == (c.Named == "") {
			return fmt.Errorf("cases[%d]: exactly one of query and named is required", i)
		}
		if len(c.Expect.Candidates) > 0 && c.Expect.Error == "" {
			return fmt.Errorf("cases[%d].expect: candidates require error", i)
		}
		for j, jn := range c.Expect.Joins {
			if jn.Alias == "" || jn.Parent == "" {
				return fmt.Errorf("cases[%d].expect.joins[%d]: alias and parent are required", i, j)
			}
		}
	}

	return nil
}

// query returns the case's query, decoding inline queries or looking up
// named ones in the compiled model.
func (c *Case) query(compiled *compiler.Compiled) (cqn.Query, error) {
	if c.Named != "" {
		nq := compiled.Query(c.Named)
		if nq == nil {
			return nil, fmt.Errorf("model declares no query %q", c.Named)
		}
		return nq.Query, nil
	}

	var data []byte
	switch q := c.Query.(type) {
	case string:
		data = []byte(q)
	default:
		var err error
		data, err = json.Marshal(q)
		if err != nil {
			return nil, fmt.Errorf("encode query: %w", err)
		}
	}
	q, err := cqn.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode query: %w", err)
	}
	return q, nil
}
