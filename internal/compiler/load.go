package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/qinfer/internal/csn"
	"github.com/roach88/qinfer/internal/ir"
)

// Compiled is a linked model together with the queries declared next to it.
type Compiled struct {
	Model    *csn.Model
	Queries  []NamedQuery
	Warnings []CycleWarning

	// Hash identifies the canonical form of the entity definitions.
	Hash string
}

// Query returns the named query, or nil.
func (c *Compiled) Query(name string) *NamedQuery {
	for i := range c.Queries {
		if c.Queries[i].Name == name {
			return &c.Queries[i]
		}
	}
	return nil
}

// ValidationErrors is returned by CompileModel when validation finds
// problems.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d validation error(s): %s", len(errs), strings.Join(msgs, "; "))
}

// CompileModel compiles, validates and links the entities of v and
// decodes its named queries.
func CompileModel(v cue.Value) (*Compiled, error) {
	entities, err := CompileEntities(v)
	if err != nil {
		return nil, err
	}
	if errs := ValidateEntities(entities); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	model, err := csn.NewModel(entities...)
	if err != nil {
		return nil, fmt.Errorf("link model: %w", err)
	}
	queries, err := CompileQueries(v)
	if err != nil {
		return nil, err
	}
	hash, err := modelHash(v)
	if err != nil {
		return nil, err
	}
	return &Compiled{
		Model:    model,
		Queries:  queries,
		Warnings: AnalyzeCycles(model),
		Hash:     hash,
	}, nil
}

func modelHash(v cue.Value) (string, error) {
	data, err := v.LookupPath(cue.ParsePath("entities")).MarshalJSON()
	if err != nil {
		return "", formatCUEError(err)
	}
	doc, err := ir.UnmarshalIRValue(data)
	if err != nil {
		return "", fmt.Errorf("model hash: %w", err)
	}
	canonical, err := ir.MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("model hash: %w", err)
	}
	return ir.ModelHash(canonical), nil
}

// LoadModel loads a model from a .cue file or from a directory holding one
// CUE package, then compiles it.
func LoadModel(path string) (*Compiled, error) {
	v, err := LoadValue(path)
	if err != nil {
		return nil, err
	}
	return CompileModel(v)
}

// LoadValue builds the CUE value of a file or package directory.
func LoadValue(path string) (cue.Value, error) {
	info, err := os.Stat(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("model %s: %w", path, err)
	}

	ctx := cuecontext.New()
	cfg := &load.Config{Dir: path}
	args := []string{"."}
	if !info.IsDir() {
		cfg.Dir = filepath.Dir(path)
		args = []string{filepath.Base(path)}
	}
	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("model %s: no CUE instances loaded", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return value, nil
}
