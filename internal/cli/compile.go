package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/qinfer/internal/compiler"
	"github.com/roach88/qinfer/internal/csn"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// ModelSummary describes a compiled model.
type ModelSummary struct {
	Hash     string                  `json:"hash"`
	Entities []EntitySummary         `json:"entities"`
	Queries  []string                `json:"queries"`
	Warnings []compiler.CycleWarning `json:"warnings"`
}

// EntitySummary describes one entity of a compiled model.
type EntitySummary struct {
	Name         string   `json:"name"`
	Keys         []string `json:"keys"`
	Elements     []string `json:"elements"`
	Associations []string `json:"associations"` // "author -> Authors"
	Calculated   []string `json:"calculated"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [model]",
		Short: "Compile a CUE model and summarize it",
		Long: `Compile a CUE entity model, link its associations and report its
entities, named queries and model hash.

The model is a .cue file or a directory holding one CUE package. Without
an argument the model configured in qinfer.yaml is used.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the summary as JSON to this file")

	return cmd
}

func runCompile(opts *CompileOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	modelPath, err := opts.Config().ModelPath(firstArg(args))
	if err != nil {
		return outputCommandError(formatter, ErrCodeNoModel, err.Error())
	}
	formatter.VerboseLog("Compiling model %s", modelPath)

	compiled, err := LoadModel(modelPath)
	if err != nil {
		code, message := loadErrorDetails(err)
		return outputCommandError(formatter, code, message)
	}

	summary := Summarize(compiled)

	if opts.Output != "" {
		if err := writeJSONFile(summary, opts.Output); err != nil {
			return outputCommandError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	if formatter.IsJSON() {
		return formatter.Success(summary)
	}

	formatter.OK("Compiled %d entit(ies), %d named quer(ies)", len(summary.Entities), len(summary.Queries))
	formatter.Printf("  model hash %s\n\n", dim(summary.Hash))
	formatter.Printf("Entities:\n")
	for _, e := range summary.Entities {
		formatter.Printf("  %s: %d element(s), %d association(s), %d calculated\n",
			e.Name, len(e.Elements), len(e.Associations), len(e.Calculated))
	}
	if len(summary.Queries) > 0 {
		formatter.Printf("\nQueries:\n")
		for _, q := range summary.Queries {
			formatter.Printf("  %s\n", q)
		}
	}
	for _, w := range summary.Warnings {
		formatter.Warn("%s", w.Message)
	}
	if opts.Output != "" {
		formatter.Printf("\nWrote summary to %s\n", opts.Output)
	}
	return nil
}

// Summarize describes a compiled model, entities in name order.
func Summarize(c *compiler.Compiled) ModelSummary {
	s := ModelSummary{
		Hash:     c.Hash,
		Entities: []EntitySummary{},
		Queries:  []string{},
		Warnings: c.Warnings,
	}
	if s.Warnings == nil {
		s.Warnings = []compiler.CycleWarning{}
	}
	for _, e := range c.Model.Entities() {
		s.Entities = append(s.Entities, summarizeEntity(e))
	}
	for _, q := range c.Queries {
		s.Queries = append(s.Queries, q.Name)
	}
	return s
}

func summarizeEntity(e *csn.Entity) EntitySummary {
	es := EntitySummary{
		Name:         e.Name,
		Keys:         []string{},
		Elements:     []string{},
		Associations: []string{},
		Calculated:   []string{},
	}
	for _, k := range e.Keys() {
		es.Keys = append(es.Keys, k.Name)
	}
	for _, el := range e.Elements {
		es.Elements = append(es.Elements, el.Name)
		switch {
		case el.IsAssociation():
			arrow := "->"
			if el.IsToMany() {
				arrow = "->*"
			}
			es.Associations = append(es.Associations, fmt.Sprintf("%s %s %s", el.Name, arrow, el.Target))
		case el.IsCalculated():
			es.Calculated = append(es.Calculated, el.Name)
		}
	}
	return es
}

// outputCommandError outputs a command-level error (exit code 2).
func outputCommandError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// writeJSONFile writes v as indented JSON.
func writeJSONFile(v any, filename string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

func firstArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
