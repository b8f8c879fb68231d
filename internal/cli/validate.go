package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/qinfer/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                        `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [model]",
		Short: "Validate a model and report every problem",
		Long: `Validate a CUE entity model.

Reports every validation finding (E120-E127) instead of stopping at the
first, and warns about cycles between calculated elements.

Exit codes:
  0 - Model is valid (warnings allowed)
  1 - Validation findings
  2 - Command error (model not found, CUE syntax error, etc.)`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	modelPath, err := opts.Config().ModelPath(firstArg(args))
	if err != nil {
		return outputCommandError(formatter, ErrCodeNoModel, err.Error())
	}
	formatter.VerboseLog("Validating model %s", modelPath)

	compiled, err := LoadModel(modelPath)
	var verrs compiler.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return outputValidationErrors(formatter, verrs)
	case err != nil:
		code, message := loadErrorDetails(err)
		return outputCommandError(formatter, code, message)
	}

	result := ValidationResult{Valid: true, Warnings: compiled.Warnings}
	if formatter.IsJSON() {
		return formatter.Success(result)
	}

	formatter.OK("Model is valid (%d entities)", len(compiled.Model.Entities()))
	for _, w := range compiled.Warnings {
		formatter.Warn("%s", w.Message)
	}
	return nil
}

func outputValidationErrors(formatter *OutputFormatter, verrs compiler.ValidationErrors) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(verrs)))

	if formatter.IsJSON() {
		if err := formatter.Response(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: verrs},
			Error: &CLIError{
				Code:    ErrCodeValidation,
				Message: exitErr.Message,
			},
		}); err != nil {
			return err
		}
		return exitErr
	}

	formatter.Fail("Validation failed")
	formatter.Printf("\n")
	for _, v := range verrs {
		formatter.Printf("  %s\n", v.Error())
	}
	return exitErr
}
