package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/qinfer/internal/infer"
	"github.com/roach88/qinfer/internal/ir"
	"github.com/roach88/qinfer/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Model string
	Store string
}

// ReplayResult holds the output of the replay command.
type ReplayResult struct {
	ModelHash string `json:"model_hash"`
	store.ReplayReport
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-resolve the resolution log and verify determinism",
		Long: `Re-resolve every query recorded against the current model and compare
the new snapshots with the recorded ones, byte for byte.

Records made against other versions of the model are skipped.

Exit codes:
  0 - Every replayed resolution matched
  1 - One or more resolutions differ (or no longer resolve)
  2 - Command error (resolution log not found, etc.)

Examples:
  qinfer replay
  qinfer replay --store ./qinfer.db --model ./model
  qinfer replay --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "model file or package directory (default: model from qinfer.yaml)")
	cmd.Flags().StringVar(&opts.Store, "store", "", "resolution log path (default: store from qinfer.yaml)")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)
	cfg := opts.Config()

	storePath := cfg.StorePath(opts.Store)
	// Opening creates the database, so a missing log is reported first.
	if _, err := os.Stat(storePath); err != nil {
		return outputCommandError(formatter, ErrCodeNotFound, fmt.Sprintf("resolution log not found: %s", storePath))
	}

	modelPath, err := cfg.ModelPath(opts.Model)
	if err != nil {
		return outputCommandError(formatter, ErrCodeNoModel, err.Error())
	}
	compiled, err := LoadModel(modelPath)
	if err != nil {
		code, message := loadErrorDetails(err)
		return outputCommandError(formatter, code, message)
	}

	st, err := store.Open(storePath)
	if err != nil {
		return outputCommandError(formatter, ErrCodeStoreFailed, err.Error())
	}
	defer st.Close()

	inferrer := infer.New(compiled.Model,
		infer.WithMaxDepth(cfg.MaxDepth),
		infer.WithLogger(opts.Logger(cmd.ErrOrStderr())))

	report, err := st.Replay(ctx, compiled.Hash, func(ctx context.Context, r ir.Resolution) ([]byte, error) {
		q, err := store.DecodeQuery(r)
		if err != nil {
			return nil, err
		}
		res, err := inferrer.Resolve(q)
		if err != nil {
			return nil, err
		}
		return res.CanonicalSnapshot()
	})
	if err != nil {
		return outputCommandError(formatter, ErrCodeStoreFailed, err.Error())
	}

	result := ReplayResult{ModelHash: compiled.Hash, ReplayReport: report}
	if formatter.IsJSON() {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter, result)
}

func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if !result.OK() {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_REPLAY_MISMATCH",
			Message: fmt.Sprintf("%d resolution(s) differ", len(result.Mismatches)),
		}
	}
	if err := formatter.Response(response); err != nil {
		return err
	}
	if !result.OK() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d resolution(s) differ", len(result.Mismatches)))
	}
	return nil
}

func outputReplayText(formatter *OutputFormatter, result ReplayResult) error {
	formatter.Printf("Replaying resolution log against model %s\n", dim(result.ModelHash))

	for _, m := range result.Mismatches {
		name := m.Resolution.Name
		if name == "" {
			name = m.Resolution.QueryID
		}
		if m.Error != "" {
			formatter.Fail("%s: %s", name, m.Error)
			continue
		}
		formatter.Fail("%s: snapshot differs", name)
		formatter.VerboseLog("recorded: %s", m.Resolution.Snapshot)
		formatter.VerboseLog("replayed: %s", m.Snapshot)
	}

	formatter.Printf("\nReplay Summary: %d matched, %d differ, %d skipped, %d total\n",
		result.Matched, len(result.Mismatches), result.Skipped, result.Total)

	if !result.OK() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d resolution(s) differ", len(result.Mismatches)))
	}
	if result.Skipped > 0 {
		formatter.Warn("%d record(s) belong to another model version", result.Skipped)
	}
	formatter.OK("Replay is deterministic")
	return nil
}
