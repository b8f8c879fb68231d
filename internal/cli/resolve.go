package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/qinfer/internal/compiler"
	"github.com/roach88/qinfer/internal/cqn"
	"github.com/roach88/qinfer/internal/infer"
	"github.com/roach88/qinfer/internal/jointree"
	"github.com/roach88/qinfer/internal/store"
)

// QueryOptions holds the flags shared by commands that resolve queries.
type QueryOptions struct {
	*RootOptions
	Model string
	Named string // named query of the model
	All   bool   // every named query of the model
}

func (o *QueryOptions) bindFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Model, "model", "m", "", "model file or package directory (default: model from qinfer.yaml)")
	cmd.Flags().StringVarP(&o.Named, "query", "q", "", "resolve a named query of the model")
	cmd.Flags().BoolVar(&o.All, "all", false, "resolve every named query of the model")
}

type namedQuery struct {
	Name  string
	Query cqn.Query
}

// session is a loaded model with an inferrer and the queries to resolve.
type session struct {
	compiled *compiler.Compiled
	inferrer *infer.Inferrer
	queries  []namedQuery
}

// prepare loads the model and selects the queries. Errors are written to
// the formatter and returned as exit errors.
func (o *QueryOptions) prepare(cmd *cobra.Command, args []string, formatter *OutputFormatter) (*session, error) {
	cfg := o.Config()

	sources := len(args)
	if o.Named != "" {
		sources++
	}
	if o.All {
		sources++
	}
	if sources != 1 {
		return nil, outputCommandError(formatter, ErrCodeBadQuery, "pass exactly one of a query argument, --query or --all")
	}

	modelPath, err := cfg.ModelPath(o.Model)
	if err != nil {
		return nil, outputCommandError(formatter, ErrCodeNoModel, err.Error())
	}
	compiled, err := LoadModel(modelPath)
	if err != nil {
		code, message := loadErrorDetails(err)
		return nil, outputCommandError(formatter, code, message)
	}
	formatter.VerboseLog("Loaded model %s (%s)", modelPath, compiled.Hash)

	s := &session{
		compiled: compiled,
		inferrer: infer.New(compiled.Model,
			infer.WithMaxDepth(cfg.MaxDepth),
			infer.WithLogger(o.Logger(cmd.ErrOrStderr()))),
	}

	switch {
	case o.All:
		for _, nq := range compiled.Queries {
			s.queries = append(s.queries, namedQuery{Name: nq.Name, Query: nq.Query})
		}
		if len(s.queries) == 0 {
			return nil, outputCommandError(formatter, ErrCodeBadQuery, "model declares no queries")
		}
	case o.Named != "":
		nq := compiled.Query(o.Named)
		if nq == nil {
			return nil, outputCommandError(formatter, ErrCodeBadQuery, fmt.Sprintf("model declares no query %q", o.Named))
		}
		s.queries = []namedQuery{{Name: nq.Name, Query: nq.Query}}
	default:
		q, err := ReadQuery(args[0], cmd.InOrStdin())
		if err != nil {
			return nil, outputCommandError(formatter, ErrCodeBadQuery, err.Error())
		}
		s.queries = []namedQuery{{Name: queryName(args[0]), Query: q}}
	}
	return s, nil
}

func queryName(arg string) string {
	if arg == "-" || strings.HasPrefix(strings.TrimSpace(arg), "{") {
		return ""
	}
	return arg
}

// resolve resolves every query of the session, concurrently when there is
// more than one.
func (s *session) resolve(ctx context.Context, parallelism int) ([]*infer.Result, error) {
	if len(s.queries) == 1 {
		res, err := s.inferrer.Resolve(s.queries[0].Query)
		if err != nil {
			return nil, err
		}
		return []*infer.Result{res}, nil
	}
	queries := make([]cqn.Query, len(s.queries))
	for i, nq := range s.queries {
		queries[i] = nq.Query
	}
	return s.inferrer.ResolveAll(ctx, queries, parallelism)
}

// outputResolutionError reports a failed resolution (exit code 1).
func outputResolutionError(formatter *OutputFormatter, err error) error {
	code := string(infer.CodeOf(err))
	if code == "" {
		code = ErrCodeGeneric
	}
	var details any
	var ierr *infer.Error
	if errors.As(err, &ierr) && len(ierr.Candidates) > 0 {
		details = map[string]any{"candidates": ierr.Candidates}
	}
	if formatter.IsJSON() {
		if encErr := formatter.Error(code, err.Error(), details); encErr != nil {
			return encErr
		}
	} else {
		formatter.Fail("Resolution failed")
		formatter.Printf("  %s\n", err.Error())
	}
	return WrapExitError(ExitFailure, "resolution failed", err)
}

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	QueryOptions
	Record bool
	Store  string
}

// ResolvedQuery is one resolution in command output.
type ResolvedQuery struct {
	Name     string         `json:"name,omitempty"`
	ID       string         `json:"id"`
	Snapshot map[string]any `json:"snapshot"`
}

// ResolveResult holds the output of the resolve command.
type ResolveResult struct {
	ModelHash   string          `json:"model_hash"`
	Resolutions []ResolvedQuery `json:"resolutions"`
	Recorded    int             `json:"recorded"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{QueryOptions: QueryOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "resolve [query]",
		Short: "Resolve a query against a model",
		Long: `Resolve the references of a query against a model and print the
inferred elements and the join tree.

The query is written in the JSON query notation and given inline, as a
file path, or as "-" for stdin. --query and --all select named queries
declared in the model instead.

Exit codes:
  0 - Resolved
  1 - Resolution error (unresolved or ambiguous reference, etc.)
  2 - Command error (model not found, malformed query, etc.)

Examples:
  qinfer resolve -m model.cue '{"SELECT": {"from": "Books", "columns": [{"ref": ["author", "name"]}]}}'
  qinfer resolve -m model.cue --query booksWithAuthor
  qinfer resolve --all --record`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, args, cmd)
		},
	}

	opts.bindFlags(cmd)
	cmd.Flags().BoolVar(&opts.Record, "record", false, "record the resolutions in the resolution log")
	cmd.Flags().StringVar(&opts.Store, "store", "", "resolution log path (default: store from qinfer.yaml)")

	return cmd
}

func runResolve(opts *ResolveOptions, args []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	s, err := opts.prepare(cmd, args, formatter)
	if err != nil {
		return err
	}

	results, err := s.resolve(ctx, opts.Config().Parallelism)
	if err != nil {
		return outputResolutionError(formatter, err)
	}

	out := ResolveResult{ModelHash: s.compiled.Hash, Resolutions: make([]ResolvedQuery, len(results))}
	for i, res := range results {
		out.Resolutions[i] = ResolvedQuery{Name: s.queries[i].Name, ID: res.ID, Snapshot: res.Snapshot()}
	}

	if opts.Record {
		n, err := record(ctx, opts.Config().StorePath(opts.Store), s, results)
		if err != nil {
			return outputCommandError(formatter, ErrCodeStoreFailed, err.Error())
		}
		out.Recorded = n
	}

	if formatter.IsJSON() {
		return formatter.Success(out)
	}

	for i, res := range results {
		printResolution(formatter, s.queries[i].Name, res)
	}
	if opts.Record {
		formatter.Printf("Recorded %d new resolution(s)\n", out.Recorded)
	}
	return nil
}

// record writes the resolutions to the log and returns how many were new.
func record(ctx context.Context, path string, s *session, results []*infer.Result) (int, error) {
	st, err := store.Open(path)
	if err != nil {
		return 0, err
	}
	defer st.Close()

	n := 0
	for i, res := range results {
		snapshot, err := res.CanonicalSnapshot()
		if err != nil {
			return n, err
		}
		r, err := store.NewResolution(res.ID, s.queries[i].Name, s.compiled.Hash, s.queries[i].Query, snapshot)
		if err != nil {
			return n, err
		}
		added, err := st.WriteResolution(ctx, r)
		if err != nil {
			return n, err
		}
		if added {
			n++
		}
	}
	return n, nil
}

func printResolution(formatter *OutputFormatter, name string, res *infer.Result) {
	title := res.Kind
	if name != "" {
		title = name + " (" + res.Kind + ")"
	}
	formatter.OK("%s  %s", title, dim(res.ID))

	formatter.Printf("  elements:\n")
	for _, e := range res.Elements {
		printElement(formatter, e, "    ")
	}

	roots := res.JoinTree.Roots()
	if len(roots) == 0 {
		return
	}
	formatter.Printf("  join tree:\n")
	for _, root := range roots {
		formatter.Printf("    %s (%s)\n", root.Alias, root.Entity.Name)
		printNodes(formatter, root.Children(), "      ")
	}
}

func printElement(formatter *OutputFormatter, e *infer.Element, indent string) {
	typ := e.Type
	switch {
	case e.Expand != nil && e.Many:
		typ = "many"
	case e.Expand != nil:
		typ = "expand"
	case e.IsStructured():
		typ = "struct"
	}
	formatter.Printf("%s%s: %s\n", indent, e.Name, typ)
	for _, c := range e.Elements {
		printElement(formatter, c, indent+"  ")
	}
}

func printNodes(formatter *OutputFormatter, nodes []*jointree.Node, indent string) {
	for _, n := range nodes {
		suffix := ""
		if n.OnlyForeignKeyAccess {
			suffix = " " + dim("[foreign keys only]")
		}
		formatter.Printf("%s%s -> %s as %s%s\n", indent, n.Name, n.Target().Name, n.Alias, suffix)
		printNodes(formatter, n.Children(), indent+"  ")
	}
}
