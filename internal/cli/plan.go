package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/qinfer/internal/plan"
)

// PlannedQuery is the join plan of one query in command output.
type PlannedQuery struct {
	Name string     `json:"name,omitempty"`
	Kind string     `json:"kind"`
	Plan *plan.Plan `json:"plan"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan [query]",
		Short: "Print the join plan of a query",
		Long: `Resolve a query and print the joins its association paths need.

Every join is a left join from a parent alias to the association target,
matched on foreign key pairs or on the association's on-condition. Paths
that only read foreign keys are substituted by the owner's columns instead
of joined.

Queries are selected as for resolve.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args, cmd)
		},
	}

	opts.bindFlags(cmd)

	return cmd
}

func runPlan(opts *QueryOptions, args []string, cmd *cobra.Command) error {
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

	planned := make([]PlannedQuery, len(results))
	for i, res := range results {
		p, err := plan.Build(res)
		if err != nil {
			return outputCommandError(formatter, ErrCodeGeneric, err.Error())
		}
		planned[i] = PlannedQuery{Name: s.queries[i].Name, Kind: res.Kind, Plan: p}
	}

	if formatter.IsJSON() {
		return formatter.Success(planned)
	}

	for _, pq := range planned {
		title := pq.Kind
		if pq.Name != "" {
			title = pq.Name + " (" + pq.Kind + ")"
		}
		formatter.OK("%s", title)
		printPlan(formatter, pq.Plan, "  ")
	}
	return nil
}

func printPlan(formatter *OutputFormatter, p *plan.Plan, indent string) {
	if len(p.Joins) == 0 && len(p.Substitutions) == 0 {
		formatter.Printf("%sno joins\n", indent)
	}
	for _, j := range p.Joins {
		formatter.Printf("%s%s join %s as %s from %s via %s", indent, j.Kind, j.Target, j.Alias, j.ParentAlias, j.Association)
		switch {
		case len(j.Keys) > 0:
			pairs := make([]string, len(j.Keys))
			for i, k := range j.Keys {
				pairs[i] = j.ParentAlias + "." + k.Parent + " = " + j.Alias + "." + k.Target
			}
			formatter.Printf(" on %s", strings.Join(pairs, " and "))
		case j.OnCondition != "":
			formatter.Printf(" on %s", j.OnCondition)
		}
		if j.FilterText != "" {
			formatter.Printf(" filter %s", j.FilterText)
		}
		formatter.Printf("\n")
	}
	for _, sub := range p.Substitutions {
		formatter.Printf("%s%s reads %s.%s\n", indent, sub.Path, sub.Alias, strings.Join(sub.Columns, ", "))
	}
	for i, nested := range p.Subqueries {
		formatter.Printf("%snested %d:\n", indent, i+1)
		printPlan(formatter, nested, indent+"  ")
	}
}
