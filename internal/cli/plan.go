package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/treecep/internal/engine"
	"github.com/roach88/treecep/internal/ir"
	"github.com/roach88/treecep/internal/plan"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	EngineFlags
}

// PatternPlan is the tree plan chosen for one pattern.
type PatternPlan struct {
	Pattern  string         `json:"pattern"`
	Operator string         `json:"operator"`
	Window   string         `json:"window"`
	Explicit bool           `json:"explicit"`
	Topology *plan.Topology `json:"topology"`
	Labeled  string         `json:"labeled"`
	Depth    int            `json:"depth"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <patterns>",
		Short: "Show the tree plan of each pattern",
		Long: `Show the evaluation tree plan chosen for each pattern.

Patterns with an explicit topology keep it; the others are planned with
--order, using --stats for the orders that weigh event rates.

Example:
  treecep plan ./patterns
  treecep plan ./patterns --order dp --stats rates.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	opts.registerPlanning(cmd)
	return cmd
}

func runPlan(opts *PlanOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	flags := opts.EngineFlags.resolve(cmd, opts.Config)

	defs, err := loadDefinitions(path)
	if err != nil {
		return err
	}
	params, err := flags.params(defs)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid engine settings", err)
	}
	formatter.VerboseLog("Planning %d pattern(s) with %T", len(defs), params.Planner)

	plans, err := engine.BuildPlans(params)
	if err != nil {
		return WrapExitError(ExitFailure, "planning failed", err)
	}

	out := make([]PatternPlan, len(plans))
	for i, pl := range plans {
		_, explicit := params.Topologies[pl.Pattern.Name]
		out[i] = PatternPlan{
			Pattern:  pl.Pattern.Name,
			Operator: pl.Pattern.Structure.Operator.String(),
			Window:   pl.Pattern.Window.String(),
			Explicit: explicit,
			Topology: pl.Topology,
			Labeled:  labelTopology(pl.Pattern, pl.Topology),
			Depth:    pl.Topology.Depth(),
		}
	}

	if formatter.IsJSON() {
		return formatter.Success(out)
	}
	for _, p := range out {
		source := "planned"
		if p.Explicit {
			source = "explicit"
		}
		formatter.Printf("%s (%s, window %s, %s)\n", p.Pattern, p.Operator, p.Window, source)
		formatter.Printf("  %s  %s  depth %d\n", p.Topology, p.Labeled, p.Depth)
	}
	return nil
}

// labelTopology renders t with binding names in place of item indices,
// e.g. [[a,b],c].
func labelTopology(p *ir.Pattern, t *plan.Topology) string {
	var b strings.Builder
	var write func(*plan.Topology)
	write = func(t *plan.Topology) {
		if t.IsLeaf() {
			if t.Index >= 0 && t.Index < len(p.Items()) {
				b.WriteString(p.Item(t.Index).Ref.Name)
			} else {
				b.WriteString(strconv.Itoa(t.Index))
			}
			return
		}
		b.WriteByte('[')
		write(t.Left)
		b.WriteByte(',')
		write(t.Right)
		b.WriteByte(']')
	}
	write(t)
	return b.String()
}
