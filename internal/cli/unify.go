package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/treecep/internal/engine"
	"github.com/roach88/treecep/internal/unify"
)

// UnifyOptions holds flags for the unify command.
type UnifyOptions struct {
	*RootOptions
	EngineFlags
	Compare bool // report every strategy side by side
}

// ForestSummary describes the forest built under one strategy.
type ForestSummary struct {
	Strategy    string           `json:"strategy"`
	Nodes       int              `json:"nodes"`
	Independent int              `json:"independent"`
	SharedNodes int              `json:"shared_nodes"`
	Conflicts   int              `json:"conflicts"`
	EventTypes  []string         `json:"event_types"`
	Patterns    []PatternSummary `json:"patterns"`
}

// PatternSummary is one pattern's share of a forest.
type PatternSummary struct {
	Pattern string `json:"pattern"`
	Nodes   int    `json:"nodes"`
	Shared  int    `json:"shared"`
}

// NewUnifyCommand creates the unify command.
func NewUnifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UnifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "unify <patterns>",
		Short: "Report node sharing between pattern trees",
		Long: `Build the multi-pattern forest and report how many nodes the patterns share.

Patterns are unified in definition order; the first pattern to build a
node owns it. With --compare the forest is built under every strategy,
including none.

Example:
  treecep unify ./patterns --strategy topology
  treecep unify ./patterns --compare --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnify(opts, args[0], cmd)
		},
	}

	opts.registerPlanning(cmd)
	cmd.Flags().BoolVar(&opts.Compare, "compare", false, "build the forest under every strategy")
	return cmd
}

func runUnify(opts *UnifyOptions, path string, cmd *cobra.Command) error {
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

	strategies := []unify.Strategy{params.Strategy}
	if opts.Compare {
		strategies = append([]unify.Strategy{""}, unify.Strategies()...)
	}

	summaries := make([]ForestSummary, 0, len(strategies))
	for _, s := range strategies {
		p := params
		p.Strategy = s
		summary, err := summarizeForest(p, flags.strategyName(s))
		if err != nil {
			return WrapExitError(ExitFailure, "unification failed", err)
		}
		summaries = append(summaries, summary)
	}

	if formatter.IsJSON() {
		if opts.Compare {
			return formatter.Success(summaries)
		}
		return formatter.Success(summaries[0])
	}
	for i, s := range summaries {
		if i > 0 {
			formatter.Printf("\n")
		}
		formatter.Printf("%s: %d nodes (%d without sharing), %d shared, %d conflicts\n",
			s.Strategy, s.Nodes, s.Independent, s.SharedNodes, s.Conflicts)
		for _, p := range s.Patterns {
			formatter.Printf("  %-24s nodes %-3d shared %d\n", p.Pattern, p.Nodes, p.Shared)
		}
	}
	return nil
}

func summarizeForest(p engine.Params, name string) (ForestSummary, error) {
	f, err := engine.BuildForest(p)
	if err != nil {
		return ForestSummary{}, err
	}
	s := ForestSummary{
		Strategy:    name,
		Nodes:       f.Len(),
		SharedNodes: f.SharedNodes(),
		Conflicts:   f.Conflicts(),
		EventTypes:  f.EventTypes(),
	}
	for _, info := range f.Patterns() {
		s.Independent += info.Nodes
		s.Patterns = append(s.Patterns, PatternSummary{
			Pattern: info.Pattern.Name,
			Nodes:   info.Nodes,
			Shared:  info.Shared,
		})
	}
	return s, nil
}
