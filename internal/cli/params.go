package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/treecep/internal/compiler"
	"github.com/roach88/treecep/internal/config"
	"github.com/roach88/treecep/internal/engine"
	"github.com/roach88/treecep/internal/plan"
	"github.com/roach88/treecep/internal/unify"
)

// EngineFlags are the evaluation settings shared by run, plan and unify.
// Flags left unset fall back to the loaded configuration.
type EngineFlags struct {
	Mode              string
	Strategy          string
	Order             string
	Stats             string
	Parallelism       int
	PartitionKey      string
	Broadcast         bool
	MaxPartialMatches int
}

func (f *EngineFlags) registerPlanning(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Strategy, "strategy", "", "multi-pattern sharing: leaves, subtrees, topology or none")
	cmd.Flags().StringVar(&f.Order, "order", "", "plan builder: trivial, frequency, balanced or dp")
	cmd.Flags().StringVar(&f.Stats, "stats", "", "YAML file of event rates and selectivities")
	cmd.Flags().IntVar(&f.MaxPartialMatches, "max-partial-matches", 0, "bound on each node's buffer (0 = unbounded)")
}

func (f *EngineFlags) registerDispatch(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Mode, "mode", "", "evaluation mode: sequential or parallel")
	cmd.Flags().IntVar(&f.Parallelism, "parallelism", 0, "number of shards in parallel mode")
	cmd.Flags().StringVar(&f.PartitionKey, "partition-key", "", "event attribute that selects the shard")
	cmd.Flags().BoolVar(&f.Broadcast, "broadcast", false, "send events without the partition key to every shard")
}

// resolve fills unset flags from cfg.
func (f EngineFlags) resolve(cmd *cobra.Command, cfg config.Config) EngineFlags {
	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}
	if !changed("mode") {
		f.Mode = cfg.Mode
	}
	if !changed("strategy") {
		f.Strategy = cfg.Strategy
	}
	if !changed("order") {
		f.Order = cfg.PlanOrder
	}
	if !changed("stats") {
		f.Stats = cfg.Statistics
	}
	if !changed("parallelism") {
		f.Parallelism = cfg.Parallelism
	}
	if !changed("partition-key") {
		f.PartitionKey = cfg.PartitionKey
	}
	if !changed("broadcast") {
		f.Broadcast = cfg.Broadcast
	}
	if !changed("max-partial-matches") {
		f.MaxPartialMatches = cfg.MaxPartialMatches
	}
	if f.Parallelism < 1 {
		f.Parallelism = 1
	}
	return f
}

// strategyName is the strategy as recorded in the store.
func (f EngineFlags) strategyName(s unify.Strategy) string {
	if s == "" {
		return config.NoSharing
	}
	return string(s)
}

// params builds engine parameters for defs.
func (f EngineFlags) params(defs []*compiler.Definition) (engine.Params, error) {
	mode, err := engine.ParseMode(f.Mode)
	if err != nil {
		return engine.Params{}, err
	}

	var strategy unify.Strategy
	if !strings.EqualFold(strings.TrimSpace(f.Strategy), config.NoSharing) {
		if strategy, err = unify.ParseStrategy(f.Strategy); err != nil {
			return engine.Params{}, err
		}
	}

	var stats *plan.Statistics
	if f.Stats != "" {
		if stats, err = plan.LoadStatistics(f.Stats); err != nil {
			return engine.Params{}, err
		}
	}
	order, err := plan.ParseOrder(f.Order)
	if err != nil {
		return engine.Params{}, err
	}
	planner, err := plan.NewBuilder(order, stats)
	if err != nil {
		return engine.Params{}, err
	}

	p := engine.Params{
		Mode:              mode,
		Topologies:        make(map[string]*plan.Topology),
		Planner:           planner,
		Strategy:          strategy,
		MaxPartialMatches: f.MaxPartialMatches,
		Parallelism:       f.Parallelism,
		PartitionKey:      f.PartitionKey,
		Broadcast:         f.Broadcast,
	}
	for _, def := range defs {
		p.Patterns = append(p.Patterns, def.Pattern)
		if def.Topology != nil {
			p.Topologies[def.Pattern.Name] = def.Topology
		}
	}
	return p, nil
}
