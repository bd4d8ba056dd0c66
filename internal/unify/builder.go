package unify

import (
	"fmt"
	"log/slog"

	"github.com/roach88/treecep/internal/ir"
	"github.com/roach88/treecep/internal/plan"
	"github.com/roach88/treecep/internal/tree"
)

// Plan pairs a pattern with the topology it is evaluated under.
type Plan struct {
	Pattern  *ir.Pattern
	Topology *plan.Topology
}

// Result is a unified forest.
type Result struct {
	Strategy Strategy
	Forest   *tree.Forest

	// Patterns holds one entry per input plan, in input order.
	Patterns []tree.PatternInfo

	// SharedNodes is the number of nodes the patterns would have built
	// independently minus the number actually materialized.
	SharedNodes int

	// Conflicts counts signature hits refused by the structural check.
	Conflicts int
}

// IndependentNodes returns how many nodes the patterns would need without
// sharing.
func (r *Result) IndependentNodes() int {
	total := 0
	for _, p := range r.Patterns {
		total += p.Nodes
	}
	return total
}

// Builder merges pattern trees under one strategy.
type Builder struct {
	strategy Strategy
	forest   []tree.Option
}

// Option configures a Builder.
type Option func(*Builder)

// WithForestOptions passes options to the forest the builder creates.
func WithForestOptions(opts ...tree.Option) Option {
	return func(b *Builder) {
		b.forest = append(b.forest, opts...)
	}
}

// NewBuilder creates a builder for strategy.
func NewBuilder(strategy Strategy, opts ...Option) (*Builder, error) {
	if _, err := newRegistry(strategy); err != nil {
		return nil, err
	}
	b := &Builder{strategy: strategy}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Strategy returns the builder's strategy.
func (b *Builder) Strategy() Strategy {
	return b.strategy
}

// Unify materializes every plan into one forest, in slice order. The first
// plan to build a node establishes it as canonical.
//
// Any construction error aborts unification; no partial forest is returned.
func (b *Builder) Unify(plans []Plan) (*Result, error) {
	reg, err := newRegistry(b.strategy)
	if err != nil {
		return nil, err
	}

	f := tree.NewForest(b.forest...)
	res := &Result{Strategy: b.strategy, Forest: f}
	for _, p := range plans {
		info, err := f.AddPattern(p.Pattern, p.Topology, reg)
		if err != nil {
			return nil, fmt.Errorf("unify pattern %q: %w", p.Pattern.Name, err)
		}
		res.Patterns = append(res.Patterns, info)
	}
	res.SharedNodes = f.SharedNodes()
	res.Conflicts = f.Conflicts()

	slog.Info("forest unified",
		"strategy", b.strategy,
		"patterns", len(plans),
		"nodes", f.Len(),
		"shared", res.SharedNodes,
		"conflicts", res.Conflicts,
	)
	return res, nil
}

// UnifyPatterns builds a plan for each pattern with pb, then unifies them.
func (b *Builder) UnifyPatterns(patterns []*ir.Pattern, pb plan.Builder) (*Result, error) {
	plans, err := BuildPlans(patterns, pb)
	if err != nil {
		return nil, err
	}
	return b.Unify(plans)
}

// BuildPlans builds one plan per pattern.
func BuildPlans(patterns []*ir.Pattern, pb plan.Builder) ([]Plan, error) {
	plans := make([]Plan, 0, len(patterns))
	for _, p := range patterns {
		topo, err := pb.Build(p)
		if err != nil {
			return nil, fmt.Errorf("plan pattern %q: %w", p.Name, err)
		}
		plans = append(plans, Plan{Pattern: p, Topology: topo})
	}
	return plans, nil
}
