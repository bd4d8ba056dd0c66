package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/roach88/treecep/internal/compiler"
	"github.com/roach88/treecep/internal/engine"
	"github.com/roach88/treecep/internal/ir"
	"github.com/roach88/treecep/internal/plan"
	"github.com/roach88/treecep/internal/store"
	"github.com/roach88/treecep/internal/stream"
	"github.com/roach88/treecep/internal/testutil"
	"github.com/roach88/treecep/internal/unify"
)

// noSharing disables tree sharing in a scenario's engine config.
const noSharing = "none"

// Harness is the test execution engine.
// It runs one scenario against a fresh in-memory store.
type Harness struct {
	store  *store.Store
	runID  string
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Event seqs are assigned from 1 in listed order, so match IDs are
// reproducible.
//
// Execution flow:
// 1. Compile and validate the scenario's patterns
// 2. Build the event stream and engine parameters
// 3. Evaluate the stream into the store's match sink
// 4. Read the recorded matches back and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	defs, err := LoadDefinitions(scenario)
	if err != nil {
		return nil, err
	}

	params, err := BuildParams(scenario, defs)
	if err != nil {
		return nil, err
	}

	events, err := BuildEvents(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		runID:  "scenario-" + scenario.Name,
		logger: slog.Default().With("scenario", scenario.Name),
	}

	result := NewResult()
	if err := h.evaluate(ctx, scenario, params, events, result); err != nil {
		return nil, err
	}

	forest, err := engine.BuildForest(params)
	if err != nil {
		return nil, fmt.Errorf("failed to build forest: %w", err)
	}
	result.SharedNodes = forest.SharedNodes()

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	h.logger.Debug("scenario completed",
		"matches", len(result.Matches),
		"shared_nodes", result.SharedNodes,
		"pass", result.Pass,
	)
	return result, nil
}

// evaluate runs the stream through the engine and loads the recorded
// matches into result.
func (h *Harness) evaluate(ctx context.Context, scenario *Scenario, params engine.Params, events []*ir.Event, result *Result) error {
	patterns := make([]string, len(params.Patterns))
	for i, p := range params.Patterns {
		patterns[i] = p.Name
	}

	strategy := string(params.Strategy)
	if strategy == "" {
		strategy = noSharing
	}
	if _, err := h.store.BeginRun(ctx, store.Run{
		ID:        h.runID,
		StartedAt: scenarioStart(scenario),
		Mode:      string(params.Mode),
		Strategy:  strategy,
		Patterns:  patterns,
	}); err != nil {
		return fmt.Errorf("failed to begin run: %w", err)
	}

	mgr, err := engine.NewManager(params)
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}
	if err := mgr.Eval(ctx, stream.FromSlice(events), h.store.Sink(h.runID)); err != nil {
		return fmt.Errorf("failed to evaluate stream: %w", err)
	}

	matches, err := h.store.ReadMatches(ctx, h.runID, store.MatchFilter{})
	if err != nil {
		return fmt.Errorf("failed to read matches: %w", err)
	}
	SortMatches(matches)
	result.Matches = matches
	return nil
}

// LoadDefinitions compiles the scenario's inline patterns and spec files
// and validates them together.
func LoadDefinitions(scenario *Scenario) ([]*compiler.Definition, error) {
	var defs []*compiler.Definition
	if scenario.Patterns != "" {
		inline, err := compiler.CompileSource(scenario.Name+".cue", []byte(scenario.Patterns))
		if err != nil {
			return nil, fmt.Errorf("failed to compile inline patterns: %w", err)
		}
		defs = append(defs, inline...)
	}
	for _, path := range scenario.Specs {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read spec file: %w", err)
		}
		compiled, err := compiler.CompileSource(path, src)
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s: %w", path, err)
		}
		defs = append(defs, compiled...)
	}

	if verrs := compiler.ValidateAll(defs); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, verr := range verrs {
			msgs[i] = verr.Error()
		}
		return nil, fmt.Errorf("invalid patterns: %s", strings.Join(msgs, "; "))
	}
	return defs, nil
}

// BuildParams turns the scenario's engine config into manager parameters.
func BuildParams(scenario *Scenario, defs []*compiler.Definition) (engine.Params, error) {
	cfg := scenario.Engine

	mode, err := engine.ParseMode(cfg.Mode)
	if err != nil {
		return engine.Params{}, err
	}

	var strategy unify.Strategy
	if !strings.EqualFold(cfg.Strategy, noSharing) {
		if strategy, err = unify.ParseStrategy(cfg.Strategy); err != nil {
			return engine.Params{}, err
		}
	}

	order, err := plan.ParseOrder(cfg.Order)
	if err != nil {
		return engine.Params{}, err
	}
	planner, err := plan.NewBuilder(order, nil)
	if err != nil {
		return engine.Params{}, err
	}

	parallelism := cfg.Parallelism
	if parallelism == 0 {
		parallelism = 1
	}

	params := engine.Params{
		Mode:              mode,
		Topologies:        make(map[string]*plan.Topology),
		Planner:           planner,
		Strategy:          strategy,
		MaxPartialMatches: cfg.MaxPartialMatches,
		Parallelism:       parallelism,
		PartitionKey:      cfg.PartitionKey,
		Broadcast:         cfg.Broadcast,
	}
	for _, def := range defs {
		params.Patterns = append(params.Patterns, def.Pattern)
		if def.Topology != nil {
			params.Topologies[def.Pattern.Name] = def.Topology
		}
	}
	return params, nil
}

// BuildEvents materializes the scenario's event stream with seqs 1..n.
func BuildEvents(scenario *Scenario) ([]*ir.Event, error) {
	start := scenarioStart(scenario)
	clock := testutil.NewDeterministicClock()

	events := make([]*ir.Event, len(scenario.Events))
	for i, step := range scenario.Events {
		attrs, err := ir.ObjectFromNative(step.Attrs)
		if err != nil {
			return nil, fmt.Errorf("events[%d]: failed to convert attrs: %w", i, err)
		}
		e := ir.NewEvent(step.Type, start.Add(step.At), attrs)
		e.Seq = clock.Next()
		events[i] = e
	}
	return events, nil
}

func scenarioStart(scenario *Scenario) time.Time {
	if scenario.Start.IsZero() {
		return testutil.Epoch
	}
	return scenario.Start.UTC()
}
