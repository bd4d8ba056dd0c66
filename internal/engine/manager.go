package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/treecep/internal/ir"
	"github.com/roach88/treecep/internal/plan"
	"github.com/roach88/treecep/internal/stream"
	"github.com/roach88/treecep/internal/tree"
	"github.com/roach88/treecep/internal/unify"
)

// Mode selects how evaluation is dispatched.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

// ParseMode accepts a mode name, case-insensitively. Empty means
// sequential.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSequential:
		return ModeSequential, nil
	case ModeParallel:
		return ModeParallel, nil
	}
	return "", NewUnknownModeError(Mode(s))
}

// Params describes an evaluation run.
type Params struct {
	Mode     Mode
	Patterns []*ir.Pattern

	// Topologies overrides the plan of the named patterns.
	Topologies map[string]*plan.Topology

	// Planner builds the plan of every other pattern. Defaults to the
	// trivial left-deep builder.
	Planner plan.Builder

	// Strategy merges the pattern trees. Empty builds each pattern's tree
	// without sharing.
	Strategy unify.Strategy

	// MaxPartialMatches bounds node buffers; zero is unbounded.
	MaxPartialMatches int

	// Parallelism is the number of shards in parallel mode.
	Parallelism int

	// PartitionKey is the event attribute shards are chosen by.
	PartitionKey string

	// Broadcast sends events lacking the partition key to every shard
	// instead of shard 0.
	Broadcast bool

	// Clock stamps event seqs; a fresh clock is used when nil.
	Clock *Clock

	// StartSeq continues event seqs after an earlier run. Ignored when
	// Clock is set.
	StartSeq int64
}

// Manager runs one or more mechanisms against a stream.
type Manager interface {
	Eval(ctx context.Context, src stream.Source, sink stream.Sink) error
}

// NewManager validates p and creates the manager for its mode. Forest
// construction errors surface here, never during evaluation.
func NewManager(p Params) (Manager, error) {
	if len(p.Patterns) == 0 {
		return nil, invalidParamsf("no patterns to evaluate")
	}
	if p.Clock == nil {
		p.Clock = NewClockAt(p.StartSeq)
	}
	matchClock := NewClock()
	switch p.Mode {
	case "", ModeSequential:
		f, err := BuildForest(p)
		if err != nil {
			return nil, err
		}
		return &SequentialManager{mechanism: NewMechanism(f, WithClock(p.Clock), WithMatchClock(matchClock))}, nil
	case ModeParallel:
		return newParallelManager(p, matchClock)
	default:
		return nil, NewUnknownModeError(p.Mode)
	}
}

// BuildPlans returns one plan per pattern: its explicit topology if any,
// otherwise the planner's.
func BuildPlans(p Params) ([]unify.Plan, error) {
	planner := p.Planner
	if planner == nil {
		planner = plan.TrivialLeftDeep{}
	}
	plans := make([]unify.Plan, 0, len(p.Patterns))
	for _, pat := range p.Patterns {
		topo, ok := p.Topologies[pat.Name]
		if !ok {
			var err error
			if topo, err = planner.Build(pat); err != nil {
				return nil, fmt.Errorf("plan pattern %q: %w", pat.Name, err)
			}
		}
		plans = append(plans, unify.Plan{Pattern: pat, Topology: topo})
	}
	return plans, nil
}

// BuildForest plans every pattern and materializes the forest.
func BuildForest(p Params) (*tree.Forest, error) {
	plans, err := BuildPlans(p)
	if err != nil {
		return nil, err
	}
	var opts []tree.Option
	if p.MaxPartialMatches > 0 {
		opts = append(opts, tree.WithMaxPartialMatches(p.MaxPartialMatches))
	}

	if p.Strategy == "" {
		f := tree.NewForest(opts...)
		for _, pl := range plans {
			if _, err := f.AddPattern(pl.Pattern, pl.Topology, nil); err != nil {
				return nil, fmt.Errorf("build pattern %q: %w", pl.Pattern.Name, err)
			}
		}
		return f, nil
	}

	b, err := unify.NewBuilder(p.Strategy, unify.WithForestOptions(opts...))
	if err != nil {
		return nil, err
	}
	res, err := b.Unify(plans)
	if err != nil {
		return nil, err
	}
	return res.Forest, nil
}

// SequentialManager runs a single mechanism over the whole stream.
type SequentialManager struct {
	mechanism *Mechanism
}

// Mechanism returns the underlying mechanism.
func (s *SequentialManager) Mechanism() *Mechanism {
	return s.mechanism
}

// Eval implements Manager.
func (s *SequentialManager) Eval(ctx context.Context, src stream.Source, sink stream.Sink) error {
	return s.mechanism.Eval(ctx, src, sink)
}

// ParallelManager partitions the stream by a key attribute across
// independent shards, each with its own forest. Matches spanning two
// partitions are not detected.
type ParallelManager struct {
	shards    []*Mechanism
	key       string
	broadcast bool
	clock     *Clock
}

func newParallelManager(p Params, matchClock *Clock) (*ParallelManager, error) {
	if p.Parallelism < 1 {
		return nil, invalidParamsf("parallelism must be at least 1, got %d", p.Parallelism)
	}
	if p.PartitionKey == "" {
		return nil, invalidParamsf("parallel mode requires a partition key")
	}
	m := &ParallelManager{key: p.PartitionKey, broadcast: p.Broadcast, clock: p.Clock}
	for i := 0; i < p.Parallelism; i++ {
		f, err := BuildForest(p)
		if err != nil {
			return nil, err
		}
		m.shards = append(m.shards, NewMechanism(f, WithClock(p.Clock), WithMatchClock(matchClock)))
	}
	return m, nil
}

// Shards returns the shard mechanisms.
func (m *ParallelManager) Shards() []*Mechanism {
	return m.shards
}

// shardOf returns the shard for e, or -1 to broadcast.
func (m *ParallelManager) shardOf(e *ir.Event) int {
	v, ok := e.Attr(m.key)
	if !ok {
		if m.broadcast {
			return -1
		}
		return 0
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return 0
	}
	return int(xxhash.Sum64(data) % uint64(len(m.shards)))
}

// shardSink forwards to the shared sink but leaves closing to the manager.
type shardSink struct {
	stream.Sink
}

func (shardSink) Close() error { return nil }

// Eval implements Manager. The sink is closed once every shard has
// finished.
func (m *ParallelManager) Eval(ctx context.Context, src stream.Source, sink stream.Sink) (err error) {
	shared := stream.NewLocked(sink)
	defer func() {
		if cerr := shared.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close sink: %w", cerr)
		}
	}()

	slog.Info("parallel evaluation starting", "shards", len(m.shards), "key", m.key)

	g, ctx := errgroup.WithContext(ctx)
	queues := make([]*stream.Queue, len(m.shards))
	for i, mech := range m.shards {
		queues[i] = stream.NewQueue()
		g.Go(func() error {
			if err := mech.Eval(ctx, queues[i], shardSink{shared}); err != nil {
				return NewShardError(i, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, q := range queues {
				q.Close()
			}
		}()
		for {
			e, err := src.Next(ctx)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read event: %w", err)
			}
			// Stamp before routing: a broadcast event is shared by shards.
			if e.Seq == 0 {
				e = e.WithSeq(m.clock.Next())
			}
			if shard := m.shardOf(e); shard >= 0 {
				queues[shard].Enqueue(e)
				continue
			}
			for _, q := range queues {
				q.Enqueue(e)
			}
		}
	})

	return g.Wait()
}
