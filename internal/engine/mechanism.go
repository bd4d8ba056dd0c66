package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/treecep/internal/ir"
	"github.com/roach88/treecep/internal/stream"
	"github.com/roach88/treecep/internal/tree"
)

// Stats counts what a mechanism has seen.
type Stats struct {
	Events     int64
	OutOfOrder int64
	Matches    int64
}

// Mechanism is the tree-based evaluation mechanism: it feeds a stream
// into a forest and forwards completed matches to a sink.
//
// A Mechanism is single-writer. Process, Flush and Eval must be called
// from one goroutine; the forest is never touched concurrently.
type Mechanism struct {
	forest   *tree.Forest
	arrivals *Clock
	emitted  *Clock
	last     time.Time
	stats    Stats
}

// MechanismOption configures a Mechanism.
type MechanismOption func(*Mechanism)

// WithClock makes the mechanism stamp event seqs from c, which may be
// shared.
func WithClock(c *Clock) MechanismOption {
	return func(m *Mechanism) {
		m.arrivals = c
	}
}

// WithMatchClock makes the mechanism stamp match seqs from c, which may be
// shared.
func WithMatchClock(c *Clock) MechanismOption {
	return func(m *Mechanism) {
		m.emitted = c
	}
}

// NewMechanism creates a mechanism over f.
func NewMechanism(f *tree.Forest, opts ...MechanismOption) *Mechanism {
	m := &Mechanism{forest: f, arrivals: NewClock(), emitted: NewClock()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Forest returns the evaluated forest.
func (m *Mechanism) Forest() *tree.Forest {
	return m.forest
}

// Stats returns the counters so far.
func (m *Mechanism) Stats() Stats {
	return m.stats
}

// Process evaluates one event and returns the matches it completed.
//
// An event without a seq is evaluated as a copy stamped from the arrival
// clock; e itself is never modified. Matches are numbered from a separate
// clock, so event seqs depend only on the input. An event older than the
// previous one is dropped: buffers have already been evicted past it, so
// evaluating it could miss or invent matches.
func (m *Mechanism) Process(e *ir.Event) []ir.Match {
	if e.Seq == 0 {
		e = e.WithSeq(m.arrivals.Next())
	} else {
		m.arrivals.Observe(e.Seq)
	}
	if e.Timestamp.Before(m.last) {
		m.stats.OutOfOrder++
		slog.Warn("dropping out-of-order event",
			"type", e.Type,
			"seq", e.Seq,
			"timestamp", e.Timestamp,
			"watermark", m.last,
		)
		return nil
	}
	m.last = e.Timestamp
	m.stats.Events++

	slog.Debug("processing event", "type", e.Type, "seq", e.Seq)
	return m.stamp(m.forest.Process(e))
}

// Flush completes every match held back by negation. Call once the input
// has ended.
func (m *Mechanism) Flush() []ir.Match {
	return m.stamp(m.forest.Flush())
}

func (m *Mechanism) stamp(matches []ir.Match) []ir.Match {
	for i := range matches {
		id, err := ir.MatchID(matches[i].Pattern, matches[i].Events)
		if err != nil {
			slog.Error("match id", "pattern", matches[i].Pattern, "error", err)
		}
		matches[i].ID = id
		matches[i].Seq = m.emitted.Next()
		slog.Debug("match completed",
			"pattern", matches[i].Pattern,
			"id", id,
			"seq", matches[i].Seq,
		)
	}
	m.stats.Matches += int64(len(matches))
	return matches
}

// Eval runs src to completion. It checks ctx between events, flushes
// held matches when src returns io.EOF and closes sink before returning,
// whether or not evaluation succeeded.
func (m *Mechanism) Eval(ctx context.Context, src stream.Source, sink stream.Sink) (err error) {
	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close sink: %w", cerr)
		}
	}()

	slog.Info("mechanism starting",
		"patterns", len(m.forest.Patterns()),
		"nodes", m.forest.Len(),
		"shared", m.forest.SharedNodes(),
	)

	for {
		if err := ctx.Err(); err != nil {
			slog.Info("mechanism stopping: context cancelled")
			return err
		}

		e, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read event: %w", err)
		}

		if err := emitAll(ctx, sink, m.Process(e)); err != nil {
			return err
		}
	}

	if err := emitAll(ctx, sink, m.Flush()); err != nil {
		return err
	}

	slog.Info("mechanism stopped",
		"events", m.stats.Events,
		"out_of_order", m.stats.OutOfOrder,
		"matches", m.stats.Matches,
		"last_seq", m.arrivals.Current(),
	)
	return nil
}

func emitAll(ctx context.Context, sink stream.Sink, matches []ir.Match) error {
	for _, match := range matches {
		if err := sink.Emit(ctx, match); err != nil {
			return fmt.Errorf("emit match %s: %w", match.ID, err)
		}
	}
	return nil
}
