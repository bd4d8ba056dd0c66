package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/treecep/internal/ir"
)

// MatchSink records emitted matches under one run.
// Close marks the run finished; it does not close the store.
type MatchSink struct {
	store *Store
	runID string
	now   func() time.Time
}

// Sink returns a match sink bound to runID.
func (s *Store) Sink(runID string) *MatchSink {
	return &MatchSink{store: s, runID: runID, now: time.Now}
}

// RunID returns the run the sink writes to.
func (k *MatchSink) RunID() string {
	return k.runID
}

// Emit writes the match. Duplicate match IDs are ignored.
func (k *MatchSink) Emit(ctx context.Context, m ir.Match) error {
	inserted, err := k.store.WriteMatch(ctx, k.runID, m)
	if err != nil {
		return err
	}
	if !inserted {
		slog.Debug("duplicate match ignored", "run", k.runID, "match", m.ID)
	}
	return nil
}

// Close records the run's end time.
func (k *MatchSink) Close() error {
	if err := k.store.FinishRun(context.Background(), k.runID, k.now()); err != nil {
		return fmt.Errorf("close match sink: %w", err)
	}
	return nil
}
