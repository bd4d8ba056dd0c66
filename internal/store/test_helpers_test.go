package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/treecep/internal/ir"
	"github.com/roach88/treecep/internal/testutil"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// beginTestRun records a run with fixed metadata.
func beginTestRun(t *testing.T, s *Store, id string) Run {
	t.Helper()
	run, err := s.BeginRun(t.Context(), Run{
		ID:        id,
		StartedAt: testutil.Epoch,
		Mode:      "sequential",
		Strategy:  "TREE_PLAN_SUBTREES_UNION",
		Patterns:  []string{"rise", "fall"},
	})
	if err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
	return run
}

// createTestMatch builds a match over the given events with a content ID.
func createTestMatch(pattern string, seq int64, events ...*ir.Event) ir.Match {
	bound := make([]ir.BoundEvent, len(events))
	for i, e := range events {
		bound[i] = ir.BoundEvent{Name: string(rune('a' + i)), Event: e}
	}
	return ir.Match{
		ID:      ir.MustMatchID(pattern, bound),
		Pattern: pattern,
		Seq:     seq,
		Events:  bound,
	}
}
