package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roach88/treecep/internal/ir"
	"github.com/roach88/treecep/internal/testutil"
)

func TestBeginRun_Basic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run, err := s.BeginRun(ctx, Run{Mode: "parallel", Strategy: "TREE_PLAN_TRIVIAL_SHARING_LEAVES"})
	if err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}

	if len(run.ID) != 36 {
		t.Errorf("run ID = %q, want a UUID", run.ID)
	}
	if run.StartedAt.IsZero() {
		t.Error("StartedAt was not defaulted")
	}
	if run.EngineVersion != ir.EngineVersion || run.IRVersion != ir.IRVersion {
		t.Errorf("versions = %q/%q, want %q/%q", run.EngineVersion, run.IRVersion, ir.EngineVersion, ir.IRVersion)
	}

	var mode, patterns string
	err = s.db.QueryRow("SELECT mode, patterns FROM runs WHERE id = ?", run.ID).Scan(&mode, &patterns)
	if err != nil {
		t.Fatalf("query run: %v", err)
	}
	if mode != "parallel" {
		t.Errorf("mode = %q, want parallel", mode)
	}
	if patterns != "[]" {
		t.Errorf("patterns = %q, want []", patterns)
	}
}

func TestBeginRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	beginTestRun(t, s, "run-1")

	if _, err := s.BeginRun(context.Background(), Run{ID: "run-1", Mode: "other"}); err != nil {
		t.Fatalf("second BeginRun() failed: %v", err)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
		t.Fatalf("count runs: %v", err)
	}
	if count != 1 {
		t.Errorf("runs = %d, want 1", count)
	}
}

func TestNewRunID_SortsByCreation(t *testing.T) {
	first := NewRunID()
	time.Sleep(2 * time.Millisecond)
	second := NewRunID()
	if first >= second {
		t.Errorf("run IDs not time ordered: %s >= %s", first, second)
	}
}

func TestFinishRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, "run-1")

	end := testutil.Epoch.Add(time.Hour)
	if err := s.FinishRun(ctx, "run-1", end); err != nil {
		t.Fatalf("FinishRun() failed: %v", err)
	}
	if err := s.FinishRun(ctx, "run-1", end.Add(time.Hour)); err != nil {
		t.Fatalf("second FinishRun() failed: %v", err)
	}

	run, err := s.ReadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if !run.Finished() || !run.FinishedAt.Equal(end) {
		t.Errorf("FinishedAt = %v, want first end time %v", run.FinishedAt, end)
	}
}

func TestFinishRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	err := s.FinishRun(context.Background(), "missing", time.Now())
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("FinishRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestWriteMatch_Basic(t *testing.T) {
	s := createTestStore(t)
	beginTestRun(t, s, "run-1")

	stream := testutil.NewStream()
	a := stream.At(0, "Up", testutil.Attrs("symbol", "AAPL", "price", 101))
	b := stream.At(time.Minute, "Down", testutil.Attrs("symbol", "AAPL"))
	m := createTestMatch("rise", 3, a, b)

	inserted, err := s.WriteMatch(context.Background(), "run-1", m)
	if err != nil {
		t.Fatalf("WriteMatch() failed: %v", err)
	}
	if !inserted {
		t.Error("first WriteMatch() reported no insert")
	}

	var pattern, earliest, latest string
	var seq int64
	err = s.db.QueryRow("SELECT pattern, seq, earliest, latest FROM matches WHERE id = ?", m.ID).
		Scan(&pattern, &seq, &earliest, &latest)
	if err != nil {
		t.Fatalf("query match: %v", err)
	}
	if pattern != "rise" || seq != 3 {
		t.Errorf("match row = (%q, %d), want (rise, 3)", pattern, seq)
	}
	if earliest != "2026-01-02T10:00:00.000000000Z" || latest != "2026-01-02T10:01:00.000000000Z" {
		t.Errorf("bounds = %s..%s", earliest, latest)
	}

	var attrs string
	err = s.db.QueryRow("SELECT attrs FROM match_events WHERE match_id = ? AND position = 0", m.ID).Scan(&attrs)
	if err != nil {
		t.Fatalf("query event: %v", err)
	}
	if attrs != `{"price":101,"symbol":"AAPL"}` {
		t.Errorf("attrs = %s, want sorted keys", attrs)
	}
}

func TestWriteMatch_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, "run-1")

	stream := testutil.NewStream()
	m := createTestMatch("rise", 3, stream.At(0, "Up", nil), stream.At(time.Minute, "Down", nil))

	if _, err := s.WriteMatch(ctx, "run-1", m); err != nil {
		t.Fatalf("first WriteMatch() failed: %v", err)
	}
	inserted, err := s.WriteMatch(ctx, "run-1", m)
	if err != nil {
		t.Fatalf("second WriteMatch() failed: %v", err)
	}
	if inserted {
		t.Error("duplicate WriteMatch() reported an insert")
	}

	var events int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM match_events").Scan(&events); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if events != 2 {
		t.Errorf("match_events = %d, want 2", events)
	}
}

func TestWriteMatch_Rejects(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, "run-1")

	stream := testutil.NewStream()
	valid := createTestMatch("rise", 1, stream.At(0, "Up", nil))

	tests := map[string]struct {
		runID string
		match ir.Match
	}{
		"missing id":  {"run-1", ir.Match{Pattern: "rise", Events: valid.Events}},
		"no events":   {"run-1", ir.Match{ID: "m1", Pattern: "rise"}},
		"unknown run": {"run-2", valid},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := s.WriteMatch(ctx, tt.runID, tt.match); err == nil {
				t.Error("expected error")
			}
		})
	}
}
