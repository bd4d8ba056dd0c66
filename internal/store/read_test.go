package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/roach88/treecep/internal/ir"
	"github.com/roach88/treecep/internal/testutil"
)

func TestReadRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	want := beginTestRun(t, s, "run-1")

	got, err := s.ReadRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}

	if !got.StartedAt.Equal(want.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, want.StartedAt)
	}
	if got.Finished() {
		t.Error("new run reported finished")
	}
	if !reflect.DeepEqual(got.Patterns, []string{"rise", "fall"}) {
		t.Errorf("Patterns = %v, want [rise fall]", got.Patterns)
	}
	if got.Mode != want.Mode || got.Strategy != want.Strategy {
		t.Errorf("run = %+v, want %+v", got, want)
	}
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("ReadRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestReadRuns_Ordering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Inserted out of start order; run-b and run-c share a start time.
	for _, r := range []Run{
		{ID: "run-c", StartedAt: testutil.Epoch.Add(time.Hour)},
		{ID: "run-a", StartedAt: testutil.Epoch},
		{ID: "run-b", StartedAt: testutil.Epoch.Add(time.Hour)},
	} {
		if _, err := s.BeginRun(ctx, r); err != nil {
			t.Fatalf("BeginRun(%s) failed: %v", r.ID, err)
		}
	}

	runs, err := s.ReadRuns(ctx)
	if err != nil {
		t.Fatalf("ReadRuns() failed: %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	if !reflect.DeepEqual(ids, []string{"run-a", "run-b", "run-c"}) {
		t.Errorf("run order = %v", ids)
	}

	latest, err := s.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun() failed: %v", err)
	}
	if latest.ID != "run-c" {
		t.Errorf("LatestRun() = %s, want run-c", latest.ID)
	}
}

func TestReadRuns_Empty(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	runs, err := s.ReadRuns(ctx)
	if err != nil {
		t.Fatalf("ReadRuns() failed: %v", err)
	}
	if runs == nil || len(runs) != 0 {
		t.Errorf("ReadRuns() = %v, want empty non-nil slice", runs)
	}

	if _, err := s.LatestRun(ctx); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("LatestRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestReadMatches_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, "run-1")

	stream := testutil.NewStream()
	a := stream.At(0, "Up", testutil.Attrs("symbol", "AAPL", "big", int64(1)<<60, "tags", []any{"x", true}))
	b := stream.At(90*time.Second, "Down", testutil.Attrs("symbol", "AAPL"))
	want := createTestMatch("rise", 3, a, b)

	if _, err := s.WriteMatch(ctx, "run-1", want); err != nil {
		t.Fatalf("WriteMatch() failed: %v", err)
	}

	got, err := s.ReadMatches(ctx, "run-1", MatchFilter{})
	if err != nil {
		t.Fatalf("ReadMatches() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ReadMatches() returned %d matches, want 1", len(got))
	}

	m := got[0]
	if m.ID != want.ID || m.Pattern != "rise" || m.Seq != 3 {
		t.Errorf("match = %s/%s/%d, want %s/rise/3", m.ID, m.Pattern, m.Seq, want.ID)
	}
	if !reflect.DeepEqual(m.Names(), []string{"a", "b"}) {
		t.Errorf("names = %v, want [a b]", m.Names())
	}
	for i, be := range m.Events {
		orig := want.Events[i].Event
		if be.Event.Type != orig.Type || be.Event.Seq != orig.Seq {
			t.Errorf("event %d = %s, want %s", i, be.Event, orig)
		}
		if !be.Event.Timestamp.Equal(orig.Timestamp) {
			t.Errorf("event %d timestamp = %v, want %v", i, be.Event.Timestamp, orig.Timestamp)
		}
		if !reflect.DeepEqual(be.Event.Attrs, orig.Attrs) {
			t.Errorf("event %d attrs = %v, want %v", i, be.Event.Attrs, orig.Attrs)
		}
	}

	id, err := ir.MatchID(m.Pattern, m.Events)
	if err != nil {
		t.Fatalf("MatchID() failed: %v", err)
	}
	if id != m.ID {
		t.Error("stored match ID does not match its content")
	}
}

func TestReadMatches_DeterministicOrderingAndFilter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, "run-1")
	beginTestRun(t, s, "run-2")

	stream := testutil.NewStream()
	e1 := stream.At(0, "Up", nil)
	e2 := stream.At(time.Second, "Up", nil)
	e3 := stream.At(2*time.Second, "Down", nil)

	writes := []ir.Match{
		createTestMatch("fall", 7, e2, e3),
		createTestMatch("rise", 5, e1, e3),
		createTestMatch("rise", 6, e2),
	}
	for _, m := range writes {
		if _, err := s.WriteMatch(ctx, "run-1", m); err != nil {
			t.Fatalf("WriteMatch() failed: %v", err)
		}
	}
	if _, err := s.WriteMatch(ctx, "run-2", createTestMatch("rise", 1, e1)); err != nil {
		t.Fatalf("WriteMatch() failed: %v", err)
	}

	tests := map[string]struct {
		filter MatchFilter
		want   []int64
	}{
		"all":     {MatchFilter{}, []int64{5, 6, 7}},
		"pattern": {MatchFilter{Pattern: "rise"}, []int64{5, 6}},
		"limit":   {MatchFilter{Limit: 2}, []int64{5, 6}},
		"none":    {MatchFilter{Pattern: "missing"}, []int64{}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := s.ReadMatches(ctx, "run-1", tt.filter)
			if err != nil {
				t.Fatalf("ReadMatches() failed: %v", err)
			}
			seqs := []int64{}
			for _, m := range got {
				seqs = append(seqs, m.Seq)
			}
			if !reflect.DeepEqual(seqs, tt.want) {
				t.Errorf("seqs = %v, want %v", seqs, tt.want)
			}
		})
	}

	n, err := s.CountMatches(ctx, "run-1")
	if err != nil {
		t.Fatalf("CountMatches() failed: %v", err)
	}
	if n != 3 {
		t.Errorf("CountMatches() = %d, want 3", n)
	}
}
