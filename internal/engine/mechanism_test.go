package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/treecep/internal/ir"
	"github.com/roach88/treecep/internal/stream"
	"github.com/roach88/treecep/internal/testutil"
)

func pairPattern(name string) *ir.Pattern {
	return ir.MustPattern(name, ir.Sequence(ir.Primitive("A", "a"), ir.Primitive("B", "b")), nil, time.Minute)
}

func newMechanism(t *testing.T, patterns ...*ir.Pattern) *Mechanism {
	t.Helper()
	f, err := BuildForest(Params{Patterns: patterns})
	require.NoError(t, err)
	return NewMechanism(f)
}

// unstamped returns events without seqs, as read from a JSONL file.
func unstamped(types ...string) []*ir.Event {
	out := make([]*ir.Event, len(types))
	for i, typ := range types {
		out[i] = ir.NewEvent(typ, testutil.Epoch.Add(time.Duration(i)*time.Second), nil)
	}
	return out
}

func TestMechanism_Eval_EmitsStampedMatches(t *testing.T) {
	m := newMechanism(t, pairPattern("p"))
	sink := stream.NewCollectSink()

	require.NoError(t, m.Eval(context.Background(), stream.FromSlice(unstamped("A", "B")), sink))

	matches := sink.Matches()
	require.Len(t, matches, 1)
	got := matches[0]
	assert.Equal(t, [][]int64{{1, 2}}, testutil.Seqs(matches))
	assert.Equal(t, int64(1), got.Seq, "matches are numbered apart from events")
	assert.Equal(t, ir.MustMatchID("p", got.Events), got.ID)
	assert.True(t, sink.Closed())
	assert.Equal(t, Stats{Events: 2, Matches: 1}, m.Stats())
}

func TestMechanism_Eval_MatchIDsAreDeterministic(t *testing.T) {
	run := func() []string {
		sink := stream.NewCollectSink()
		require.NoError(t, newMechanism(t, pairPattern("p")).Eval(context.Background(),
			stream.FromSlice(unstamped("A", "A", "B")), sink))
		var ids []string
		for _, m := range sink.Matches() {
			ids = append(ids, m.ID)
		}
		return ids
	}
	first := run()
	require.Len(t, first, 2)
	assert.Equal(t, first, run())
}

func TestMechanism_Eval_FlushesHeldMatches(t *testing.T) {
	p := ir.MustPattern("quiet",
		ir.Sequence(ir.Primitive("A", "a"), ir.Negation(ir.Primitive("X", "x"))),
		nil, time.Hour)
	m := newMechanism(t, p)
	sink := stream.NewCollectSink()

	require.NoError(t, m.Eval(context.Background(), stream.FromSlice(unstamped("A")), sink))
	assert.Len(t, sink.Matches(), 1)
}

func TestMechanism_Eval_StopsOnCancellation(t *testing.T) {
	p := ir.MustPattern("quiet",
		ir.Sequence(ir.Primitive("A", "a"), ir.Negation(ir.Primitive("X", "x"))),
		nil, time.Hour)
	m := newMechanism(t, p)
	q := stream.NewQueue()
	q.Enqueue(unstamped("A")[0])
	sink := stream.NewCollectSink()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.Eval(ctx, q, sink)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, sink.Matches(), "held matches are not flushed on cancellation")
	assert.True(t, sink.Closed())
	assert.Equal(t, int64(1), m.Stats().Events)
}

func TestMechanism_Process_DropsOutOfOrderEvents(t *testing.T) {
	m := newMechanism(t, pairPattern("p"))
	s := testutil.NewStream()
	a := s.At(time.Minute, "A", nil)
	b := s.At(0, "B", nil)

	assert.Empty(t, m.Process(a))
	assert.Empty(t, m.Process(b))
	assert.Equal(t, Stats{Events: 1, OutOfOrder: 1}, m.Stats())
}

func TestMechanism_Process_KeepsInputSeqs(t *testing.T) {
	m := newMechanism(t, pairPattern("p"))
	a := ir.NewEvent("A", testutil.Epoch, nil)
	a.Seq = 40
	b := ir.NewEvent("B", testutil.Epoch.Add(time.Second), nil)

	matches := m.Process(a)
	matches = append(matches, m.Process(b)...)
	require.Len(t, matches, 1)
	assert.Equal(t, [][]int64{{40, 41}}, testutil.Seqs(matches), "stamps continue after the largest input seq")
	assert.Equal(t, int64(1), matches[0].Seq)
}

func TestMechanism_Process_LeavesCallerEventUntouched(t *testing.T) {
	m := newMechanism(t, pairPattern("p"))
	a := ir.NewEvent("A", testutil.Epoch, nil)
	b := ir.NewEvent("B", testutil.Epoch.Add(time.Second), nil)

	m.Process(a)
	matches := m.Process(b)
	require.Len(t, matches, 1)
	assert.Zero(t, a.Seq)
	assert.Zero(t, b.Seq)
	assert.Equal(t, [][]int64{{1, 2}}, testutil.Seqs(matches))
}

func TestMechanism_Eval_EventSeqsIgnoreEmittedMatches(t *testing.T) {
	types := []string{"A", "B", "A", "B", "A", "B"}
	stamped := unstamped(types...)
	for i, e := range stamped {
		stamped[i] = e.WithSeq(int64(i + 1))
	}

	eval := func(events []*ir.Event) []ir.Match {
		sink := stream.NewCollectSink()
		require.NoError(t, newMechanism(t, pairPattern("p")).Eval(context.Background(), stream.FromSlice(events), sink))
		return sink.Matches()
	}
	fromFile := eval(unstamped(types...))
	prestamped := eval(stamped)

	require.Len(t, fromFile, 6)
	assert.Equal(t, testutil.Seqs(prestamped), testutil.Seqs(fromFile))
	for i := range fromFile {
		assert.Equal(t, prestamped[i].ID, fromFile[i].ID)
	}
	assert.Contains(t, testutil.Seqs(fromFile), []int64{5, 6}, "the third pair keeps its arrival seqs")
}

type errSink struct{ closed bool }

func (s *errSink) Emit(context.Context, ir.Match) error { return errors.New("disk full") }
func (s *errSink) Close() error {
	s.closed = true
	return nil
}

func TestMechanism_Eval_SinkErrorStopsEvaluation(t *testing.T) {
	sink := &errSink{}
	err := newMechanism(t, pairPattern("p")).Eval(context.Background(),
		stream.FromSlice(unstamped("A", "B", "A", "B")), sink)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, sink.closed)
}
