package testutil

import (
	"fmt"
	"time"

	"github.com/roach88/treecep/internal/ir"
)

// Epoch is the base timestamp of test streams.
var Epoch = time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

// Stream builds a deterministic event stream for tests.
//
// Every event gets the next seq from an internal DeterministicClock, so the
// same builder calls always produce the same seqs and match IDs.
type Stream struct {
	base   time.Time
	clock  *DeterministicClock
	events []*ir.Event
}

// NewStream creates a stream whose offsets are relative to Epoch.
func NewStream() *Stream {
	return &Stream{base: Epoch, clock: NewDeterministicClock()}
}

// At appends an event of eventType at base+offset and returns it.
func (s *Stream) At(offset time.Duration, eventType string, attrs ir.Object) *ir.Event {
	e := ir.NewEvent(eventType, s.base.Add(offset), attrs)
	e.Seq = s.clock.Next()
	s.events = append(s.events, e)
	return e
}

// Events returns the events appended so far.
func (s *Stream) Events() []*ir.Event {
	return s.events
}

// Attrs builds an attribute object from alternating keys and values.
// Panics on an odd argument count or an unsupported value.
func Attrs(kv ...any) ir.Object {
	if len(kv)%2 != 0 {
		panic(fmt.Sprintf("testutil.Attrs: odd argument count %d", len(kv)))
	}
	obj := make(ir.Object, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("testutil.Attrs: key %v is not a string", kv[i]))
		}
		v, err := ir.FromNative(kv[i+1])
		if err != nil {
			panic(fmt.Sprintf("testutil.Attrs: %s: %v", key, err))
		}
		obj[key] = v
	}
	return obj
}

// Names returns the binding names of each match, for compact assertions.
func Names(matches []ir.Match) [][]string {
	out := make([][]string, len(matches))
	for i, m := range matches {
		out[i] = m.Names()
	}
	return out
}

// Seqs returns the event seqs of each match in binding order.
func Seqs(matches []ir.Match) [][]int64 {
	out := make([][]int64, len(matches))
	for i, m := range matches {
		seqs := make([]int64, len(m.Events))
		for j, be := range m.Events {
			seqs[j] = be.Event.Seq
		}
		out[i] = seqs
	}
	return out
}
