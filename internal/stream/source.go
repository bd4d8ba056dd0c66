package stream

import (
	"context"
	"io"

	"github.com/roach88/treecep/internal/ir"
)

// Source yields input events. Next blocks until an event is available,
// the input ends (io.EOF) or ctx is done.
type Source interface {
	Next(ctx context.Context) (*ir.Event, error)
}

// SliceSource replays a fixed list of events.
type SliceSource struct {
	events []*ir.Event
	pos    int
}

// FromSlice creates a source over events. The slice is not copied.
func FromSlice(events []*ir.Event) *SliceSource {
	return &SliceSource{events: events}
}

// Next implements Source.
func (s *SliceSource) Next(ctx context.Context) (*ir.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.events) {
		return nil, io.EOF
	}
	e := s.events[s.pos]
	s.pos++
	return e, nil
}

// Drain reads src until io.EOF.
func Drain(ctx context.Context, src Source) ([]*ir.Event, error) {
	var out []*ir.Event
	for {
		e, err := src.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}
