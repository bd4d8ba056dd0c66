package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/treecep/internal/ir"
)

// Sink receives completed matches.
type Sink interface {
	Emit(ctx context.Context, m ir.Match) error

	// Close finalizes the sink after the last match.
	Close() error
}

// CollectSink keeps matches in memory. Safe for concurrent use.
type CollectSink struct {
	mu      sync.Mutex
	matches []ir.Match
	closed  bool
}

// NewCollectSink creates an empty collector.
func NewCollectSink() *CollectSink {
	return &CollectSink{}
}

// Emit implements Sink.
func (s *CollectSink) Emit(_ context.Context, m ir.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches = append(s.matches, m)
	return nil
}

// Close implements Sink.
func (s *CollectSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Matches returns a copy of the collected matches.
func (s *CollectSink) Matches() []ir.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ir.Match, len(s.matches))
	copy(out, s.matches)
	return out
}

// Closed reports whether Close was called.
func (s *CollectSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Tee fans matches out to several sinks in order.
type Tee []Sink

// Emit implements Sink. It stops at the first failing sink.
func (t Tee) Emit(ctx context.Context, m ir.Match) error {
	for _, s := range t {
		if err := s.Emit(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Sink. Every sink is closed; errors are joined.
func (t Tee) Close() error {
	var errs []error
	for _, s := range t {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Locked serializes access to a sink shared by several producers.
type Locked struct {
	mu   sync.Mutex
	sink Sink
	once sync.Once
	err  error
}

// NewLocked wraps s.
func NewLocked(s Sink) *Locked {
	return &Locked{sink: s}
}

// Emit implements Sink.
func (l *Locked) Emit(ctx context.Context, m ir.Match) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sink.Emit(ctx, m)
}

// Close implements Sink. Only the first call closes the wrapped sink.
func (l *Locked) Close() error {
	l.once.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.err = l.sink.Close()
	})
	return l.err
}
