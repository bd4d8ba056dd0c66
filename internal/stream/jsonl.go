package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/roach88/treecep/internal/ir"
)

// JSONLSource reads one JSON event per line. Blank lines are skipped.
type JSONLSource struct {
	reader *bufio.Reader
	line   int
}

// NewJSONLSource creates a source over r.
func NewJSONLSource(r io.Reader) *JSONLSource {
	return &JSONLSource{reader: bufio.NewReader(r)}
}

// Next implements Source. A final line without a trailing newline is
// still decoded.
func (s *JSONLSource) Next(ctx context.Context) (*ir.Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := s.reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read line %d: %w", s.line+1, err)
		}
		if len(data) == 0 && err == io.EOF {
			return nil, io.EOF
		}
		s.line++
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		return decodeEvent(data, s.line)
	}
}

func decodeEvent(data []byte, line int) (*ir.Event, error) {
	var e ir.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("line %d: %w", line, err)
	}
	if e.Timestamp.IsZero() {
		return nil, fmt.Errorf("line %d: event timestamp is required", line)
	}
	return &e, nil
}

// JSONLSink writes one JSON match per line.
type JSONLSink struct {
	w *bufio.Writer
}

// NewJSONLSink creates a sink writing to w. Close flushes but does not
// close w.
func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{w: bufio.NewWriter(w)}
}

// Emit implements Sink.
func (s *JSONLSink) Emit(_ context.Context, m ir.Match) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal match %s: %w", m.ID, err)
	}
	data = append(data, '\n')
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("write match %s: %w", m.ID, err)
	}
	return nil
}

// Close implements Sink.
func (s *JSONLSink) Close() error {
	return s.w.Flush()
}

// ReadMatches decodes every match line from r.
func ReadMatches(r io.Reader) ([]ir.Match, error) {
	var out []ir.Match
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var m ir.Match
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, m)
	}
	return out, scanner.Err()
}
