package stream

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/treecep/internal/ir"
	"github.com/roach88/treecep/internal/testutil"
)

func TestJSONLSource(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"AAPL","timestamp":"2026-01-02T10:00:00Z","attrs":{"open":10}}`,
		``,
		`{"type":"AMZN","timestamp":"2026-01-02T10:01:00Z","attrs":{"name":"x","up":true}}`,
	}, "\n")

	events, err := Drain(context.Background(), NewJSONLSource(strings.NewReader(input)))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "AAPL", events[0].Type)
	assert.Equal(t, ir.Object{"open": ir.Int(10)}, events[0].Attrs)
	assert.Equal(t, testutil.Epoch.Add(time.Minute), events[1].Timestamp)
	assert.Equal(t, ir.Bool(true), events[1].Attrs["up"])
}

func TestJSONLSourceErrorsCarryLineNumbers(t *testing.T) {
	cases := map[string]string{
		"float":        `{"type":"A","timestamp":"2026-01-02T10:00:00Z","attrs":{"p":1.5}}`,
		"missing type": `{"timestamp":"2026-01-02T10:00:00Z"}`,
		"missing time": `{"type":"A"}`,
		"not json":     `type=A`,
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			src := NewJSONLSource(strings.NewReader("\n" + line + "\n"))
			_, err := src.Next(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "line 2")
		})
	}
}

func TestJSONLSinkRoundTrip(t *testing.T) {
	s := testutil.NewStream()
	a := s.At(0, "A", testutil.Attrs("open", 1))
	b := s.At(time.Second, "B", nil)
	events := []ir.BoundEvent{{Name: "a", Event: a}, {Name: "b", Event: b}}
	m := ir.Match{ID: ir.MustMatchID("p", events), Pattern: "p", Seq: 7, Events: events}

	var buf bytes.Buffer
	sink := NewJSONLSink(&buf)
	require.NoError(t, sink.Emit(context.Background(), m))
	assert.Zero(t, buf.Len(), "buffered until close")
	require.NoError(t, sink.Close())

	got, err := ReadMatches(&buf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, m.ID, got[0].ID)
	assert.Equal(t, []string{"a", "b"}, got[0].Names())
	assert.Equal(t, int64(1), got[0].Events[0].Event.Seq)
	assert.True(t, a.Timestamp.Equal(got[0].Events[0].Event.Timestamp))
}

func TestJSONLSourceEmptyInput(t *testing.T) {
	_, err := NewJSONLSource(strings.NewReader("")).Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}
