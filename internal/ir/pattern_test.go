package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPatternValid(t *testing.T) {
	p, err := NewPattern("rise",
		Sequence(Primitive("AAPL", "a"), Negation(Primitive("AMZN", "b")), Primitive("GOOG", "c")),
		Where(Compare(Attr("a", "open"), OpLess, Attr("c", "open"))),
		5*time.Minute,
	)
	require.NoError(t, err)

	assert.True(t, p.IsSequence())
	assert.Equal(t, []int{0, 2}, p.Positive())
	assert.Equal(t, []int{1}, p.Negative())

	idx, ok := p.IndexOf("c")
	require.True(t, ok)
	assert.Equal(t, 2, idx)
}

func TestNewPatternCopiesInputs(t *testing.T) {
	items := []Item{Primitive("A", "a"), Primitive("B", "b")}
	p := MustPattern("p", Conjunction(items...), nil, time.Second)

	items[0] = Primitive("Z", "z")
	assert.Equal(t, "A", p.Item(0).Ref.Type)
}

func TestNewPatternValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		pattern func() (*Pattern, error)
		field   string
	}{
		{
			name: "empty name",
			pattern: func() (*Pattern, error) {
				return NewPattern("", Sequence(Primitive("A", "a")), nil, time.Second)
			},
			field: "name",
		},
		{
			name: "non-positive window",
			pattern: func() (*Pattern, error) {
				return NewPattern("p", Sequence(Primitive("A", "a")), nil, 0)
			},
			field: "window",
		},
		{
			name: "duplicate binding",
			pattern: func() (*Pattern, error) {
				return NewPattern("p", Sequence(Primitive("A", "a"), Primitive("B", "a")), nil, time.Second)
			},
			field: "events[1].name",
		},
		{
			name: "only negations",
			pattern: func() (*Pattern, error) {
				return NewPattern("p", Sequence(Negation(Primitive("A", "a"))), nil, time.Second)
			},
			field: "events",
		},
		{
			name: "unknown binding in condition",
			pattern: func() (*Pattern, error) {
				return NewPattern("p", Sequence(Primitive("A", "a")),
					Where(Compare(Attr("x", "v"), OpEqual, Lit(Int(1)))), time.Second)
			},
			field: "where[0]",
		},
		{
			name: "unknown operator",
			pattern: func() (*Pattern, error) {
				return NewPattern("p", Structure{Items: []Item{Primitive("A", "a")}}, nil, time.Second)
			},
			field: "operator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.pattern()
			require.Error(t, err)

			var errs ValidationErrors
			require.ErrorAs(t, err, &errs)
			fields := make([]string, len(errs))
			for i, e := range errs {
				fields[i] = e.Field
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestParseOperator(t *testing.T) {
	op, err := ParseOperator("Sequence")
	require.NoError(t, err)
	assert.Equal(t, OpSequence, op)

	op, err = ParseOperator("and")
	require.NoError(t, err)
	assert.Equal(t, OpConjunction, op)

	_, err = ParseOperator("or")
	assert.Error(t, err)
}
