package ir

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stock(open int64) *Event {
	return NewEvent("STOCK", time.Unix(0, 0), Object{"open": Int(open), "ticker": String("X")})
}

func TestComparisonEval(t *testing.T) {
	b := Binding{"a": stock(10), "b": stock(20)}

	tests := []struct {
		name string
		pred Comparison
		want bool
	}{
		{"attr less attr", Compare(Attr("a", "open"), OpLess, Attr("b", "open")), true},
		{"attr greater literal", Compare(Attr("b", "open"), OpGreater, Lit(Int(15))), true},
		{"attr equal literal", Compare(Attr("a", "open"), OpEqual, Lit(Int(11))), false},
		{"string equality", Compare(Attr("a", "ticker"), OpEqual, Attr("b", "ticker")), true},
		{"missing attribute", Compare(Attr("a", "close"), OpLess, Lit(Int(1))), false},
		{"missing binding", Compare(Attr("z", "open"), OpLess, Lit(Int(100))), false},
		{"mixed kinds", Compare(Attr("a", "open"), OpNotEqual, Lit(String("10"))), false},
		{"bool ordering", Compare(Lit(Bool(true)), OpGreater, Lit(Bool(false))), false},
		{"bool inequality", Compare(Lit(Bool(true)), OpNotEqual, Lit(Bool(false))), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pred.Eval(b))
		})
	}
}

func TestComparisonVars(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Compare(Attr("b", "x"), OpLess, Attr("a", "x")).Vars())
	assert.Equal(t, []string{"a"}, Compare(Attr("a", "x"), OpLess, Attr("a", "y")).Vars())
	assert.Empty(t, Compare(Lit(Int(1)), OpLess, Lit(Int(2))).Vars())
}

func slotRename(names ...string) func(string) string {
	return func(n string) string {
		for i, name := range names {
			if name == n {
				return "$" + strconv.Itoa(i)
			}
		}
		return n
	}
}

func TestComparisonCanonicalRenaming(t *testing.T) {
	p1 := Compare(Attr("a", "open"), OpLess, Attr("b", "open"))
	p2 := Compare(Attr("x", "open"), OpLess, Attr("y", "open"))

	c1, ok := p1.Canonical(slotRename("a", "b"))
	require.True(t, ok)
	c2, ok := p2.Canonical(slotRename("x", "y"))
	require.True(t, ok)
	assert.Equal(t, c1, c2)

	swapped, ok := p2.Canonical(slotRename("y", "x"))
	require.True(t, ok)
	assert.NotEqual(t, c1, swapped)
}

func TestComparisonCanonicalDiffersByLiteral(t *testing.T) {
	c1, _ := Compare(Attr("a", "c"), OpGreater, Lit(Int(500))).Canonical(slotRename("a"))
	c2, _ := Compare(Attr("a", "c"), OpGreater, Lit(Int(503))).Canonical(slotRename("a"))
	assert.NotEqual(t, c1, c2)
}

func TestExprPredicate(t *testing.T) {
	p, err := Expr(`a.open * 2 <= b.open && a.ticker == "X"`)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, p.Vars())
	assert.True(t, p.Eval(Binding{"a": stock(10), "b": stock(20)}))
	assert.False(t, p.Eval(Binding{"a": stock(11), "b": stock(20)}))
	assert.False(t, p.Eval(Binding{"a": stock(10)}), "missing binding")
}

func TestExprPredicateFunctionCallsAreNotBindings(t *testing.T) {
	p, err := Expr(`len(a.ticker) == 1`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, p.Vars())
	assert.True(t, p.Eval(Binding{"a": stock(1)}))
}

func TestExprPredicateCanonicalRenaming(t *testing.T) {
	p1 := MustExpr(`a.open < b.open`)
	p2 := MustExpr(`x.open < y.open`)

	c1, ok := p1.Canonical(slotRename("a", "b"))
	require.True(t, ok)
	c2, ok := p2.Canonical(slotRename("x", "y"))
	require.True(t, ok)

	assert.Equal(t, c1, c2)
	assert.Equal(t, `a.open < b.open`, p1.String(), "renaming must not mutate the predicate")
}

func TestExprPredicateCompileError(t *testing.T) {
	_, err := Expr(`a.open <`)
	assert.Error(t, err)
}

func TestFuncPredicate(t *testing.T) {
	calls := 0
	fn := func(b Binding) bool {
		calls++
		v, _ := b["a"].Attr("open")
		return v == Int(10)
	}

	opaque := Func("", fn, "a")
	assert.True(t, opaque.Eval(Binding{"a": stock(10)}))
	assert.False(t, opaque.Eval(Binding{}), "missing binding short-circuits")
	assert.Equal(t, 1, calls)

	_, ok := opaque.Canonical(slotRename("a"))
	assert.False(t, ok, "predicates without a key are never shareable")

	keyed := Func("open-is-ten", fn, "a")
	form, ok := keyed.Canonical(slotRename("a"))
	require.True(t, ok)
	assert.Contains(t, form, "open-is-ten")
}

func TestConditionEval(t *testing.T) {
	b := Binding{"a": stock(10), "b": stock(20)}

	assert.True(t, Condition(nil).Eval(b), "empty condition is true")
	assert.True(t, Where(
		Compare(Attr("a", "open"), OpLess, Attr("b", "open")),
		MustExpr(`b.open == 20`),
	).Eval(b))
	assert.False(t, Where(
		Compare(Attr("a", "open"), OpLess, Attr("b", "open")),
		MustExpr(`b.open == 21`),
	).Eval(b))
}

func TestParseComparator(t *testing.T) {
	for in, want := range map[string]Comparator{">": OpGreater, "≥": OpGreaterEqual, "=": OpEqual, "!=": OpNotEqual} {
		got, err := ParseComparator(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseComparator("~")
	assert.Error(t, err)
}
