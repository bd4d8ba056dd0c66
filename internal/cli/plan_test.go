package cli

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/treecep/internal/ir"
	"github.com/roach88/treecep/internal/plan"
)

const threeWay = `
pattern: triple: {
	operator: "and"
	window:   "10m"
	events: [{type: "A", name: "a"}, {type: "B", name: "b"}, {type: "C", name: "c"}]
}
pattern: pinned: {
	operator: "seq"
	window:   "10m"
	events: [{type: "A", name: "x"}, {type: "B", name: "y"}, {type: "C", name: "z"}]
	topology: [0, [1, 2]]
}
`

func TestPlanText(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "three.cue", threeWay)

	out, _, err := execute(t, "plan", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "triple (and, window 10m0s, planned)")
	assert.Contains(t, out, "[[0,1],2]  [[a,b],c]  depth 3")
	assert.Contains(t, out, "pinned (seq, window 10m0s, explicit)")
	assert.Contains(t, out, "[0,[1,2]]  [x,[y,z]]  depth 3")
}

func TestPlanOrders(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "three.cue", threeWay)
	stats := writeFile(t, t.TempDir(), "stats.yaml", "rates:\n  A: 9\n  B: 1\n  C: 4\n")

	tests := []struct {
		order string
		want  string
	}{
		{"trivial", "[[0,1],2]"},
		{"balanced", "[[0,1],2]"},
		{"frequency", "[[1,2],0]"},
	}
	for _, tt := range tests {
		t.Run(tt.order, func(t *testing.T) {
			out, _, err := execute(t, "--format", "json", "plan", "--order", tt.order, "--stats", stats, dir)
			require.NoError(t, err)

			var resp struct {
				Status string        `json:"status"`
				Data   []PatternPlan `json:"data"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			require.Len(t, resp.Data, 2)
			assert.Equal(t, "triple", resp.Data[0].Pattern)
			assert.Equal(t, tt.want, resp.Data[0].Topology.String())
			assert.False(t, resp.Data[0].Explicit)

			// Explicit topologies ignore the order.
			assert.True(t, resp.Data[1].Explicit)
			assert.Equal(t, "[0,[1,2]]", resp.Data[1].Topology.String())
		})
	}
}

func TestPlanInvalidOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "three.cue", threeWay)

	_, _, err := execute(t, "plan", "--order", "random", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLabelTopology(t *testing.T) {
	p := ir.MustPattern("neg",
		ir.Sequence(
			ir.Primitive("A", "a"),
			ir.Negation(ir.Primitive("N", "n")),
			ir.Primitive("B", "b"),
		),
		nil, time.Minute)

	assert.Equal(t, "[a,b]", labelTopology(p, plan.Pair(plan.Leaf(0), plan.Leaf(2))))
	assert.Equal(t, "[a,7]", labelTopology(p, plan.Pair(plan.Leaf(0), plan.Leaf(7))))
}
