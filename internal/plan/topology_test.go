package plan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopologyString(t *testing.T) {
	topo := Pair(Pair(Leaf(0), Leaf(1)), Leaf(2))

	assert.Equal(t, "[[0,1],2]", topo.String())
	assert.Equal(t, []int{0, 1, 2}, topo.Leaves())
	assert.Equal(t, 5, topo.Size())
	assert.Equal(t, 3, topo.Depth())
}

func TestParseRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "[0,1]", "[[0,2],[1,3]]", "[[[3,0],1],2]"} {
		topo, err := Parse(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, topo.String())
	}
}

func TestParseErrors(t *testing.T) {
	for _, s := range []string{"[0]", "[0,1,2]", "-1", "1.5", `"a"`, "[0,"} {
		_, err := Parse(s)
		assert.Error(t, err, s)
	}
}

func TestTopologyJSONField(t *testing.T) {
	var doc struct {
		Topology *Topology `json:"topology"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"topology":[[1,0],2]}`), &doc))
	assert.True(t, doc.Topology.Equal(Pair(Pair(Leaf(1), Leaf(0)), Leaf(2))))

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"topology":[[1,0],2]}`, string(out))
}

func TestFromNativeYAMLInts(t *testing.T) {
	topo, err := FromNative([]any{0, []any{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, "[0,[1,2]]", topo.String())
}
