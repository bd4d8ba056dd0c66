package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStats(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stats.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadStatistics(t *testing.T) {
	path := writeStats(t, `
rates:
  AAPL: 5
  GOOG: 0.5
selectivities:
  b|a: 0.1
`)

	s, err := LoadStatistics(path)
	require.NoError(t, err)
	assert.Equal(t, 5.0, s.Rate("AAPL"))
	assert.Equal(t, 0.5, s.Rate("GOOG"))
	assert.Equal(t, 1.0, s.Rate("IBM"), "missing rates count as 1")
	assert.Equal(t, 1.0, s.Selectivity("a", "a"))
}

func TestSelectivityKeyIsOrderIndependent(t *testing.T) {
	s := &Statistics{Selectivities: map[string]float64{PairKey("b", "a"): 0.25}}
	assert.Equal(t, "a|b", PairKey("b", "a"))
	assert.Equal(t, 0.25, s.Selectivity("a", "b"))
	assert.Equal(t, 0.25, s.Selectivity("b", "a"))
	assert.Equal(t, 1.0, s.Selectivity("a", "c"))
}

func TestNilStatistics(t *testing.T) {
	var s *Statistics
	assert.Equal(t, 1.0, s.Rate("AAPL"))
	assert.Equal(t, 1.0, s.Selectivity("a", "b"))
}

func TestLoadStatisticsErrors(t *testing.T) {
	_, err := LoadStatistics(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read statistics")

	_, err = LoadStatistics(writeStats(t, "rates: [1, 2"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse statistics")

	_, err = LoadStatistics(writeStats(t, "selectivities:\n  a|b: 1.5\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "within [0,1]")
}
