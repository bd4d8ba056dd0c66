package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Statistics are arrival rates per event type (events per second) and
// pairwise predicate selectivities per binding-name pair.
// Missing entries count as 1.
type Statistics struct {
	Rates         map[string]float64 `yaml:"rates" json:"rates"`
	Selectivities map[string]float64 `yaml:"selectivities" json:"selectivities"`
}

// PairKey returns the Selectivities key for two binding names.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// Rate returns the arrival rate of an event type.
func (s *Statistics) Rate(eventType string) float64 {
	if s == nil {
		return 1
	}
	if r, ok := s.Rates[eventType]; ok {
		return r
	}
	return 1
}

// Selectivity returns the selectivity between two bindings. The
// selectivity of a binding with itself is 1.
func (s *Statistics) Selectivity(a, b string) float64 {
	if s == nil || a == b {
		return 1
	}
	if v, ok := s.Selectivities[PairKey(a, b)]; ok {
		return v
	}
	return 1
}

// LoadStatistics reads statistics from a YAML file.
func LoadStatistics(path string) (*Statistics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read statistics: %w", err)
	}
	var s Statistics
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse statistics %s: %w", path, err)
	}
	for key, v := range s.Selectivities {
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("selectivity %q must be within [0,1], got %v", key, v)
		}
	}
	return &s, nil
}
