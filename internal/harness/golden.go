package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/treecep/internal/ir"
)

// MatchSnapshot captures the matches of a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
// Match seqs are left out: in parallel mode they depend on scheduling.
type MatchSnapshot struct {
	ScenarioName string
	SharedNodes  int
	Matches      []ir.Match
}

// toCanonicalMap converts a MatchSnapshot to a map[string]any for
// canonical JSON serialization.
func (s *MatchSnapshot) toCanonicalMap() map[string]any {
	matchList := make([]any, len(s.Matches))
	for i, m := range s.Matches {
		events := make([]any, len(m.Events))
		for j, be := range m.Events {
			events[j] = map[string]any{
				"name": be.Name,
				"seq":  be.Event.Seq,
				"type": be.Event.Type,
			}
		}
		matchList[i] = map[string]any{
			"id":      m.ID,
			"pattern": m.Pattern,
			"events":  events,
		}
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"shared_nodes":  s.SharedNodes,
		"matches":       matchList,
	}
}

// Snapshot renders a result as canonical JSON.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := MatchSnapshot{
		ScenarioName: scenarioName,
		SharedNodes:  result.SharedNodes,
		Matches:      result.Matches,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its matches against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the matches don't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's matches against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
