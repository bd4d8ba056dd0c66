package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// A scenario compiles a set of patterns, replays a fixed event stream
// through the engine and asserts on the matches it produced.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Patterns holds inline CUE pattern definitions.
	Patterns string `yaml:"patterns,omitempty"`

	// Specs lists paths to CUE pattern files to compile and load.
	// Paths are relative to the scenario file location.
	Specs []string `yaml:"specs,omitempty"`

	// Engine configures evaluation. Zero values select the defaults.
	Engine EngineConfig `yaml:"engine,omitempty"`

	// Start is the timestamp event offsets are relative to.
	// Defaults to testutil.Epoch.
	Start time.Time `yaml:"start,omitempty"`

	// Events is the input stream. Seqs are assigned in listed order,
	// starting at 1.
	Events []EventStep `yaml:"events"`

	// Assertions validate the produced matches.
	// Supported types: match_count, match_contains, no_match, shared_nodes
	Assertions []Assertion `yaml:"assertions"`
}

// EngineConfig selects how the scenario's patterns are evaluated.
type EngineConfig struct {
	// Mode is "sequential" or "parallel".
	Mode string `yaml:"mode,omitempty"`

	// Strategy is a sharing strategy name, or "none" to build every
	// pattern's tree without sharing.
	Strategy string `yaml:"strategy,omitempty"`

	// Order is the tree plan order used for patterns without an explicit
	// topology.
	Order string `yaml:"order,omitempty"`

	// Parallelism is the shard count in parallel mode. Defaults to 1.
	Parallelism int `yaml:"parallelism,omitempty"`

	// PartitionKey is the attribute events are sharded by.
	PartitionKey string `yaml:"partition_key,omitempty"`

	// Broadcast sends events without the partition key to every shard.
	Broadcast bool `yaml:"broadcast,omitempty"`

	// MaxPartialMatches bounds node buffers; zero is unbounded.
	MaxPartialMatches int `yaml:"max_partial_matches,omitempty"`
}

// EventStep is one input event.
type EventStep struct {
	// Type is the event type.
	Type string `yaml:"type"`

	// At is the offset from the scenario start (e.g. "90s").
	At time.Duration `yaml:"at"`

	// Attrs are the event attributes. Floats are rejected.
	Attrs map[string]any `yaml:"attrs,omitempty"`
}

// Assertion validates the produced matches.
type Assertion struct {
	// Type specifies the assertion type:
	// - "match_count": the pattern matched exactly Count times
	// - "match_contains": some match of the pattern binds Events
	// - "no_match": the pattern never matched
	// - "shared_nodes": the forest shares exactly Count nodes
	Type string `yaml:"type"`

	// Pattern is the pattern name. Empty means every pattern for
	// match_count and no_match.
	Pattern string `yaml:"pattern,omitempty"`

	// Count is the expected number (used by match_count and shared_nodes).
	Count int `yaml:"count,omitempty"`

	// Events maps binding names to event seqs (used by match_contains).
	// Subset match - unlisted bindings are not checked.
	Events map[string]int64 `yaml:"events,omitempty"`
}

// Assertion type constants.
const (
	AssertMatchCount    = "match_count"
	AssertMatchContains = "match_contains"
	AssertNoMatch       = "no_match"
	AssertSharedNodes   = "shared_nodes"
)

// LoadScenario reads and parses a scenario YAML file.
// Spec paths are resolved relative to the scenario file. Returns an
// error if the file doesn't exist, is malformed, contains unknown fields
// (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving spec paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, specPath)
		}
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes scenario YAML without validating it.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Patterns == "" && len(s.Specs) == 0 {
		return fmt.Errorf("patterns or specs is required")
	}

	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}

	if s.Engine.Parallelism < 0 {
		return fmt.Errorf("engine.parallelism must be non-negative")
	}
	if s.Engine.MaxPartialMatches < 0 {
		return fmt.Errorf("engine.max_partial_matches must be non-negative")
	}

	for i, step := range s.Events {
		if step.Type == "" {
			return fmt.Errorf("events[%d]: type is required", i)
		}
		if step.At < 0 {
			return fmt.Errorf("events[%d]: at must be non-negative", i)
		}
		if i > 0 && step.At < s.Events[i-1].At {
			return fmt.Errorf("events[%d]: at %s precedes the previous event", i, step.At)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertMatchCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for match_count", index)
		}
	case AssertMatchContains:
		if a.Pattern == "" {
			return fmt.Errorf("assertions[%d]: pattern is required for match_contains", index)
		}
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events is required for match_contains", index)
		}
	case AssertNoMatch:
	case AssertSharedNodes:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for shared_nodes", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
