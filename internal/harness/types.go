package harness

import "github.com/roach88/treecep/internal/ir"

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every assertion held.
	Pass bool `json:"pass"`

	// Matches are the matches recorded for the run, in snapshot order.
	Matches []ir.Match `json:"matches"`

	// SharedNodes is the number of nodes the forest reused across
	// patterns.
	SharedNodes int `json:"shared_nodes"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Matches: []ir.Match{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// MatchesOf returns the matches of the named pattern. An empty name
// returns every match.
func (r *Result) MatchesOf(pattern string) []ir.Match {
	if pattern == "" {
		return r.Matches
	}
	var out []ir.Match
	for _, m := range r.Matches {
		if m.Pattern == pattern {
			out = append(out, m)
		}
	}
	return out
}
