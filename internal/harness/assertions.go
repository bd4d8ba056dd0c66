package harness

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/treecep/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string     // Assertion type for categorization
	Expected string     // Human-readable expected outcome
	Actual   string     // Human-readable actual outcome
	Matches  []ir.Match // Every match for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nAll matches:\n")
	for i, m := range e.Matches {
		fmt.Fprintf(&buf, "  [%d] %s %s\n", i+1, m.Pattern, formatBindings(m))
	}

	return buf.String()
}

// formatBindings renders a match as name=seq pairs in binding order.
func formatBindings(m ir.Match) string {
	parts := make([]string, len(m.Events))
	for i, be := range m.Events {
		parts[i] = fmt.Sprintf("%s=%d", be.Name, be.Event.Seq)
	}
	return strings.Join(parts, " ")
}

func describePattern(pattern string) string {
	if pattern == "" {
		return "any pattern"
	}
	return "pattern " + pattern
}

// assertMatchCount checks the pattern matched exactly the expected number
// of times.
func assertMatchCount(result *Result, assertion Assertion) error {
	count := len(result.MatchesOf(assertion.Pattern))
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertMatchCount,
			Expected: fmt.Sprintf("%s matched %d times", describePattern(assertion.Pattern), assertion.Count),
			Actual:   fmt.Sprintf("matched %d times", count),
			Matches:  result.Matches,
		}
	}
	return nil
}

// assertMatchContains checks some match of the pattern binds every listed
// name to the listed seq.
func assertMatchContains(result *Result, assertion Assertion) error {
	for _, m := range result.MatchesOf(assertion.Pattern) {
		if bindsAll(m, assertion.Events) {
			return nil
		}
	}

	want := make([]string, 0, len(assertion.Events))
	for _, name := range slices.Sorted(maps.Keys(assertion.Events)) {
		want = append(want, fmt.Sprintf("%s=%d", name, assertion.Events[name]))
	}
	return &AssertionError{
		Type:     AssertMatchContains,
		Expected: fmt.Sprintf("%s match with %s", describePattern(assertion.Pattern), strings.Join(want, " ")),
		Actual:   "not found in matches",
		Matches:  result.Matches,
	}
}

// bindsAll reports whether m binds each name to its expected seq.
func bindsAll(m ir.Match, expected map[string]int64) bool {
	seqs := make(map[string]int64, len(m.Events))
	for _, be := range m.Events {
		seqs[be.Name] = be.Event.Seq
	}
	for name, seq := range expected {
		if got, ok := seqs[name]; !ok || got != seq {
			return false
		}
	}
	return true
}

// assertNoMatch checks the pattern never matched.
func assertNoMatch(result *Result, assertion Assertion) error {
	matches := result.MatchesOf(assertion.Pattern)
	if len(matches) > 0 {
		return &AssertionError{
			Type:     AssertNoMatch,
			Expected: fmt.Sprintf("no match for %s", describePattern(assertion.Pattern)),
			Actual:   fmt.Sprintf("%d matches, first %s", len(matches), formatBindings(matches[0])),
			Matches:  result.Matches,
		}
	}
	return nil
}

// assertSharedNodes checks the number of nodes shared across patterns.
func assertSharedNodes(result *Result, assertion Assertion) error {
	if result.SharedNodes != assertion.Count {
		return &AssertionError{
			Type:     AssertSharedNodes,
			Expected: fmt.Sprintf("%d shared nodes", assertion.Count),
			Actual:   fmt.Sprintf("%d shared nodes", result.SharedNodes),
			Matches:  result.Matches,
		}
	}
	return nil
}

// EvaluateAssertions runs all assertions against the result.
// Returns error messages for failed assertions (empty slice if all pass).
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for _, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertMatchCount:
			err = assertMatchCount(result, assertion)
		case AssertMatchContains:
			err = assertMatchContains(result, assertion)
		case AssertNoMatch:
			err = assertNoMatch(result, assertion)
		case AssertSharedNodes:
			err = assertSharedNodes(result, assertion)
		default:
			err = fmt.Errorf("unknown assertion type: %s", assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// SortMatches orders matches by their bound event seqs, then by pattern
// name and ID. The order does not depend on emission order, so parallel
// runs snapshot identically.
func SortMatches(matches []ir.Match) {
	slices.SortFunc(matches, func(a, b ir.Match) int {
		for i := 0; i < len(a.Events) && i < len(b.Events); i++ {
			if c := cmp.Compare(a.Events[i].Event.Seq, b.Events[i].Event.Seq); c != 0 {
				return c
			}
		}
		if c := cmp.Compare(len(a.Events), len(b.Events)); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Pattern, b.Pattern); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
