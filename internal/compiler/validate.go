package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/treecep/internal/plan"
	"github.com/roach88/treecep/internal/tree"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrNoPattern = "E100" // definition has no pattern

	// Pattern definition errors (E101-E109)
	ErrPatternName      = "E101" // pattern name is required
	ErrPatternEvents    = "E102" // invalid or missing events
	ErrPatternWindow    = "E103" // invalid or missing window
	ErrPatternOperator  = "E104" // unknown operator
	ErrPatternWhere     = "E105" // invalid where clause
	ErrFloatForbidden   = "E106" // float literals not allowed
	ErrPatternTopology  = "E107" // topology does not fit the pattern
	ErrPatternUnsupport = "E108" // pattern the tree cannot evaluate
	ErrDuplicatePattern = "E109" // two definitions share a name
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Pattern string `json:"pattern,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks that a compiled definition can be turned into an
// evaluation tree: the topology (explicit or left-deep) must cover the
// positive events exactly and every predicate must be placeable.
// Returns all errors found (does not fail-fast).
func Validate(def *Definition) []ValidationError {
	if def == nil || def.Pattern == nil {
		return []ValidationError{{
			Field:   "pattern",
			Message: "definition has no pattern",
			Code:    ErrNoPattern,
		}}
	}

	var errs []ValidationError
	p := def.Pattern

	topo := def.Topology
	if topo == nil {
		var err error
		topo, err = plan.TrivialLeftDeep{}.Build(p)
		if err != nil {
			errs = append(errs, ValidationError{
				Pattern: p.Name,
				Field:   "events",
				Message: err.Error(),
				Code:    ErrPatternEvents,
			})
			return errs
		}
	}

	if _, err := tree.New(p, topo); err != nil {
		var be *tree.BuildError
		switch {
		case errors.As(err, &be) && be.Code == tree.CodeMalformedTopology:
			errs = append(errs, ValidationError{Pattern: p.Name, Field: "topology", Message: be.Message, Code: ErrPatternTopology})
		case errors.As(err, &be):
			errs = append(errs, ValidationError{Pattern: p.Name, Field: "where", Message: be.Message, Code: ErrPatternUnsupport})
		default:
			errs = append(errs, ValidationError{Pattern: p.Name, Field: "pattern", Message: err.Error(), Code: ErrPatternUnsupport})
		}
	}

	return errs
}

// ValidateAll validates every definition and rejects duplicate names.
func ValidateAll(defs []*Definition) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(defs))
	for i, def := range defs {
		errs = append(errs, Validate(def)...)
		if def == nil || def.Pattern == nil {
			continue
		}
		name := def.Pattern.Name
		if seen[name] {
			errs = append(errs, ValidationError{
				Pattern: name,
				Field:   fmt.Sprintf("pattern[%d].name", i),
				Message: fmt.Sprintf("duplicate pattern name: %q", name),
				Code:    ErrDuplicatePattern,
			})
		}
		seen[name] = true
	}
	return errs
}

// CodeFor maps a compile error to its validation code.
// Errors that are not compile errors map to the empty string.
func CodeFor(err error) string {
	var ce *CompileError
	if !errors.As(err, &ce) {
		return ""
	}
	if strings.Contains(ce.Message, "float") {
		return ErrFloatForbidden
	}
	head, _, _ := strings.Cut(ce.Field, ".")
	head, _, _ = strings.Cut(head, "[")
	switch head {
	case "name":
		return ErrPatternName
	case "events":
		return ErrPatternEvents
	case "window":
		return ErrPatternWindow
	case "operator":
		return ErrPatternOperator
	case "where":
		return ErrPatternWhere
	case "topology":
		return ErrPatternTopology
	default:
		return ""
	}
}
