package compiler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/treecep/internal/ir"
	"github.com/roach88/treecep/internal/plan"
)

// Definition is a compiled pattern together with the topology it asked
// for. Topology is nil when the plan builder should choose one.
type Definition struct {
	Pattern  *ir.Pattern
	Topology *plan.Topology
}

// CompileSource compiles every pattern declared under the top-level
// "pattern" struct of a CUE document.
func CompileSource(filename string, src []byte) ([]*Definition, error) {
	v := cuecontext.New().CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	defs, errs := CompileAll(v)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return defs, nil
}

// CompileAll compiles every field of v's "pattern" struct in declaration
// order. All failures are returned; compiled definitions are returned
// alongside them.
func CompileAll(v cue.Value) ([]*Definition, []error) {
	patternsVal := v.LookupPath(cue.ParsePath("pattern"))
	if !patternsVal.Exists() {
		return nil, []error{&CompileError{Field: "pattern", Message: "no patterns defined", Pos: v.Pos()}}
	}

	iter, err := patternsVal.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var (
		defs []*Definition
		errs []error
	)
	for iter.Next() {
		def, err := CompilePattern(iter.Value())
		if err != nil {
			errs = append(errs, fmt.Errorf("pattern %s: %w", iter.Label(), err))
			continue
		}
		defs = append(defs, def)
	}
	return defs, errs
}

// CompilePattern parses a CUE value into a pattern definition.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the pattern struct itself, e.g.:
//
//	pattern: rise: {
//		operator: "seq"
//		window:   "5m"
//		events: [{type: "AAPL", name: "a"}, {type: "AAPL", name: "b"}]
//		where: [{left: "a.open", op: "<", right: "b.open"}]
//	}
func CompilePattern(v cue.Value) (*Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	name := patternName(v)

	opVal := v.LookupPath(cue.ParsePath("operator"))
	if !opVal.Exists() {
		return nil, &CompileError{Field: "operator", Message: "operator is required", Pos: v.Pos()}
	}
	opStr, err := opVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	op, err := ir.ParseOperator(opStr)
	if err != nil {
		return nil, &CompileError{Field: "operator", Message: err.Error(), Pos: opVal.Pos()}
	}

	window, err := parseWindow(v)
	if err != nil {
		return nil, err
	}

	items, err := parseEvents(v)
	if err != nil {
		return nil, err
	}

	cond, err := parseWhere(v)
	if err != nil {
		return nil, err
	}

	p, err := ir.NewPattern(name, ir.Structure{Operator: op, Items: items}, cond, window)
	if err != nil {
		field := "pattern"
		var verrs ir.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field = verrs[0].Field
		}
		return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}

	def := &Definition{Pattern: p}
	topoVal := v.LookupPath(cue.ParsePath("topology"))
	if topoVal.Exists() {
		def.Topology, err = parseTopology(topoVal)
		if err != nil {
			return nil, err
		}
	}
	return def, nil
}

// patternName returns the unquoted label the pattern is declared under.
func patternName(v cue.Value) string {
	labels := v.Path().Selectors()
	if len(labels) == 0 {
		return ""
	}
	sel := labels[len(labels)-1]
	if sel.LabelType() == cue.StringLabel {
		return sel.Unquoted()
	}
	return sel.String()
}

// parseWindow accepts a Go duration string ("5m", "90s") or an integer
// number of seconds.
func parseWindow(v cue.Value) (time.Duration, error) {
	winVal := v.LookupPath(cue.ParsePath("window"))
	if !winVal.Exists() {
		return 0, &CompileError{Field: "window", Message: "window is required", Pos: v.Pos()}
	}
	switch winVal.IncompleteKind() {
	case cue.StringKind:
		s, err := winVal.String()
		if err != nil {
			return 0, formatCUEError(err)
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, &CompileError{Field: "window", Message: fmt.Sprintf("invalid duration %q", s), Pos: winVal.Pos()}
		}
		return d, nil
	case cue.IntKind:
		n, err := winVal.Int64()
		if err != nil {
			return 0, formatCUEError(err)
		}
		return time.Duration(n) * time.Second, nil
	default:
		return 0, &CompileError{
			Field:   "window",
			Message: "window must be a duration string or integer seconds",
			Pos:     winVal.Pos(),
		}
	}
}

// parseEvents extracts the declared primitive events in order.
func parseEvents(v cue.Value) ([]ir.Item, error) {
	eventsVal := v.LookupPath(cue.ParsePath("events"))
	if !eventsVal.Exists() {
		return nil, &CompileError{Field: "events", Message: "events are required", Pos: v.Pos()}
	}

	iter, err := eventsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var items []ir.Item
	for i := 0; iter.Next(); i++ {
		ev := iter.Value()
		field := fmt.Sprintf("events[%d]", i)

		eventType, err := requiredString(ev, "type", field)
		if err != nil {
			return nil, err
		}
		name, err := requiredString(ev, "name", field)
		if err != nil {
			return nil, err
		}

		item := ir.Primitive(eventType, name)

		negVal := ev.LookupPath(cue.ParsePath("negated"))
		if negVal.Exists() {
			negated, err := negVal.Bool()
			if err != nil {
				return nil, &CompileError{Field: field + ".negated", Message: "negated must be a bool", Pos: negVal.Pos()}
			}
			if negated {
				item = ir.Negation(item)
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// parseWhere extracts the condition conjuncts. Each entry is either
// {expr: "..."} or {left: "a.x", op: "<", right: "b.y" | value: <scalar>}.
func parseWhere(v cue.Value) (ir.Condition, error) {
	whereVal := v.LookupPath(cue.ParsePath("where"))
	if !whereVal.Exists() {
		return nil, nil // where is optional
	}

	iter, err := whereVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var cond ir.Condition
	for i := 0; iter.Next(); i++ {
		pred, err := parsePredicate(iter.Value(), fmt.Sprintf("where[%d]", i))
		if err != nil {
			return nil, err
		}
		cond = append(cond, pred)
	}
	return cond, nil
}

func parsePredicate(v cue.Value, field string) (ir.Predicate, error) {
	if exprVal := v.LookupPath(cue.ParsePath("expr")); exprVal.Exists() {
		src, err := exprVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		pred, err := ir.Expr(src)
		if err != nil {
			return nil, &CompileError{Field: field + ".expr", Message: err.Error(), Pos: exprVal.Pos()}
		}
		return pred, nil
	}

	leftStr, err := requiredString(v, "left", field)
	if err != nil {
		return nil, err
	}
	left, err := parseAttrRef(leftStr)
	if err != nil {
		return nil, &CompileError{Field: field + ".left", Message: err.Error(), Pos: v.Pos()}
	}

	opStr, err := requiredString(v, "op", field)
	if err != nil {
		return nil, err
	}
	op, err := ir.ParseComparator(opStr)
	if err != nil {
		return nil, &CompileError{Field: field + ".op", Message: err.Error(), Pos: v.Pos()}
	}

	rightVal := v.LookupPath(cue.ParsePath("right"))
	litVal := v.LookupPath(cue.ParsePath("value"))
	var right ir.Operand
	switch {
	case rightVal.Exists() && litVal.Exists():
		return nil, &CompileError{Field: field, Message: "right and value are mutually exclusive", Pos: v.Pos()}
	case rightVal.Exists():
		s, err := rightVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		right, err = parseAttrRef(s)
		if err != nil {
			return nil, &CompileError{Field: field + ".right", Message: err.Error(), Pos: rightVal.Pos()}
		}
	case litVal.Exists():
		lit, err := parseLiteral(litVal, field+".value")
		if err != nil {
			return nil, err
		}
		right = ir.Lit(lit)
	default:
		return nil, &CompileError{Field: field, Message: "one of right or value is required", Pos: v.Pos()}
	}

	return ir.Compare(left, op, right), nil
}

// parseAttrRef reads "binding.attr". The attribute may itself contain dots
// or spaces; only the first dot separates the binding.
func parseAttrRef(s string) (ir.Operand, error) {
	binding, attr, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok || binding == "" || attr == "" {
		return ir.Operand{}, fmt.Errorf("attribute reference %q must have the form binding.attr", s)
	}
	return ir.Attr(binding, attr), nil
}

// parseLiteral converts a concrete CUE scalar to an IR value.
// Floats are forbidden; integers must fit in int64.
func parseLiteral(v cue.Value, field string) (ir.Value, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   field,
			Message: "float literals are forbidden - use int in the smallest unit instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported literal kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// parseTopology accepts the nested pair form either as a string
// ("[[0,1],2]") or as a CUE list.
func parseTopology(v cue.Value) (*plan.Topology, error) {
	if v.IncompleteKind() == cue.StringKind {
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		t, err := plan.Parse(s)
		if err != nil {
			return nil, &CompileError{Field: "topology", Message: err.Error(), Pos: v.Pos()}
		}
		return t, nil
	}
	return topologyFromList(v)
}

func topologyFromList(v cue.Value) (*plan.Topology, error) {
	switch v.IncompleteKind() {
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		t, err := plan.FromNative(n)
		if err != nil {
			return nil, &CompileError{Field: "topology", Message: err.Error(), Pos: v.Pos()}
		}
		return t, nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var children []*plan.Topology
		for iter.Next() {
			child, err := topologyFromList(iter.Value())
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		if len(children) != 2 {
			return nil, &CompileError{
				Field:   "topology",
				Message: fmt.Sprintf("internal node must have exactly two children, got %d", len(children)),
				Pos:     v.Pos(),
			}
		}
		return plan.Pair(children[0], children[1]), nil
	default:
		return nil, &CompileError{
			Field:   "topology",
			Message: "topology must be a string, an integer leaf or a two-element list",
			Pos:     v.Pos(),
		}
	}
}

func requiredString(v cue.Value, name, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", &CompileError{Field: field + "." + name, Message: name + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Field: field + "." + name, Message: name + " must be a string", Pos: fv.Pos()}
	}
	return s, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
