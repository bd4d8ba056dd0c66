package ir

import (
	"fmt"
	"strings"
	"time"
)

// Operator is the top-level composition of a pattern.
type Operator int

const (
	// OpSequence requires the positive events in declared order.
	OpSequence Operator = iota + 1
	// OpConjunction requires all positive events in any order.
	OpConjunction
)

// String returns the operator's definition keyword.
func (o Operator) String() string {
	switch o {
	case OpSequence:
		return "seq"
	case OpConjunction:
		return "and"
	default:
		return fmt.Sprintf("operator(%d)", int(o))
	}
}

// ParseOperator accepts the keywords used in pattern definitions.
func ParseOperator(s string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "seq", "sequence":
		return OpSequence, nil
	case "and", "conjunction":
		return OpConjunction, nil
	default:
		return 0, fmt.Errorf("unknown operator %q: must be seq or and", s)
	}
}

// Item is one argument of a pattern structure: a primitive event reference,
// optionally negated. Negation only wraps primitives.
type Item struct {
	Ref     EventRef
	Negated bool
}

// Primitive declares a positive primitive event.
func Primitive(eventType, name string) Item {
	return Item{Ref: EventRef{Type: eventType, Name: name}}
}

// Negation marks an item as forbidden between its neighbours (sequence)
// or anywhere within the window (conjunction).
func Negation(it Item) Item {
	it.Negated = true
	return it
}

// Structure is the operator tree of a pattern. Only flat compositions are
// supported: one operator over primitive or negated-primitive items.
type Structure struct {
	Operator Operator
	Items    []Item
}

// Sequence builds an ordered structure.
func Sequence(items ...Item) Structure {
	return Structure{Operator: OpSequence, Items: items}
}

// Conjunction builds an unordered structure.
func Conjunction(items ...Item) Structure {
	return Structure{Operator: OpConjunction, Items: items}
}

// Pattern is an immutable pattern definition.
// Construct with NewPattern; fields must not be mutated afterwards.
type Pattern struct {
	Name      string
	Structure Structure
	Condition Condition
	Window    time.Duration
}

// ValidationError describes one problem with a pattern definition.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in a definition.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// NewPattern validates and returns a pattern.
// All problems are reported at once rather than fail-fast.
func NewPattern(name string, s Structure, cond Condition, window time.Duration) (*Pattern, error) {
	items := make([]Item, len(s.Items))
	copy(items, s.Items)
	preds := make(Condition, len(cond))
	copy(preds, cond)

	p := &Pattern{
		Name:      name,
		Structure: Structure{Operator: s.Operator, Items: items},
		Condition: preds,
		Window:    window,
	}
	if errs := p.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return p, nil
}

// MustPattern is like NewPattern but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustPattern(name string, s Structure, cond Condition, window time.Duration) *Pattern {
	p, err := NewPattern(name, s, cond, window)
	if err != nil {
		panic(err)
	}
	return p
}

// Validate checks the pattern against the model rules.
func (p *Pattern) Validate() ValidationErrors {
	var errs ValidationErrors

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "pattern name is required"})
	}
	if p.Window <= 0 {
		errs = append(errs, ValidationError{Field: "window", Message: fmt.Sprintf("window must be positive, got %s", p.Window)})
	}
	if p.Structure.Operator != OpSequence && p.Structure.Operator != OpConjunction {
		errs = append(errs, ValidationError{Field: "operator", Message: fmt.Sprintf("unsupported operator %s", p.Structure.Operator)})
	}

	names := make(map[string]bool, len(p.Structure.Items))
	positives := 0
	for i, it := range p.Structure.Items {
		switch {
		case it.Ref.Name == "":
			errs = append(errs, ValidationError{Field: fmt.Sprintf("events[%d].name", i), Message: "binding name is required"})
		case names[it.Ref.Name]:
			errs = append(errs, ValidationError{Field: fmt.Sprintf("events[%d].name", i), Message: fmt.Sprintf("duplicate binding name %q", it.Ref.Name)})
		}
		names[it.Ref.Name] = true
		if it.Ref.Type == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("events[%d].type", i), Message: "event type is required"})
		}
		if !it.Negated {
			positives++
		}
	}
	if positives == 0 {
		errs = append(errs, ValidationError{Field: "events", Message: "at least one positive event is required"})
	}

	for i, pred := range p.Condition {
		if pred == nil {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("where[%d]", i), Message: "predicate is nil"})
			continue
		}
		for _, v := range pred.Vars() {
			if !names[v] {
				errs = append(errs, ValidationError{Field: fmt.Sprintf("where[%d]", i), Message: fmt.Sprintf("unknown binding %q in %s", v, pred)})
			}
		}
	}

	return errs
}

// IsSequence reports whether positive events must occur in declared order.
func (p *Pattern) IsSequence() bool {
	return p.Structure.Operator == OpSequence
}

// Items returns the declared items. The slice must not be modified.
func (p *Pattern) Items() []Item {
	return p.Structure.Items
}

// Item returns the i-th declared item.
func (p *Pattern) Item(i int) Item {
	return p.Structure.Items[i]
}

// Positive returns the indices of the non-negated items in declared order.
func (p *Pattern) Positive() []int {
	var out []int
	for i, it := range p.Structure.Items {
		if !it.Negated {
			out = append(out, i)
		}
	}
	return out
}

// Negative returns the indices of the negated items in declared order.
func (p *Pattern) Negative() []int {
	var out []int
	for i, it := range p.Structure.Items {
		if it.Negated {
			out = append(out, i)
		}
	}
	return out
}

// IndexOf returns the declared index of a binding name.
func (p *Pattern) IndexOf(name string) (int, bool) {
	for i, it := range p.Structure.Items {
		if it.Ref.Name == name {
			return i, true
		}
	}
	return 0, false
}
