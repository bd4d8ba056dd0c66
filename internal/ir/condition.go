package ir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// Predicate is one atomic conjunct of a pattern condition.
//
// The evaluation tree only sees a predicate through this interface: the
// binding names it references, a boolean verdict over concrete events, and
// an optional canonical form used to detect equivalent conditions across
// patterns.
type Predicate interface {
	// Vars returns the binding names the predicate references, sorted and
	// without duplicates.
	Vars() []string

	// Eval reports whether the predicate holds for the bound events.
	// Missing bindings or attributes make the predicate false.
	Eval(b Binding) bool

	// Canonical returns a normal form with every binding name passed
	// through rename. ok is false when the predicate has no stable form
	// and must never be considered equivalent to another predicate.
	Canonical(rename func(string) string) (form string, ok bool)

	fmt.Stringer
}

// Condition is a conjunction of predicates. The empty condition is true.
type Condition []Predicate

// Where builds a condition from predicates.
func Where(preds ...Predicate) Condition {
	return Condition(preds)
}

// Eval reports whether every predicate holds.
func (c Condition) Eval(b Binding) bool {
	for _, p := range c {
		if !p.Eval(b) {
			return false
		}
	}
	return true
}

// Vars returns the union of the predicates' binding names.
func (c Condition) Vars() []string {
	var out []string
	for _, p := range c {
		out = append(out, p.Vars()...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (c Condition) String() string {
	if len(c) == 0 {
		return "true"
	}
	parts := make([]string, len(c))
	for i, p := range c {
		parts[i] = p.String()
	}
	return strings.Join(parts, " && ")
}

// Comparator is a binary comparison operator.
type Comparator string

const (
	OpGreater      Comparator = ">"
	OpLess         Comparator = "<"
	OpGreaterEqual Comparator = ">="
	OpLessEqual    Comparator = "<="
	OpEqual        Comparator = "=="
	OpNotEqual     Comparator = "!="
)

// ParseComparator accepts the comparator spellings used in definitions.
func ParseComparator(s string) (Comparator, error) {
	switch strings.TrimSpace(s) {
	case ">":
		return OpGreater, nil
	case "<":
		return OpLess, nil
	case ">=", "≥":
		return OpGreaterEqual, nil
	case "<=", "≤":
		return OpLessEqual, nil
	case "==", "=":
		return OpEqual, nil
	case "!=", "≠":
		return OpNotEqual, nil
	}
	return "", fmt.Errorf("unknown comparator %q", s)
}

// Operand is either an attribute of a bound event or a literal value.
type Operand struct {
	Binding string
	Attr    string
	Literal Value
}

// Attr references attribute attr of the event bound under binding.
func Attr(binding, attr string) Operand {
	return Operand{Binding: binding, Attr: attr}
}

// Lit is a literal operand.
func Lit(v Value) Operand {
	return Operand{Literal: v}
}

// IsLiteral reports whether the operand is a literal.
func (o Operand) IsLiteral() bool {
	return o.Binding == ""
}

func (o Operand) resolve(b Binding) (Value, bool) {
	if o.IsLiteral() {
		return o.Literal, o.Literal != nil
	}
	e := b[o.Binding]
	if e == nil {
		return nil, false
	}
	return e.Attr(o.Attr)
}

func (o Operand) canonical(rename func(string) string) (any, bool) {
	if o.IsLiteral() {
		switch o.Literal.(type) {
		case nil, Null:
			return nil, false
		}
		return map[string]any{"lit": o.Literal}, true
	}
	return map[string]any{"var": rename(o.Binding), "attr": o.Attr}, true
}

func (o Operand) String() string {
	if o.IsLiteral() {
		b, err := MarshalValue(o.Literal)
		if err != nil {
			return "?"
		}
		return string(b)
	}
	return o.Binding + "." + o.Attr
}

// Comparison compares two operands.
type Comparison struct {
	Left  Operand
	Op    Comparator
	Right Operand
}

// Compare builds a comparison predicate.
func Compare(left Operand, op Comparator, right Operand) Comparison {
	return Comparison{Left: left, Op: op, Right: right}
}

// Vars implements Predicate.
func (c Comparison) Vars() []string {
	var out []string
	if !c.Left.IsLiteral() {
		out = append(out, c.Left.Binding)
	}
	if !c.Right.IsLiteral() {
		out = append(out, c.Right.Binding)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Eval implements Predicate. Ints compare numerically, strings
// lexicographically and bools only by (in)equality.
func (c Comparison) Eval(b Binding) bool {
	l, ok := c.Left.resolve(b)
	if !ok {
		return false
	}
	r, ok := c.Right.resolve(b)
	if !ok {
		return false
	}
	cmp, ok := CompareValues(l, r)
	if !ok {
		return false
	}
	_, isBool := l.(Bool)
	switch c.Op {
	case OpEqual:
		return cmp == 0
	case OpNotEqual:
		return cmp != 0
	case OpGreater:
		return !isBool && cmp > 0
	case OpLess:
		return !isBool && cmp < 0
	case OpGreaterEqual:
		return !isBool && cmp >= 0
	case OpLessEqual:
		return !isBool && cmp <= 0
	}
	return false
}

// Canonical implements Predicate.
func (c Comparison) Canonical(rename func(string) string) (string, bool) {
	l, ok := c.Left.canonical(rename)
	if !ok {
		return "", false
	}
	r, ok := c.Right.canonical(rename)
	if !ok {
		return "", false
	}
	data, err := MarshalCanonical(map[string]any{
		"kind": "cmp",
		"op":   string(c.Op),
		"l":    l,
		"r":    r,
	})
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (c Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.Left, c.Op, c.Right)
}

// ExprPredicate is a boolean expression over bindings, compiled with
// expr-lang. Every identifier that is not called as a function is a
// binding name; attributes are reached with member access (a.open or
// a["Opening Price"]).
type ExprPredicate struct {
	source  string
	program *vm.Program
	vars    []string
}

// Expr compiles a boolean expression predicate.
func Expr(source string) (*ExprPredicate, error) {
	tree, err := parser.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse expression %q: %w", source, err)
	}
	program, err := expr.Compile(source, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", source, err)
	}
	return &ExprPredicate{
		source:  source,
		program: program,
		vars:    bindingIdents(&tree.Node),
	}, nil
}

// MustExpr is like Expr but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustExpr(source string) *ExprPredicate {
	p, err := Expr(source)
	if err != nil {
		panic(err)
	}
	return p
}

// identCollector records identifier nodes and the identifiers used as
// function callees.
type identCollector struct {
	idents  []*ast.IdentifierNode
	callees map[*ast.IdentifierNode]bool
}

func (c *identCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		c.idents = append(c.idents, n)
	case *ast.CallNode:
		if id, ok := n.Callee.(*ast.IdentifierNode); ok {
			c.callees[id] = true
		}
	}
}

func collectIdents(root *ast.Node) []*ast.IdentifierNode {
	c := &identCollector{callees: map[*ast.IdentifierNode]bool{}}
	ast.Walk(root, c)
	out := c.idents[:0]
	for _, id := range c.idents {
		if !c.callees[id] {
			out = append(out, id)
		}
	}
	return out
}

func bindingIdents(root *ast.Node) []string {
	var names []string
	for _, id := range collectIdents(root) {
		names = append(names, id.Value)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// Source returns the expression text.
func (p *ExprPredicate) Source() string {
	return p.source
}

// Vars implements Predicate.
func (p *ExprPredicate) Vars() []string {
	return slices.Clone(p.vars)
}

// Eval implements Predicate. Runtime errors evaluate to false.
func (p *ExprPredicate) Eval(b Binding) bool {
	env := make(map[string]any, len(p.vars))
	for _, name := range p.vars {
		e := b[name]
		if e == nil {
			return false
		}
		env[name] = ToNative(e.Attrs)
	}
	out, err := expr.Run(p.program, env)
	if err != nil {
		return false
	}
	ok, isBool := out.(bool)
	return isBool && ok
}

// Canonical implements Predicate by renaming identifiers in a fresh
// parse of the source and printing the result.
func (p *ExprPredicate) Canonical(rename func(string) string) (string, bool) {
	tree, err := parser.Parse(p.source)
	if err != nil {
		return "", false
	}
	for _, id := range collectIdents(&tree.Node) {
		id.Value = rename(id.Value)
	}
	data, err := MarshalCanonical(map[string]any{
		"kind": "expr",
		"ast":  tree.Node.String(),
	})
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (p *ExprPredicate) String() string {
	return p.source
}

// FuncPredicate wraps an arbitrary Go function over bindings.
// Without a Key the predicate is opaque and never shared; with a Key two
// FuncPredicates are considered equivalent when their keys match and
// their vars map to the same positions.
type FuncPredicate struct {
	Key   string
	Names []string
	Fn    func(Binding) bool
}

// Func builds a function predicate over the given binding names.
func Func(key string, fn func(Binding) bool, vars ...string) FuncPredicate {
	return FuncPredicate{Key: key, Names: vars, Fn: fn}
}

// Vars implements Predicate.
func (f FuncPredicate) Vars() []string {
	out := slices.Clone(f.Names)
	slices.Sort(out)
	return slices.Compact(out)
}

// Eval implements Predicate.
func (f FuncPredicate) Eval(b Binding) bool {
	for _, name := range f.Names {
		if b[name] == nil {
			return false
		}
	}
	return f.Fn(b)
}

// Canonical implements Predicate.
func (f FuncPredicate) Canonical(rename func(string) string) (string, bool) {
	if f.Key == "" {
		return "", false
	}
	vars := make([]any, len(f.Names))
	for i, name := range f.Names {
		vars[i] = rename(name)
	}
	data, err := MarshalCanonical(map[string]any{
		"kind": "func",
		"key":  f.Key,
		"vars": vars,
	})
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (f FuncPredicate) String() string {
	key := f.Key
	if key == "" {
		key = "func"
	}
	return fmt.Sprintf("%s(%s)", key, strings.Join(f.Names, ", "))
}
