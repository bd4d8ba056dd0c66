package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Topology is a node of a tree plan. A leaf carries the declared index of
// a positive pattern item; an internal node has exactly two children.
type Topology struct {
	Index int
	Left  *Topology
	Right *Topology
}

// Leaf returns a leaf topology for item index i.
func Leaf(i int) *Topology {
	return &Topology{Index: i}
}

// Pair joins two subtopologies.
func Pair(left, right *Topology) *Topology {
	return &Topology{Left: left, Right: right}
}

// IsLeaf reports whether t is a leaf.
func (t *Topology) IsLeaf() bool {
	return t.Left == nil && t.Right == nil
}

// Leaves returns the leaf indices from left to right.
func (t *Topology) Leaves() []int {
	if t == nil {
		return nil
	}
	if t.IsLeaf() {
		return []int{t.Index}
	}
	return append(t.Left.Leaves(), t.Right.Leaves()...)
}

// Size returns the number of nodes in the topology.
func (t *Topology) Size() int {
	if t == nil {
		return 0
	}
	if t.IsLeaf() {
		return 1
	}
	return 1 + t.Left.Size() + t.Right.Size()
}

// Depth returns the height of the topology; a single leaf has depth 1.
func (t *Topology) Depth() int {
	if t == nil {
		return 0
	}
	if t.IsLeaf() {
		return 1
	}
	return 1 + max(t.Left.Depth(), t.Right.Depth())
}

// Equal reports structural equality.
func (t *Topology) Equal(o *Topology) bool {
	switch {
	case t == nil || o == nil:
		return t == o
	case t.IsLeaf() != o.IsLeaf():
		return false
	case t.IsLeaf():
		return t.Index == o.Index
	}
	return t.Left.Equal(o.Left) && t.Right.Equal(o.Right)
}

// String renders the nested pair form, e.g. [[0,1],2].
func (t *Topology) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t *Topology) write(b *strings.Builder) {
	if t == nil {
		b.WriteString("null")
		return
	}
	if t.IsLeaf() {
		b.WriteString(strconv.Itoa(t.Index))
		return
	}
	b.WriteByte('[')
	t.Left.write(b)
	b.WriteByte(',')
	t.Right.write(b)
	b.WriteByte(']')
}

// MarshalJSON writes the nested pair form.
func (t *Topology) MarshalJSON() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalJSON reads the nested pair form.
func (t *Topology) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromNative(raw)
	if err != nil {
		return err
	}
	*t = *parsed
	return nil
}

// Parse reads a topology from its nested pair form.
func Parse(s string) (*Topology, error) {
	var t Topology
	if err := t.UnmarshalJSON([]byte(s)); err != nil {
		return nil, fmt.Errorf("parse topology %q: %w", s, err)
	}
	return &t, nil
}

// FromNative converts decoded JSON, YAML or CUE data (numbers and two-element
// lists) into a topology.
func FromNative(v any) (*Topology, error) {
	switch val := v.(type) {
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("leaf index %s is not an integer", val)
		}
		return leafFrom(n)
	case int:
		return leafFrom(int64(val))
	case int64:
		return leafFrom(val)
	case float64:
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("leaf index %v is not an integer", val)
		}
		return leafFrom(int64(val))
	case []any:
		if len(val) != 2 {
			return nil, fmt.Errorf("internal node must have exactly two children, got %d", len(val))
		}
		left, err := FromNative(val[0])
		if err != nil {
			return nil, err
		}
		right, err := FromNative(val[1])
		if err != nil {
			return nil, err
		}
		return Pair(left, right), nil
	default:
		return nil, fmt.Errorf("unexpected topology element %T", v)
	}
}

func leafFrom(n int64) (*Topology, error) {
	if n < 0 {
		return nil, fmt.Errorf("leaf index %d is negative", n)
	}
	return Leaf(int(n)), nil
}
