package plan

import (
	"fmt"
	"math"
	"math/bits"
	"slices"
	"strings"

	"github.com/roach88/treecep/internal/ir"
)

// Builder produces a topology for a single pattern.
type Builder interface {
	Build(p *ir.Pattern) (*Topology, error)
}

// Order selects a builder algorithm.
type Order string

const (
	OrderTrivialLeftDeep    Order = "TRIVIAL_LEFT_DEEP_TREE"
	OrderSortByFrequency    Order = "SORT_BY_FREQUENCY_LEFT_DEEP_TREE"
	OrderBalanced           Order = "BALANCED_TREE"
	OrderDynamicProgramming Order = "DYNAMIC_PROGRAMMING_LEFT_DEEP_TREE"
)

// DefaultOrder is used when no order is configured.
const DefaultOrder = OrderTrivialLeftDeep

// Orders lists every supported order.
func Orders() []Order {
	return []Order{OrderTrivialLeftDeep, OrderSortByFrequency, OrderBalanced, OrderDynamicProgramming}
}

// ParseOrder accepts an order name or its short alias (trivial,
// frequency, balanced, dp), case-insensitively. The empty string selects
// DefaultOrder.
func ParseOrder(s string) (Order, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return DefaultOrder, nil
	case string(OrderTrivialLeftDeep), "TRIVIAL":
		return OrderTrivialLeftDeep, nil
	case string(OrderSortByFrequency), "FREQUENCY":
		return OrderSortByFrequency, nil
	case string(OrderBalanced), "BALANCED":
		return OrderBalanced, nil
	case string(OrderDynamicProgramming), "DP":
		return OrderDynamicProgramming, nil
	}
	return "", fmt.Errorf("unknown tree plan order %q", s)
}

// NewBuilder returns the builder for order. stats may be nil for orders
// that do not use arrival statistics.
func NewBuilder(order Order, stats *Statistics) (Builder, error) {
	switch order {
	case "", OrderTrivialLeftDeep:
		return TrivialLeftDeep{}, nil
	case OrderSortByFrequency:
		return SortByFrequency{Stats: stats}, nil
	case OrderBalanced:
		return Balanced{}, nil
	case OrderDynamicProgramming:
		return DynamicProgrammingLeftDeep{Stats: stats}, nil
	default:
		return nil, fmt.Errorf("unknown tree plan order %q", order)
	}
}

// leftDeep folds indices into (((i0,i1),i2),...).
func leftDeep(indices []int) (*Topology, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("pattern has no positive events")
	}
	t := Leaf(indices[0])
	for _, i := range indices[1:] {
		t = Pair(t, Leaf(i))
	}
	return t, nil
}

// TrivialLeftDeep joins positive items left to right in declared order.
type TrivialLeftDeep struct{}

// Build implements Builder.
func (TrivialLeftDeep) Build(p *ir.Pattern) (*Topology, error) {
	return leftDeep(p.Positive())
}

// SortByFrequency joins the rarest event types first, so that early
// intermediate results stay small. Ties keep declared order.
type SortByFrequency struct {
	Stats *Statistics
}

// Build implements Builder.
func (b SortByFrequency) Build(p *ir.Pattern) (*Topology, error) {
	indices := p.Positive()
	slices.SortStableFunc(indices, func(x, y int) int {
		rx := b.Stats.Rate(p.Item(x).Ref.Type)
		ry := b.Stats.Rate(p.Item(y).Ref.Type)
		switch {
		case rx < ry:
			return -1
		case rx > ry:
			return 1
		}
		return 0
	})
	return leftDeep(indices)
}

// Balanced halves the declared positive items recursively.
type Balanced struct{}

// Build implements Builder.
func (Balanced) Build(p *ir.Pattern) (*Topology, error) {
	indices := p.Positive()
	if len(indices) == 0 {
		return nil, fmt.Errorf("pattern has no positive events")
	}
	return balanced(indices), nil
}

func balanced(indices []int) *Topology {
	if len(indices) == 1 {
		return Leaf(indices[0])
	}
	mid := (len(indices) + 1) / 2
	return Pair(balanced(indices[:mid]), balanced(indices[mid:]))
}

// maxDPItems bounds the subset enumeration of DynamicProgrammingLeftDeep.
const maxDPItems = 16

// DynamicProgrammingLeftDeep picks the left-deep join order with the lowest
// sum of expected intermediate result sizes. The expected size of a set S
// of items is the product of their arrival rates times the window, times
// the selectivity of every pair in S.
//
// Without statistics every order costs the same and the declared order is
// returned. Patterns with more than 16 positive items fall back to
// SortByFrequency.
type DynamicProgrammingLeftDeep struct {
	Stats *Statistics
}

// Build implements Builder.
func (b DynamicProgrammingLeftDeep) Build(p *ir.Pattern) (*Topology, error) {
	indices := p.Positive()
	if len(indices) == 0 {
		return nil, fmt.Errorf("pattern has no positive events")
	}
	if b.Stats == nil {
		return leftDeep(indices)
	}
	if len(indices) > maxDPItems {
		return SortByFrequency(b).Build(p)
	}

	n := len(indices)
	window := p.Window.Seconds()
	rate := make([]float64, n)
	for k, i := range indices {
		rate[k] = b.Stats.Rate(p.Item(i).Ref.Type) * window
	}
	sel := make([][]float64, n)
	for x := range sel {
		sel[x] = make([]float64, n)
		for y := range sel[x] {
			sel[x][y] = b.Stats.Selectivity(p.Item(indices[x]).Ref.Name, p.Item(indices[y]).Ref.Name)
		}
	}

	full := 1<<n - 1
	size := make([]float64, full+1)
	cost := make([]float64, full+1)
	last := make([]int, full+1)
	size[0] = 1
	for set := 1; set <= full; set++ {
		cost[set] = math.Inf(1)
		low := bits.TrailingZeros(uint(set))
		rest := set &^ (1 << low)
		s := size[rest] * rate[low]
		for y := 0; y < n; y++ {
			if rest&(1<<y) != 0 {
				s *= sel[low][y]
			}
		}
		size[set] = s

		// Scanning from the back keeps declared order on ties.
		for k := n - 1; k >= 0; k-- {
			if set&(1<<k) == 0 {
				continue
			}
			prev := set &^ (1 << k)
			c := cost[prev] + size[set]
			if c < cost[set] {
				cost[set] = c
				last[set] = k
			}
		}
	}

	order := make([]int, 0, n)
	for set := full; set != 0; set &^= 1 << last[set] {
		order = append(order, indices[last[set]])
	}
	slices.Reverse(order)
	return leftDeep(order)
}
