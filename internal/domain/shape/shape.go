// Package shape defines building shapes and the per-session shape inventory.
package shape

import (
	"github.com/okian/skyscraper/internal/domain/types"
)

// Kind names a building shape. Values are the identifiers the view expects.
type Kind string

// The seven shape kinds.
const (
	Square        Kind = "square"
	Rectangle     Kind = "rectangle"
	Rhombus       Kind = "rhombus"
	Trapezoid     Kind = "trapezoid"
	Triangle      Kind = "triangle"
	RightTriangle Kind = "rightTriangle"
	Circle        Kind = "circle"
)

// Kinds lists every kind in draw order.
var Kinds = [...]Kind{Square, Rectangle, Rhombus, Trapezoid, Triangle, RightTriangle, Circle}

// Inventory and shape bounds, inclusive.
const (
	MinShapes = 9
	MaxShapes = 16
	MinSize   = 30
	MaxSize   = 50
)

// Valid reports whether k is one of the seven kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Shape is one draggable building block.
type Shape struct {
	Kind Kind `json:"type"`
	Size int  `json:"size"`
}

// Group is the count of shapes of one kind.
type Group struct {
	Count int `json:"count"`
}

// Inventory is the write-once set of shapes handed to a session.
type Inventory struct {
	Shapes []Shape        `json:"shapes"`
	Groups map[Kind]Group `json:"shapeGroups"`
}

// Validate checks the inventory invariants: shape count and sizes in range,
// known kinds only, and groups exactly matching the shape list.
func (inv Inventory) Validate() error {
	const op = "shape.validate"
	if n := len(inv.Shapes); n < MinShapes || n > MaxShapes {
		return types.Invariant(op, "inventory has %d shapes", n)
	}
	counts := make(map[Kind]int, len(Kinds))
	for i, s := range inv.Shapes {
		if !s.Kind.Valid() {
			return types.Invariant(op, "shape %d has unknown kind %q", i, s.Kind)
		}
		if s.Size < MinSize || s.Size > MaxSize {
			return types.Invariant(op, "shape %d has size %d", i, s.Size)
		}
		counts[s.Kind]++
	}
	if len(counts) != len(inv.Groups) {
		return types.Invariant(op, "%d kinds present but %d groups", len(counts), len(inv.Groups))
	}
	for k, g := range inv.Groups {
		if counts[k] != g.Count {
			return types.Invariant(op, "groups[%s]=%d but %d shapes", k, g.Count, counts[k])
		}
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate a stored inventory.
func (inv Inventory) Clone() Inventory {
	out := Inventory{
		Shapes: make([]Shape, len(inv.Shapes)),
		Groups: make(map[Kind]Group, len(inv.Groups)),
	}
	copy(out.Shapes, inv.Shapes)
	for k, g := range inv.Groups {
		out.Groups[k] = g
	}
	return out
}
