// Package mask defines value masks used to select handlers in the dispatch tree.
//
// A mask is an ordered list of cells. Each cell either pins a concrete value
// that an incoming message argument must equal, or is the wildcard which
// accepts any value:
//
//	note_on (0, *, 1)   channel 0, any note, velocity 1
//	/cue/go, i (*)      any integer argument
//	Space ()            the identifier alone selects the handler
package mask

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrUncomparable is returned when a concrete cell holds a value that cannot
// be used as a map key (slices, maps, funcs).
var ErrUncomparable = errors.New("mask: value is not comparable")

// WildcardSymbol is the printed form of the wildcard cell.
const WildcardSymbol = "*"

// Cell is one position of a mask.
// The zero value is a concrete cell holding nil.
type Cell struct {
	value any
	wild  bool
}

// Any is the wildcard cell. It is a distinct key from every concrete value,
// including a concrete nil.
var Any = Cell{wild: true}

// Exact returns a concrete cell pinning v.
func Exact(v any) Cell {
	return Cell{value: v}
}

// IsWildcard reports whether the cell matches any value.
func (c Cell) IsWildcard() bool {
	return c.wild
}

// Value returns the pinned value. It is nil for the wildcard.
func (c Cell) Value() any {
	if c.wild {
		return nil
	}
	return c.value
}

// Matches reports whether v satisfies the cell.
func (c Cell) Matches(v any) bool {
	if c.wild {
		return true
	}
	if !Comparable(v) || !Comparable(c.value) {
		return false
	}
	return c.value == v
}

// String returns the printed form of the cell.
func (c Cell) String() string {
	if c.wild {
		return WildcardSymbol
	}
	return fmt.Sprint(c.value)
}

// Mask is an ordered sequence of cells.
type Mask []Cell

// Of builds a mask from plain values. A nil argument becomes the wildcard,
// every other argument a concrete cell.
func Of(values ...any) Mask {
	m := make(Mask, len(values))
	for i, v := range values {
		if v == nil {
			m[i] = Any
			continue
		}
		m[i] = Exact(v)
	}
	return m
}

// Len returns the number of cells.
func (m Mask) Len() int {
	return len(m)
}

// Wildcards returns the number of wildcard cells.
func (m Mask) Wildcards() int {
	n := 0
	for _, c := range m {
		if c.wild {
			n++
		}
	}
	return n
}

// Validate checks that every concrete cell can be used as a map key.
func (m Mask) Validate() error {
	for i, c := range m {
		if !c.wild && !Comparable(c.value) {
			return fmt.Errorf("%w: cell %d has type %T", ErrUncomparable, i, c.value)
		}
	}
	return nil
}

// Equal reports whether two masks have identical cells.
func (m Mask) Equal(other Mask) bool {
	if len(m) != len(other) {
		return false
	}
	for i := range m {
		if m[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is a leading part of m.
func (m Mask) HasPrefix(prefix Mask) bool {
	if len(prefix) > len(m) {
		return false
	}
	return m[:len(prefix)].Equal(prefix)
}

// Matches reports whether values satisfy the mask cell by cell.
// Values beyond the mask length are ignored.
func (m Mask) Matches(values []any) bool {
	if len(values) < len(m) {
		return false
	}
	for i, c := range m {
		if !c.Matches(values[i]) {
			return false
		}
	}
	return true
}

// Clone returns a copy that does not share storage with m.
func (m Mask) Clone() Mask {
	if m == nil {
		return nil
	}
	out := make(Mask, len(m))
	copy(out, m)
	return out
}

// String returns the mask in tuple notation, e.g. "(0, *, 1)".
func (m Mask) String() string {
	parts := make([]string, len(m))
	for i, c := range m {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Comparable reports whether v can be compared with == without panicking.
// Interface fields are checked by their dynamic values, so a struct holding
// a slice in an any field is not comparable.
func Comparable(v any) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).Comparable()
}
