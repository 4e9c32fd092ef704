package dispatch

import (
	"github.com/dshills/cuecontrol/internal/dispatch/mask"
)

// Lookup finds the handlers for an incoming message.
//
// An identifier registered with the empty mask wins regardless of values.
// Otherwise values are consumed left to right; at each depth a concrete child
// equal to the value is preferred over the wildcard child. The first leaf
// reached wins, so a shorter mask shadows longer ones under it. There is no
// backtracking: a dead end after a concrete step does not retry the wildcard
// sibling.
//
// The returned mask holds the cells that were followed, including a partial
// path when nothing matched. ok is false when no leaf with live handlers was
// reached.
func (t *Tree[H]) Lookup(id Identifier, values []any) (handlers []*H, matched mask.Mask, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.roots[id]
	if n == nil {
		return nil, nil, false
	}

	matched = make(mask.Mask, 0, len(values))
	if n.isLeaf() {
		handlers = n.live()
		return handlers, matched, len(handlers) > 0
	}

	for _, v := range values {
		var next *node[H]
		cell := mask.Exact(v)
		if mask.Comparable(v) {
			next = n.children[cell]
		}
		if next == nil {
			cell = mask.Any
			next = n.children[mask.Any]
		}
		if next == nil {
			return nil, matched, false
		}

		matched = append(matched, cell)
		n = next
		if n.isLeaf() {
			handlers = n.live()
			return handlers, matched, len(handlers) > 0
		}
	}

	return nil, matched, false
}
