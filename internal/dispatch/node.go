package dispatch

import (
	"runtime"
	"sort"
	"weak"

	"github.com/dshills/cuecontrol/internal/dispatch/mask"
)

// nodeKind tags a node as inner or leaf. A node is never both.
type nodeKind uint8

const (
	kindInner nodeKind = iota
	kindLeaf
)

// entry is one handler held by a leaf.
type entry struct {
	seq     uint64
	cleanup runtime.Cleanup
}

// node is one level of the dispatch tree.
type node[H any] struct {
	kind     nodeKind
	children map[mask.Cell]*node[H]     // kindInner
	handlers map[weak.Pointer[H]]*entry // kindLeaf
}

func newInner[H any]() *node[H] {
	return &node[H]{
		kind:     kindInner,
		children: make(map[mask.Cell]*node[H]),
	}
}

func newLeaf[H any]() *node[H] {
	return &node[H]{
		kind:     kindLeaf,
		handlers: make(map[weak.Pointer[H]]*entry),
	}
}

func (n *node[H]) isLeaf() bool {
	return n.kind == kindLeaf
}

// isEmpty returns true if the node holds no handlers and no children.
func (n *node[H]) isEmpty() bool {
	if n.isLeaf() {
		return len(n.handlers) == 0
	}
	return len(n.children) == 0
}

// child returns the child for cell. Uncomparable concrete values never match.
func (n *node[H]) child(c mask.Cell) *node[H] {
	if !c.IsWildcard() && !mask.Comparable(c.Value()) {
		return nil
	}
	return n.children[c]
}

// live returns the handlers that are still reachable, in registration order.
func (n *node[H]) live() []*H {
	if len(n.handlers) == 0 {
		return nil
	}

	type ranked struct {
		h   *H
		seq uint64
	}
	alive := make([]ranked, 0, len(n.handlers))
	for wp, e := range n.handlers {
		if h := wp.Value(); h != nil {
			alive = append(alive, ranked{h: h, seq: e.seq})
		}
	}
	sort.Slice(alive, func(i, j int) bool {
		return alive[i].seq < alive[j].seq
	})

	out := make([]*H, len(alive))
	for i, r := range alive {
		out[i] = r.h
	}
	return out
}

// liveCount returns the number of reachable handlers.
func (n *node[H]) liveCount() int {
	count := 0
	for wp := range n.handlers {
		if wp.Value() != nil {
			count++
		}
	}
	return count
}

// stopCleanups cancels the GC callbacks of every handler in the leaf.
func (n *node[H]) stopCleanups() {
	for _, e := range n.handlers {
		e.cleanup.Stop()
	}
}
