package dispatch

import (
	"runtime"
	"sort"
	"sync"
	"weak"

	"github.com/dshills/cuecontrol/internal/dispatch/mask"
)

// Identifier names a class of messages, e.g. "note_on", "/cue/go, i" or "Space".
// Identifiers are independent namespaces.
type Identifier string

// EvictFunc is called after a handler was dropped from a leaf because it was
// garbage collected.
type EvictFunc func(id Identifier, m mask.Mask)

// TreeOption configures a Tree.
type TreeOption func(*treeConfig)

type treeConfig struct {
	onEvict EvictFunc
}

// WithEvictHook sets a callback invoked after every garbage-collection eviction.
// The callback runs without the tree lock held.
func WithEvictHook(fn EvictFunc) TreeOption {
	return func(c *treeConfig) {
		c.onEvict = fn
	}
}

// route records where a handler was registered so it can be found again
// without re-walking from message values.
type route struct {
	id   Identifier
	mask mask.Mask
}

// Tree maps message identifiers to mask trees whose leaves hold weakly
// referenced handlers.
//
// The tree never keeps a handler alive. When the last strong reference to a
// handler is dropped the handler is evicted from every leaf it was registered
// at and emptied nodes are pruned up to and including the identifier root.
//
// Tree is safe for concurrent use: lookups share a read lock, mutations and
// evictions take the write lock.
type Tree[H any] struct {
	mu     sync.RWMutex
	roots  map[Identifier]*node[H]
	routes map[weak.Pointer[H]][]route
	seq    uint64
	config treeConfig
}

// NewTree creates an empty dispatch tree.
func NewTree[H any](opts ...TreeOption) *Tree[H] {
	t := &Tree[H]{
		roots:  make(map[Identifier]*node[H]),
		routes: make(map[weak.Pointer[H]][]route),
	}
	for _, opt := range opts {
		opt(&t.config)
	}
	return t
}

// pathEntry tracks a node and the cell used to reach it during traversal.
type pathEntry[H any] struct {
	node *node[H]
	key  mask.Cell
}

// Add registers h under (id, m).
//
// Walking stops with a *ConflictError when a shorter mask already ends on the
// path, or when longer masks already continue below the requested leaf. The
// tree is unchanged on error. Adding the same (id, m, h) twice is a no-op.
func (t *Tree[H]) Add(id Identifier, h *H, m mask.Mask) error {
	if id == "" {
		return ErrInvalidIdentifier
	}
	if h == nil {
		return ErrNilHandler
	}
	if err := m.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.init()

	if err := t.checkConflict(id, m); err != nil {
		return err
	}

	leaf := t.grow(id, m)

	wp := weak.Make(h)
	if _, exists := leaf.handlers[wp]; exists {
		return nil
	}

	t.seq++
	stored := m.Clone()
	e := &entry{seq: t.seq}
	e.cleanup = runtime.AddCleanup(h, t.evict, evictArg[H]{id: id, mask: stored, wp: wp})
	leaf.handlers[wp] = e
	t.routes[wp] = append(t.routes[wp], route{id: id, mask: stored})
	return nil
}

// init prepares a zero-value tree. Caller must hold the write lock.
func (t *Tree[H]) init() {
	if t.roots == nil {
		t.roots = make(map[Identifier]*node[H])
	}
	if t.routes == nil {
		t.routes = make(map[weak.Pointer[H]][]route)
	}
}

// checkConflict validates the path of m without mutating anything.
func (t *Tree[H]) checkConflict(id Identifier, m mask.Mask) error {
	n := t.roots[id]
	if n == nil {
		return nil
	}

	for i, c := range m {
		if n.isLeaf() {
			return &ConflictError{Identifier: id, Mask: m.Clone(), At: m[:i].Clone(), Shorter: true}
		}
		n = n.children[c]
		if n == nil {
			return nil
		}
	}

	if !n.isLeaf() {
		return &ConflictError{Identifier: id, Mask: m.Clone(), At: m.Clone()}
	}
	return nil
}

// grow creates the nodes along m and returns the leaf. Caller must have
// checked for conflicts.
func (t *Tree[H]) grow(id Identifier, m mask.Mask) *node[H] {
	root := t.roots[id]
	if len(m) == 0 {
		if root == nil {
			root = newLeaf[H]()
			t.roots[id] = root
		}
		return root
	}

	if root == nil {
		root = newInner[H]()
		t.roots[id] = root
	}

	n := root
	for i, c := range m {
		child := n.children[c]
		if child == nil {
			if i == len(m)-1 {
				child = newLeaf[H]()
			} else {
				child = newInner[H]()
			}
			n.children[c] = child
		}
		n = child
	}
	return n
}

// walk returns the exact path for m starting with the root, or nil if any
// node on it is missing. No wildcard fallback is applied.
func (t *Tree[H]) walk(id Identifier, m mask.Mask) []pathEntry[H] {
	root := t.roots[id]
	if root == nil {
		return nil
	}

	path := make([]pathEntry[H], 0, len(m)+1)
	path = append(path, pathEntry[H]{node: root})

	n := root
	for _, c := range m {
		if n.isLeaf() {
			return nil
		}
		child := n.child(c)
		if child == nil {
			return nil
		}
		path = append(path, pathEntry[H]{node: child, key: c})
		n = child
	}
	return path
}

// prune removes empty nodes from the end of path back to the root. An empty
// root drops the identifier.
func (t *Tree[H]) prune(id Identifier, path []pathEntry[H]) {
	for i := len(path) - 1; i > 0; i-- {
		if !path[i].node.isEmpty() {
			return
		}
		delete(path[i-1].node.children, path[i].key)
	}
	if len(path) > 0 && path[0].node.isEmpty() {
		delete(t.roots, id)
	}
}

// Remove deletes the leaf at exactly (id, m) and returns the handlers it held.
// It returns nil when m does not end on a leaf. Emptied ancestors are pruned.
func (t *Tree[H]) Remove(id Identifier, m mask.Mask) []*H {
	t.mu.Lock()
	defer t.mu.Unlock()

	path := t.walk(id, m)
	if path == nil {
		return nil
	}
	leaf := path[len(path)-1].node
	if !leaf.isLeaf() {
		return nil
	}

	removed := leaf.live()
	leaf.stopCleanups()
	for wp := range leaf.handlers {
		t.dropRoute(wp, id, m)
	}
	leaf.handlers = make(map[weak.Pointer[H]]*entry)

	t.prune(id, path)
	return removed
}

// Size returns the number of live handlers registered at exactly (id, m).
//
// If a leaf is reached before m is exhausted its count is returned, since a
// shorter registration covers the requested path. A path ending on an inner
// node, or a missing path, yields 0.
func (t *Tree[H]) Size(id Identifier, m mask.Mask) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.roots[id]
	if n == nil {
		return 0
	}
	for _, c := range m {
		if n.isLeaf() {
			return n.liveCount()
		}
		n = n.child(c)
		if n == nil {
			return 0
		}
	}
	if n.isLeaf() {
		return n.liveCount()
	}
	return 0
}

// handlersAt returns the live handlers of the leaf at exactly (id, m).
func (t *Tree[H]) handlersAt(id Identifier, m mask.Mask) []*H {
	t.mu.RLock()
	defer t.mu.RUnlock()

	path := t.walk(id, m)
	if path == nil {
		return nil
	}
	leaf := path[len(path)-1].node
	if !leaf.isLeaf() {
		return nil
	}
	return leaf.live()
}

// Clear removes every registration.
func (t *Tree[H]) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, root := range t.roots {
		stopAll(root)
	}
	t.roots = make(map[Identifier]*node[H])
	t.routes = make(map[weak.Pointer[H]][]route)
}

func stopAll[H any](n *node[H]) {
	if n.isLeaf() {
		n.stopCleanups()
		return
	}
	for _, child := range n.children {
		stopAll(child)
	}
}

// Identifiers returns the registered identifiers in sorted order.
func (t *Tree[H]) Identifiers() []Identifier {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]Identifier, 0, len(t.roots))
	for id := range t.roots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// NodeCount returns the total number of nodes including identifier roots.
// This is useful for checking that pruning keeps the tree bounded.
func (t *Tree[H]) NodeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, root := range t.roots {
		countNodes(root, &count)
	}
	return count
}

func countNodes[H any](n *node[H], count *int) {
	*count++
	for _, child := range n.children {
		countNodes(child, count)
	}
}

// Leaf is a snapshot of one registered path.
type Leaf[H any] struct {
	Identifier Identifier
	Mask       mask.Mask
	Handlers   []*H
}

// Leaves returns a snapshot of every leaf, ordered by identifier and then by
// printed mask with wildcards after concrete values.
func (t *Tree[H]) Leaves() []Leaf[H] {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]Identifier, 0, len(t.roots))
	for id := range t.roots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var leaves []Leaf[H]
	for _, id := range ids {
		collectLeaves(id, t.roots[id], nil, &leaves)
	}
	return leaves
}

func collectLeaves[H any](id Identifier, n *node[H], prefix mask.Mask, out *[]Leaf[H]) {
	if n.isLeaf() {
		*out = append(*out, Leaf[H]{Identifier: id, Mask: prefix.Clone(), Handlers: n.live()})
		return
	}

	keys := make([]mask.Cell, 0, len(n.children))
	for c := range n.children {
		keys = append(keys, c)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].IsWildcard() != keys[j].IsWildcard() {
			return keys[j].IsWildcard()
		}
		return keys[i].String() < keys[j].String()
	})

	for _, c := range keys {
		collectLeaves(id, n.children[c], append(prefix, c), out)
	}
}

// Walk calls fn for every leaf in the order of Leaves until fn returns false.
// fn runs on a snapshot, so it may mutate the tree.
func (t *Tree[H]) Walk(fn func(Leaf[H]) bool) {
	for _, leaf := range t.Leaves() {
		if !fn(leaf) {
			return
		}
	}
}
