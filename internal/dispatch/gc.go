package dispatch

import (
	"weak"

	"github.com/dshills/cuecontrol/internal/dispatch/mask"
)

// evictArg is what a handler's cleanup needs to find its leaf again.
// It must not reference the handler itself.
type evictArg[H any] struct {
	id   Identifier
	mask mask.Mask
	wp   weak.Pointer[H]
}

// evict runs on the runtime cleanup goroutine after a handler became unreachable.
func (t *Tree[H]) evict(arg evictArg[H]) {
	t.mu.Lock()
	removed := t.detach(arg.id, arg.mask, arg.wp)
	hook := t.config.onEvict
	t.mu.Unlock()

	if removed && hook != nil {
		hook(arg.id, arg.mask)
	}
}

// detach drops wp from the leaf at (id, m) and prunes. Caller must hold the
// write lock.
func (t *Tree[H]) detach(id Identifier, m mask.Mask, wp weak.Pointer[H]) bool {
	path := t.walk(id, m)
	if path == nil {
		return false
	}
	leaf := path[len(path)-1].node
	if !leaf.isLeaf() {
		return false
	}

	e, ok := leaf.handlers[wp]
	if !ok {
		return false
	}
	e.cleanup.Stop()
	delete(leaf.handlers, wp)
	t.dropRoute(wp, id, m)

	t.prune(id, path)
	return true
}

// dropRoute forgets one recorded registration of wp.
func (t *Tree[H]) dropRoute(wp weak.Pointer[H], id Identifier, m mask.Mask) {
	routes := t.routes[wp]
	for i, r := range routes {
		if r.id == id && r.mask.Equal(m) {
			routes = append(routes[:i], routes[i+1:]...)
			break
		}
	}
	if len(routes) == 0 {
		delete(t.routes, wp)
		return
	}
	t.routes[wp] = routes
}

// Detach removes h from the leaf at (id, m) only. It reports whether h was
// registered there.
func (t *Tree[H]) Detach(id Identifier, m mask.Mask, h *H) bool {
	if h == nil {
		return false
	}
	return t.detachWeak(id, m, weak.Make(h))
}

func (t *Tree[H]) detachWeak(id Identifier, m mask.Mask, wp weak.Pointer[H]) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.detach(id, m, wp)
}

// RemoveHandler removes h from every leaf it is registered at and returns
// the number of registrations dropped.
func (t *Tree[H]) RemoveHandler(h *H) int {
	if h == nil {
		return 0
	}
	wp := weak.Make(h)

	t.mu.Lock()
	defer t.mu.Unlock()

	routes := append([]route(nil), t.routes[wp]...)
	removed := 0
	for _, r := range routes {
		if t.detach(r.id, r.mask, wp) {
			removed++
		}
	}
	return removed
}

// Registrations returns the number of (identifier, mask) pairs h is
// registered under.
func (t *Tree[H]) Registrations(h *H) int {
	if h == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.routes[weak.Make(h)])
}
