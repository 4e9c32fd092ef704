package dispatch

import (
	"errors"
	"weak"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/cuecontrol/internal/dispatch/mask"
	"github.com/dshills/cuecontrol/internal/logging"
)

// Match is the result of dispatching one message.
type Match[H any] struct {
	// Identifier is the message identifier that was looked up.
	Identifier Identifier

	// Handlers are the live handlers of the matched leaf, in registration order.
	Handlers []*H

	// Mask is the path that was followed to the leaf.
	Mask mask.Mask

	// Args are the values left after removing positions pinned by Mask.
	Args []any
}

// Option configures a Dispatcher.
type Option func(*options)

type options struct {
	logger  *logging.Logger
	metrics *Metrics
}

// WithLogger sets the dispatcher logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// Dispatcher routes (identifier, values) messages to weakly held handlers.
// It is an explicitly owned value; create one per controller.
type Dispatcher[H any] struct {
	tree    *Tree[H]
	logger  *logging.Logger
	metrics *Metrics
}

// New creates a dispatcher.
func New[H any](opts ...Option) *Dispatcher[H] {
	o := options{logger: logging.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	d := &Dispatcher[H]{
		logger:  o.logger.WithComponent("dispatch"),
		metrics: o.metrics,
	}
	d.tree = NewTree[H](WithEvictHook(d.onEvict))
	return d
}

func (d *Dispatcher[H]) onEvict(id Identifier, m mask.Mask) {
	d.metrics.RecordEviction()
	d.logger.Debug("handler collected",
		zap.String("identifier", string(id)),
		zap.Stringer("mask", m))
}

// Tree returns the underlying dispatch tree.
func (d *Dispatcher[H]) Tree() *Tree[H] {
	return d.tree
}

// Register adds h under (id, m) and returns a token that releases exactly
// this registration. The dispatcher does not keep h alive; callers own it.
func (d *Dispatcher[H]) Register(id Identifier, m mask.Mask, h *H) (*Registration[H], error) {
	if err := d.tree.Add(id, h, m); err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			d.metrics.RecordRegistration(ResultConflict)
			d.logger.Warn("registration rejected",
				zap.String("identifier", string(id)),
				zap.Stringer("mask", m),
				zap.Error(err))
		} else {
			d.metrics.RecordRegistration(ResultInvalid)
		}
		return nil, err
	}

	d.metrics.RecordRegistration(ResultRegistered)
	return &Registration[H]{
		id:         uuid.NewString(),
		identifier: id,
		mask:       m.Clone(),
		handler:    weak.Make(h),
		owner:      d,
	}, nil
}

// Unregister removes the leaf at (id, m) and returns the handlers it held.
// A missing path is not an error and returns nil.
func (d *Dispatcher[H]) Unregister(id Identifier, m mask.Mask) []*H {
	removed := d.tree.Remove(id, m)
	if len(removed) > 0 {
		d.logger.Debug("leaf removed",
			zap.String("identifier", string(id)),
			zap.Stringer("mask", m),
			zap.Int("handlers", len(removed)))
	}
	return removed
}

// UnregisterHandler drops h from every path it was registered at.
func (d *Dispatcher[H]) UnregisterHandler(h *H) int {
	return d.tree.RemoveHandler(h)
}

// Dispatch looks up the handlers for (id, values) and filters the values
// they receive. ok is false when nothing matched or the message was malformed.
func (d *Dispatcher[H]) Dispatch(id Identifier, values ...any) (Match[H], bool) {
	handlers, matched, ok := d.tree.Lookup(id, values)
	if !ok {
		d.metrics.RecordDispatch(id, ResultUnmatched)
		d.logger.Debug("no handler",
			zap.String("identifier", string(id)),
			zap.Int("values", len(values)))
		return Match[H]{}, false
	}

	args, err := Filter(matched, values...)
	if err != nil {
		d.metrics.RecordDispatch(id, ResultMalformed)
		d.logger.Warn("malformed message",
			zap.String("identifier", string(id)),
			zap.Error(err))
		return Match[H]{}, false
	}

	d.metrics.RecordDispatch(id, ResultMatched)
	return Match[H]{
		Identifier: id,
		Handlers:   handlers,
		Mask:       matched,
		Args:       args,
	}, true
}

// Count returns the number of live handlers at exactly (id, m).
func (d *Dispatcher[H]) Count(id Identifier, m mask.Mask) int {
	return d.tree.Size(id, m)
}

// Clear removes every registration. Outstanding tokens become no-ops.
func (d *Dispatcher[H]) Clear() {
	d.tree.Clear()
}

// Registration is the token returned by Register. It references its handler
// weakly, so holding a token does not keep the handler registered forever.
type Registration[H any] struct {
	id         string
	identifier Identifier
	mask       mask.Mask
	handler    weak.Pointer[H]
	owner      *Dispatcher[H]
}

// ID returns the unique registration id.
func (r *Registration[H]) ID() string {
	return r.id
}

// Identifier returns the registered message identifier.
func (r *Registration[H]) Identifier() Identifier {
	return r.identifier
}

// Mask returns a copy of the registered mask.
func (r *Registration[H]) Mask() mask.Mask {
	return r.mask.Clone()
}

// Active reports whether the handler is still registered at this path.
func (r *Registration[H]) Active() bool {
	h := r.handler.Value()
	if h == nil {
		return false
	}
	for _, live := range r.owner.tree.handlersAt(r.identifier, r.mask) {
		if live == h {
			return true
		}
	}
	return false
}

// Release removes the handler from this path. It is safe to call more than
// once and after the handler was collected.
func (r *Registration[H]) Release() bool {
	if r == nil || r.owner == nil {
		return false
	}
	if !r.owner.tree.detachWeak(r.identifier, r.mask, r.handler) {
		return false
	}
	r.owner.metrics.RecordRelease()
	return true
}
