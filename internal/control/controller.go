// Package control turns incoming protocol messages into session and cue
// actions.
//
// A Binding names a protocol, a wire message and either a session action, an
// action on one cue or a Lua script. The Controller parses bindings with the protocol codecs, registers
// one Handler per binding in a dispatcher per protocol and keeps the only
// strong reference to every handler, so dropping a binding from the
// controller is enough to make it unreachable.
package control

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dshills/cuecontrol/internal/codec"
	"github.com/dshills/cuecontrol/internal/dispatch"
	"github.com/dshills/cuecontrol/internal/dispatch/mask"
	"github.com/dshills/cuecontrol/internal/logging"
	"github.com/dshills/cuecontrol/internal/script"
)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger. Dispatchers log through it too.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the controller metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithDispatchMetrics sets the metrics shared by the per-protocol dispatchers.
func WithDispatchMetrics(m *dispatch.Metrics) Option {
	return func(c *Controller) {
		c.dispatchMetrics = m
	}
}

// WithScripts enables scripted bindings.
func WithScripts(e *script.Engine) Option {
	return func(c *Controller) {
		c.scripts = e
	}
}

// Controller owns the active bindings and routes events to them.
type Controller struct {
	target  Target
	codecs  *codec.Registry
	scripts *script.Engine

	logger          *logging.Logger
	metrics         *Metrics
	dispatchMetrics *dispatch.Metrics

	mu          sync.RWMutex
	dispatchers map[string]*dispatch.Dispatcher[Handler]
	entries     map[string]*Handler
	disabled    map[string]bool
	closed      bool

	// performMu serializes calls into the target.
	performMu sync.Mutex
}

// New creates a controller that performs actions on target and parses
// bindings with codecs.
func New(target Target, codecs *codec.Registry, opts ...Option) *Controller {
	c := &Controller{
		target:      target,
		codecs:      codecs,
		logger:      logging.Nop(),
		dispatchers: make(map[string]*dispatch.Dispatcher[Handler]),
		entries:     make(map[string]*Handler),
		disabled:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("control")
	if c.codecs == nil {
		c.codecs = &codec.Registry{}
	}
	return c
}

// resolve parses b into an unregistered handler without compiling its script.
func (c *Controller) resolve(b Binding) (*Handler, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	cd, err := c.codecs.Get(b.Protocol)
	if err != nil {
		return nil, err
	}
	id, m, err := codec.Parse(cd, b.Message)
	if err != nil {
		return nil, err
	}
	wire, err := cd.Format(id, m)
	if err != nil {
		return nil, err
	}

	h := &Handler{
		binding:    b,
		protocol:   strings.ToLower(cd.Protocol()),
		identifier: id,
		mask:       m,
		wire:       wire,
	}
	switch {
	case b.IsCue():
		h.cue = strings.TrimSpace(b.Cue)
		h.cueAction, _ = ParseCueAction(b.Action)
	case !b.IsScripted():
		h.action, _ = ParseAction(b.Action)
	}
	return h, nil
}

// build resolves b and compiles its script.
func (c *Controller) build(ctx context.Context, b Binding) (*Handler, error) {
	h, err := c.resolve(b)
	if err != nil {
		return nil, err
	}
	if !b.IsScripted() {
		return h, nil
	}
	if c.scripts == nil {
		return nil, ErrNoScripts
	}

	name := b.Name
	if name == "" {
		name = h.protocol + " " + h.wire
	}
	h.script, err = c.scripts.Compile(ctx, name, b.Script)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// dispatcherFor returns the dispatcher for protocol, creating it on first use.
// The caller must hold c.mu for writing.
func (c *Controller) dispatcherFor(protocol string) *dispatch.Dispatcher[Handler] {
	d, ok := c.dispatchers[protocol]
	if !ok {
		d = dispatch.New[Handler](
			dispatch.WithLogger(c.logger.With(zap.String("protocol", protocol))),
			dispatch.WithMetrics(c.dispatchMetrics),
		)
		c.dispatchers[protocol] = d
	}
	return d
}

// register adds h unless an identical binding is already active.
// The caller must hold c.mu for writing.
func (c *Controller) register(h *Handler) error {
	key := h.key()
	if _, exists := c.entries[key]; exists {
		return nil
	}
	reg, err := c.dispatcherFor(h.protocol).Register(h.identifier, h.mask, h)
	if err != nil {
		return err
	}
	h.registration = reg
	c.entries[key] = h
	return nil
}

// Load replaces the active bindings. Bindings that fail to parse, compile or
// register are skipped; their errors are combined in the returned error and
// every other binding is loaded.
func (c *Controller) Load(ctx context.Context, bindings []Binding) error {
	var errs error
	built := make([]*Handler, 0, len(bindings))
	for _, b := range bindings {
		h, err := c.build(ctx, b)
		if err != nil {
			errs = multierr.Append(errs, &BindingError{Binding: b, Err: err})
			continue
		}
		built = append(built, h)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	for _, h := range c.entries {
		h.registration.Release()
	}
	c.entries = make(map[string]*Handler, len(built))

	for _, h := range built {
		if err := c.register(h); err != nil {
			errs = multierr.Append(errs, &BindingError{Binding: h.binding, Err: err})
		}
	}

	c.metrics.setBindings(len(c.entries))
	c.logger.Info("bindings loaded",
		zap.Int("loaded", len(c.entries)),
		zap.Int("failed", len(multierr.Errors(errs))))
	return errs
}

// Add loads one more binding. Adding an active binding again is a no-op.
func (c *Controller) Add(ctx context.Context, b Binding) error {
	h, err := c.build(ctx, b)
	if err != nil {
		return &BindingError{Binding: b, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if err := c.register(h); err != nil {
		return &BindingError{Binding: b, Err: err}
	}
	c.metrics.setBindings(len(c.entries))
	return nil
}

// Remove drops the binding equal to b. It reports whether one was active.
func (c *Controller) Remove(b Binding) bool {
	want, err := c.resolve(b)
	if err != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := want.key()
	h, ok := c.entries[key]
	if !ok {
		return false
	}
	h.registration.Release()
	delete(c.entries, key)
	c.metrics.setBindings(len(c.entries))
	return true
}

// SetCue replaces every binding of cue with bindings, whose Cue fields are
// set to cue. Bindings that fail are skipped and their errors combined.
func (c *Controller) SetCue(ctx context.Context, cue string, bindings []Binding) error {
	cue = strings.TrimSpace(cue)
	if err := ValidateCueID(cue); err != nil {
		return err
	}

	var errs error
	built := make([]*Handler, 0, len(bindings))
	for _, b := range bindings {
		b.Cue = cue
		h, err := c.build(ctx, b)
		if err != nil {
			errs = multierr.Append(errs, &BindingError{Binding: b, Err: err})
			continue
		}
		built = append(built, h)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.removeCue(cue)
	for _, h := range built {
		if err := c.register(h); err != nil {
			errs = multierr.Append(errs, &BindingError{Binding: h.binding, Err: err})
		}
	}
	c.metrics.setBindings(len(c.entries))
	return errs
}

// RemoveCue drops every binding of cue, as when the cue is deleted. It
// returns how many bindings were dropped.
func (c *Controller) RemoveCue(cue string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.removeCue(strings.TrimSpace(cue))
	if n > 0 {
		c.metrics.setBindings(len(c.entries))
		c.logger.Debug("cue bindings removed", zap.String("cue", cue), zap.Int("bindings", n))
	}
	return n
}

// removeCue unregisters the handlers of cue. The caller must hold c.mu for
// writing.
func (c *Controller) removeCue(cue string) int {
	n := 0
	for key, h := range c.entries {
		if h.cue != cue {
			continue
		}
		if d := c.dispatchers[h.protocol]; d != nil {
			d.UnregisterHandler(h)
		}
		delete(c.entries, key)
		n++
	}
	return n
}

// Cues returns the ids of the cues that have bindings, sorted.
func (c *Controller) Cues() []string {
	c.mu.RLock()
	seen := make(map[string]bool)
	for _, h := range c.entries {
		if h.cue != "" {
			seen[h.cue] = true
		}
	}
	c.mu.RUnlock()

	cues := make([]string, 0, len(seen))
	for cue := range seen {
		cues = append(cues, cue)
	}
	sort.Strings(cues)
	return cues
}

// Bindings returns the active bindings ordered by protocol and message.
func (c *Controller) Bindings() []Binding {
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Binding, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.entries[k].binding)
	}
	c.mu.RUnlock()
	return out
}

// Len returns the number of active bindings.
func (c *Controller) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// SetEnabled turns handling of protocol on or off. Bindings stay loaded while
// a protocol is disabled.
func (c *Controller) SetEnabled(protocol string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled[strings.ToLower(protocol)] = !enabled
}

// Enabled reports whether events of protocol are handled.
func (c *Controller) Enabled(protocol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled[strings.ToLower(protocol)]
}

// HandleEvent dispatches one decoded message and runs every matched handler
// with the residual values. It returns how many handlers succeeded. A failing
// handler does not stop the others; their errors are combined.
func (c *Controller) HandleEvent(ctx context.Context, protocol string, id dispatch.Identifier, values ...any) (int, error) {
	protocol = strings.ToLower(protocol)

	c.mu.RLock()
	closed := c.closed
	disabled := c.disabled[protocol]
	d := c.dispatchers[protocol]
	c.mu.RUnlock()

	switch {
	case closed:
		return 0, ErrClosed
	case disabled:
		c.metrics.recordEvent(protocol, ResultDisabled)
		return 0, nil
	case d == nil:
		c.metrics.recordEvent(protocol, dispatch.ResultUnmatched)
		return 0, nil
	}

	match, ok := d.Dispatch(id, values...)
	if !ok {
		c.metrics.recordEvent(protocol, dispatch.ResultUnmatched)
		return 0, nil
	}
	c.metrics.recordEvent(protocol, dispatch.ResultMatched)

	var errs error
	handled := 0
	for _, h := range match.Handlers {
		if err := c.invoke(ctx, h, match.Args); err != nil {
			c.logger.Warn("handler failed",
				zap.String("protocol", protocol),
				zap.String("message", h.wire),
				zap.Error(err))
			errs = multierr.Append(errs, &BindingError{Binding: h.binding, Err: err})
			continue
		}
		handled++
	}
	return handled, errs
}

// Inject parses a concrete message in the protocol's binding syntax, such as
// "note_on 0 60 127", and handles it as if it had been received.
func (c *Controller) Inject(ctx context.Context, protocol, message string) (int, error) {
	cd, err := c.codecs.Get(protocol)
	if err != nil {
		return 0, err
	}
	id, m, err := codec.Parse(cd, message)
	if err != nil {
		return 0, err
	}
	if m.Wildcards() > 0 {
		return 0, fmt.Errorf("%w: %q", ErrNotConcrete, message)
	}
	values := make([]any, m.Len())
	for i, cell := range m {
		values[i] = cell.Value()
	}
	return c.HandleEvent(ctx, cd.Protocol(), id, values...)
}

func (c *Controller) invoke(ctx context.Context, h *Handler, values []any) error {
	if h.cue != "" {
		return c.performCue(h.cue, h.cueAction)
	}
	if h.script != nil {
		err := c.scripts.Run(ctx, h.script, values, c.performNamed)
		c.metrics.recordAction("script", resultOf(err))
		return err
	}

	args, err := coerceArgs(values)
	if err == nil {
		args, err = actionArgs(h.action, args)
	}
	if err != nil {
		c.metrics.recordAction(string(h.action), ResultFailed)
		return err
	}
	return c.perform(h.action, args)
}

// performNamed is the perform callback handed to scripts.
func (c *Controller) performNamed(name string, args []int) error {
	action, err := ParseAction(name)
	if err != nil {
		return err
	}
	args, err = actionArgs(action, args)
	if err != nil {
		return err
	}
	return c.perform(action, args)
}

func (c *Controller) perform(action Action, args []int) error {
	c.performMu.Lock()
	defer c.performMu.Unlock()

	err := c.target.Perform(action, args)
	c.metrics.recordAction(string(action), resultOf(err))
	if err == nil {
		c.logger.Debug("action performed",
			zap.Stringer("action", action),
			zap.Ints("args", args))
	}
	return err
}

// performCue runs action on one cue. Residual message values are not used.
func (c *Controller) performCue(cue string, action CueAction) error {
	label := "cue_" + string(action)
	ct, ok := c.target.(CueTarget)
	if !ok {
		c.metrics.recordAction(label, ResultFailed)
		return ErrNoCueTarget
	}

	c.performMu.Lock()
	defer c.performMu.Unlock()

	err := ct.PerformCue(cue, action)
	c.metrics.recordAction(label, resultOf(err))
	if err == nil {
		c.logger.Debug("cue action performed",
			zap.String("cue", cue),
			zap.Stringer("action", action))
	}
	return err
}

func resultOf(err error) string {
	if err != nil {
		return ResultFailed
	}
	return ResultOK
}

// Route is a snapshot of one registered path.
type Route struct {
	Protocol   string
	Identifier dispatch.Identifier
	Mask       mask.Mask
	Wire       string
	Bindings   []Binding
}

// Routes returns every registered path ordered by protocol, identifier and
// mask.
func (c *Controller) Routes() []Route {
	c.mu.RLock()
	protocols := make([]string, 0, len(c.dispatchers))
	for p := range c.dispatchers {
		protocols = append(protocols, p)
	}
	dispatchers := make(map[string]*dispatch.Dispatcher[Handler], len(c.dispatchers))
	for p, d := range c.dispatchers {
		dispatchers[p] = d
	}
	c.mu.RUnlock()
	sort.Strings(protocols)

	var routes []Route
	for _, p := range protocols {
		cd, _ := c.codecs.Get(p)
		dispatchers[p].Tree().Walk(func(leaf dispatch.Leaf[Handler]) bool {
			r := Route{Protocol: p, Identifier: leaf.Identifier, Mask: leaf.Mask}
			if cd != nil {
				r.Wire, _ = cd.Format(leaf.Identifier, leaf.Mask)
			}
			for _, h := range leaf.Handlers {
				r.Bindings = append(r.Bindings, h.binding)
			}
			routes = append(routes, r)
			return true
		})
	}
	return routes
}

// Close releases every binding. Later calls to Load, Add and HandleEvent
// return ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for _, h := range c.entries {
		h.registration.Release()
	}
	c.entries = make(map[string]*Handler)
	c.metrics.setBindings(0)
}
