// Package script runs Lua snippets bound to control messages.
//
// A scripted binding replaces the single session action with a short Lua
// program. The residual message values are exposed as the global table
// args, and perform(action, ...) triggers session actions:
//
//	if args[1] > 64 then
//	    perform("go_num", args[2])
//	else
//	    perform("stop_all")
//	end
//
// Only the base, table, string and math libraries are available. All scripts
// share one Lua state, and every operation on it is serialized through the
// engine goroutine started by Serve.
package script

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/cuecontrol/internal/logging"
)

// DefaultTimeout bounds a single script run.
const DefaultTimeout = 2 * time.Second

// PerformFunc triggers a session action on behalf of a script.
type PerformFunc func(action string, args []int) error

// Script is a compiled Lua chunk.
type Script struct {
	name string
	fn   *lua.LFunction
}

// Name returns the name the script was compiled under.
func (s *Script) Name() string {
	return s.name
}

// call is one operation queued for the engine goroutine.
type call struct {
	fn     func(L *lua.LState) error
	result chan error
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout sets the per-run timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the engine logger. Lua print output is logged at info.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithQueueSize sets how many runs may wait for the engine goroutine.
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

// Engine owns a sandboxed Lua state and serializes all access to it.
type Engine struct {
	L         *lua.LState
	queue     chan *call
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	timeout   time.Duration
	queueSize int
	logger    *logging.Logger

	// perform is the callback of the script currently running. It is only
	// touched on the engine goroutine.
	perform PerformFunc
}

// NewEngine creates an engine. Call Serve to start processing runs.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		done:      make(chan struct{}),
		timeout:   DefaultTimeout,
		queueSize: 64,
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent("script")
	e.queue = make(chan *call, e.queueSize)

	e.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(e.L)
	e.installGlobals()
	return e
}

// openSafeLibraries opens only the libraries scripts may use.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
}

func (e *Engine) installGlobals() {
	e.L.SetGlobal("perform", e.L.NewFunction(e.luaPerform))
	e.L.SetGlobal("print", e.L.NewFunction(e.luaPrint))
}

// luaPerform implements perform(action, ...).
func (e *Engine) luaPerform(L *lua.LState) int {
	action := L.CheckString(1)
	args := make([]int, 0, L.GetTop()-1)
	for i := 2; i <= L.GetTop(); i++ {
		args = append(args, int(L.CheckNumber(i)))
	}

	if e.perform == nil {
		L.RaiseError("perform is not available here")
		return 0
	}
	if err := e.perform(action, args); err != nil {
		L.RaiseError("perform %s: %v", action, err)
	}
	return 0
}

func (e *Engine) luaPrint(L *lua.LState) int {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	e.logger.Info("lua print", zap.String("output", strings.Join(parts, "\t")))
	return 0
}

// Serve processes queued operations until ctx is cancelled or Close is called.
// The Lua state is closed when Serve returns.
func (e *Engine) Serve(ctx context.Context) error {
	defer e.L.Close()
	for {
		select {
		case <-ctx.Done():
			e.Close()
			e.drain(ErrClosed)
			return nil
		case <-e.done:
			e.drain(ErrClosed)
			return nil
		case c := <-e.queue:
			c.result <- e.execute(c)
		}
	}
}

// execute runs one operation with panic recovery.
func (e *Engine) execute(c *call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrRuntime, r)
		}
	}()
	return c.fn(e.L)
}

func (e *Engine) drain(err error) {
	for {
		select {
		case c := <-e.queue:
			c.result <- err
		default:
			return
		}
	}
}

// do queues fn for the engine goroutine and waits for its result.
func (e *Engine) do(ctx context.Context, fn func(L *lua.LState) error) error {
	if e.closed.Load() {
		return ErrClosed
	}

	c := &call{fn: fn, result: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrClosed
	case e.queue <- c:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-c.result:
		return err
	}
}

// Compile parses src into a reusable script.
func (e *Engine) Compile(ctx context.Context, name, src string) (*Script, error) {
	var fn *lua.LFunction
	err := e.do(ctx, func(L *lua.LState) error {
		var err error
		fn, err = L.LoadString(src)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrClosed) || ctx.Err() != nil {
			return nil, err
		}
		return nil, &Error{Script: name, Err: fmt.Errorf("%w: %v", ErrCompile, err)}
	}
	return &Script{name: name, fn: fn}, nil
}

// Run executes s with args bound to the global args table. perform is called
// for every perform(...) in the script; an error it returns aborts the script.
func (e *Engine) Run(ctx context.Context, s *Script, args []any, perform PerformFunc) error {
	if s == nil {
		return ErrNilScript
	}

	err := e.do(ctx, func(L *lua.LState) error {
		runCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		e.perform = perform
		L.SetContext(runCtx)
		defer func() {
			e.perform = nil
			L.RemoveContext()
		}()

		L.SetGlobal("args", toTable(L, args))
		L.Push(s.fn)
		return L.PCall(0, 0, nil)
	})
	if err == nil || errors.Is(err, ErrClosed) || ctx.Err() != nil {
		return err
	}
	if errors.Is(err, ErrRuntime) {
		return &Error{Script: s.name, Err: err}
	}
	return &Error{Script: s.name, Err: fmt.Errorf("%w: %v", ErrRuntime, err)}
}

// Close stops the engine. Pending and future runs fail with ErrClosed.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
	})
}

// toTable converts message values into a Lua array.
func toTable(L *lua.LState, values []any) *lua.LTable {
	t := L.CreateTable(len(values), 0)
	for _, v := range values {
		t.Append(toValue(v))
	}
	return t
}

func toValue(v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case int:
		return lua.LNumber(x)
	case int32:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case uint8:
		return lua.LNumber(x)
	case float32:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	default:
		return lua.LString(fmt.Sprint(x))
	}
}

// Error reports a failure of one script.
type Error struct {
	Script string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("script %s: %v", e.Script, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}
