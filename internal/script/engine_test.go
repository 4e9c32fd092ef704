package script

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/cuecontrol/internal/logging"
)

type performed struct {
	action string
	args   []int
}

type recorder struct {
	mu    sync.Mutex
	calls []performed
}

func (r *recorder) perform(action string, args []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, performed{action: action, args: args})
	return nil
}

func (r *recorder) all() []performed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]performed(nil), r.calls...)
}

func startEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e := NewEngine(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e
}

func TestEngine_RunPerforms(t *testing.T) {
	e := startEngine(t)
	ctx := context.Background()

	s, err := e.Compile(ctx, "velocity", `
		if args[1] > 64 then
			perform("go_num", args[2])
		else
			perform("stop_all")
		end
	`)
	require.NoError(t, err)
	assert.Equal(t, "velocity", s.Name())

	var rec recorder
	require.NoError(t, e.Run(ctx, s, []any{100, 7}, rec.perform))
	require.NoError(t, e.Run(ctx, s, []any{10, 7}, rec.perform))

	assert.Equal(t, []performed{
		{action: "go_num", args: []int{7}},
		{action: "stop_all", args: []int{}},
	}, rec.all())
}

func TestEngine_ArgsTypes(t *testing.T) {
	e := startEngine(t)
	ctx := context.Background()

	s, err := e.Compile(ctx, "types", `
		assert(args[1] == 3)
		assert(args[2] == "intro")
		assert(args[3] == true)
		assert(math.floor(args[4] * 2) == 1)
		assert(#args == 4)
		perform("page", string.len(args[2]))
	`)
	require.NoError(t, err)

	var rec recorder
	require.NoError(t, e.Run(ctx, s, []any{int32(3), "intro", true, float32(0.5)}, rec.perform))
	assert.Equal(t, []performed{{action: "page", args: []int{5}}}, rec.all())
}

func TestEngine_CompileError(t *testing.T) {
	e := startEngine(t)

	_, err := e.Compile(context.Background(), "broken", "if then")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCompile))
	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "broken", serr.Script)
}

func TestEngine_RuntimeError(t *testing.T) {
	e := startEngine(t)
	ctx := context.Background()

	s, err := e.Compile(ctx, "boom", `error("nope")`)
	require.NoError(t, err)

	err = e.Run(ctx, s, nil, (&recorder{}).perform)
	assert.True(t, errors.Is(err, ErrRuntime))
	assert.Contains(t, err.Error(), "nope")
}

func TestEngine_PerformErrorAbortsScript(t *testing.T) {
	e := startEngine(t)
	ctx := context.Background()

	s, err := e.Compile(ctx, "abort", `
		perform("unknown")
		perform("go")
	`)
	require.NoError(t, err)

	calls := 0
	err = e.Run(ctx, s, nil, func(action string, _ []int) error {
		calls++
		if action == "unknown" {
			return errors.New("unknown action")
		}
		return nil
	})

	assert.True(t, errors.Is(err, ErrRuntime))
	assert.Contains(t, err.Error(), "unknown action")
	assert.Equal(t, 1, calls)
}

func TestEngine_Sandbox(t *testing.T) {
	e := startEngine(t)
	ctx := context.Background()

	for _, src := range []string{
		`os.exit(1)`,
		`io.write("x")`,
		`dofile("/etc/passwd")`,
		`load("return 1")()`,
		`require("os")`,
	} {
		t.Run(src, func(t *testing.T) {
			s, err := e.Compile(ctx, "sandbox", src)
			require.NoError(t, err)
			err = e.Run(ctx, s, nil, (&recorder{}).perform)
			assert.True(t, errors.Is(err, ErrRuntime), "got %v", err)
		})
	}
}

func TestEngine_Timeout(t *testing.T) {
	e := startEngine(t, WithTimeout(50*time.Millisecond))
	ctx := context.Background()

	s, err := e.Compile(ctx, "spin", `while true do end`)
	require.NoError(t, err)

	start := time.Now()
	err = e.Run(ctx, s, nil, (&recorder{}).perform)

	assert.True(t, errors.Is(err, ErrRuntime), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)

	// The state stays usable after a timeout.
	ok, err := e.Compile(ctx, "ok", `perform("go")`)
	require.NoError(t, err)
	var rec recorder
	require.NoError(t, e.Run(ctx, ok, nil, rec.perform))
	assert.Len(t, rec.all(), 1)
}

func TestEngine_ArgsDoNotLeakBetweenRuns(t *testing.T) {
	e := startEngine(t)
	ctx := context.Background()

	s, err := e.Compile(ctx, "count", `perform("page", #args)`)
	require.NoError(t, err)

	var rec recorder
	require.NoError(t, e.Run(ctx, s, []any{1, 2, 3}, rec.perform))
	require.NoError(t, e.Run(ctx, s, nil, rec.perform))

	calls := rec.all()
	require.Len(t, calls, 2)
	assert.Equal(t, []int{3}, calls[0].args)
	assert.Equal(t, []int{0}, calls[1].args)
}

func TestEngine_Concurrent(t *testing.T) {
	e := startEngine(t)
	ctx := context.Background()

	s, err := e.Compile(ctx, "go", `perform("go_num", args[1])`)
	require.NoError(t, err)

	var rec recorder
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, e.Run(ctx, s, []any{i}, rec.perform))
		}(i)
	}
	wg.Wait()

	assert.Len(t, rec.all(), 20)
}

func TestEngine_Closed(t *testing.T) {
	e := NewEngine()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Serve(context.Background())
	}()

	s, err := e.Compile(context.Background(), "go", `perform("go")`)
	require.NoError(t, err)

	e.Close()
	<-done

	err = e.Run(context.Background(), s, nil, (&recorder{}).perform)
	assert.True(t, errors.Is(err, ErrClosed))
	_, err = e.Compile(context.Background(), "late", "")
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestEngine_RunNil(t *testing.T) {
	e := NewEngine()
	defer e.Close()
	assert.True(t, errors.Is(e.Run(context.Background(), nil, nil, nil), ErrNilScript))
}

func TestEngine_PrintLogs(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	e := startEngine(t, WithLogger(logging.FromZap(zap.New(core))))
	ctx := context.Background()

	s, err := e.Compile(ctx, "print", `print("cue", args[1])`)
	require.NoError(t, err)
	require.NoError(t, e.Run(ctx, s, []any{4}, (&recorder{}).perform))

	entries := logs.FilterMessage("lua print").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "cue\t4", entries[0].ContextMap()["output"])
	assert.Equal(t, "script", entries[0].ContextMap()["component"])
}
