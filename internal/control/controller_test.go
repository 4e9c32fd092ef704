package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/dshills/cuecontrol/internal/codec"
	"github.com/dshills/cuecontrol/internal/codec/keyboard"
	"github.com/dshills/cuecontrol/internal/codec/midi"
	"github.com/dshills/cuecontrol/internal/codec/osc"
	"github.com/dshills/cuecontrol/internal/dispatch"
	"github.com/dshills/cuecontrol/internal/script"
)

type call struct {
	action Action
	args   []int
}

type target struct {
	mu    sync.Mutex
	calls []call
	fail  map[Action]error
}

func (t *target) Perform(action Action, args []int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.fail[action]; err != nil {
		return err
	}
	t.calls = append(t.calls, call{action: action, args: args})
	return nil
}

func (t *target) all() []call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]call(nil), t.calls...)
}

func newRegistry(t *testing.T) *codec.Registry {
	t.Helper()
	r, err := codec.NewRegistry(midi.New(), osc.New(), keyboard.New())
	require.NoError(t, err)
	return r
}

func newController(t *testing.T, opts ...Option) (*Controller, *target) {
	t.Helper()
	tgt := &target{}
	c := New(tgt, newRegistry(t), opts...)
	t.Cleanup(c.Close)
	return c, tgt
}

func startScripts(t *testing.T) *script.Engine {
	t.Helper()
	e := script.NewEngine()
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

func keyID(t *testing.T, spec string) dispatch.Identifier {
	t.Helper()
	id, err := keyboard.New().ParseIdentifier(spec)
	require.NoError(t, err)
	return id
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    Action
		wantErr bool
	}{
		{"go", ActionGo, false},
		{"GO", ActionGo, false},
		{" go_num ", ActionGoNum, false},
		{"go-num", ActionGoNum, false},
		{"Pause All", ActionPauseAll, false},
		{"page", ActionPage, false},
		{"explode", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAction(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrUnknownAction))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAction_Metadata(t *testing.T) {
	all := Actions()
	require.Len(t, all, 19)
	assert.Equal(t, ActionGo, all[0])

	for _, a := range all {
		assert.True(t, a.Valid(), a)
		assert.NotEmpty(t, a.Label(), a)
	}

	assert.Equal(t, 0, ActionStopAll.Arity())
	assert.Equal(t, 1, ActionGoNum.Arity())
	assert.Equal(t, 1, ActionPage.Arity())
	assert.Equal(t, "Go [Cue index]", ActionGoNum.Label())
	assert.False(t, Action("nope").Valid())
	assert.Equal(t, "nope", Action("nope").Label())
}

func TestBinding_Validate(t *testing.T) {
	tests := []struct {
		name    string
		binding Binding
		wantErr error
	}{
		{"action", Binding{Protocol: "midi", Message: "note_on 0 60", Action: "go"}, nil},
		{"script", Binding{Protocol: "osc", Message: "/go,", Script: `perform("go")`}, nil},
		{"no protocol", Binding{Message: "note_on", Action: "go"}, ErrInvalidBinding},
		{"no message", Binding{Protocol: "midi", Action: "go"}, ErrInvalidBinding},
		{"neither", Binding{Protocol: "midi", Message: "note_on"}, ErrInvalidBinding},
		{"both", Binding{Protocol: "midi", Message: "note_on", Action: "go", Script: "x"}, ErrInvalidBinding},
		{"unknown action", Binding{Protocol: "midi", Message: "note_on", Action: "explode"}, ErrUnknownAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.binding.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestCoerceArgs(t *testing.T) {
	tests := []struct {
		name    string
		values  []any
		want    []int
		wantErr bool
	}{
		{"empty", nil, []int{}, false},
		{"ints", []any{1, int32(2), int64(3), uint8(4)}, []int{1, 2, 3, 4}, false},
		{"floats truncate", []any{float32(2.9), -1.5}, []int{2, -1}, false},
		{"string", []any{1, "two"}, nil, true},
		{"bool", []any{true}, nil, true},
		{"nil", []any{nil}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerceArgs(tt.values)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrBadArgument), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestController_HandleEvent(t *testing.T) {
	c, tgt := newController(t)
	ctx := context.Background()

	require.NoError(t, c.Load(ctx, []Binding{
		{Protocol: "midi", Message: "note_on 0 60 *", Action: "go"},
		{Protocol: "midi", Message: "control_change 0 7", Action: "go_num"},
		{Protocol: "osc", Message: "/cue/go, i", Action: "go_num"},
		{Protocol: "osc", Message: "/cue/stop,", Action: "stop_all"},
		{Protocol: "keyboard", Message: "<C-g>", Action: "go"},
	}))
	assert.Equal(t, 5, c.Len())

	events := []struct {
		protocol string
		id       dispatch.Identifier
		values   []any
	}{
		{"midi", "note_on", []any{0, 60, 100}},
		{"midi", "control_change", []any{0, 7, 42}},
		{"osc", osc.Identifier("/cue/go", "i"), []any{int32(5)}},
		{"OSC", osc.Identifier("/cue/stop", ""), nil},
		{"keyboard", keyID(t, "Ctrl+G"), nil},
		{"midi", "note_on", []any{0, 61, 100}},
		{"midi", "note_off", []any{0, 60, 0}},
		{"dmx", "go", nil},
	}
	handled := 0
	for _, ev := range events {
		n, err := c.HandleEvent(ctx, ev.protocol, ev.id, ev.values...)
		require.NoError(t, err)
		handled += n
	}

	assert.Equal(t, 5, handled)
	assert.Equal(t, []call{
		{ActionGo, []int{}},
		{ActionGoNum, []int{42}},
		{ActionGoNum, []int{5}},
		{ActionStopAll, []int{}},
		{ActionGo, []int{}},
	}, tgt.all())
}

func TestController_LoadAggregatesErrors(t *testing.T) {
	c, _ := newController(t)

	err := c.Load(context.Background(), []Binding{
		{Protocol: "midi", Message: "note_on 0 60 *", Action: "go"},
		{Protocol: "midi", Message: "note_on 0 60", Action: "stop_all"},
		{Protocol: "dmx", Message: "1 255", Action: "go"},
		{Protocol: "midi", Message: "note_on 0 60", Action: "explode"},
		{Protocol: "midi", Message: "note_on 16", Action: "go"},
	})

	require.Error(t, err)
	errs := multierr.Errors(err)
	assert.Len(t, errs, 4)
	assert.True(t, errors.Is(err, dispatch.ErrConflict))
	assert.True(t, errors.Is(err, codec.ErrUnknownProtocol))
	assert.True(t, errors.Is(err, ErrUnknownAction))
	assert.True(t, errors.Is(err, midi.ErrRange))

	var berr *BindingError
	require.True(t, errors.As(errs[0], &berr))
	assert.Equal(t, "dmx", berr.Binding.Protocol)

	assert.Equal(t, 1, c.Len())
}

func TestController_LoadReplaces(t *testing.T) {
	c, tgt := newController(t)
	ctx := context.Background()

	require.NoError(t, c.Load(ctx, []Binding{
		{Protocol: "midi", Message: "note_on 0 60 *", Action: "go"},
	}))
	var old *Handler
	for _, h := range c.entries {
		old = h
	}
	require.NotNil(t, old)

	require.NoError(t, c.Load(ctx, []Binding{
		{Protocol: "midi", Message: "note_on 0 60", Action: "page"},
	}))

	assert.False(t, old.registration.Active())

	n, err := c.HandleEvent(ctx, "midi", "note_on", 0, 60, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []call{{ActionPage, []int{3}}}, tgt.all())
}

func TestController_AddIsIdempotent(t *testing.T) {
	c, tgt := newController(t)
	ctx := context.Background()
	b := Binding{Protocol: "midi", Message: "note_on 0 60 *", Action: "go"}

	require.NoError(t, c.Add(ctx, b))
	require.NoError(t, c.Add(ctx, Binding{Protocol: "MIDI", Message: "note_on  0 60 -1", Action: "GO"}))
	assert.Equal(t, 1, c.Len())

	n, err := c.HandleEvent(ctx, "midi", "note_on", 0, 60, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, tgt.all(), 1)
}

func TestController_AddConflict(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, Binding{Protocol: "midi", Message: "note_on 0", Action: "go"}))
	err := c.Add(ctx, Binding{Protocol: "midi", Message: "note_on 0 60", Action: "go"})

	assert.True(t, errors.Is(err, dispatch.ErrConflict))
	assert.Equal(t, 1, c.Len())
}

func TestController_Remove(t *testing.T) {
	c, tgt := newController(t)
	ctx := context.Background()
	b := Binding{Protocol: "osc", Message: "/cue/go, i", Action: "go_num"}

	require.NoError(t, c.Add(ctx, b))
	assert.True(t, c.Remove(b))
	assert.False(t, c.Remove(b))
	assert.False(t, c.Remove(Binding{Protocol: "bogus"}))

	n, err := c.HandleEvent(ctx, "osc", osc.Identifier("/cue/go", "i"), int32(1))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, tgt.all())
	assert.Empty(t, c.Routes())
}

func TestController_SharedPath(t *testing.T) {
	c, tgt := newController(t)
	ctx := context.Background()

	require.NoError(t, c.Load(ctx, []Binding{
		{Protocol: "midi", Message: "program_change 0", Action: "select_num"},
		{Protocol: "midi", Message: "program_change 0", Action: "go_num"},
	}))

	n, err := c.HandleEvent(ctx, "midi", "program_change", 0, 12)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []call{
		{ActionSelectNum, []int{12}},
		{ActionGoNum, []int{12}},
	}, tgt.all())
}

func TestController_HandlerFailureIsolated(t *testing.T) {
	c, tgt := newController(t)
	tgt.fail = map[Action]error{ActionGo: errors.New("no cue selected")}
	ctx := context.Background()

	require.NoError(t, c.Load(ctx, []Binding{
		{Protocol: "keyboard", Message: "Space", Action: "go"},
		{Protocol: "keyboard", Message: "Space", Action: "select_next"},
	}))

	n, err := c.HandleEvent(ctx, "keyboard", keyID(t, "Space"))
	assert.Equal(t, 1, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no cue selected")
	assert.Equal(t, []call{{ActionSelectNext, []int{}}}, tgt.all())
}

func TestController_ArgumentErrors(t *testing.T) {
	c, tgt := newController(t)
	ctx := context.Background()

	require.NoError(t, c.Load(ctx, []Binding{
		{Protocol: "midi", Message: "note_on 0 60 100", Action: "go_num"},
		{Protocol: "osc", Message: "/cue/name, s", Action: "select_num"},
	}))

	_, err := c.HandleEvent(ctx, "midi", "note_on", 0, 60, 100)
	assert.True(t, errors.Is(err, ErrMissingArgument), "got %v", err)

	_, err = c.HandleEvent(ctx, "osc", osc.Identifier("/cue/name", "s"), "intro")
	assert.True(t, errors.Is(err, ErrBadArgument), "got %v", err)

	assert.Empty(t, tgt.all())
}

func TestController_Enabled(t *testing.T) {
	c, tgt := newController(t)
	ctx := context.Background()
	require.NoError(t, c.Add(ctx, Binding{Protocol: "midi", Message: "note_on", Action: "go"}))

	assert.True(t, c.Enabled("midi"))
	c.SetEnabled("MIDI", false)
	assert.False(t, c.Enabled("midi"))

	n, err := c.HandleEvent(ctx, "midi", "note_on", 0, 60, 100)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, tgt.all())
	assert.Equal(t, 1, c.Len())

	c.SetEnabled("midi", true)
	n, err = c.HandleEvent(ctx, "midi", "note_on", 0, 60, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestController_Scripts(t *testing.T) {
	c, tgt := newController(t, WithScripts(startScripts(t)))
	ctx := context.Background()

	require.NoError(t, c.Load(ctx, []Binding{
		{
			Protocol: "midi",
			Message:  "note_on 0 *",
			Name:     "velocity go",
			Script: `
				if args[2] > 64 then
					perform("go_num", args[1])
				else
					perform("stop_all")
				end`,
		},
		{Protocol: "osc", Message: "/bad,", Script: `perform("explode")`},
		{Protocol: "osc", Message: "/short,", Script: `perform("page")`},
	}))

	_, err := c.HandleEvent(ctx, "midi", "note_on", 0, 61, 100)
	require.NoError(t, err)
	_, err = c.HandleEvent(ctx, "midi", "note_on", 0, 61, 10)
	require.NoError(t, err)

	_, err = c.HandleEvent(ctx, "osc", osc.Identifier("/bad", ""))
	assert.True(t, errors.Is(err, script.ErrRuntime), "got %v", err)
	assert.Contains(t, err.Error(), "unknown action")

	_, err = c.HandleEvent(ctx, "osc", osc.Identifier("/short", ""))
	assert.Contains(t, err.Error(), "missing action argument")

	assert.Equal(t, []call{
		{ActionGoNum, []int{61}},
		{ActionStopAll, []int{}},
	}, tgt.all())
}

func TestController_ScriptErrors(t *testing.T) {
	c, _ := newController(t)
	err := c.Add(context.Background(), Binding{Protocol: "midi", Message: "note_on", Script: `perform("go")`})
	assert.True(t, errors.Is(err, ErrNoScripts))

	c, _ = newController(t, WithScripts(startScripts(t)))
	err = c.Add(context.Background(), Binding{Protocol: "midi", Message: "note_on", Script: "if then"})
	assert.True(t, errors.Is(err, script.ErrCompile))
	assert.Zero(t, c.Len())
}

func TestController_Routes(t *testing.T) {
	c, _ := newController(t)
	require.NoError(t, c.Load(context.Background(), []Binding{
		{Protocol: "osc", Message: "/cue/go, i, *", Action: "go"},
		{Protocol: "midi", Message: "note_on 0 -1 *", Action: "go"},
		{Protocol: "midi", Message: "note_on 0 60 *", Action: "stop_all", Name: "panic"},
	}))

	routes := c.Routes()
	require.Len(t, routes, 3)

	var wires []string
	for _, r := range routes {
		wires = append(wires, r.Protocol+": "+r.Wire)
	}
	assert.Equal(t, []string{
		"midi: note_on 0 60 *",
		"midi: note_on 0 * *",
		"osc: /cue/go, i, *",
	}, wires)
	require.Len(t, routes[0].Bindings, 1)
	assert.Equal(t, "panic", routes[0].Bindings[0].Name)
}

func TestController_Bindings(t *testing.T) {
	c, _ := newController(t)
	in := []Binding{
		{Protocol: "osc", Message: "/cue/go,", Action: "go"},
		{Protocol: "midi", Message: "note_on 0", Action: "go"},
	}
	require.NoError(t, c.Load(context.Background(), in))

	got := c.Bindings()
	require.Len(t, got, 2)
	assert.Equal(t, "midi", got[0].Protocol)
	assert.Equal(t, "osc", got[1].Protocol)
}

func TestController_Close(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()
	require.NoError(t, c.Add(ctx, Binding{Protocol: "midi", Message: "note_on", Action: "go"}))

	c.Close()
	c.Close()

	assert.Zero(t, c.Len())
	_, err := c.HandleEvent(ctx, "midi", "note_on", 0, 1, 1)
	assert.True(t, errors.Is(err, ErrClosed))
	assert.True(t, errors.Is(c.Load(ctx, nil), ErrClosed))
	assert.True(t, errors.Is(c.Add(ctx, Binding{Protocol: "midi", Message: "note_on", Action: "go"}), ErrClosed))
}

func TestController_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	dm := dispatch.NewMetrics(reg)
	c, tgt := newController(t, WithMetrics(m), WithDispatchMetrics(dm))
	tgt.fail = map[Action]error{ActionStopAll: errors.New("busy")}
	ctx := context.Background()

	require.NoError(t, c.Load(ctx, []Binding{
		{Protocol: "midi", Message: "note_on 0", Action: "go"},
		{Protocol: "midi", Message: "note_off 0", Action: "stop_all"},
	}))
	_, _ = c.HandleEvent(ctx, "midi", "note_on", 0, 60, 100)
	_, _ = c.HandleEvent(ctx, "midi", "note_off", 0, 60, 0)
	_, _ = c.HandleEvent(ctx, "midi", "pitchwheel", 0, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bindings))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("go", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("stop_all", ResultFailed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("midi", dispatch.ResultMatched)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("midi", dispatch.ResultUnmatched)))

	count, err := testutil.GatherAndCount(reg, "cuecontrol_dispatch_registrations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestController_Concurrent(t *testing.T) {
	c, tgt := newController(t)
	ctx := context.Background()
	require.NoError(t, c.Add(ctx, Binding{Protocol: "midi", Message: "control_change 0 1", Action: "page"}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.HandleEvent(ctx, "midi", "control_change", 0, 1, i)
			assert.NoError(t, err)
		}(i)
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := Binding{Protocol: "midi", Message: fmt.Sprintf("note_on 0 %d", i), Action: "go"}
			assert.NoError(t, c.Add(ctx, b))
			assert.True(t, c.Remove(b))
		}(i)
	}
	wg.Wait()

	assert.Len(t, tgt.all(), 50)
	assert.Equal(t, 1, c.Len())
}

func TestController_Inject(t *testing.T) {
	c, tgt := newController(t)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx, []Binding{
		{Protocol: "midi", Message: "note_on 0 60 *", Action: "go_num"},
		{Protocol: "osc", Message: "/cue/stop, i, *", Action: "stop_num"},
	}))

	n, err := c.Inject(ctx, "midi", "note_on 0 60 127")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = c.Inject(ctx, "OSC", "/cue/stop, i, 4")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, []call{
		{ActionGoNum, []int{127}},
		{ActionStopNum, []int{4}},
	}, tgt.all())

	_, err = c.Inject(ctx, "midi", "note_on 0 * 127")
	assert.ErrorIs(t, err, ErrNotConcrete)

	_, err = c.Inject(ctx, "dmx", "1 255")
	assert.Error(t, err)

	_, err = c.Inject(ctx, "midi", "note_on 0 999 1")
	assert.Error(t, err)
}
