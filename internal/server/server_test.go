package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cuecontrol/internal/codec"
	"github.com/dshills/cuecontrol/internal/codec/midi"
	"github.com/dshills/cuecontrol/internal/codec/osc"
	"github.com/dshills/cuecontrol/internal/control"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type performed struct {
	mu      sync.Mutex
	actions []string
}

func (p *performed) Perform(action control.Action, args []int) error {
	if action == control.ActionReset {
		return errors.New("reset refused")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, fmt.Sprintf("%s %v", action, args))
	return nil
}

func newTestController(t *testing.T) (*control.Controller, *performed) {
	t.Helper()
	codecs, err := codec.NewRegistry(midi.New(), osc.New())
	require.NoError(t, err)
	p := &performed{}
	ctrl := control.New(p, codecs)
	t.Cleanup(ctrl.Close)
	require.NoError(t, ctrl.Load(context.Background(), []control.Binding{
		{Protocol: "midi", Message: "note_on 0 60 *", Action: "go_num"},
		{Protocol: "midi", Message: "note_on 0 61", Action: "reset", Name: "panic"},
		{Protocol: "osc", Message: "/cue/go", Action: "go"},
	}))
	return ctrl, p
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	ctrl, _ := newTestController(t)
	s := New("127.0.0.1:0", ctrl, WithVersion("1.2.3"))

	w := do(t, s.Handler(), http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, healthResponse{Status: "ok", Version: "1.2.3"}, resp)
}

func TestServer_Routes(t *testing.T) {
	ctrl, _ := newTestController(t)
	s := New("127.0.0.1:0", ctrl)

	w := do(t, s.Handler(), http.MethodGet, "/api/v1/routes", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp []routeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 3)
	for _, r := range resp {
		require.Len(t, r.Bindings, 1)
	}
	assert.Equal(t, "midi", resp[0].Protocol)
	assert.Equal(t, "osc", resp[2].Protocol)
	assert.Equal(t, "go", resp[2].Bindings[0].Action)
}

func TestServer_Bindings(t *testing.T) {
	ctrl, _ := newTestController(t)
	s := New("127.0.0.1:0", ctrl)

	w := do(t, s.Handler(), http.MethodGet, "/api/v1/bindings", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp []bindingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp, 3)

	var names []string
	for _, b := range resp {
		if b.Name != "" {
			names = append(names, b.Name)
		}
	}
	assert.Equal(t, []string{"panic"}, names)
}

func TestServer_Inject(t *testing.T) {
	ctrl, p := newTestController(t)
	s := New("127.0.0.1:0", ctrl)

	tests := []struct {
		name        string
		body        string
		wantCode    int
		wantHandled int
		wantErrors  int
	}{
		{"matched", `{"protocol":"midi","message":"note_on 0 60 100"}`, http.StatusOK, 1, 0},
		{"unmatched", `{"protocol":"osc","message":"/cue/stop"}`, http.StatusOK, 0, 0},
		{"handler failure", `{"protocol":"midi","message":"note_on 0 61 1"}`, http.StatusOK, 0, 1},
		{"wildcard", `{"protocol":"midi","message":"note_on 0 * 1"}`, http.StatusBadRequest, 0, 0},
		{"malformed", `{"protocol":"midi","message":"note_on 0 600"}`, http.StatusBadRequest, 0, 0},
		{"unknown protocol", `{"protocol":"dmx","message":"1 255"}`, http.StatusNotFound, 0, 0},
		{"missing field", `{"protocol":"midi"}`, http.StatusBadRequest, 0, 0},
		{"not json", `note_on`, http.StatusBadRequest, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s.Handler(), http.MethodPost, "/api/v1/events", tt.body)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantCode != http.StatusOK {
				var resp errorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Error)
				return
			}
			var resp injectResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantHandled, resp.Handled)
			assert.Len(t, resp.Errors, tt.wantErrors)
		})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, []string{"go_num [100]"}, p.actions)
}

func TestServer_InjectClosed(t *testing.T) {
	ctrl, _ := newTestController(t)
	s := New("127.0.0.1:0", ctrl)
	ctrl.Close()

	w := do(t, s.Handler(), http.MethodPost, "/api/v1/events", `{"protocol":"osc","message":"/cue/go"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_Metrics(t *testing.T) {
	ctrl, _ := newTestController(t)
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "cuecontrol_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	w := do(t, New("127.0.0.1:0", ctrl, WithGatherer(reg)).Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cuecontrol_test_total 1")

	w = do(t, New("127.0.0.1:0", ctrl).Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Serve(t *testing.T) {
	ctrl, _ := newTestController(t)
	s := New("127.0.0.1:0", ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()
	addr, err := s.Addr(waitCtx)
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String() + "/health")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

func TestServer_ServeBadAddress(t *testing.T) {
	ctrl, _ := newTestController(t)
	assert.Error(t, New("not-an-address", ctrl).Serve(context.Background()))
}
