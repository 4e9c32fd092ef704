package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dshills/cuecontrol/internal/config"
	"github.com/dshills/cuecontrol/internal/control"
	"github.com/dshills/cuecontrol/internal/dispatch"
	"github.com/dshills/cuecontrol/internal/transport"
)

const validConfig = `
[osc]
listen = "127.0.0.1:53000"

[[binding]]
protocol = "midi"
message = "note_on 0 60 *"
action = "go"

[[binding]]
protocol = "midi"
message = "note_on 0 *"
action = "go_num"

[[binding]]
name = "panic"
protocol = "osc"
message = "/cue/panic"
script = 'perform("stop_all")'
`

const invalidConfig = `
[[binding]]
protocol = "midi"
message = "note_on 0 60"
action = "go"

[[binding]]
protocol = "midi"
message = "note_on 0 600"
action = "go"

[[binding]]
protocol = "osc"
message = "/cue/x"
script = "perform("
`

func noEnv(string) (string, bool) { return "", false }

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cuecontrol.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmdWithEnv(noEnv)
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestRootCmd_Version(t *testing.T) {
	got, err := execute(t, "--version")
	if err != nil {
		t.Fatalf("--version failed: %v", err)
	}
	if !strings.HasPrefix(got, "cuecontrol dev") {
		t.Errorf("version output = %q", got)
	}
}

func TestActionsCmd(t *testing.T) {
	got, err := execute(t, "actions")
	if err != nil {
		t.Fatalf("actions failed: %v", err)
	}
	for _, want := range []string{"go_num", "Go [Cue index]", "interrupt_selected", "note_on", "pitchwheel"} {
		if !strings.Contains(got, want) {
			t.Errorf("output should contain %q, got:\n%s", want, got)
		}
	}
}

func TestCheckCmd_Valid(t *testing.T) {
	path := writeConfig(t, validConfig)

	got, err := execute(t, "check", "--config", path)
	if err != nil {
		t.Fatalf("check failed: %v\n%s", err, got)
	}
	if !strings.Contains(got, "3 bindings ok, 0 invalid") {
		t.Errorf("unexpected output:\n%s", got)
	}
}

func TestCheckCmd_Invalid(t *testing.T) {
	path := writeConfig(t, invalidConfig)

	got, err := execute(t, "check", "-c", path)
	if !errors.Is(err, errCheckFailed) {
		t.Fatalf("check error = %v, want errCheckFailed", err)
	}
	if n := strings.Count(got, "error: "); n != 2 {
		t.Errorf("expected 2 reported errors, got %d:\n%s", n, got)
	}
	if !strings.Contains(got, "1 bindings ok, 2 invalid") {
		t.Errorf("unexpected summary:\n%s", got)
	}
}

func TestCheckCmd_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"missing file", []string{"check", "-c", filepath.Join(t.TempDir(), "none.toml")}, config.ErrFileNotFound},
		{"bad extension", []string{"check", "-c", "cuecontrol.ini"}, config.ErrUnsupportedFormat},
		{"bad log level", []string{"check", "--log-level", "loud"}, config.ErrValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckCmd_Defaults(t *testing.T) {
	got, err := execute(t, "check")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !strings.Contains(got, "defaults: 0 bindings ok") {
		t.Errorf("unexpected output:\n%s", got)
	}
}

func TestRoutesCmd(t *testing.T) {
	path := writeConfig(t, validConfig)

	got, err := execute(t, "routes", "-c", path)
	if err != nil {
		t.Fatalf("routes failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header and 3 routes, got:\n%s", got)
	}
	want := [][]string{
		{"PROTOCOL", "MESSAGE", "TRIGGERS"},
		{"midi", "note_on 0 60 *", "go"},
		{"midi", "note_on 0 *", "go_num"},
		{"osc", "/cue/panic", "script panic"},
	}
	for i, fields := range want {
		for _, f := range fields {
			if !strings.Contains(lines[i], f) {
				t.Errorf("line %d = %q, want it to contain %q", i, lines[i], f)
			}
		}
	}
}

type recorder struct {
	mu  sync.Mutex
	ids []dispatch.Identifier
	got [][]any
}

func (r *recorder) HandleEvent(_ context.Context, _ string, id dispatch.Identifier, values ...any) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	r.got = append(r.got, values)
	return 1, nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func TestSendCmd(t *testing.T) {
	rec := &recorder{}
	srv := transport.NewOSCServer("127.0.0.1:0", rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()
	addr, err := srv.Addr(waitCtx)
	if err != nil {
		t.Fatalf("Addr() failed: %v", err)
	}

	got, err := execute(t, "send", "--to", addr.String(), "/cue/go, i, 3")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !strings.Contains(got, "sent /cue/go, i, 3") {
		t.Errorf("unexpected output: %q", got)
	}

	deadline := time.Now().Add(5 * time.Second)
	for rec.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("message not received")
		}
		time.Sleep(10 * time.Millisecond)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.ids[0] != "/cue/go, i" {
		t.Errorf("identifier = %q", rec.ids[0])
	}
	if len(rec.got[0]) != 1 || rec.got[0][0] != int32(3) {
		t.Errorf("values = %v", rec.got[0])
	}
}

func TestSendCmd_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"wildcard", []string{"send", "--to", "127.0.0.1:9", "/cue/go, i, *"}, control.ErrNotConcrete},
		{"bad address", []string{"send", "--to", "nowhere", "/cue/go"}, nil},
		{"no message", []string{"send"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPrintPorts_NoDriver(t *testing.T) {
	var buf bytes.Buffer
	if err := printPorts(&buf, nil); !errors.Is(err, transport.ErrNoMIDIDriver) {
		t.Errorf("printPorts() error = %v, want ErrNoMIDIDriver", err)
	}
}
