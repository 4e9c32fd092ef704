// Package config loads cuecontrol settings and bindings.
//
// Files are TOML or YAML, chosen by extension. A minimal TOML file:
//
//	[osc]
//	enabled = true
//	listen = "0.0.0.0:53000"
//
//	[[binding]]
//	protocol = "midi"
//	message = "note_on 0 60 *"
//	action = "go"
//
//	[[binding]]
//	protocol = "osc"
//	message = "/cue/start, i"
//	script_file = "scripts/start.lua"
//
// Settings missing from the file keep their defaults. A few settings can be
// overridden from the environment, see ApplyEnv.
package config

import (
	"net"
	"strings"
	"time"

	"github.com/dshills/cuecontrol/internal/control"
	"github.com/dshills/cuecontrol/internal/logging"
)

// Config is the complete cuecontrol configuration.
type Config struct {
	Logging  logging.Config `toml:"logging" yaml:"logging"`
	OSC      OSCConfig      `toml:"osc" yaml:"osc"`
	MIDI     MIDIConfig     `toml:"midi" yaml:"midi"`
	Keyboard KeyboardConfig `toml:"keyboard" yaml:"keyboard"`
	Scripts  ScriptsConfig  `toml:"scripts" yaml:"scripts"`
	Metrics  MetricsConfig  `toml:"metrics" yaml:"metrics"`
	Target   TargetConfig   `toml:"target" yaml:"target"`
	Bindings []Binding      `toml:"binding" yaml:"bindings"`

	// path is the file the configuration was loaded from.
	path string
}

// OSCConfig configures the OSC server.
type OSCConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Listen  string `toml:"listen" yaml:"listen"`
}

// MIDIConfig configures the MIDI input.
type MIDIConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
	// Port selects the input port by case-insensitive substring. Empty
	// selects the first port.
	Port string `toml:"port" yaml:"port"`
}

// KeyboardConfig configures terminal key input.
type KeyboardConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
	// QuitKey stops cuecontrol when pressed, e.g. "Ctrl+Q".
	QuitKey string `toml:"quit_key" yaml:"quit_key"`
}

// ScriptsConfig configures Lua scripted bindings.
type ScriptsConfig struct {
	Timeout   Duration `toml:"timeout" yaml:"timeout"`
	QueueSize int      `toml:"queue_size" yaml:"queue_size"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address serving /metrics. Empty disables the endpoint.
	Listen string `toml:"listen" yaml:"listen"`
}

// TargetConfig configures where performed actions are forwarded. Actions are
// always logged.
type TargetConfig struct {
	// OSC is a host:port receiving one message per action. Empty disables it.
	OSC string `toml:"osc" yaml:"osc"`
	// Prefix is the address prefix of forwarded messages.
	Prefix string `toml:"prefix" yaml:"prefix"`
}

// Binding is a binding as written in the configuration file.
type Binding struct {
	Name     string `toml:"name,omitempty" yaml:"name,omitempty"`
	Protocol string `toml:"protocol" yaml:"protocol"`
	Message  string `toml:"message" yaml:"message"`
	Action   string `toml:"action,omitempty" yaml:"action,omitempty"`
	Cue      string `toml:"cue,omitempty" yaml:"cue,omitempty"`
	Script   string `toml:"script,omitempty" yaml:"script,omitempty"`

	// ScriptFile is a Lua file, relative to the configuration file. It is
	// read into Script when the configuration is loaded.
	ScriptFile string `toml:"script_file,omitempty" yaml:"script_file,omitempty"`
}

// Control converts b to a controller binding.
func (b Binding) Control() control.Binding {
	return control.Binding{
		Protocol: b.Protocol,
		Message:  b.Message,
		Action:   b.Action,
		Cue:      b.Cue,
		Script:   b.Script,
		Name:     b.Name,
	}
}

// Duration is a time.Duration written as a string such as "1500ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: logging.DefaultConfig(),
		OSC: OSCConfig{
			Enabled: true,
			Listen:  "127.0.0.1:53000",
		},
		MIDI: MIDIConfig{
			Enabled: true,
		},
		Keyboard: KeyboardConfig{
			Enabled: false,
			QuitKey: "Ctrl+Q",
		},
		Scripts: ScriptsConfig{
			Timeout:   Duration{2 * time.Second},
			QueueSize: 64,
		},
		Target: TargetConfig{
			Prefix: "/cuecontrol",
		},
	}
}

// Path returns the file the configuration was loaded from, if any.
func (c *Config) Path() string {
	return c.path
}

// ControlBindings returns the bindings in controller form.
func (c *Config) ControlBindings() []control.Binding {
	out := make([]control.Binding, 0, len(c.Bindings))
	for _, b := range c.Bindings {
		out = append(out, b.Control())
	}
	return out
}

// Validate checks the settings. Binding messages are checked when the
// bindings are loaded into a controller, so a bad binding never rejects the
// whole file.
func (c *Config) Validate() error {
	var errs []*ValidationError

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, &ValidationError{Path: "logging.level", Value: c.Logging.Level, Message: "must be debug, info, warn or error"})
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		errs = append(errs, &ValidationError{Path: "logging.format", Value: c.Logging.Format, Message: "must be console or json"})
	}
	if c.OSC.Enabled {
		if _, _, err := net.SplitHostPort(c.OSC.Listen); err != nil {
			errs = append(errs, &ValidationError{Path: "osc.listen", Value: c.OSC.Listen, Message: err.Error()})
		}
	}
	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			errs = append(errs, &ValidationError{Path: "metrics.listen", Value: c.Metrics.Listen, Message: err.Error()})
		}
	}
	if c.Target.OSC != "" {
		if _, _, err := net.SplitHostPort(c.Target.OSC); err != nil {
			errs = append(errs, &ValidationError{Path: "target.osc", Value: c.Target.OSC, Message: err.Error()})
		}
	}
	if !strings.HasPrefix(c.Target.Prefix, "/") {
		errs = append(errs, &ValidationError{Path: "target.prefix", Value: c.Target.Prefix, Message: "must start with /"})
	}
	if c.Scripts.Timeout.Duration < 0 {
		errs = append(errs, &ValidationError{Path: "scripts.timeout", Value: c.Scripts.Timeout.String(), Message: "must not be negative"})
	}
	if c.Scripts.QueueSize < 0 {
		errs = append(errs, &ValidationError{Path: "scripts.queue_size", Value: c.Scripts.QueueSize, Message: "must not be negative"})
	}
	if len(errs) == 0 {
		return nil
	}
	return &ValidationErrors{Errors: errs}
}
