package config

import (
	"fmt"
	"sort"
	"strconv"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "CUECONTROL_"

// LookupFunc reads one environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// envSetter applies one environment value to a configuration.
type envSetter func(c *Config, value string) error

// envMapping maps environment variables to the settings they override.
var envMapping = map[string]envSetter{
	EnvPrefix + "LOG_LEVEL":        func(c *Config, v string) error { c.Logging.Level = v; return nil },
	EnvPrefix + "LOG_FORMAT":       func(c *Config, v string) error { c.Logging.Format = v; return nil },
	EnvPrefix + "LOG_OUTPUT":       func(c *Config, v string) error { c.Logging.Output = v; return nil },
	EnvPrefix + "OSC_ENABLED":      boolSetter(func(c *Config) *bool { return &c.OSC.Enabled }),
	EnvPrefix + "OSC_LISTEN":       func(c *Config, v string) error { c.OSC.Listen = v; return nil },
	EnvPrefix + "MIDI_ENABLED":     boolSetter(func(c *Config) *bool { return &c.MIDI.Enabled }),
	EnvPrefix + "MIDI_PORT":        func(c *Config, v string) error { c.MIDI.Port = v; return nil },
	EnvPrefix + "KEYBOARD_ENABLED": boolSetter(func(c *Config) *bool { return &c.Keyboard.Enabled }),
	EnvPrefix + "METRICS_LISTEN":   func(c *Config, v string) error { c.Metrics.Listen = v; return nil },
	EnvPrefix + "TARGET_OSC":       func(c *Config, v string) error { c.Target.OSC = v; return nil },
}

func boolSetter(field func(c *Config) *bool) envSetter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

// EnvVars returns the supported environment variables in sorted order.
func EnvVars() []string {
	names := make([]string, 0, len(envMapping))
	for name := range envMapping {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyEnv overrides settings from the environment.
// Note: Empty string values are treated as valid values, not as unset.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	for _, name := range EnvVars() {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		if err := envMapping[name](c, v); err != nil {
			return &ValidationError{Path: name, Value: v, Message: err.Error()}
		}
	}
	return nil
}

// LoadDefault returns the defaults with environment overrides, for running
// without a configuration file.
func LoadDefault(lookup LookupFunc) (*Config, error) {
	cfg := Default()
	if lookup != nil {
		if err := cfg.ApplyEnv(lookup); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	return cfg, nil
}
