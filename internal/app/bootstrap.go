package app

import (
	"context"
	"fmt"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/dshills/cuecontrol/internal/codec"
	"github.com/dshills/cuecontrol/internal/codec/keyboard"
	"github.com/dshills/cuecontrol/internal/codec/midi"
	"github.com/dshills/cuecontrol/internal/codec/osc"
	"github.com/dshills/cuecontrol/internal/config"
	"github.com/dshills/cuecontrol/internal/control"
	"github.com/dshills/cuecontrol/internal/dispatch"
	"github.com/dshills/cuecontrol/internal/logging"
	"github.com/dshills/cuecontrol/internal/script"
	"github.com/dshills/cuecontrol/internal/server"
	"github.com/dshills/cuecontrol/internal/transport"
)

// NewCodecs returns a registry with every supported protocol.
func NewCodecs() *codec.Registry {
	r, err := codec.NewRegistry(midi.New(), osc.New(), keyboard.New())
	if err != nil {
		panic(err)
	}
	return r
}

// bootstrap initializes all components in dependency order.
func (app *Application) bootstrap() error {
	cfg := app.cfg

	// 1. Logging
	app.logger = app.opts.Logger
	if app.logger == nil {
		l, err := logging.New(cfg.Logging)
		if err != nil {
			return &InitError{Component: "logging", Err: err}
		}
		app.logger = l
	}

	// 2. Metrics
	app.registry = newRegistry()
	app.metrics = newAppMetrics(app.registry, app.opts.Version)

	// 3. Codecs and scripts
	app.codecs = NewCodecs()
	app.scripts = script.NewEngine(
		script.WithTimeout(cfg.Scripts.Timeout.Duration),
		script.WithQueueSize(cfg.Scripts.QueueSize),
		script.WithLogger(app.logger.WithComponent("script")),
	)

	// 4. Controller
	target, err := app.buildTarget()
	if err != nil {
		return err
	}
	app.ctrl = control.New(target, app.codecs,
		control.WithLogger(app.logger),
		control.WithMetrics(control.NewMetrics(app.registry)),
		control.WithDispatchMetrics(dispatch.NewMetrics(app.registry)),
		control.WithScripts(app.scripts),
	)

	// 5. Inputs
	if err := app.buildInputs(); err != nil {
		return err
	}

	// 6. Status API
	if cfg.Metrics.Listen != "" {
		app.status = server.New(cfg.Metrics.Listen, app.ctrl,
			server.WithLogger(app.logger),
			server.WithGatherer(app.registry),
			server.WithVersion(app.opts.Version))
		app.components = append(app.components, component{name: "http", serve: app.status.Serve})
	}

	// 7. Config watcher
	if app.opts.Watch && cfg.Path() != "" {
		w, err := config.NewWatcher(cfg.Path(), cfg,
			config.WithWatchLogger(app.logger),
			config.WithLookup(app.opts.Lookup))
		if err != nil {
			return &InitError{Component: "watcher", Err: err}
		}
		app.watcher = w
	}

	return nil
}

// buildTarget chains the action log, the optional OSC forwarder and the
// caller's target.
func (app *Application) buildTarget() (control.Target, error) {
	targets := transport.Targets{transport.LogTarget{Logger: app.logger.WithComponent("session")}}
	if addr := app.cfg.Target.OSC; addr != "" {
		t, err := transport.NewOSCTarget(addr, app.cfg.Target.Prefix, transport.WithLogger(app.logger))
		if err != nil {
			return nil, &InitError{Component: "target", Err: err}
		}
		targets = append(targets, t)
	}
	if app.opts.Target != nil {
		targets = append(targets, app.opts.Target)
	}
	return targets, nil
}

// buildInputs creates the enabled inputs. A missing MIDI driver disables
// MIDI input with a warning.
func (app *Application) buildInputs() error {
	cfg := app.cfg
	withLogger := transport.WithLogger(app.logger)

	if cfg.OSC.Enabled {
		app.osc = transport.NewOSCServer(cfg.OSC.Listen, app.ctrl, withLogger)
		app.components = append(app.components, component{name: "osc", serve: app.osc.Serve})
	}

	switch {
	case !cfg.MIDI.Enabled:
	case app.opts.MIDIDriver == nil:
		app.logger.Warn("midi enabled but no driver available, skipping midi input")
	default:
		in := transport.NewMIDIInput(app.opts.MIDIDriver, cfg.MIDI.Port, app.ctrl, withLogger)
		app.components = append(app.components, component{name: "midi", serve: in.Serve})
	}

	if !cfg.Keyboard.Enabled {
		return nil
	}
	if key := cfg.Keyboard.QuitKey; key != "" {
		if _, err := keyboard.New().ParseIdentifier(key); err != nil {
			return &InitError{Component: "keyboard", Err: fmt.Errorf("quit key: %w", err)}
		}
	}
	app.components = append(app.components, component{name: "keyboard", serve: app.serveKeyboard})
	return nil
}

// serveKeyboard opens the screen on first use so nothing touches the
// terminal before Run.
func (app *Application) serveKeyboard(ctx context.Context) error {
	screen := app.opts.Screen
	if screen == nil {
		s, err := tcell.NewScreen()
		if err != nil {
			return err
		}
		if err := s.Init(); err != nil {
			return err
		}
		screen = s
	}
	in, err := transport.NewKeyboardInput(screen, app.cfg.Keyboard.QuitKey, app.ctrl, transport.WithLogger(app.logger))
	if err != nil {
		screen.Fini()
		return err
	}
	app.logger.Debug("keyboard input ready", zap.String("quit_key", app.cfg.Keyboard.QuitKey))
	return in.Serve(ctx)
}
