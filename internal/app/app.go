// Package app provides the main application structure and coordination
// for cuecontrol. It wires the configuration, script engine, controller,
// live inputs and status API together and manages their lifecycle.
package app

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"github.com/prometheus/client_golang/prometheus"
	"gitlab.com/gomidi/midi/v2/drivers"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/cuecontrol/internal/codec"
	"github.com/dshills/cuecontrol/internal/config"
	"github.com/dshills/cuecontrol/internal/control"
	"github.com/dshills/cuecontrol/internal/logging"
	"github.com/dshills/cuecontrol/internal/script"
	"github.com/dshills/cuecontrol/internal/server"
	"github.com/dshills/cuecontrol/internal/transport"
)

// Options configures the application.
type Options struct {
	// Config is the loaded configuration. Required.
	Config *config.Config

	// Version is reported by the status API and metrics.
	Version string

	// Logger overrides the logger built from Config.Logging.
	Logger *logging.Logger

	// MIDIDriver provides MIDI inputs. Without one MIDI input is skipped.
	MIDIDriver drivers.Driver

	// Screen is used for keyboard input. Nil opens the terminal when
	// keyboard input is enabled.
	Screen tcell.Screen

	// Watch reloads bindings when the configuration file changes.
	Watch bool

	// Lookup supplies environment overrides for reloaded configurations.
	Lookup config.LookupFunc

	// Target receives every action after it is logged.
	Target control.Target
}

// component is a long-running part of the application.
type component struct {
	name  string
	serve func(ctx context.Context) error
}

// Application is the central coordinator for all cuecontrol components.
type Application struct {
	mu sync.RWMutex

	opts   Options
	cfg    *config.Config
	logger *logging.Logger

	registry *prometheus.Registry
	metrics  *appMetrics
	codecs   *codec.Registry
	scripts  *script.Engine
	ctrl     *control.Controller

	osc        *transport.OSCServer
	status     *server.Server
	watcher    *config.Watcher
	components []component

	started atomic.Bool
	running atomic.Bool
	cancel  context.CancelFunc
}

// New creates an Application from opts. Nothing is started until Run.
func New(opts Options) (*Application, error) {
	if opts.Config == nil {
		return nil, ErrNoConfig
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	app := &Application{
		opts: opts,
		cfg:  opts.Config,
	}
	if err := app.bootstrap(); err != nil {
		app.release()
		return nil, err
	}
	return app, nil
}

// Controller returns the controller.
func (app *Application) Controller() *control.Controller {
	return app.ctrl
}

// Registry returns the metrics registry.
func (app *Application) Registry() *prometheus.Registry {
	return app.registry
}

// Config returns the configuration the bindings were last loaded from.
func (app *Application) Config() *config.Config {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.cfg
}

// IsRunning reports whether Run is active.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// OSCAddr waits for the OSC input to listen and returns its address.
func (app *Application) OSCAddr(ctx context.Context) (net.Addr, error) {
	if app.osc == nil {
		return nil, &InitError{Component: "osc", Err: errDisabled}
	}
	return app.osc.Addr(ctx)
}

// StatusAddr waits for the status API to listen and returns its address.
func (app *Application) StatusAddr(ctx context.Context) (net.Addr, error) {
	if app.status == nil {
		return nil, &InitError{Component: "http", Err: errDisabled}
	}
	return app.status.Addr(ctx)
}

// Run starts the script engine, loads the bindings and serves every
// enabled input until ctx is cancelled, Shutdown is called or a component
// fails. Pressing the keyboard quit key makes Run return ErrQuit.
// An Application runs at most once.
func (app *Application) Run(ctx context.Context) error {
	if !app.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	app.running.Store(true)
	defer app.running.Store(false)
	defer app.release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	app.mu.Lock()
	app.cancel = cancel
	app.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.scripts.Serve(gctx) })

	app.loadBindings(gctx, app.cfg)

	for _, c := range app.components {
		g.Go(func() error {
			if err := c.serve(gctx); err != nil {
				return &ComponentError{Component: c.name, Err: err}
			}
			return nil
		})
	}
	if app.watcher != nil {
		g.Go(func() error {
			return app.watcher.Run(gctx, func(cfg *config.Config, err error) {
				app.reload(gctx, cfg, err)
			})
		})
	}

	app.logger.Info("cuecontrol running",
		zap.String("version", app.opts.Version),
		zap.Int("bindings", app.ctrl.Len()),
		zap.Int("components", len(app.components)))

	err := g.Wait()
	if ctx.Err() != nil && !errors.Is(err, ErrQuit) {
		err = nil
	}
	app.logger.Info("cuecontrol stopped")
	return err
}

// Shutdown initiates graceful shutdown of a running application.
func (app *Application) Shutdown() {
	app.mu.RLock()
	cancel := app.cancel
	app.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// loadBindings replaces the controller bindings with those of cfg. Bindings
// that fail are logged and skipped.
func (app *Application) loadBindings(ctx context.Context, cfg *config.Config) {
	err := app.ctrl.Load(ctx, cfg.ControlBindings())
	for _, e := range multierr.Errors(err) {
		app.logger.Warn("binding skipped", zap.Error(e))
	}
}

// reload applies a configuration read by the watcher. A configuration that
// failed to load keeps the current bindings.
func (app *Application) reload(ctx context.Context, cfg *config.Config, err error) {
	if err != nil {
		app.metrics.reloads.WithLabelValues(reloadFailed).Inc()
		app.logger.Warn("config reload failed, keeping current bindings", zap.Error(err))
		return
	}
	app.mu.Lock()
	app.cfg = cfg
	app.mu.Unlock()

	app.loadBindings(ctx, cfg)
	app.metrics.reloads.WithLabelValues(reloadOK).Inc()
	app.logger.Info("config reloaded", zap.Int("bindings", app.ctrl.Len()))
}

// release frees what bootstrap acquired.
func (app *Application) release() {
	if app.ctrl != nil {
		app.ctrl.Close()
	}
	if app.scripts != nil {
		app.scripts.Close()
	}
	if app.watcher != nil {
		_ = app.watcher.Close()
	}
	if app.logger != nil {
		_ = app.logger.Sync()
	}
}
