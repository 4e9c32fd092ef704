// Package transport connects live inputs to a control.Controller.
//
// Each input decodes its protocol's events with the matching codec and hands
// (protocol, identifier, values) to an EventHandler. Inputs run until their
// context is cancelled:
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(func() error { return transport.NewOSCServer(addr, ctrl).Serve(ctx) })
//	g.Go(func() error { return transport.NewMIDIInput(drv, port, ctrl).Serve(ctx) })
//	err := g.Wait()
package transport

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/dshills/cuecontrol/internal/dispatch"
	"github.com/dshills/cuecontrol/internal/logging"
)

// Errors returned by inputs.
var (
	// ErrNoMIDIDriver is returned when no MIDI driver is available.
	ErrNoMIDIDriver = errors.New("no MIDI driver")

	// ErrNoMIDIPort is returned when no input port matches.
	ErrNoMIDIPort = errors.New("no matching MIDI input port")

	// ErrAlreadyServing is returned when Serve is called on a running server.
	ErrAlreadyServing = errors.New("already serving")

	// ErrQuit is returned by the keyboard input when the quit key is pressed.
	ErrQuit = errors.New("quit requested")
)

// EventHandler receives decoded events. *control.Controller implements it.
type EventHandler interface {
	HandleEvent(ctx context.Context, protocol string, id dispatch.Identifier, values ...any) (int, error)
}

// Option configures an input.
type Option func(*options)

type options struct {
	logger *logging.Logger
}

// WithLogger sets the input logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{logger: logging.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.WithComponent(component)
	return o
}

// deliver passes one event to h and logs the outcome.
func deliver(ctx context.Context, h EventHandler, logger *logging.Logger, protocol string, id dispatch.Identifier, values []any) {
	n, err := h.HandleEvent(ctx, protocol, id, values...)
	if err != nil {
		logger.Warn("event handling failed",
			zap.String("identifier", string(id)),
			zap.Error(err))
		return
	}
	logger.Debug("event",
		zap.String("identifier", string(id)),
		zap.Any("values", values),
		zap.Int("handled", n))
}
