package transport

import (
	"context"
	"fmt"
	"strings"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"go.uber.org/zap"

	midicodec "github.com/dshills/cuecontrol/internal/codec/midi"
	"github.com/dshills/cuecontrol/internal/logging"
)

// MIDIInput listens on one MIDI input port.
type MIDIInput struct {
	driver  drivers.Driver
	port    string
	handler EventHandler
	logger  *logging.Logger
}

// NewMIDIInput creates an input for the first port of drv whose name contains
// port, case-insensitively. An empty port selects the first input.
func NewMIDIInput(drv drivers.Driver, port string, h EventHandler, opts ...Option) *MIDIInput {
	o := buildOptions("midi", opts)
	return &MIDIInput{
		driver:  drv,
		port:    port,
		handler: h,
		logger:  o.logger,
	}
}

// Serve opens the port and listens until ctx is cancelled.
func (m *MIDIInput) Serve(ctx context.Context) error {
	if m.driver == nil {
		return ErrNoMIDIDriver
	}
	ins, err := m.driver.Ins()
	if err != nil {
		return fmt.Errorf("listing MIDI inputs: %w", err)
	}
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	idx, err := selectPort(names, m.port)
	if err != nil {
		return err
	}
	in := ins[idx]

	if err := in.Open(); err != nil {
		return fmt.Errorf("opening MIDI input %q: %w", in.String(), err)
	}
	defer in.Close()

	stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, _ int32) {
		m.Handle(ctx, msg)
	}, gomidi.HandleError(func(err error) {
		m.logger.Warn("midi listener error", zap.String("port", in.String()), zap.Error(err))
	}))
	if err != nil {
		return fmt.Errorf("listening on MIDI input %q: %w", in.String(), err)
	}
	defer stop()

	m.logger.Info("midi listening", zap.String("port", in.String()))
	<-ctx.Done()
	return nil
}

// Handle decodes msg and passes it on. Messages the codec does not know,
// such as clock or sysex, are ignored.
func (m *MIDIInput) Handle(ctx context.Context, msg gomidi.Message) {
	id, values, err := midicodec.Decode(msg)
	if err != nil {
		m.logger.Debug("ignored midi message", zap.Stringer("message", msg), zap.Error(err))
		return
	}
	deliver(ctx, m.handler, m.logger, midicodec.Protocol, id, values)
}

// selectPort returns the index of the first name containing want.
func selectPort(names []string, want string) (int, error) {
	if len(names) == 0 {
		return 0, ErrNoMIDIPort
	}
	if want == "" {
		return 0, nil
	}
	lower := strings.ToLower(want)
	for i, name := range names {
		if strings.Contains(strings.ToLower(name), lower) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q (available: %s)", ErrNoMIDIPort, want, strings.Join(names, ", "))
}

// MIDIPorts lists the input port names of drv.
func MIDIPorts(drv drivers.Driver) ([]string, error) {
	if drv == nil {
		return nil, ErrNoMIDIDriver
	}
	ins, err := drv.Ins()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	return names, nil
}
