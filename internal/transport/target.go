package transport

import (
	"fmt"
	"net"
	"path"
	"strconv"

	"github.com/hypebeast/go-osc/osc"
	"go.uber.org/zap"

	"github.com/dshills/cuecontrol/internal/control"
	"github.com/dshills/cuecontrol/internal/logging"
)

// OSCTarget forwards performed actions to a remote OSC receiver. An action
// becomes one message at prefix/action with its arguments as int32, so
// go_num 3 is sent as "/cuecontrol/go_num 3". Cue actions are sent without
// arguments to prefix/cue/<id>/<action>, e.g. "/cuecontrol/cue/12/start".
type OSCTarget struct {
	client *osc.Client
	prefix string
	logger *logging.Logger
}

// NewOSCTarget creates a target sending to addr ("host:port").
func NewOSCTarget(addr, prefix string, opts ...Option) (*OSCTarget, error) {
	o := buildOptions("target", opts)
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("osc target %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("osc target %q: bad port: %w", addr, err)
	}
	if prefix == "" {
		prefix = "/"
	}
	return &OSCTarget{
		client: osc.NewClient(host, port),
		prefix: prefix,
		logger: o.logger.With(zap.String("addr", addr)),
	}, nil
}

// Address returns the OSC address an action is sent to.
func (t *OSCTarget) Address(action control.Action) string {
	return path.Join(t.prefix, string(action))
}

// Perform implements control.Target.
func (t *OSCTarget) Perform(action control.Action, args []int) error {
	msg := osc.NewMessage(t.Address(action))
	for _, a := range args {
		msg.Append(int32(a))
	}
	if err := t.client.Send(msg); err != nil {
		return fmt.Errorf("sending %s: %w", msg.Address, err)
	}
	t.logger.Debug("action sent", zap.String("address", msg.Address), zap.Ints("args", args))
	return nil
}

// CueAddress returns the OSC address a cue action is sent to.
func (t *OSCTarget) CueAddress(cue string, action control.CueAction) string {
	return path.Join(t.prefix, "cue", cue, string(action))
}

// PerformCue implements control.CueTarget.
func (t *OSCTarget) PerformCue(cue string, action control.CueAction) error {
	msg := osc.NewMessage(t.CueAddress(cue, action))
	if err := t.client.Send(msg); err != nil {
		return fmt.Errorf("sending %s: %w", msg.Address, err)
	}
	t.logger.Debug("cue action sent", zap.String("address", msg.Address))
	return nil
}

// Targets performs every action on each target in order, stopping at the
// first failure. Cue actions go to the members that implement
// control.CueTarget.
type Targets []control.Target

// Perform implements control.Target.
func (ts Targets) Perform(action control.Action, args []int) error {
	for _, t := range ts {
		if err := t.Perform(action, args); err != nil {
			return err
		}
	}
	return nil
}

// PerformCue implements control.CueTarget. It returns
// control.ErrNoCueTarget when no member performs cue actions.
func (ts Targets) PerformCue(cue string, action control.CueAction) error {
	served := false
	for _, t := range ts {
		ct, ok := t.(control.CueTarget)
		if !ok {
			continue
		}
		served = true
		if err := ct.PerformCue(cue, action); err != nil {
			return err
		}
	}
	if !served {
		return control.ErrNoCueTarget
	}
	return nil
}

// LogTarget logs each action at info level. A nil Logger uses
// logging.Default.
type LogTarget struct {
	Logger *logging.Logger
}

// Perform implements control.Target.
func (t LogTarget) Perform(action control.Action, args []int) error {
	logger := t.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger.Info("action", zap.String("action", string(action)), zap.Ints("args", args))
	return nil
}

// PerformCue implements control.CueTarget.
func (t LogTarget) PerformCue(cue string, action control.CueAction) error {
	logger := t.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger.Info("cue action", zap.String("cue", cue), zap.String("action", string(action)))
	return nil
}
