package control

import (
	"fmt"
	"math"
	"strings"

	"github.com/dshills/cuecontrol/internal/dispatch"
	"github.com/dshills/cuecontrol/internal/dispatch/mask"
	"github.com/dshills/cuecontrol/internal/script"
)

// Target is the session that performs actions, typically the cue layout.
type Target interface {
	Perform(action Action, args []int) error
}

// TargetFunc adapts a function to Target.
type TargetFunc func(action Action, args []int) error

// Perform calls f.
func (f TargetFunc) Perform(action Action, args []int) error {
	return f(action, args)
}

// Handler is the entry registered in the dispatch tree for one binding.
// The controller holds the only strong reference to it.
type Handler struct {
	binding    Binding
	protocol   string
	identifier dispatch.Identifier
	mask       mask.Mask
	wire       string

	action    Action
	cue       string
	cueAction CueAction
	script    *script.Script

	registration *dispatch.Registration[Handler]
}

// Binding returns the binding the handler was built from.
func (h *Handler) Binding() Binding {
	return h.binding
}

// Protocol returns the lowercased protocol name.
func (h *Handler) Protocol() string {
	return h.protocol
}

// Cue returns the cue id of a cue binding, or "".
func (h *Handler) Cue() string {
	return h.cue
}

// Wire returns the canonical wire form of the registered message.
func (h *Handler) Wire() string {
	return h.wire
}

// key identifies the handler within a controller. Bindings that normalize to
// the same key are the same binding.
func (h *Handler) key() string {
	return strings.Join([]string{h.protocol, h.wire, string(h.action), h.cue, string(h.cueAction), h.binding.Script}, "\x00")
}

// coerceArgs converts residual message values to action arguments.
func coerceArgs(values []any) ([]int, error) {
	args := make([]int, 0, len(values))
	for i, v := range values {
		n, err := toInt(v)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args = append(args, n)
	}
	return args, nil
}

func toInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int8:
		return int(x), nil
	case int16:
		return int(x), nil
	case int32:
		return int(x), nil
	case int64:
		return int(x), nil
	case uint:
		return int(x), nil
	case uint8:
		return int(x), nil
	case uint16:
		return int(x), nil
	case uint32:
		return int(x), nil
	case uint64:
		return int(x), nil
	case float32:
		return floatToInt(float64(x))
	case float64:
		return floatToInt(x)
	default:
		return 0, fmt.Errorf("%w: %T", ErrBadArgument, v)
	}
}

func floatToInt(f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v", ErrBadArgument, f)
	}
	return int(f), nil
}

// actionArgs trims args to what action takes.
func actionArgs(action Action, args []int) ([]int, error) {
	n := action.Arity()
	if len(args) < n {
		return nil, fmt.Errorf("%w: %s needs %d, got %d", ErrMissingArgument, action, n, len(args))
	}
	return args[:n:n], nil
}
