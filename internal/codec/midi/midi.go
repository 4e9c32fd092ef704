// Package midi implements the MIDI codec.
//
// Wire strings name the message type followed by its data bytes in order:
//
//	note_on 0 60 *        channel 0, note 60, any velocity
//	control_change 1 7    channel 1, controller 7, value forwarded
//	pitchwheel 0 *        any pitch on channel 0
//
// A "*" or "-1" cell is a wildcard. Trailing cells may be omitted; values past
// the mask are forwarded to the handler unchanged. All values are ints.
package midi

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/dshills/cuecontrol/internal/codec"
	"github.com/dshills/cuecontrol/internal/dispatch"
	"github.com/dshills/cuecontrol/internal/dispatch/mask"
)

// Protocol is the registry name of the codec.
const Protocol = "midi"

// Message type identifiers.
const (
	NoteOn        = "note_on"
	NoteOff       = "note_off"
	PolyTouch     = "polytouch"
	ControlChange = "control_change"
	ProgramChange = "program_change"
	AfterTouch    = "aftertouch"
	PitchWheel    = "pitchwheel"
)

// Errors returned by the MIDI codec.
var (
	ErrUnknownType = errors.New("unknown message type")
	ErrTooMany     = errors.New("too many values")
	ErrRange       = errors.New("value out of range")
	ErrUnsupported = errors.New("unsupported message")
)

// field is one data position of a message type.
type field struct {
	name     string
	min, max int
}

var (
	channel  = field{"channel", 0, 15}
	note     = field{"note", 0, 127}
	velocity = field{"velocity", 0, 127}
	control  = field{"control", 0, 127}
	value    = field{"value", 0, 127}
	program  = field{"program", 0, 127}
	pitch    = field{"pitch", -8192, 8191}
)

var layouts = map[string][]field{
	NoteOn:        {channel, note, velocity},
	NoteOff:       {channel, note, velocity},
	PolyTouch:     {channel, note, value},
	ControlChange: {channel, control, value},
	ProgramChange: {channel, program},
	AfterTouch:    {channel, value},
	PitchWheel:    {channel, pitch},
}

// Types returns the supported message types in sorted order.
func Types() []string {
	names := make([]string, 0, len(layouts))
	for name := range layouts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Arity returns the number of data values a message type carries.
func Arity(msgType string) (int, bool) {
	l, ok := layouts[msgType]
	return len(l), ok
}

// Codec is the MIDI codec. The zero value is ready to use.
type Codec struct{}

// New returns a MIDI codec.
func New() *Codec {
	return &Codec{}
}

// Protocol implements codec.Codec.
func (c *Codec) Protocol() string {
	return Protocol
}

// ParseIdentifier returns the message type of wire.
func (c *Codec) ParseIdentifier(wire string) (dispatch.Identifier, error) {
	fields := strings.Fields(wire)
	if len(fields) == 0 {
		return "", parseError(wire, "", codec.ErrEmptyMessage)
	}
	if _, ok := layouts[fields[0]]; !ok {
		return "", parseError(wire, "type", fmt.Errorf("%w: %s", ErrUnknownType, fields[0]))
	}
	return dispatch.Identifier(fields[0]), nil
}

// ParseMask returns the data cells of wire, range-checked against the type.
func (c *Codec) ParseMask(wire string) (mask.Mask, error) {
	id, err := c.ParseIdentifier(wire)
	if err != nil {
		return nil, err
	}
	layout := layouts[string(id)]
	cells := strings.Fields(wire)[1:]
	if len(cells) > len(layout) {
		return nil, parseError(wire, "", fmt.Errorf("%w: %s takes %d", ErrTooMany, id, len(layout)))
	}

	m := make(mask.Mask, len(cells))
	for i, s := range cells {
		f := layout[i]
		if s == mask.WildcardSymbol || (s == "-1" && f.min == 0) {
			m[i] = mask.Any
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, parseError(wire, f.name, err)
		}
		if n < f.min || n > f.max {
			return nil, parseError(wire, f.name, fmt.Errorf("%w: %d not in [%d, %d]", ErrRange, n, f.min, f.max))
		}
		m[i] = mask.Exact(n)
	}
	return m, nil
}

// Format builds the wire string for id and m.
func (c *Codec) Format(id dispatch.Identifier, m mask.Mask) (string, error) {
	layout, ok := layouts[string(id)]
	if !ok {
		return "", fmt.Errorf("midi: %w: %s", ErrUnknownType, id)
	}
	if len(m) > len(layout) {
		return "", fmt.Errorf("midi: %w: %s takes %d", ErrTooMany, id, len(layout))
	}

	var b strings.Builder
	b.WriteString(string(id))
	for _, cell := range m {
		b.WriteByte(' ')
		b.WriteString(cell.String())
	}
	return b.String(), nil
}

// Decode converts a live MIDI message into its identifier and values.
func Decode(msg gomidi.Message) (dispatch.Identifier, []any, error) {
	var ch, a, b uint8
	var rel int16
	var abs uint16

	switch {
	case msg.GetNoteOn(&ch, &a, &b):
		return NoteOn, ints(int(ch), int(a), int(b)), nil
	case msg.GetNoteOff(&ch, &a, &b):
		return NoteOff, ints(int(ch), int(a), int(b)), nil
	case msg.GetPolyAfterTouch(&ch, &a, &b):
		return PolyTouch, ints(int(ch), int(a), int(b)), nil
	case msg.GetControlChange(&ch, &a, &b):
		return ControlChange, ints(int(ch), int(a), int(b)), nil
	case msg.GetProgramChange(&ch, &a):
		return ProgramChange, ints(int(ch), int(a)), nil
	case msg.GetAfterTouch(&ch, &a):
		return AfterTouch, ints(int(ch), int(a)), nil
	case msg.GetPitchBend(&ch, &rel, &abs):
		return PitchWheel, ints(int(ch), int(rel)), nil
	}
	return "", nil, fmt.Errorf("midi: %w: %s", ErrUnsupported, msg)
}

// Encode builds a MIDI message from an identifier and concrete values. It is
// the inverse of Decode.
func Encode(id dispatch.Identifier, values ...int) (gomidi.Message, error) {
	layout, ok := layouts[string(id)]
	if !ok {
		return nil, fmt.Errorf("midi: %w: %s", ErrUnknownType, id)
	}
	if len(values) != len(layout) {
		return nil, fmt.Errorf("midi: %s takes %d values, got %d", id, len(layout), len(values))
	}
	for i, v := range values {
		if v < layout[i].min || v > layout[i].max {
			return nil, fmt.Errorf("midi: %s: %w: %d", layout[i].name, ErrRange, v)
		}
	}

	ch := uint8(values[0])
	switch string(id) {
	case NoteOn:
		return gomidi.NoteOn(ch, uint8(values[1]), uint8(values[2])), nil
	case NoteOff:
		return gomidi.NoteOffVelocity(ch, uint8(values[1]), uint8(values[2])), nil
	case PolyTouch:
		return gomidi.PolyAfterTouch(ch, uint8(values[1]), uint8(values[2])), nil
	case ControlChange:
		return gomidi.ControlChange(ch, uint8(values[1]), uint8(values[2])), nil
	case ProgramChange:
		return gomidi.ProgramChange(ch, uint8(values[1])), nil
	case AfterTouch:
		return gomidi.AfterTouch(ch, uint8(values[1])), nil
	default:
		return gomidi.Pitchbend(ch, int16(values[1])), nil
	}
}

func ints(values ...int) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func parseError(wire, fieldName string, err error) error {
	return &codec.ParseError{Protocol: Protocol, Wire: wire, Field: fieldName, Err: err}
}
