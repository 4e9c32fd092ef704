// Package osc implements the OSC codec.
//
// A wire string is the address, the type tags and optional argument cells,
// separated by commas:
//
//	/cue/go, i, *          any int32 argument
//	/cue/name, s, "intro"  string argument "intro"
//	/panic,                no arguments
//
// The identifier is the address and type tags ("/cue/go, i"), so messages with
// the same address but different argument types never share handlers.
// Concrete cells take the Go type of their tag: i int32, h int64, f float32,
// d float64, s and b string, T and F bool.
package osc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hypebeast/go-osc/osc"

	"github.com/dshills/cuecontrol/internal/codec"
	"github.com/dshills/cuecontrol/internal/dispatch"
	"github.com/dshills/cuecontrol/internal/dispatch/mask"
)

// Protocol is the registry name of the codec.
const Protocol = "osc"

// Errors returned by the OSC codec.
var (
	ErrAddress     = errors.New("address must start with '/'")
	ErrTypeTag     = errors.New("unsupported type tag")
	ErrTooMany     = errors.New("more arguments than type tags")
	ErrArgument    = errors.New("invalid argument")
	ErrUnsupported = errors.New("unsupported argument type")
)

const supportedTags = "ihfdsbTF"

// Codec is the OSC codec. The zero value is ready to use.
type Codec struct{}

// New returns an OSC codec.
func New() *Codec {
	return &Codec{}
}

// Protocol implements codec.Codec.
func (c *Codec) Protocol() string {
	return Protocol
}

// Identifier builds the identifier of an address and its type tags.
func Identifier(address, tags string) dispatch.Identifier {
	return dispatch.Identifier(address + ", " + tags)
}

// SplitIdentifier returns the address and type tags of an identifier.
func SplitIdentifier(id dispatch.Identifier) (address, tags string) {
	address, tags, _ = strings.Cut(string(id), ",")
	return strings.TrimSpace(address), strings.TrimSpace(tags)
}

// ParseIdentifier returns "<address>, <tags>" of wire.
func (c *Codec) ParseIdentifier(wire string) (dispatch.Identifier, error) {
	address, tags, _, err := split(wire)
	if err != nil {
		return "", err
	}
	return Identifier(address, tags), nil
}

// ParseMask returns the argument cells of wire, typed by their tags.
func (c *Codec) ParseMask(wire string) (mask.Mask, error) {
	_, tags, args, err := split(wire)
	if err != nil {
		return nil, err
	}
	if len(args) > len(tags) {
		return nil, parseError(wire, "", fmt.Errorf("%w: %d tags, %d arguments", ErrTooMany, len(tags), len(args)))
	}

	m := make(mask.Mask, len(args))
	for i, arg := range args {
		if !arg.quoted && arg.text == mask.WildcardSymbol {
			m[i] = mask.Any
			continue
		}
		v, err := parseArg(tags[i], arg)
		if err != nil {
			return nil, parseError(wire, fmt.Sprintf("argument %d", i+1), err)
		}
		m[i] = mask.Exact(v)
	}
	return m, nil
}

// Format builds the wire string for id and m.
func (c *Codec) Format(id dispatch.Identifier, m mask.Mask) (string, error) {
	address, tags := SplitIdentifier(id)
	if !strings.HasPrefix(address, "/") {
		return "", fmt.Errorf("osc: %w: %q", ErrAddress, address)
	}
	if len(m) > len(tags) {
		return "", fmt.Errorf("osc: %w: %d tags, %d cells", ErrTooMany, len(tags), len(m))
	}

	parts := []string{address, tags}
	for _, cell := range m {
		if cell.IsWildcard() {
			parts = append(parts, mask.WildcardSymbol)
			continue
		}
		parts = append(parts, formatArg(cell.Value()))
	}
	if len(parts) == 2 && tags == "" {
		return address + ",", nil
	}
	return strings.Join(parts, ", "), nil
}

// Decode converts a live OSC message into its identifier and arguments.
// Blob arguments become strings so they can be matched by concrete cells.
func Decode(msg *osc.Message) (dispatch.Identifier, []any, error) {
	var tags strings.Builder
	values := make([]any, len(msg.Arguments))
	for i, arg := range msg.Arguments {
		switch v := arg.(type) {
		case int32:
			tags.WriteByte('i')
			values[i] = v
		case int64:
			tags.WriteByte('h')
			values[i] = v
		case float32:
			tags.WriteByte('f')
			values[i] = v
		case float64:
			tags.WriteByte('d')
			values[i] = v
		case string:
			tags.WriteByte('s')
			values[i] = v
		case []byte:
			tags.WriteByte('b')
			values[i] = string(v)
		case bool:
			if v {
				tags.WriteByte('T')
			} else {
				tags.WriteByte('F')
			}
			values[i] = v
		default:
			return "", nil, fmt.Errorf("osc: %s: %w: %T", msg.Address, ErrUnsupported, arg)
		}
	}
	return Identifier(msg.Address, tags.String()), values, nil
}

// Encode builds an OSC message from an identifier and concrete arguments.
func Encode(id dispatch.Identifier, args ...any) (*osc.Message, error) {
	address, tags := SplitIdentifier(id)
	if !strings.HasPrefix(address, "/") {
		return nil, fmt.Errorf("osc: %w: %q", ErrAddress, address)
	}
	if len(args) != len(tags) {
		return nil, fmt.Errorf("osc: %s: %d tags, %d arguments", id, len(tags), len(args))
	}

	msg := osc.NewMessage(address)
	for i, arg := range args {
		if tags[i] == 'b' {
			s, ok := arg.(string)
			if !ok {
				return nil, fmt.Errorf("osc: %w: blob must be a string, got %T", ErrArgument, arg)
			}
			arg = []byte(s)
		}
		msg.Append(arg)
	}
	return msg, nil
}

type token struct {
	text   string
	quoted bool
}

// split breaks wire into address, tags and argument tokens.
func split(wire string) (string, string, []token, error) {
	tokens, err := tokenize(wire)
	if err != nil {
		return "", "", nil, parseError(wire, "", err)
	}
	if len(tokens) == 0 || (len(tokens) == 1 && tokens[0].text == "") {
		return "", "", nil, parseError(wire, "", codec.ErrEmptyMessage)
	}

	address := tokens[0].text
	if !strings.HasPrefix(address, "/") {
		return "", "", nil, parseError(wire, "address", fmt.Errorf("%w: %q", ErrAddress, address))
	}

	var tags string
	if len(tokens) > 1 {
		tags = strings.TrimPrefix(tokens[1].text, ",")
	}
	for _, t := range tags {
		if !strings.ContainsRune(supportedTags, t) {
			return "", "", nil, parseError(wire, "tags", fmt.Errorf("%w: %q", ErrTypeTag, t))
		}
	}

	var args []token
	if len(tokens) > 2 {
		args = tokens[2:]
	}
	return address, tags, args, nil
}

// tokenize splits on commas outside double or single quotes and trims
// surrounding spaces. Quoted tokens are unquoted.
func tokenize(s string) ([]token, error) {
	var tokens []token
	var cur strings.Builder
	var quote rune
	quoted := false

	flush := func() {
		text := cur.String()
		if !quoted {
			text = strings.TrimSpace(text)
		}
		tokens = append(tokens, token{text: text, quoted: quoted})
		cur.Reset()
		quoted = false
	}

	for i := 0; i < len(s); i++ {
		ch := rune(s[i])
		switch {
		case quote != 0:
			if ch == '\\' && i+1 < len(s) {
				i++
				cur.WriteByte(s[i])
				continue
			}
			if ch == quote {
				quote = 0
				continue
			}
			cur.WriteByte(s[i])
		case ch == '"' || ch == '\'':
			if strings.TrimSpace(cur.String()) != "" {
				return nil, fmt.Errorf("%w: stray quote", ErrArgument)
			}
			cur.Reset()
			quote = ch
			quoted = true
		case ch == ',':
			flush()
		default:
			if quoted && ch != ' ' {
				return nil, fmt.Errorf("%w: text after closing quote", ErrArgument)
			}
			if !quoted {
				cur.WriteByte(s[i])
			}
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("%w: unterminated quote", ErrArgument)
	}
	flush()

	// A trailing comma after the address means empty tags, not an empty argument.
	if n := len(tokens); n > 2 && tokens[n-1].text == "" && !tokens[n-1].quoted {
		tokens = tokens[:n-1]
	}
	return tokens, nil
}

func parseArg(tag byte, arg token) (any, error) {
	text := arg.text
	switch tag {
	case 'i':
		n, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return nil, err
		}
		return int32(n), nil
	case 'h':
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, err
		}
		return n, nil
	case 'f':
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case 'd':
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, err
		}
		return f, nil
	case 's', 'b':
		return text, nil
	case 'T', 'F':
		b, err := strconv.ParseBool(text)
		if err != nil {
			return nil, err
		}
		if b != (tag == 'T') {
			return nil, fmt.Errorf("%w: %v does not match tag %c", ErrArgument, b, tag)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrTypeTag, tag)
}

func formatArg(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func parseError(wire, fieldName string, err error) error {
	return &codec.ParseError{Protocol: Protocol, Wire: wire, Field: fieldName, Err: err}
}
