// Package codec converts between protocol wire strings, dispatch identifiers
// and masks.
//
// Bindings are stored as human-editable message strings, e.g.
// "note_on 0 60 *" for MIDI or "/cue/go, i, *" for OSC. A Codec splits such a
// string into the identifier that selects the dispatch namespace and the mask
// that selects handlers inside it. Each protocol package also decodes its
// library's live messages into the same identifier and value form.
package codec

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dshills/cuecontrol/internal/dispatch"
	"github.com/dshills/cuecontrol/internal/dispatch/mask"
)

// Sentinel errors shared by all codecs.
var (
	// ErrEmptyMessage is returned when a wire string is blank.
	ErrEmptyMessage = errors.New("codec: empty message")

	// ErrUnknownProtocol is returned when no codec is registered for a name.
	ErrUnknownProtocol = errors.New("codec: unknown protocol")

	// ErrDuplicateProtocol is returned when a protocol name is registered twice.
	ErrDuplicateProtocol = errors.New("codec: protocol already registered")
)

// Codec parses and formats the message strings of one protocol.
type Codec interface {
	// Protocol returns the lowercase protocol name, e.g. "midi".
	Protocol() string

	// ParseIdentifier extracts the message identifier from a wire string.
	ParseIdentifier(wire string) (dispatch.Identifier, error)

	// ParseMask extracts the value mask from a wire string.
	ParseMask(wire string) (mask.Mask, error)

	// Format builds the wire string for an identifier and mask.
	Format(id dispatch.Identifier, m mask.Mask) (string, error)
}

// Parse splits a wire string into identifier and mask using c.
func Parse(c Codec, wire string) (dispatch.Identifier, mask.Mask, error) {
	id, err := c.ParseIdentifier(wire)
	if err != nil {
		return "", nil, err
	}
	m, err := c.ParseMask(wire)
	if err != nil {
		return "", nil, err
	}
	return id, m, nil
}

// ParseError describes a malformed wire string.
type ParseError struct {
	Protocol string
	Wire     string
	Field    string
	Err      error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: parse %q: %s: %v", e.Protocol, e.Wire, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: parse %q: %v", e.Protocol, e.Wire, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Registry maps protocol names to codecs. Names are case-insensitive.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewRegistry creates a registry holding the given codecs.
func NewRegistry(codecs ...Codec) (*Registry, error) {
	r := &Registry{codecs: make(map[string]Codec)}
	for _, c := range codecs {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds c under its protocol name.
func (r *Registry) Register(c Codec) error {
	name := strings.ToLower(c.Protocol())

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.codecs == nil {
		r.codecs = make(map[string]Codec)
	}
	if _, exists := r.codecs[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProtocol, name)
	}
	r.codecs[name] = c
	return nil
}

// Get returns the codec for protocol.
func (r *Registry) Get(protocol string) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.codecs[strings.ToLower(protocol)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProtocol, protocol)
	}
	return c, nil
}

// Protocols returns the registered protocol names in sorted order.
func (r *Registry) Protocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.codecs))
	for name := range r.codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
