package control

import (
	"fmt"
	"strings"
)

// Binding ties one protocol message to a session action, an action on one
// cue or a Lua script.
type Binding struct {
	// Protocol is the codec name, e.g. "midi", "osc" or "keyboard".
	Protocol string

	// Message is the wire string, e.g. "note_on 0 60 *".
	Message string

	// Action is the session action to perform. Exactly one of Action and
	// Script is set, unless Cue is set.
	Action string

	// Cue is the id of the cue the binding controls. Action then names a
	// cue action and may be empty for the cue's default action.
	Cue string

	// Script is Lua source run instead of a single action.
	Script string

	// Name labels the binding in logs; optional.
	Name string
}

// Validate checks that the binding is complete. Message syntax is checked
// by the protocol codec when the binding is loaded.
func (b Binding) Validate() error {
	if strings.TrimSpace(b.Protocol) == "" {
		return fmt.Errorf("%w: protocol is required", ErrInvalidBinding)
	}
	if strings.TrimSpace(b.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidBinding)
	}
	hasAction := strings.TrimSpace(b.Action) != ""
	hasScript := strings.TrimSpace(b.Script) != ""
	if b.IsCue() {
		if hasScript {
			return fmt.Errorf("%w: cue and script are exclusive", ErrInvalidBinding)
		}
		if err := ValidateCueID(strings.TrimSpace(b.Cue)); err != nil {
			return err
		}
		_, err := ParseCueAction(b.Action)
		return err
	}
	switch {
	case hasAction && hasScript:
		return fmt.Errorf("%w: action and script are exclusive", ErrInvalidBinding)
	case !hasAction && !hasScript:
		return fmt.Errorf("%w: action or script is required", ErrInvalidBinding)
	case hasAction:
		if _, err := ParseAction(b.Action); err != nil {
			return err
		}
	}
	return nil
}

// IsScripted reports whether the binding runs a script.
func (b Binding) IsScripted() bool {
	return strings.TrimSpace(b.Script) != ""
}

// IsCue reports whether the binding controls a single cue.
func (b Binding) IsCue() bool {
	return strings.TrimSpace(b.Cue) != ""
}

// String returns a short description for logs.
func (b Binding) String() string {
	target := b.Action
	if b.IsCue() {
		action, _ := ParseCueAction(b.Action)
		target = "cue " + strings.TrimSpace(b.Cue) + " " + string(action)
	}
	if b.IsScripted() {
		target = "script"
		if b.Name != "" {
			target = "script " + b.Name
		}
	}
	return fmt.Sprintf("%s %q -> %s", strings.ToLower(b.Protocol), b.Message, target)
}
