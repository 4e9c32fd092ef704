package control

import (
	"errors"
	"fmt"
)

// Sentinel errors for the control layer.
var (
	// ErrUnknownAction is returned for an action name that is not a session action.
	ErrUnknownAction = errors.New("unknown action")

	// ErrUnknownCueAction is returned for an action name that is not a cue action.
	ErrUnknownCueAction = errors.New("unknown cue action")

	// ErrNoCueTarget is returned when a cue binding fires and the target
	// cannot perform cue actions.
	ErrNoCueTarget = errors.New("target does not perform cue actions")

	// ErrInvalidBinding is returned when a binding is incomplete.
	ErrInvalidBinding = errors.New("invalid binding")

	// ErrMissingArgument is returned when a message carries fewer values than
	// its action needs.
	ErrMissingArgument = errors.New("missing action argument")

	// ErrBadArgument is returned when a value cannot be used as an action argument.
	ErrBadArgument = errors.New("action argument is not a number")

	// ErrNoScripts is returned when a scripted binding is loaded without an engine.
	ErrNoScripts = errors.New("scripted bindings need a script engine")

	// ErrNotConcrete is returned when injecting a message that has wildcards.
	ErrNotConcrete = errors.New("injected message must not contain wildcards")

	// ErrClosed is returned when using a closed controller.
	ErrClosed = errors.New("controller is closed")
)

// BindingError reports why one binding could not be loaded or run.
type BindingError struct {
	Binding Binding
	Err     error
}

// Error implements the error interface.
func (e *BindingError) Error() string {
	return fmt.Sprintf("binding %s: %v", e.Binding, e.Err)
}

// Unwrap returns the underlying error.
func (e *BindingError) Unwrap() error {
	return e.Err
}
