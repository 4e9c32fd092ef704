package app

import (
	"errors"

	"github.com/dshills/cuecontrol/internal/transport"
)

// Application errors.
var (
	// ErrQuit signals that the application should exit normally.
	ErrQuit = transport.ErrQuit

	// ErrNoConfig is returned by New without a configuration.
	ErrNoConfig = errors.New("no configuration")

	// ErrAlreadyRunning indicates Run was called more than once.
	ErrAlreadyRunning = errors.New("application already running")

	errDisabled = errors.New("disabled")
)

// InitError represents an initialization error.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// ComponentError reports the failure of a running component.
type ComponentError struct {
	Component string
	Err       error
}

func (e *ComponentError) Error() string {
	return e.Component + ": " + e.Err.Error()
}

func (e *ComponentError) Unwrap() error {
	return e.Err
}
