package script

import "errors"

// Errors for script compilation and execution.
var (
	// ErrClosed is returned when the engine is closed.
	ErrClosed = errors.New("script engine is closed")

	// ErrCompile is returned when a script does not parse.
	ErrCompile = errors.New("script does not compile")

	// ErrRuntime is returned when a script raises an error or times out.
	ErrRuntime = errors.New("script failed")

	// ErrNilScript is returned when running a nil script.
	ErrNilScript = errors.New("script is nil")
)
