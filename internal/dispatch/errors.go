package dispatch

import (
	"errors"
	"fmt"

	"github.com/dshills/cuecontrol/internal/dispatch/mask"
)

// Sentinel errors for the dispatch tree.
var (
	// ErrConflict is returned when a registration would place a leaf on the
	// path of another mask, or an inner node where a leaf is requested.
	ErrConflict = errors.New("dispatch: mask conflicts with an existing registration")

	// ErrArity is returned when fewer values are supplied than the mask has cells.
	ErrArity = errors.New("dispatch: not enough values for mask")

	// ErrInvalidIdentifier is returned for an empty message identifier.
	ErrInvalidIdentifier = errors.New("dispatch: invalid message identifier")

	// ErrNilHandler is returned when a nil handler is registered.
	ErrNilHandler = errors.New("dispatch: handler cannot be nil")
)

// ConflictError describes a rejected registration.
type ConflictError struct {
	// Identifier is the message identifier of the rejected registration.
	Identifier Identifier

	// Mask is the rejected mask.
	Mask mask.Mask

	// At is the prefix of Mask where the existing registration was found.
	At mask.Mask

	// Shorter is true when a shorter mask already terminates at At, false
	// when longer masks already continue below the requested leaf.
	Shorter bool
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Shorter {
		return fmt.Sprintf("%s: %s %s is shadowed by registration at %s",
			ErrConflict, e.Identifier, e.Mask, e.At)
	}
	return fmt.Sprintf("%s: %s %s would shadow longer registrations",
		ErrConflict, e.Identifier, e.Mask)
}

// Unwrap returns ErrConflict.
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// ArityError is returned by Filter when a message carries fewer values than
// the matched mask consumed.
type ArityError struct {
	Want int
	Got  int
}

// Error implements the error interface.
func (e *ArityError) Error() string {
	return fmt.Sprintf("%s: mask has %d cells, got %d values", ErrArity, e.Want, e.Got)
}

// Unwrap returns ErrArity.
func (e *ArityError) Unwrap() error {
	return ErrArity
}
