package lantz

import (
	"errors"

	"github.com/lumasullo/lantz/pkg/units"
)

// Errors surfaced by descriptors, transports and the streaming engine.
// Wrapped errors keep these as their root, so callers test with errors.Is.
var (
	// ErrTransport is returned when the port or handle is unavailable or I/O fails
	ErrTransport = errors.New("transport error")
	// ErrTimeout is returned when no response arrives within the deadline
	ErrTimeout = errors.New("timeout")
	// ErrDecode is returned for malformed bytes or values that cannot be interpreted
	ErrDecode = errors.New("decode error")
	// ErrUnmappedValue is returned when a value is outside the declared enumeration
	ErrUnmappedValue = errors.New("unmapped value")
	// ErrUnknownKey is returned for indexed access with a key outside the key set
	ErrUnknownKey = errors.New("unknown key")
	// ErrOutOfRange is returned when a value is outside the declared limits
	ErrOutOfRange = errors.New("value out of range")
	// ErrReadOnly is returned when writing a feature without a setter
	ErrReadOnly = errors.New("feature is read-only")
	// ErrIncompatibleUnit is returned for unit mismatches, including bare numbers on unit-tagged descriptors
	ErrIncompatibleUnit = units.ErrIncompatibleUnit
	// ErrInvalidState is returned for operations illegal in the current session state
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidArgument is returned for action arguments of the wrong count or type
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned for unknown descriptor names
	ErrNotFound = errors.New("not found")
	// ErrFinalized is returned when an instrument is used after Finalize
	ErrFinalized = errors.New("instrument finalized")
)
