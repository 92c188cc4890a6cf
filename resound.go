// Package resound is a realtime audio synthesis and spatialization engine.
//
// Audio is produced in fixed-size blocks by a single high-priority render
// loop. Sources combine generators (buffers, decoded streams, noise), apply
// panning and attenuation and sum into the master bus. A declarative router
// fans source output out to global effects with click-free gain transitions.
// Control threads never touch realtime state directly: every mutation goes
// through the command queue and becomes visible at a block boundary.
package resound

import (
	"errors"

	"github.com/rs/xid"
)

// Handle references a live engine object from the control side.
type Handle uint64

// Error kinds raised by the engine. Package errors wrap these, so callers
// can match with errors.Is regardless of context added along the way.
var (
	// ErrRange is returned when a numeric argument is out of bounds.
	ErrRange = errors.New("argument out of range")
	// ErrInvalidHandle is returned when a handle does not reference a live
	// object of the expected kind.
	ErrInvalidHandle = errors.New("invalid handle")
	// ErrInvalidProperty is returned when a property is not valid for the
	// target object.
	ErrInvalidProperty = errors.New("invalid property")
	// ErrByteStream is returned for failures in the byte stream layer.
	ErrByteStream = errors.New("byte stream error")
	// ErrUnsupportedOperation is returned when a byte stream does not
	// support the requested operation, e.g. seeking a pipe.
	ErrUnsupportedOperation = errors.New("unsupported byte stream operation")
	// ErrDecoding is returned when a decoder cannot make sense of its input.
	ErrDecoding = errors.New("decoding error")
	// ErrAlreadyInitialized is returned by Initialize when the library is
	// already initialized.
	ErrAlreadyInitialized = errors.New("already initialized")
	// ErrNotInitialized is returned when the library is used before
	// Initialize or after Shutdown.
	ErrNotInitialized = errors.New("not initialized")
	// ErrInternal indicates a bug in the engine.
	ErrInternal = errors.New("internal error")
)

// NewUID returns a new unique id value, used to identify objects in logs.
func NewUID() string {
	return xid.New().String()
}
