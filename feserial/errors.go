// feserial/errors.go

package feserial

import "errors"

// Driver errors. Callers should test with errors.Is; most are returned wrapped
// with the operation or device that produced them.
var (
	// ErrResourceExhausted indicates the transfer could not be staged.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrInvalidOperation indicates an unrecognised control operation.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrInterrupted is returned by a blocking read that was cancelled before
	// a byte arrived. No byte is consumed.
	ErrInterrupted = errors.New("interrupted")

	// ErrHardwareUnavailable indicates register mapping or resource discovery
	// failed while bringing a device up.
	ErrHardwareUnavailable = errors.New("hardware unavailable")

	// ErrIOFault indicates a register operation that should have succeeded did not.
	ErrIOFault = errors.New("I/O fault")

	// ErrOverflow is returned by RingBuffer.Push when the oldest unread byte
	// was overwritten to make room.
	ErrOverflow = errors.New("receive buffer overflow")

	// ErrNoDevice indicates the device is not (or no longer) registered.
	ErrNoDevice = errors.New("no such device")

	// ErrExists indicates a device with the same identity is already registered.
	ErrExists = errors.New("device already registered")

	// ErrClosed indicates the session has been closed.
	ErrClosed = errors.New("session closed")

	// ErrInvalidState indicates the device is not in a state that allows the operation.
	ErrInvalidState = errors.New("invalid device state")
)
