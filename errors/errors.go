// Package errors wraps pkg/errors and adds coded errors so callers can
// distinguish error kinds without string matching.
package errors

import (
	"github.com/pkg/errors"
)

// Code identifies a class of error. See the Code constants below for the
// kinds this module produces.
type Code string

const (
	// CodeIndexNotFound is returned when a backend table is missing on
	// Open or Delete.
	CodeIndexNotFound Code = "IndexNotFound"
	// CodeIoError identifies a backend I/O failure. The bbolt backend in
	// kvindex wraps its I/O errors without attaching this code.
	CodeIoError Code = "IoError"
	// CodeCorruptEncoding is returned when a decoder hits an unexpected
	// end of stream or bad terminator.
	CodeCorruptEncoding Code = "CorruptEncoding"
	// CodeInvariantViolation is returned when an invariant the core
	// relies on (e.g. at most one forward row per key) is violated.
	CodeInvariantViolation Code = "InvariantViolation"
	// CodeInterrupted identifies a cancelled blocking backend call. No
	// code path in this module cancels backend calls or returns it.
	CodeInterrupted Code = "Interrupted"
)

// New returns a new coded error with the given message.
func New(code Code, message string) error {
	return errors.WithStack(codedError{Code: code, Message: message})
}

// Newf is like New but with fmt.Sprintf-style formatting.
func Newf(code Code, format string, args ...interface{}) error {
	return errors.WithStack(codedError{Code: code, Message: errors.Errorf(format, args...).Error()})
}

// Is reports whether err (or any error it wraps) carries the given Code.
func Is(err error, target Code) bool {
	return errors.Is(err, codedError{Code: target})
}

// Cause returns the underlying cause of err, per github.com/pkg/errors.
func Cause(err error) error {
	return errors.Cause(err)
}

// Wrap annotates err with a message, preserving its Code for Is().
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf is like Wrap with fmt.Sprintf-style formatting.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// codedError is the fundamental type backing coded errors.
type codedError struct {
	Code    Code
	Message string
}

func (ce codedError) Error() string {
	return ce.Message
}

// Is makes codedError comparable by Code alone via errors.Is, so that
// wrapping (Wrap/Wrapf/WithStack) doesn't defeat Is(err, SomeCode).
func (ce codedError) Is(err error) bool {
	e, ok := err.(codedError)
	return ok && ce.Code == e.Code
}
