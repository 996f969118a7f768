package midi

import (
	"github.com/pkg/errors"
)

// ErrInvalidInput is wrapped by every error caused by bad caller input: a
// non-positive tempo, an out-of-range pitch or velocity, a negative or
// non-finite time, and so on. Nothing is encoded when it is returned.
var ErrInvalidInput = errors.New("invalid input")

// ErrInternal is wrapped by errors that indicate a defect in this package
// rather than in the input, such as a track whose events go backwards in time
// after sorting. These errors carry a stack trace; print them with %+v.
var ErrInternal = errors.New("internal invariant violated")

// Returns an error wrapping ErrInvalidInput.
func invalidInput(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidInput, format, args...)
}

// Returns an error wrapping ErrInternal, annotated with the caller's stack.
func internalError(format string, args ...interface{}) error {
	return errors.WithStack(errors.Wrapf(ErrInternal, format, args...))
}

// IsInvalidInput returns true if err was caused by bad input to the builder
// or encoder.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsInternal returns true if err reports a broken internal invariant.
func IsInternal(err error) bool {
	return errors.Is(err, ErrInternal)
}
