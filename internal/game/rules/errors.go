package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrPreviewAborted stops a speculative execution. Preview callers swallow it.
	ErrPreviewAborted = errors.New("preview aborted")
	// ErrIONotProvided is returned when a decision hook is missing.
	ErrIONotProvided = fmt.Errorf("io not provided: %w", ErrPreviewAborted)
	// ErrTerminated is the outcome of a match stopped by Terminate.
	ErrTerminated = errors.New("match terminated")
)

// DataError reports broken authored content. Always fatal to the match.
type DataError struct {
	Msg string
}

func (e *DataError) Error() string {
	return "data error: " + e.Msg
}

func NewDataError(format string, args ...any) error {
	return &DataError{Msg: fmt.Sprintf(format, args...)}
}

// IoError reports an invalid answer from one player. The opponent wins.
type IoError struct {
	Who Who
	Msg string
	Err error
}

func (e *IoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("io error from %s: %s: %v", e.Who, e.Msg, e.Err)
	}
	return fmt.Sprintf("io error from %s: %s", e.Who, e.Msg)
}

func (e *IoError) Unwrap() error {
	return e.Err
}

func NewIoError(who Who, format string, args ...any) error {
	return &IoError{Who: who, Msg: fmt.Sprintf(format, args...)}
}

// InternalError reports a broken engine invariant.
type InternalError struct {
	Msg string
	Err error
}

func (e *InternalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("internal error: %s: %v", e.Msg, e.Err)
	}
	return "internal error: " + e.Msg
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

func NewInternalError(format string, args ...any) error {
	return &InternalError{Msg: fmt.Sprintf(format, args...)}
}

// AsIoError unwraps an IoError from err.
func AsIoError(err error) (*IoError, bool) {
	var ioErr *IoError
	if errors.As(err, &ioErr) {
		return ioErr, true
	}
	return nil, false
}

// IsDataError reports whether err wraps a DataError.
func IsDataError(err error) bool {
	var dataErr *DataError
	return errors.As(err, &dataErr)
}
