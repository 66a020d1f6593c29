package platform

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported marks a call this platform build cannot perform
	ErrUnsupported = errors.New("operation not supported on this platform")
	// ErrPermissionDenied marks a security rejection by the platform
	ErrPermissionDenied = errors.New("permission denied by platform")
	// ErrNotFound marks a missing package, component or preference
	ErrNotFound = errors.New("not found")
)

// Error wraps a platform failure with the operation that produced it
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("platform %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap annotates err with op. A nil err stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// IsUnsupported reports whether err is an ErrUnsupported
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

// IsPermissionDenied reports whether err is an ErrPermissionDenied
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsNotFound reports whether err is an ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
