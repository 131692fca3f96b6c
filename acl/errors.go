package acl

import (
	"fmt"

	"github.com/gomlx/goacl/driver"
	"github.com/pkg/errors"
)

// Error is a failed native ACL call.
type Error struct {
	// Op is the name of the native function that failed.
	Op     string
	Status driver.Status
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("ACL error (code=%d, %s): %s failed", int32(e.Status), e.Status, e.Op)
}

// ErrNoContext is returned when an operation requires a current context and there is none.
var ErrNoContext = errors.New("no ACL context is current")

// StatusOf returns the native status of the error, if it (or any error it wraps) is an *Error.
func StatusOf(err error) (driver.Status, bool) {
	var aclErr *Error
	if errors.As(err, &aclErr) {
		return aclErr.Status, true
	}
	return driver.Success, false
}

// check converts the status of a native call to an error, with a stack trace.
func check(op string, status driver.Status) error {
	if status == driver.Success {
		return nil
	}
	return errors.WithStack(&Error{Op: op, Status: status})
}

// panicf panics with a formatted error (with stack trace). Used for programmer errors.
func panicf(format string, args ...any) {
	panic(errors.Errorf(format, args...))
}
