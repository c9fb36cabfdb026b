package transport

import (
	"errors"
	"fmt"
)

// Error is a transport failure: network, timeout, or server rejection.
// StatusCode is zero when the request never produced an HTTP response.
type Error struct {
	Op         string // which call failed: "version", "tasks", "push", "categories"
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport %s: server returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is (or wraps) a transport failure.
func IsTransportError(err error) bool {
	var te *Error
	return errors.As(err, &te)
}
