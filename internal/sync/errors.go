package sync

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
)

// TransientError wraps a store failure that is worth retrying:
// connectivity loss, timeouts, broker unavailability. Anything not
// marked transient is treated as permanent and dropped after logging.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient store error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient marks err as retryable. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err should be retried. Explicitly marked
// errors aside, network failures, bad connections and deadline expiry
// are the transient classes the stores can produce.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded)
}
