package driver

import (
	"errors"
	"fmt"

	"github.com/magnomatos822/replicatorg/protocol"
)

// ErrStop is returned when a command was interrupted by a stop request.
var ErrStop = errors.New("stop requested")

// ErrUnsupported is returned by drivers lacking a capability.
var ErrUnsupported = errors.New("operation not supported by driver")

// StopError is a fatal driver failure. Retrying the command cannot help.
type StopError struct {
	Reason string
	Err    error
}

func (e *StopError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *StopError) Unwrap() error { return e.Err }

// Fatal wraps err as a StopError.
func Fatal(reason string, err error) error {
	return &StopError{Reason: reason, Err: err}
}

// IsRetryable reports whether the command that produced err may be
// re-run unchanged.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrStop) {
		return false
	}
	var se *StopError
	if errors.As(err, &se) {
		return false
	}
	return protocol.IsTransient(err)
}
