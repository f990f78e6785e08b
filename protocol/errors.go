package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind classifies packet failures.
type ErrorKind int

const (
	// KindChecksum is a CRC mismatch on a received frame.
	KindChecksum ErrorKind = iota
	// KindMalformed is a truncated, oversized or otherwise unreadable frame.
	KindMalformed
	// KindTimeout means no response arrived in time.
	KindTimeout
	// KindStatus is a non-OK response status from the firmware.
	KindStatus
)

func (k ErrorKind) String() string {
	switch k {
	case KindChecksum:
		return "checksum"
	case KindMalformed:
		return "malformed"
	case KindTimeout:
		return "timeout"
	case KindStatus:
		return "status"
	}
	return "unknown"
}

// Error is a packet-level failure. Codec failures are always local; the
// caller decides whether to retry using IsTransient.
type Error struct {
	Kind   ErrorKind
	Msg    string
	Status byte
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether resending the same packet may succeed.
func (e *Error) Transient() bool {
	if e.Kind == KindStatus {
		return StatusTransient(e.Status)
	}
	return true
}

// IsTransient returns true if err is a retryable packet error.
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	return false
}

// IsKind reports whether err is a packet error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}

func malformed(msg string) *Error {
	return &Error{Kind: KindMalformed, Msg: msg}
}
