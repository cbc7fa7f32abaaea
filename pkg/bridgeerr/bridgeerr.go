// Package bridgeerr defines the error taxonomy shared by the amplifier
// client, the CEC adapter, and the protocol engine: TransportError and
// ProtocolError (recoverable, amplifier-side), FrameError (recoverable,
// codec-side, never surfaced past parse), AdapterError (fatal unless it
// is the Busy variant, which is retried), and FatalError (configuration).
package bridgeerr

import (
	"errors"
	"fmt"
)

// ErrBusy is wrapped by an AdapterError when a logical-address claim fails
// because another process already owns the CEC adapter; callers retry a
// bounded number of times before treating it as fatal.
var ErrBusy = errors.New("cec adapter busy")

// TransportError wraps a network/connection failure reaching the
// amplifier. Recovered locally: callers log and skip the outbound side
// effect, preserving whatever cache state already exists.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func NewTransportError(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// ProtocolError wraps an unexpected amplifier payload or status shape,
// e.g. a missing "volume" key in a JSON response. Same recovery policy
// as TransportError.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error during %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func NewProtocolError(op string, err error) error {
	return &ProtocolError{Op: op, Err: err}
}

// FrameError marks a malformed or out-of-range CEC frame. It is never
// surfaced past the codec's Parse call; it exists so callers that do want
// to log a drop reason have something typed to check.
type FrameError struct {
	Reason string
}

func (e *FrameError) Error() string { return "malformed cec frame: " + e.Reason }

func NewFrameError(reason string) error {
	return &FrameError{Reason: reason}
}

// AdapterError wraps a kernel CEC ioctl failure. Busy is retried a bounded
// number of times by the adapter; every other AdapterError is fatal to the
// current daemon cycle and triggers supervisor reconnect.
type AdapterError struct {
	Op    string
	Busy  bool
	Err   error
}

func (e *AdapterError) Error() string {
	if e.Busy {
		return fmt.Sprintf("cec adapter busy during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cec adapter error during %s: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

func NewAdapterError(op string, err error, busy bool) error {
	return &AdapterError{Op: op, Busy: busy, Err: err}
}

// IsBusy reports whether err is an AdapterError carrying the Busy flag.
func IsBusy(err error) bool {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Busy
	}
	return errors.Is(err, ErrBusy)
}

// FatalError marks a non-recoverable configuration problem (unparseable
// config file, invalid cec_vendor_compat value, ...). Surfaced to the CLI
// with a non-zero exit code.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

func NewFatalError(format string, args ...interface{}) error {
	return &FatalError{Err: fmt.Errorf(format, args...)}
}
