package irc

import (
	"errors"
	"fmt"
)

var (
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrAlreadyConnected   = errors.New("already connected")
	ErrNotConnected       = errors.New("not connected")
	ErrNetwork            = errors.New("network error")
)

// Reason qualifies a connection status change
type Reason int

const (
	ReasonNone Reason = iota
	ReasonRequested
	ReasonNetworkError
	ReasonAuthenticationFailed
	ReasonNameInUse
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonRequested:
		return "requested"
	case ReasonNetworkError:
		return "network_error"
	case ReasonAuthenticationFailed:
		return "authentication_failed"
	case ReasonNameInUse:
		return "name_in_use"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// ConnectError is delivered on the handshake channel when registration fails
type ConnectError struct {
	Reason Reason
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connect failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("connect failed (%s)", e.Reason)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
