package mqtt

import (
	"errors"
	"fmt"
)

// ErrSessionActive is returned by Connect if a session is connecting or
// connected already. Disconnect first.
var ErrSessionActive = errors.New("mqtt session already active")

// ErrNotConnected is returned by AwaitConnection if the session ended
// before it was established.
var ErrNotConnected = errors.New("mqtt session not connected")

// ConfigurationError reports invalid broker, port or topic input
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, fmt.Sprint(e.Value), e.Reason)
}

// TransportError wraps a failure of the broker session
//
// It is delivered with the state change to Disconnected and never
// retried.
type TransportError struct {
	Op  string // dial, connect, subscribe, publish, connection
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mqtt %s: %s", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
