package session

import (
	"errors"
	"fmt"
)

var ErrNotStreaming = errors.New("session: not streaming")

// ConnectError reports a failed dial or option handshake. It is never retried
// inside the session; see Reconnect.
type ConnectError struct {
	Endpoint string
	Op       string // "dial" or "handshake"
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("session: %s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
