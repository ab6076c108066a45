package application

import (
	"errors"
	"fmt"
)

// Error taxonomy of the agent. Components wrap these with fmt.Errorf("%w: ...")
// so callers can classify failures with errors.Is.
var (
	// ErrNetwork is returned when a socket could not be created or connected.
	ErrNetwork = errors.New("network error")

	// ErrBootstrap is returned when the provisioning endpoint did not yield a
	// usable configuration.
	ErrBootstrap = errors.New("bootstrap error")

	// ErrProtocol is returned when the protocol engine reports a failure on
	// connect, publish, subscribe or keepalive.
	ErrProtocol = errors.New("protocol error")

	// ErrTimeout is returned when a handshake is not acknowledged in time.
	ErrTimeout = errors.New("timeout")

	// ErrConfigTruncated reports more variables than the configured capacity.
	ErrConfigTruncated = errors.New("configuration truncated")

	ErrConnectTimeout = fmt.Errorf("%w: connect attempts exhausted", ErrTimeout)
	ErrNotConnected   = errors.New("session not connected")
	ErrTopicTooLong   = errors.New("topic exceeds maximum length")
	ErrFieldTooLong   = errors.New("field exceeds maximum length")
)

// ErrWouldBlock is returned by SessionEngine.Live when no keepalive was due.
var ErrWouldBlock = errors.New("would block")
