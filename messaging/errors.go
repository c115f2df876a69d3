package messaging

import "errors"

var (
	// ErrMissingTarget is returned by Connect when no target port is given.
	ErrMissingTarget = errors.New("messenger: target port is required")

	// ErrMissingOrigin is returned by Connect when no expected origin is given.
	ErrMissingOrigin = errors.New("messenger: expected origin is required")

	// ErrMissingBroadcast is returned by Listen when no broadcast port is given.
	ErrMissingBroadcast = errors.New("messenger: broadcast port is required")

	// ErrNoAllowedOrigins is returned by Listen when the allow-list is empty.
	ErrNoAllowedOrigins = errors.New("messenger: at least one allowed origin is required")

	// ErrNoPairer is returned by Connect on a messenger constructed without a
	// pairer.
	ErrNoPairer = errors.New("messenger: no pairer configured")

	// ErrNotIdle is returned by Listen and Connect once a connection attempt
	// has been made. A messenger carries at most one attempt in its lifetime.
	ErrNotIdle = errors.New("messenger: connection attempt already made")

	// ErrNotConnected is returned by Send while no private channel exists.
	ErrNotConnected = errors.New("messenger: no private channel established")

	// ErrHandshakeNotReady is returned by FinishHandshake when no suspended
	// handshake is waiting to be finished.
	ErrHandshakeNotReady = errors.New("messenger: no suspended handshake to finish")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("messenger: closed")
)
