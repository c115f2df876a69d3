package amqp

import "errors"

var (
	// ErrClosed is returned by operations on a closed endpoint.
	ErrClosed = errors.New("amqp: endpoint closed")

	// ErrPortClosed is returned when sending on a closed port.
	ErrPortClosed = errors.New("amqp: port closed")

	// ErrPortTransferred is returned when using a port after it was
	// attached to a transmission.
	ErrPortTransferred = errors.New("amqp: port was transferred")

	// ErrReceiveOnly is returned when sending on a broadcast receive port.
	ErrReceiveOnly = errors.New("amqp: broadcast port is receive-only")
)
