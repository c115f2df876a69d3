package inproc

import "errors"

var (
	// ErrPortClosed is returned when sending on a closed port.
	ErrPortClosed = errors.New("inproc: port closed")

	// ErrPortTransferred is returned when using a port after it was
	// attached to a transmission. Transferred ports belong to the receiver.
	ErrPortTransferred = errors.New("inproc: port was transferred")

	// ErrReceiveOnly is returned when sending on a broadcast receive port.
	ErrReceiveOnly = errors.New("inproc: broadcast port is receive-only")
)
