package messaging

import "context"

// Delivery is one inbound transmission surfaced by a Port.
type Delivery struct {
	// Data is the raw payload as it arrived.
	Data []byte

	// Origin is the transport-asserted origin of the sender. Deliveries on
	// private pair ports carry an empty origin.
	Origin string

	// Port is the sub-channel transferred alongside the payload, if any.
	Port Port
}

// Port is one end of an asynchronous, ordered, best-effort channel between
// execution contexts. Implementations tag inbound deliveries with the sender
// origin on shared ports and enforce expected-origin restrictions at delivery
// time: a restricted transmission that reaches a non-matching receiver is
// dropped, not errored.
type Port interface {
	// Send transmits a payload.
	Send(ctx context.Context, data []byte) error

	// SendPort transmits a payload with one sub-channel port attached,
	// restricted to receivers whose origin matches expectedOrigin ("*" lifts
	// the restriction). The attached port must not be used locally afterwards.
	SendPort(ctx context.Context, data []byte, port Port, expectedOrigin string) error

	// Deliveries returns the inbound stream. The channel is closed when the
	// port closes; send-only ports return nil.
	Deliveries() <-chan Delivery

	// Close releases the port and closes its delivery stream. Closing twice
	// is safe.
	Close() error
}

// Pairer mints linked duplex port pairs: everything sent on one end is
// delivered on the other, in order, with an empty origin.
type Pairer interface {
	NewPair(ctx context.Context) (Port, Port, error)
}
