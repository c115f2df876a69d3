// Package messaging implements the private channel between two execution
// contexts: an asymmetric connect handshake over an origin-gated broadcast
// port, correlation-id request/reply exchanges, and topic-addressed
// dispatch, all on top of an abstract transport.
//
// This package implements the primary pieces:
//   - Messenger: One side of the channel; Listen or Connect exactly once,
//     then Send exchanges and subscribe topic handlers with On
//   - Pending: An open request/reply exchange; Await blocks until the reply
//     arrives, with no internal timeout
//   - TopicDispatcher: Ordered, sequential fan-out of non-reply messages to
//     topic subscribers
//   - Port / Delivery / Pairer: The transport abstraction; transports tag
//     deliveries with sender origins and enforce expected-origin
//     restrictions by silently dropping mismatches
//
// Key properties:
//   - One connection attempt per messenger; a second Listen or Connect
//     fails with ErrNotIdle
//   - Listen accepts exactly one connect attempt and never reads the
//     broadcast again; rejected attempts are dropped with debug logs only
//   - WithDelayedHandshake suspends the accepted handshake: data can flow
//     both ways, but the initiator stays blocked until FinishHandshake
//   - The initiator treats the first private-channel delivery as the
//     acknowledgment, whatever it carries
//   - A single receive loop per messenger processes deliveries in transport
//     order; handlers run sequentially on it
//   - Exchanges the peer never answers stay open and registered forever;
//     Await with a background context blocks indefinitely
//
// Example usage:
//
//	// Accepting side
//	listener := messaging.NewMessenger()
//	err := listener.Listen(ctx, bcast, []string{"https://app.example.com"})
//
//	// Initiating side
//	dialer := messaging.NewMessenger(messaging.WithPairer(hub))
//	err = dialer.Connect(ctx, listenerPort, "https://portal.example.com")
//
//	// Request/reply
//	pending, err := dialer.Send(ctx, "origin-subscription-state", nil)
//	reply, err := pending.Await(ctx)
//
// The transports/inproc package provides the in-process transport used in
// tests; transports/amqp provides the broker-backed one.
package messaging
