// Package inproc is the in-process transport: a hub of isolated execution
// contexts exchanging origin-tagged transmissions over channels. It renders
// the same semantics the broker transport provides, without a broker, and
// is the substrate the rest of the module tests against.
//
// Pieces:
//   - Hub: Owns one Context per normalized origin and mints private port
//     pairs (it is a messaging.Pairer)
//   - Context: One execution context; Broadcast is its buffered receive
//     side, PortTo a send-only handle into another context tagged with the
//     sender's origin
//   - Loader: Maps URLs to FrameFactory functions and materializes frame
//     contexts on demand (it is a probe.Loader)
//
// Delivery semantics mirror the messaging contract: expected-origin
// mismatches, transmissions to closed contexts and overflow beyond the
// inbox buffer are dropped with debug logs, never surfaced to the sender.
// Attaching a pair port to a transmission neuters the sender's handle; the
// receiver gets a fresh handle over the same underlying channel.
//
// Example usage:
//
//	hub := inproc.NewHub()
//	portal, _ := hub.Context("https://portal.example.com")
//	host, _ := hub.Context("https://app.example.com")
//
//	listener := messaging.NewMessenger()
//	go listener.Listen(ctx, portal.Broadcast(), []string{host.Origin()})
//
//	dialer := messaging.NewMessenger(messaging.WithPairer(hub))
//	err := dialer.Connect(ctx, host.PortTo(portal), portal.Origin())
package inproc
