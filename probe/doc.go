// Package probe implements the sequential origin prober: it walks a list of
// remote origins, strictly one at a time, asking each whether it already
// holds a live web-push subscription, and decides the fate of a suspended
// connection handshake on the answer.
//
// Pieces:
//   - Prober: The run loop. Per target it loads the document (Loader),
//     connects a fresh messenger restricted to the target's origin, requests
//     a StateReport and judges it with the five-condition SubscribedAt
//     predicate
//   - StateReport: The consolidated state a target reports, with the
//     predicate and the narrower per-topic payloads
//   - Responder: Frame-side glue answering the reserved topics from a fixed
//     report; what makes a context probeable
//   - Loader / Frame: The collaborator contracts a transport provides
//
// Outcomes:
//   - Any target subscribed: the run freezes. Run blocks until its context
//     dies, later targets stay pending, and a suspended handshake handed in
//     via WithSuspendedHandshake is never finished.
//   - Every target unsubscribed: the run exhausts and the suspended
//     handshake is finished.
//
// Unreachable targets count as unsubscribed and probing moves on. There are
// no internal timeouts or retries: a target that accepts the connection but
// never answers holds the run on that target for as long as the context
// lives.
//
// Example usage:
//
//	prober, err := probe.NewProber(loader, hub,
//		[]string{"https://news.example.com/push/portal"},
//		probe.WithWorkerPathFragment("/push/worker"),
//		probe.WithSuspendedHandshake(listener),
//	)
//	if err != nil {
//		return err
//	}
//	err = prober.Run(ctx)
package probe
