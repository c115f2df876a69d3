// Package amqp renders the messaging transport over a RabbitMQ broker.
//
// Each Endpoint stands in for one execution context: it owns a broadcast
// queue other endpoints address it by, carries a fixed origin, and mints
// private queue pairs. Broadcast transmissions travel with the sender's
// origin in a header; expected-origin restrictions are enforced by the
// receiving endpoint, which drops mismatches without telling the sender.
// Attaching a pair end to a transmission transfers it: the end's queue
// names ride in headers, the local handle goes dead and the receiver
// reconstructs a live end over the same queues.
//
// Queues are non-durable and auto-deleting, and consumers auto-ack.
// Endpoints are as ephemeral as the contexts they render; nothing is
// retried and nothing survives them.
//
// The package also carries the frame control plane: an Agent hosts frame
// endpoints on request and a Loader, implementing probe.Loader, asks it to
// load and unload them.
package amqp
