// Package contracts defines the wire-level data structures shared by every
// pagelink component.
//
// The central type is Envelope, the JSON structure carried over a private
// channel between two connected contexts:
//
//	{ "id": "...", "topic": "...", "data": { ... }, "isReply": true }
//
// The id pairs a request with its replies, the topic routes unsolicited
// messages to subscribers, and the payload under data is opaque to the core.
// The package also names the reserved topics of the connect handshake and of
// the origin-state glue layer.
package contracts
