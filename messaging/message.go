package messaging

import (
	"context"
	"encoding/json"
	"fmt"
)

// replySender puts a reply on the wire and registers the follow-up exchange.
// The messenger implements it; messages vended by the receive loop carry it.
type replySender interface {
	sendReply(ctx context.Context, id, topic string, payload any) (*Pending, error)
}

// Message is the inbound view handed to topic subscribers and returned by
// Pending.Await. Data is the raw payload; Decode unmarshals it on demand.
type Message struct {
	ID    string
	Topic string
	Data  json.RawMessage

	sender replySender
}

// Decode unmarshals the message payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("message %s has no payload", m.ID)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("failed to decode payload of message %s: %w", m.ID, err)
	}
	return nil
}

// Reply answers on the message's own exchange: same id, same topic, reply
// flag set. Replying opens a fresh pending exchange under that id, so a
// conversation can keep alternating on one correlation id.
func (m *Message) Reply(ctx context.Context, payload any) (*Pending, error) {
	if m.sender == nil {
		return nil, fmt.Errorf("message %s has no reply channel", m.ID)
	}
	return m.sender.sendReply(ctx, m.ID, m.Topic, payload)
}
