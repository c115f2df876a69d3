package contracts

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrMissingID is returned when decoding an envelope without an id.
	ErrMissingID = errors.New("envelope: missing id")
	// ErrMissingTopic is returned when decoding an envelope without a topic.
	ErrMissingTopic = errors.New("envelope: missing topic")
)

// Envelope is the wire-level message structure exchanged between two
// connected contexts. Data is opaque to the messaging core: it is carried
// verbatim and only interpreted by topic subscribers.
//
// A reply envelope reuses the id of the envelope it answers and sets
// IsReply; an envelope without IsReply is a fresh, topic-routed message.
type Envelope struct {
	ID      string          `json:"id"`
	Topic   string          `json:"topic"`
	Data    json.RawMessage `json:"data,omitempty"`
	IsReply bool            `json:"isReply,omitempty"`
}

// NewEnvelope creates a topic-routed envelope with a generated id.
func NewEnvelope(topic string, payload any) (*Envelope, error) {
	data, err := marshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for topic %s: %w", topic, err)
	}

	return &Envelope{
		ID:    uuid.New().String(),
		Topic: topic,
		Data:  data,
	}, nil
}

// NewReply creates a reply envelope reusing the id of the message it
// answers. The topic is carried along for subscribers that inspect it; reply
// routing itself happens on the id alone.
func NewReply(id, topic string, payload any) (*Envelope, error) {
	data, err := marshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reply payload for topic %s: %w", topic, err)
	}

	return &Envelope{
		ID:      id,
		Topic:   topic,
		Data:    data,
		IsReply: true,
	}, nil
}

// Encode serializes the envelope to JSON.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return data, nil
}

// Decode deserializes an envelope and validates the fields every envelope
// must carry. Receivers treat a Decode failure as a protocol violation and
// discard the delivery.
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if e.ID == "" {
		return nil, ErrMissingID
	}
	if e.Topic == "" {
		return nil, ErrMissingTopic
	}
	return &e, nil
}

// marshalPayload normalizes the payload forms senders may pass. Raw JSON is
// forwarded untouched so glue layers can relay payloads they never decoded.
func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
}
