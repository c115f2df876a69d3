package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// Handler processes inbound messages delivered for a topic.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// TopicDispatcher routes messages to handlers subscribed by topic name.
// Handlers for a topic run sequentially in subscription order. Every
// messenger owns its own dispatcher; there is no shared registry.
type TopicDispatcher struct {
	handlers map[string][]Handler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// TopicDispatcherOption configures the TopicDispatcher.
type TopicDispatcherOption func(*TopicDispatcher)

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) TopicDispatcherOption {
	return func(d *TopicDispatcher) {
		d.logger = logger
	}
}

// NewTopicDispatcher creates a new topic dispatcher.
func NewTopicDispatcher(options ...TopicDispatcherOption) *TopicDispatcher {
	d := &TopicDispatcher{
		handlers: make(map[string][]Handler),
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(d)
	}

	return d
}

// Subscribe appends a handler to the topic's invocation list.
func (d *TopicDispatcher) Subscribe(topic string, handler Handler) error {
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[topic] = append(d.handlers[topic], handler)

	d.logger.Debug("subscribed topic handler",
		"topic", topic,
		"handlers", len(d.handlers[topic]),
	)

	return nil
}

// Unsubscribe removes the first subscription matching the handler's identity.
// A nil handler clears every subscription on the topic. Removing a handler
// that was never subscribed is a no-op.
func (d *TopicDispatcher) Unsubscribe(topic string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if handler == nil {
		delete(d.handlers, topic)
		return
	}

	handlers := d.handlers[topic]
	for i, h := range handlers {
		if sameHandler(h, handler) {
			d.handlers[topic] = append(handlers[:i], handlers[i+1:]...)
			if len(d.handlers[topic]) == 0 {
				delete(d.handlers, topic)
			}
			return
		}
	}
}

// sameHandler compares handler identity. HandlerFunc values are compared by
// code pointer because Go functions do not support ==.
func sameHandler(a, b Handler) bool {
	af, aok := a.(HandlerFunc)
	bf, bok := b.(HandlerFunc)
	if aok != bok {
		return false
	}
	if aok {
		return reflect.ValueOf(af).Pointer() == reflect.ValueOf(bf).Pointer()
	}
	return a == b
}

// Dispatch delivers the message to every subscriber of its topic, in
// subscription order, on the calling goroutine. The subscriber list is
// snapshotted first, so subscribing or unsubscribing mid-dispatch never
// affects the in-flight delivery. A message with no subscribers is dropped.
func (d *TopicDispatcher) Dispatch(ctx context.Context, msg *Message) {
	if msg == nil {
		return
	}

	d.mu.RLock()
	handlers := d.handlers[msg.Topic]
	snapshot := make([]Handler, len(handlers))
	copy(snapshot, handlers)
	d.mu.RUnlock()

	if len(snapshot) == 0 {
		d.logger.Debug("dropping message with no subscribers",
			"topic", msg.Topic,
			"messageId", msg.ID,
		)
		return
	}

	for _, handler := range snapshot {
		if err := handler.Handle(ctx, msg); err != nil {
			d.logger.Error("topic handler failed",
				"topic", msg.Topic,
				"messageId", msg.ID,
				"error", err,
			)
		}
	}
}

// Subscribers returns a copy of the topic's handler list in invocation order.
func (d *TopicDispatcher) Subscribers(topic string) []Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()

	handlers := d.handlers[topic]
	if len(handlers) == 0 {
		return nil
	}
	snapshot := make([]Handler, len(handlers))
	copy(snapshot, handlers)
	return snapshot
}
