package probe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lanewave/pagelink-go/contracts"
	"github.com/lanewave/pagelink-go/messaging"
)

// Subscriber is the topic-registration surface a responder binds to.
// *messaging.Messenger satisfies it.
type Subscriber interface {
	On(topic string, handler messaging.Handler) error
}

// Responder is the frame-side glue a probe target runs: it answers the
// reserved feature topics out of a fixed StateReport. Probe agents and test
// fixtures use it to make a context probeable.
type Responder struct {
	report StateReport
	logger *slog.Logger
}

// ResponderOption configures the Responder.
type ResponderOption func(*Responder)

// WithResponderLogger sets the logger.
func WithResponderLogger(logger *slog.Logger) ResponderOption {
	return func(r *Responder) {
		r.logger = logger
	}
}

// NewResponder creates a responder answering from the given report.
func NewResponder(report StateReport, options ...ResponderOption) *Responder {
	r := &Responder{
		report: report,
		logger: slog.Default(),
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// Bind subscribes the responder's handlers: the consolidated report on
// origin-subscription-state and the narrower answers on the other reserved
// topics.
func (r *Responder) Bind(bus Subscriber) error {
	bindings := map[string]any{
		contracts.TopicOriginSubscriptionState: r.report,
		contracts.TopicNotificationPermission: PermissionState{
			Permission: r.report.NotificationPermission,
		},
		contracts.TopicServiceWorkerState: WorkerState{
			Registered: r.report.ServiceWorkerRegistered,
			State:      r.report.ServiceWorkerState,
			URL:        r.report.ServiceWorkerURL,
		},
		contracts.TopicServiceWorkerQuery: WorkerState{
			Registered: r.report.ServiceWorkerRegistered,
			State:      r.report.ServiceWorkerState,
			URL:        r.report.ServiceWorkerURL,
		},
		contracts.TopicServiceWorkerRegistration: WorkerRegistration{
			Registered: r.report.ServiceWorkerRegistered,
			URL:        r.report.ServiceWorkerURL,
		},
	}

	for topic, payload := range bindings {
		if err := bus.On(topic, r.answer(payload)); err != nil {
			return fmt.Errorf("probe: failed to bind %s: %w", topic, err)
		}
	}
	return nil
}

// answer builds a handler replying with a fixed payload.
func (r *Responder) answer(payload any) messaging.HandlerFunc {
	return func(ctx context.Context, msg *messaging.Message) error {
		if _, err := msg.Reply(ctx, payload); err != nil {
			return fmt.Errorf("probe: failed to answer %s: %w", msg.Topic, err)
		}
		r.logger.Debug("answered probe query", "topic", msg.Topic, "messageId", msg.ID)
		return nil
	}
}
