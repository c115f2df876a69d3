package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lanewave/pagelink-go/contracts"
	"github.com/lanewave/pagelink-go/internal/origin"
)

// Messenger is one side of a private, topic-addressed, request/reply channel
// between two execution contexts. A messenger makes at most one connection
// attempt in its lifetime: Listen to take the accepting side of the
// handshake, or Connect to take the initiating side. Once the private
// channel exists, Send opens exchanges, topic subscribers registered via On
// receive everything that is not a reply, and a single receive loop
// preserves transport delivery order end to end.
type Messenger struct {
	pairer     Pairer
	dispatcher *TopicDispatcher
	pending    *pendingRegistry
	logger     *slog.Logger

	mu        sync.RWMutex
	state     ConnState
	closed    bool
	suspended bool
	port      Port
	ackData   []byte
}

// MessengerOption configures the Messenger.
type MessengerOption func(*Messenger)

// WithLogger sets the logger. The messenger's dispatcher inherits it.
func WithLogger(logger *slog.Logger) MessengerOption {
	return func(m *Messenger) {
		m.logger = logger
	}
}

// WithPairer sets the pairer used by Connect to mint the private port pair.
// Listeners do not need one.
func WithPairer(pairer Pairer) MessengerOption {
	return func(m *Messenger) {
		m.pairer = pairer
	}
}

// NewMessenger creates an idle messenger.
func NewMessenger(options ...MessengerOption) *Messenger {
	m := &Messenger{
		state:   StateIdle,
		pending: newPendingRegistry(),
		logger:  slog.Default(),
	}

	for _, opt := range options {
		opt(m)
	}

	m.dispatcher = NewTopicDispatcher(WithDispatcherLogger(m.logger))

	return m
}

// Connect initiates the handshake through the target port: it mints a
// private port pair, broadcasts a connect envelope with the far end attached
// and restricted to expectedOrigin ("*" lifts the restriction), then blocks
// until the first delivery arrives on the near end. That first delivery is
// the acknowledgment, unconditionally; the channel is private, so no origin
// or topic check is applied to it.
//
// ctx bounds the wait and, after it succeeds, scopes the connection's
// receive loop.
func (m *Messenger) Connect(ctx context.Context, target Port, expectedOrigin string) error {
	if target == nil {
		return ErrMissingTarget
	}
	if expectedOrigin == "" {
		return ErrMissingOrigin
	}
	if expectedOrigin != origin.Wildcard {
		if _, err := origin.Normalize(expectedOrigin); err != nil {
			return fmt.Errorf("messenger: invalid expected origin: %w", err)
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.pairer == nil {
		m.mu.Unlock()
		return ErrNoPairer
	}
	if m.state != StateIdle {
		m.mu.Unlock()
		return ErrNotIdle
	}
	m.state = StateConnecting
	m.mu.Unlock()

	near, far, err := m.pairer.NewPair(ctx)
	if err != nil {
		m.revertToIdle()
		return fmt.Errorf("messenger: failed to create port pair: %w", err)
	}

	env, err := contracts.NewEnvelope(contracts.TopicConnectHandshake, nil)
	if err != nil {
		near.Close()
		far.Close()
		m.revertToIdle()
		return fmt.Errorf("messenger: failed to build connect envelope: %w", err)
	}
	data, err := env.Encode()
	if err != nil {
		near.Close()
		far.Close()
		m.revertToIdle()
		return fmt.Errorf("messenger: failed to encode connect envelope: %w", err)
	}

	if err := target.SendPort(ctx, data, far, expectedOrigin); err != nil {
		near.Close()
		far.Close()
		m.revertToIdle()
		return fmt.Errorf("messenger: failed to send connect handshake: %w", err)
	}

	m.logger.Debug("connect handshake sent",
		"expectedOrigin", expectedOrigin,
		"messageId", env.ID,
	)

	select {
	case <-ctx.Done():
		near.Close()
		m.revertToIdle()
		return ctx.Err()
	case _, ok := <-near.Deliveries():
		if !ok {
			m.revertToIdle()
			return fmt.Errorf("messenger: private channel closed before acknowledgment")
		}
	}

	m.mu.Lock()
	m.port = near
	m.state = StateConnected
	m.mu.Unlock()

	m.logger.Debug("handshake acknowledged", "expectedOrigin", expectedOrigin)

	go m.receiveLoop(ctx, near)
	return nil
}

// Send opens a request/reply exchange: a fresh envelope goes out on the
// private channel and the returned Pending resolves when a reply carrying
// its id comes back. A listener whose handshake is still suspended already
// has the private channel and may send; withholding the acknowledgment only
// withholds the acknowledgment.
func (m *Messenger) Send(ctx context.Context, topic string, payload any) (*Pending, error) {
	if topic == "" {
		return nil, fmt.Errorf("messenger: topic cannot be empty")
	}

	port, err := m.privatePort()
	if err != nil {
		return nil, err
	}

	env, err := contracts.NewEnvelope(topic, payload)
	if err != nil {
		return nil, fmt.Errorf("messenger: %w", err)
	}
	return m.transmit(ctx, port, env)
}

// sendReply implements replySender for messages vended by the receive loop.
func (m *Messenger) sendReply(ctx context.Context, id, topic string, payload any) (*Pending, error) {
	port, err := m.privatePort()
	if err != nil {
		return nil, err
	}

	env, err := contracts.NewReply(id, topic, payload)
	if err != nil {
		return nil, fmt.Errorf("messenger: %w", err)
	}
	return m.transmit(ctx, port, env)
}

// transmit registers the exchange and puts the envelope on the wire. A
// transport failure unregisters the just-added exchange before surfacing.
func (m *Messenger) transmit(ctx context.Context, port Port, env *contracts.Envelope) (*Pending, error) {
	data, err := env.Encode()
	if err != nil {
		return nil, fmt.Errorf("messenger: failed to encode envelope: %w", err)
	}

	p := newPending(env.ID, env.Topic)
	m.pending.add(p)

	if err := port.Send(ctx, data); err != nil {
		m.pending.remove(env.ID)
		return nil, fmt.Errorf("messenger: failed to send message: %w", err)
	}

	m.logger.Debug("message sent",
		"topic", env.Topic,
		"messageId", env.ID,
		"isReply", env.IsReply,
	)

	return p, nil
}

func (m *Messenger) privatePort() (Port, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.port == nil {
		return nil, ErrNotConnected
	}
	return m.port, nil
}

// On subscribes a handler to a topic on this messenger's dispatcher.
// Handlers run sequentially on the receive loop goroutine, in subscription
// order; a handler that never returns stalls all further delivery.
func (m *Messenger) On(topic string, handler Handler) error {
	return m.dispatcher.Subscribe(topic, handler)
}

// Off removes a subscription by handler identity, or every subscription on
// the topic when handler is nil.
func (m *Messenger) Off(topic string, handler Handler) {
	m.dispatcher.Unsubscribe(topic, handler)
}

// State returns the connection state.
func (m *Messenger) State() ConnState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// PendingCount returns the number of open exchanges. Exchanges the peer
// never answers are counted here forever.
func (m *Messenger) PendingCount() int {
	return m.pending.size()
}

// Close tears the messenger down: the private channel is closed, the receive
// loop drains out, and every later operation fails with ErrClosed. Open
// exchanges are not resolved. Closing twice is safe.
func (m *Messenger) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.suspended = false
	port := m.port
	m.mu.Unlock()

	if port != nil {
		if err := port.Close(); err != nil {
			return fmt.Errorf("messenger: failed to close private channel: %w", err)
		}
	}
	return nil
}

// revertToIdle rolls the state back after a connection attempt that produced
// no private channel.
func (m *Messenger) revertToIdle() {
	m.mu.Lock()
	if !m.closed && m.port == nil {
		m.state = StateIdle
	}
	m.mu.Unlock()
}

// receiveLoop drains the private channel on a single goroutine, which is
// what keeps reply resolution and topic dispatch in transport delivery
// order. It exits when the port closes or ctx is cancelled.
func (m *Messenger) receiveLoop(ctx context.Context, port Port) {
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-port.Deliveries():
			if !ok {
				return
			}
			m.handleDelivery(ctx, delivery)
		}
	}
}

// handleDelivery routes one inbound envelope: replies resolve their open
// exchange; everything else, including a reply whose exchange is already
// gone, goes to topic dispatch.
func (m *Messenger) handleDelivery(ctx context.Context, delivery Delivery) {
	env, err := contracts.Decode(delivery.Data)
	if err != nil {
		m.logger.Debug("dropping undecodable delivery", "error", err)
		return
	}

	msg := &Message{
		ID:     env.ID,
		Topic:  env.Topic,
		Data:   env.Data,
		sender: m,
	}

	if env.IsReply {
		if p, ok := m.pending.take(env.ID); ok {
			p.resolve(msg)
			m.logger.Debug("exchange resolved",
				"topic", env.Topic,
				"messageId", env.ID,
			)
			return
		}
	}

	m.dispatcher.Dispatch(ctx, msg)
}
