package messaging

import (
	"context"
	"fmt"

	"github.com/lanewave/pagelink-go/contracts"
	"github.com/lanewave/pagelink-go/internal/origin"
)

// ConnState is the lifecycle state of a messenger's single connection
// attempt.
type ConnState string

const (
	// StateIdle means no connection attempt has been made yet.
	StateIdle ConnState = "idle"
	// StateListening covers both waiting for a connect attempt and holding
	// an accepted handshake in suspension.
	StateListening ConnState = "listening"
	// StateConnecting means a connect envelope is out and the acknowledgment
	// has not arrived.
	StateConnecting ConnState = "connecting"
	// StateConnected means the handshake completed on both sides of this
	// messenger's view.
	StateConnected ConnState = "connected"
)

type listenConfig struct {
	delayed bool
}

// ListenOption configures a Listen call.
type ListenOption func(*listenConfig)

// WithDelayedHandshake makes Listen stop short of acknowledging: the connect
// attempt is accepted, the private channel is live, but the initiator keeps
// waiting until FinishHandshake puts the acknowledgment on the wire.
func WithDelayedHandshake() ListenOption {
	return func(c *listenConfig) {
		c.delayed = true
	}
}

// Listen takes the accepting side of the handshake. It reads the broadcast
// port until a delivery arrives that decodes as a connect envelope, carries
// an attached port, and comes from an origin on the allow-list; everything
// else is dropped with a debug log and listening continues. Exactly one
// attempt is ever accepted: at accept the broadcast is never read again, the
// attached port becomes the private channel and the receive loop starts.
//
// Normally the acknowledgment goes back immediately and the state moves to
// connected. With WithDelayedHandshake the messenger stays in listening with
// the handshake suspended until FinishHandshake. Listen returns at accept in
// both modes; ctx bounds the wait and scopes the receive loop afterwards.
func (m *Messenger) Listen(ctx context.Context, broadcast Port, allowedOrigins []string, options ...ListenOption) error {
	if broadcast == nil {
		return ErrMissingBroadcast
	}
	if len(allowedOrigins) == 0 {
		return ErrNoAllowedOrigins
	}
	allow, err := origin.NewAllowList(allowedOrigins)
	if err != nil {
		return fmt.Errorf("messenger: invalid allowed origins: %w", err)
	}

	cfg := listenConfig{}
	for _, opt := range options {
		opt(&cfg)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != StateIdle {
		m.mu.Unlock()
		return ErrNotIdle
	}
	m.state = StateListening
	m.mu.Unlock()

	m.logger.Debug("listening for connect handshake", "allowedOrigins", allowedOrigins)

	for {
		select {
		case <-ctx.Done():
			m.revertToIdle()
			return ctx.Err()
		case delivery, ok := <-broadcast.Deliveries():
			if !ok {
				m.revertToIdle()
				return fmt.Errorf("messenger: broadcast port closed while listening")
			}

			env, err := contracts.Decode(delivery.Data)
			if err != nil {
				m.logger.Debug("dropping undecodable broadcast",
					"origin", delivery.Origin,
					"error", err,
				)
				continue
			}
			if env.Topic != contracts.TopicConnectHandshake {
				m.logger.Debug("dropping broadcast with unexpected topic",
					"topic", env.Topic,
					"origin", delivery.Origin,
				)
				continue
			}
			if delivery.Port == nil {
				m.logger.Debug("dropping connect attempt without attached port",
					"origin", delivery.Origin,
				)
				continue
			}
			if !allow.Contains(delivery.Origin) {
				m.logger.Debug("dropping connect attempt from disallowed origin",
					"origin", delivery.Origin,
				)
				continue
			}

			return m.accept(ctx, env, delivery.Port, cfg.delayed)
		}
	}
}

// accept adopts the attached port as the private channel and either sends
// the acknowledgment or suspends with it prepared.
func (m *Messenger) accept(ctx context.Context, env *contracts.Envelope, port Port, delayed bool) error {
	ack, err := contracts.NewReply(env.ID, contracts.TopicConnectHandshake, nil)
	if err != nil {
		m.revertToIdle()
		return fmt.Errorf("messenger: failed to build acknowledgment: %w", err)
	}
	ackData, err := ack.Encode()
	if err != nil {
		m.revertToIdle()
		return fmt.Errorf("messenger: failed to encode acknowledgment: %w", err)
	}

	m.mu.Lock()
	m.port = port
	m.ackData = ackData
	if delayed {
		m.suspended = true
		m.mu.Unlock()

		m.logger.Debug("connect attempt accepted, handshake suspended", "messageId", env.ID)

		go m.receiveLoop(ctx, port)
		return nil
	}
	m.mu.Unlock()

	if err := port.Send(ctx, ackData); err != nil {
		port.Close()
		m.mu.Lock()
		m.port = nil
		m.ackData = nil
		m.mu.Unlock()
		m.revertToIdle()
		return fmt.Errorf("messenger: failed to send acknowledgment: %w", err)
	}

	m.mu.Lock()
	m.ackData = nil
	m.state = StateConnected
	m.mu.Unlock()

	m.logger.Debug("connect attempt accepted", "messageId", env.ID)

	go m.receiveLoop(ctx, port)
	return nil
}

// FinishHandshake releases a suspended handshake: the prepared
// acknowledgment goes out on the private channel and the state moves to
// connected. It fails with ErrHandshakeNotReady unless a delayed Listen has
// accepted and not yet finished.
func (m *Messenger) FinishHandshake(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if !m.suspended || m.port == nil {
		m.mu.Unlock()
		return ErrHandshakeNotReady
	}
	port := m.port
	ackData := m.ackData
	m.mu.Unlock()

	if err := port.Send(ctx, ackData); err != nil {
		return fmt.Errorf("messenger: failed to send acknowledgment: %w", err)
	}

	m.mu.Lock()
	m.suspended = false
	m.ackData = nil
	m.state = StateConnected
	m.mu.Unlock()

	m.logger.Debug("suspended handshake finished")
	return nil
}

// HandshakeSuspended reports whether a delayed Listen has accepted a connect
// attempt whose acknowledgment is still withheld.
func (m *Messenger) HandshakeSuspended() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.suspended
}
