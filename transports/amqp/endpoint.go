package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/lanewave/pagelink-go/internal/origin"
	"github.com/lanewave/pagelink-go/messaging"
	amqp091 "github.com/rabbitmq/amqp091-go"
)

const (
	broadcastPrefix = "pagelink.bcast."
	pairPrefix      = "pagelink.port."
)

// Endpoint is one execution context on a broker: an origin, a broadcast
// queue other endpoints address it by, and the ability to mint private
// queue pairs. It implements messaging.Pairer.
//
// Trust follows the browser model this renders: the sender's origin rides
// in a header the broker fabric is trusted to carry, and expected-origin
// restrictions are enforced by the receiving endpoint, which drops
// mismatches without telling the sender.
type Endpoint struct {
	url     string
	origin  string
	address string
	logger  *slog.Logger

	conn  *amqp091.Connection
	pubCh *amqp091.Channel
	pubMu sync.Mutex

	mu     sync.RWMutex
	closed bool

	broadcast *broadcastPort
}

// EndpointOption configures the Endpoint.
type EndpointOption func(*Endpoint)

// WithEndpointLogger sets the logger.
func WithEndpointLogger(logger *slog.Logger) EndpointOption {
	return func(e *Endpoint) {
		e.logger = logger
	}
}

// WithAddress pins the broadcast queue name instead of generating one.
// Well-known services, like a probe agent, use it so peers can find them.
func WithAddress(address string) EndpointOption {
	return func(e *Endpoint) {
		e.address = address
	}
}

// Dial connects to the broker, declares the endpoint's broadcast queue and
// returns the live endpoint.
func Dial(ctx context.Context, url, rawOrigin string, options ...EndpointOption) (*Endpoint, error) {
	if url == "" {
		return nil, fmt.Errorf("amqp: connection url cannot be empty")
	}
	normalized, err := origin.Normalize(rawOrigin)
	if err != nil {
		return nil, fmt.Errorf("amqp: invalid endpoint origin: %w", err)
	}

	e := &Endpoint{
		url:    url,
		origin: normalized,
		logger: slog.Default(),
	}

	for _, opt := range options {
		opt(e)
	}

	if e.address == "" {
		e.address = broadcastPrefix + uuid.New().String()
	}

	connChan := make(chan *amqp091.Connection, 1)
	errChan := make(chan error, 1)
	go func() {
		conn, err := amqp091.Dial(url)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- conn
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errChan:
		return nil, fmt.Errorf("amqp: failed to connect: %w", err)
	case conn := <-connChan:
		e.conn = conn
	}

	e.pubCh, err = e.conn.Channel()
	if err != nil {
		e.conn.Close()
		return nil, fmt.Errorf("amqp: failed to open channel: %w", err)
	}

	if err := e.declareQueue(e.address); err != nil {
		e.conn.Close()
		return nil, err
	}

	e.broadcast = &broadcastPort{ep: e}

	e.logger.Debug("endpoint connected",
		"origin", e.origin,
		"address", e.address,
	)

	return e, nil
}

// Origin returns the endpoint's normalized origin.
func (e *Endpoint) Origin() string {
	return e.origin
}

// Address returns the broadcast queue name peers reach this endpoint by.
func (e *Endpoint) Address() string {
	return e.address
}

// Broadcast returns the endpoint's receive side: the port a listener reads
// connect attempts from.
func (e *Endpoint) Broadcast() messaging.Port {
	return e.broadcast
}

// PortTo returns a send-only port into the broadcast queue of the endpoint
// at the given address, with every transmission tagged with this endpoint's
// origin.
func (e *Endpoint) PortTo(address string) messaging.Port {
	return &sendQueuePort{ep: e, queue: address}
}

// NewPair declares a private queue pair and returns its two ends. Each end
// sends to the queue the other consumes; deliveries carry an empty origin.
func (e *Endpoint) NewPair(ctx context.Context) (messaging.Port, messaging.Port, error) {
	id := uuid.New().String()
	qa := pairPrefix + id + ".a"
	qb := pairPrefix + id + ".b"

	if err := e.declareQueue(qa); err != nil {
		return nil, nil, err
	}
	if err := e.declareQueue(qb); err != nil {
		return nil, nil, err
	}

	end1 := &pairQueuePort{ep: e, sendQueue: qa, recvQueue: qb}
	end2 := &pairQueuePort{ep: e, sendQueue: qb, recvQueue: qa}
	return end1, end2, nil
}

// Close shuts the endpoint down. Consume loops drain out and every open
// port backed by this endpoint goes dead. Closing twice is safe.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	if err := e.conn.Close(); err != nil {
		return fmt.Errorf("amqp: failed to close connection: %w", err)
	}
	return nil
}

func (e *Endpoint) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

// declareQueue declares a non-durable, auto-deleting queue: endpoints are
// as ephemeral as the execution contexts they render, and undeliverable
// state should evaporate with them.
func (e *Endpoint) declareQueue(name string) error {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	_, err := e.pubCh.QueueDeclare(name, false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp: failed to declare queue %s: %w", name, err)
	}
	return nil
}

// publish sends one message to a queue through the endpoint's guarded
// publish channel.
func (e *Endpoint) publish(ctx context.Context, queue string, body []byte, headers amqp091.Table) error {
	if e.isClosed() {
		return ErrClosed
	}

	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	err := e.pubCh.PublishWithContext(ctx, "", queue, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        body,
		Headers:     headers,
	})
	if err != nil {
		return fmt.Errorf("amqp: failed to publish to %s: %w", queue, err)
	}
	return nil
}

// consume starts an auto-acking consumer on the queue and bridges its
// deliveries. Auto-ack matches the transport contract: best-effort, no
// redelivery.
func (e *Endpoint) consume(queue string, pair bool) (chan messaging.Delivery, *amqp091.Channel, error) {
	ch, err := e.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("amqp: failed to open consume channel: %w", err)
	}

	deliveries, err := ch.Consume(queue, "", true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("amqp: failed to consume %s: %w", queue, err)
	}

	out := make(chan messaging.Delivery, 64)
	go func() {
		defer close(out)
		for d := range deliveries {
			md, ok := e.toDelivery(d, pair)
			if !ok {
				continue
			}
			out <- md
		}
	}()
	return out, ch, nil
}

// toDelivery converts one broker delivery: broadcast deliveries carry the
// sender-asserted origin and are checked against any expected-origin
// restriction; pair deliveries carry an empty origin and skip the check.
// Attached port headers are materialized into a live port handle.
func (e *Endpoint) toDelivery(d amqp091.Delivery, pair bool) (messaging.Delivery, bool) {
	md := messaging.Delivery{Data: d.Body}

	if !pair {
		md.Origin = headerString(d.Headers, headerOrigin)

		expect := headerString(d.Headers, headerExpectOrigin)
		if expect != "" && expect != origin.Wildcard {
			normalized, err := origin.Normalize(expect)
			if err != nil || normalized != e.origin {
				e.logger.Debug("dropping transmission restricted to another origin",
					"expectedOrigin", expect,
					"receiverOrigin", e.origin,
				)
				return messaging.Delivery{}, false
			}
		}
	}

	if send, recv := headerString(d.Headers, headerPortSend), headerString(d.Headers, headerPortRecv); send != "" && recv != "" {
		md.Port = &pairQueuePort{ep: e, sendQueue: send, recvQueue: recv}
	}

	return md, true
}

var _ messaging.Pairer = (*Endpoint)(nil)
