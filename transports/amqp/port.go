package amqp

import (
	"context"
	"fmt"
	"sync"

	"github.com/lanewave/pagelink-go/messaging"
	amqp091 "github.com/rabbitmq/amqp091-go"
)

// Headers carried on broker deliveries. Origin headers travel on broadcast
// transmissions only; port headers describe an attached pair end by the two
// queue names the receiver needs to take it over.
const (
	headerOrigin       = "x-origin"
	headerExpectOrigin = "x-expect-origin"
	headerPortSend     = "x-port-send"
	headerPortRecv     = "x-port-recv"
)

// broadcastPort is the receive side of an endpoint's broadcast queue. The
// consumer starts lazily on the first Deliveries call so an endpoint that
// only ever sends never opens one.
type broadcastPort struct {
	ep *Endpoint

	mu         sync.Mutex
	deliveries chan messaging.Delivery
}

func (p *broadcastPort) Send(ctx context.Context, data []byte) error {
	return ErrReceiveOnly
}

func (p *broadcastPort) SendPort(ctx context.Context, data []byte, port messaging.Port, expectedOrigin string) error {
	return ErrReceiveOnly
}

func (p *broadcastPort) Deliveries() <-chan messaging.Delivery {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.deliveries == nil {
		out, _, err := p.ep.consume(p.ep.address, false)
		if err != nil {
			p.ep.logger.Error("failed to consume broadcast queue",
				"address", p.ep.address,
				"error", err,
			)
			closed := make(chan messaging.Delivery)
			close(closed)
			p.deliveries = closed
			return p.deliveries
		}
		p.deliveries = out
	}
	return p.deliveries
}

func (p *broadcastPort) Close() error {
	return nil
}

// sendQueuePort is a send-only port into another endpoint's broadcast
// queue. Every transmission is tagged with the local endpoint's origin.
type sendQueuePort struct {
	ep    *Endpoint
	queue string
}

func (p *sendQueuePort) Send(ctx context.Context, data []byte) error {
	return p.ep.publish(ctx, p.queue, data, amqp091.Table{
		headerOrigin: p.ep.origin,
	})
}

func (p *sendQueuePort) SendPort(ctx context.Context, data []byte, port messaging.Port, expectedOrigin string) error {
	headers := amqp091.Table{
		headerOrigin: p.ep.origin,
	}
	if expectedOrigin != "" {
		headers[headerExpectOrigin] = expectedOrigin
	}
	if err := attachHeaders(headers, port); err != nil {
		return err
	}
	return p.ep.publish(ctx, p.queue, data, headers)
}

func (p *sendQueuePort) Deliveries() <-chan messaging.Delivery {
	return nil
}

func (p *sendQueuePort) Close() error {
	return nil
}

// pairQueuePort is one end of a private queue pair: it sends to one queue
// and consumes the other. Attaching it to a transmission transfers it; the
// local handle goes dead and the receiver reconstructs a live end from the
// port headers.
type pairQueuePort struct {
	ep        *Endpoint
	sendQueue string
	recvQueue string

	mu          sync.Mutex
	transferred bool
	closed      bool
	deliveries  chan messaging.Delivery
	consumeCh   *amqp091.Channel
}

func (p *pairQueuePort) Send(ctx context.Context, data []byte) error {
	p.mu.Lock()
	if p.transferred {
		p.mu.Unlock()
		return ErrPortTransferred
	}
	if p.closed {
		p.mu.Unlock()
		return ErrPortClosed
	}
	p.mu.Unlock()

	return p.ep.publish(ctx, p.sendQueue, data, nil)
}

// SendPort forwards a nested port over the pair. The expected-origin
// restriction is ignored: a private pair has no origin to check against.
func (p *pairQueuePort) SendPort(ctx context.Context, data []byte, port messaging.Port, expectedOrigin string) error {
	p.mu.Lock()
	if p.transferred {
		p.mu.Unlock()
		return ErrPortTransferred
	}
	if p.closed {
		p.mu.Unlock()
		return ErrPortClosed
	}
	p.mu.Unlock()

	headers := amqp091.Table{}
	if err := attachHeaders(headers, port); err != nil {
		return err
	}
	return p.ep.publish(ctx, p.sendQueue, data, headers)
}

// Deliveries starts the consumer lazily. A transferred or closed end
// returns nil: its receive half belongs to someone else now, or to no one.
func (p *pairQueuePort) Deliveries() <-chan messaging.Delivery {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.transferred || p.closed {
		return nil
	}
	if p.deliveries == nil {
		out, ch, err := p.ep.consume(p.recvQueue, true)
		if err != nil {
			p.ep.logger.Error("failed to consume pair queue",
				"queue", p.recvQueue,
				"error", err,
			)
			closed := make(chan messaging.Delivery)
			close(closed)
			p.deliveries = closed
			return p.deliveries
		}
		p.deliveries = out
		p.consumeCh = ch
	}
	return p.deliveries
}

func (p *pairQueuePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.transferred || p.closed {
		return nil
	}
	p.closed = true
	if p.consumeCh != nil {
		p.consumeCh.Close()
		p.consumeCh = nil
	}
	return nil
}

// markTransferred neuters the local handle after its description left on
// the wire. If a consumer already started it is torn down so the receiving
// end does not compete for the same queue.
func (p *pairQueuePort) markTransferred() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.transferred {
		return ErrPortTransferred
	}
	if p.closed {
		return ErrPortClosed
	}
	p.transferred = true
	if p.consumeCh != nil {
		p.consumeCh.Close()
		p.consumeCh = nil
	}
	return nil
}

// attachHeaders writes the attached port's queue pair into the headers and
// neuters the local handle. The receiver takes over the same end, so the
// header carries the end's own perspective unchanged.
func attachHeaders(headers amqp091.Table, port messaging.Port) error {
	pq, ok := port.(*pairQueuePort)
	if !ok {
		return fmt.Errorf("amqp: cannot transfer port of type %T", port)
	}
	if err := pq.markTransferred(); err != nil {
		return err
	}
	headers[headerPortSend] = pq.sendQueue
	headers[headerPortRecv] = pq.recvQueue
	return nil
}

// headerString reads a string header, tolerating absence and wrong types.
func headerString(headers amqp091.Table, key string) string {
	if headers == nil {
		return ""
	}
	v, ok := headers[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
