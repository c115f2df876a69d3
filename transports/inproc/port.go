package inproc

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lanewave/pagelink-go/internal/origin"
	"github.com/lanewave/pagelink-go/messaging"
)

// inboxBuffer bounds how many undelivered transmissions a port holds. The
// browser queue this mirrors is unbounded; overflow here is dropped with a
// debug log rather than blocking a sender.
const inboxBuffer = 256

// inboxPort is a context's broadcast receive side.
type inboxPort struct {
	origin string
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	ch     chan messaging.Delivery
}

func newInbox(normalizedOrigin string, logger *slog.Logger) *inboxPort {
	return &inboxPort{
		origin: normalizedOrigin,
		logger: logger,
		ch:     make(chan messaging.Delivery, inboxBuffer),
	}
}

func (p *inboxPort) Send(ctx context.Context, data []byte) error {
	return ErrReceiveOnly
}

func (p *inboxPort) SendPort(ctx context.Context, data []byte, port messaging.Port, expectedOrigin string) error {
	return ErrReceiveOnly
}

func (p *inboxPort) Deliveries() <-chan messaging.Delivery {
	return p.ch
}

func (p *inboxPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	return nil
}

// deliver enqueues one transmission, enforcing the sender's expected-origin
// restriction against the receiving context. Mismatches and deliveries to a
// closed inbox are dropped, never errored: the sender has no way to observe
// the far side.
func (p *inboxPort) deliver(d messaging.Delivery, expectedOrigin string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.logger.Debug("dropping delivery to closed context", "origin", p.origin)
		return nil
	}

	if expectedOrigin != "" && expectedOrigin != origin.Wildcard {
		normalized, err := origin.Normalize(expectedOrigin)
		if err != nil || normalized != p.origin {
			p.logger.Debug("dropping transmission restricted to another origin",
				"expectedOrigin", expectedOrigin,
				"receiverOrigin", p.origin,
			)
			return nil
		}
	}

	select {
	case p.ch <- d:
	default:
		p.logger.Debug("dropping delivery, inbox full", "origin", p.origin)
	}
	return nil
}

// sendPort is the handle one context holds on another: send-only, with every
// transmission tagged with the holder's origin.
type sendPort struct {
	from   string
	target *inboxPort
}

func (p *sendPort) Send(ctx context.Context, data []byte) error {
	return p.target.deliver(messaging.Delivery{Data: data, Origin: p.from}, "")
}

func (p *sendPort) SendPort(ctx context.Context, data []byte, port messaging.Port, expectedOrigin string) error {
	attached, err := transferable(port)
	if err != nil {
		return err
	}
	return p.target.deliver(messaging.Delivery{Data: data, Origin: p.from, Port: attached}, expectedOrigin)
}

func (p *sendPort) Deliveries() <-chan messaging.Delivery {
	return nil
}

func (p *sendPort) Close() error {
	return nil
}

// transferable neuters a pair port being attached to a transmission and
// hands back the receiver's replacement handle. Ports from other transports
// pass through untouched.
func transferable(port messaging.Port) (messaging.Port, error) {
	pp, ok := port.(*pairPort)
	if !ok {
		return port, nil
	}
	replacement := pp.transfer()
	if replacement == nil {
		return nil, ErrPortTransferred
	}
	return replacement, nil
}

// pairState is the shared receive half of one pair end. Handles come and go
// as the end is transferred; the state persists.
type pairState struct {
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	ch     chan messaging.Delivery
}

func newPairState(logger *slog.Logger) *pairState {
	return &pairState{
		logger: logger,
		ch:     make(chan messaging.Delivery, inboxBuffer),
	}
}

func (s *pairState) deliver(d messaging.Delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.logger.Debug("dropping delivery to closed pair end")
		return
	}
	select {
	case s.ch <- d:
	default:
		s.logger.Debug("dropping delivery, pair inbox full")
	}
}

func (s *pairState) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// pairPort is a handle on one end of a duplex pair. Attaching it to a
// SendPort transmission neuters the handle; the receiver gets a fresh one
// over the same state.
type pairPort struct {
	logger *slog.Logger

	mu       sync.Mutex
	neutered bool
	closed   bool
	local    *pairState
	remote   *pairState
}

func newPairPorts(logger *slog.Logger) (*pairPort, *pairPort) {
	a := newPairState(logger)
	b := newPairState(logger)
	return &pairPort{logger: logger, local: a, remote: b},
		&pairPort{logger: logger, local: b, remote: a}
}

func (p *pairPort) Send(ctx context.Context, data []byte) error {
	return p.send(messaging.Delivery{Data: data})
}

// SendPort attaches a sub-channel. Pair deliveries carry an empty origin, so
// the expected-origin restriction has nothing to check against and is
// ignored, as it is on the channels this models.
func (p *pairPort) SendPort(ctx context.Context, data []byte, port messaging.Port, expectedOrigin string) error {
	attached, err := transferable(port)
	if err != nil {
		return err
	}
	return p.send(messaging.Delivery{Data: data, Port: attached})
}

func (p *pairPort) send(d messaging.Delivery) error {
	p.mu.Lock()
	if p.neutered {
		p.mu.Unlock()
		return ErrPortTransferred
	}
	if p.closed {
		p.mu.Unlock()
		return ErrPortClosed
	}
	remote := p.remote
	p.mu.Unlock()

	remote.deliver(d)
	return nil
}

func (p *pairPort) Deliveries() <-chan messaging.Delivery {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.neutered {
		return nil
	}
	return p.local.ch
}

// Close closes this end's receive side. The peer keeps its handle; its
// sends are dropped from here on. Closing a neutered or already closed
// handle is a no-op.
func (p *pairPort) Close() error {
	p.mu.Lock()
	if p.neutered || p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	local := p.local
	p.mu.Unlock()

	local.close()
	return nil
}

// transfer neuters the handle and returns the receiver's replacement, or
// nil if the handle was already transferred or closed.
func (p *pairPort) transfer() *pairPort {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.neutered || p.closed {
		return nil
	}
	p.neutered = true
	return &pairPort{logger: p.logger, local: p.local, remote: p.remote}
}
