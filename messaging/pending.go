package messaging

import (
	"context"
	"sync"
)

// Pending is an open request/reply exchange. It resolves at most once, when
// a reply envelope carrying the exchange id arrives on the private channel.
type Pending struct {
	id    string
	topic string
	done  chan *Message
}

func newPending(id, topic string) *Pending {
	return &Pending{
		id:    id,
		topic: topic,
		done:  make(chan *Message, 1),
	}
}

// ID returns the correlation id the exchange is registered under.
func (p *Pending) ID() string { return p.id }

// Topic returns the topic the request was sent on.
func (p *Pending) Topic() string { return p.topic }

// Await blocks until the reply arrives or ctx is done. There is no internal
// timeout: awaiting an exchange the peer never answers blocks for as long as
// the context lives. Cancellation abandons the wait only; the exchange stays
// registered and a later Await call can still pick up the reply.
func (p *Pending) Await(ctx context.Context) (*Message, error) {
	select {
	case msg := <-p.done:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolve hands the reply to the exchange. The buffered channel makes this
// non-blocking whether or not an Await is in progress; extra resolutions are
// discarded.
func (p *Pending) resolve(msg *Message) {
	select {
	case p.done <- msg:
	default:
	}
}

// pendingRegistry tracks open exchanges by correlation id. Exchanges are
// removed only when their reply arrives; an unanswered exchange stays
// registered for the messenger's lifetime.
type pendingRegistry struct {
	exchanges map[string]*Pending
	mu        sync.RWMutex
}

func newPendingRegistry() *pendingRegistry {
	return &pendingRegistry{
		exchanges: make(map[string]*Pending),
	}
}

// add registers an exchange, replacing any earlier one under the same id.
func (r *pendingRegistry) add(p *Pending) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exchanges[p.id] = p
}

// take removes and returns the exchange registered under id.
func (r *pendingRegistry) take(id string) (*Pending, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.exchanges[id]
	if ok {
		delete(r.exchanges, id)
	}
	return p, ok
}

// remove drops the exchange registered under id, if any.
func (r *pendingRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.exchanges, id)
}

// size returns the number of open exchanges.
func (r *pendingRegistry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.exchanges)
}
