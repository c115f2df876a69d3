package inproc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lanewave/pagelink-go/internal/origin"
	"github.com/lanewave/pagelink-go/messaging"
)

// Hub is the in-process rendering of a set of isolated execution contexts:
// it owns one Context per origin and mints private port pairs. It is the
// messaging.Pairer used by in-process initiators and the substrate the
// package tests run on.
type Hub struct {
	contexts map[string]*Context
	mu       sync.RWMutex
	logger   *slog.Logger
}

// HubOption configures the Hub.
type HubOption func(*Hub)

// WithLogger sets the logger. Contexts and ports inherit it.
func WithLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// NewHub creates an empty hub.
func NewHub(options ...HubOption) *Hub {
	h := &Hub{
		contexts: make(map[string]*Context),
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(h)
	}

	return h
}

// Context returns the execution context for the origin, creating it on
// first use. The origin is normalized, so equivalent spellings share one
// context.
func (h *Hub) Context(rawOrigin string) (*Context, error) {
	normalized, err := origin.Normalize(rawOrigin)
	if err != nil {
		return nil, fmt.Errorf("inproc: invalid context origin: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.contexts[normalized]; ok {
		return c, nil
	}

	c := &Context{
		hub:    h,
		origin: normalized,
		inbox:  newInbox(normalized, h.logger),
	}
	h.contexts[normalized] = c

	h.logger.Debug("created context", "origin", normalized)
	return c, nil
}

// NewPair mints a linked duplex port pair. Deliveries on pair ports carry
// an empty origin. Implements messaging.Pairer.
func (h *Hub) NewPair(ctx context.Context) (messaging.Port, messaging.Port, error) {
	a, b := newPairPorts(h.logger)
	return a, b, nil
}

func (h *Hub) remove(normalizedOrigin string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.contexts, normalizedOrigin)
}

// Context is one simulated execution context, identified by its normalized
// origin. Its broadcast inbox receives everything other contexts send to it;
// the inbox is buffered, so a connect attempt sent before anyone reads is
// not lost.
type Context struct {
	hub    *Hub
	origin string
	inbox  *inboxPort
}

// Origin returns the context's normalized origin.
func (c *Context) Origin() string {
	return c.origin
}

// Broadcast returns the context's receive side: the port a listener reads
// connect attempts from. Sending on it fails with ErrReceiveOnly.
func (c *Context) Broadcast() messaging.Port {
	return c.inbox
}

// PortTo returns a send-only port delivering into the target context's
// inbox, tagged with this context's origin. Its Deliveries channel is nil.
func (c *Context) PortTo(target *Context) messaging.Port {
	return &sendPort{
		from:   c.origin,
		target: target.inbox,
	}
}

// Close tears the context down: the inbox closes and the origin becomes
// free for a fresh context. In-flight transmissions to it are dropped.
func (c *Context) Close() error {
	c.hub.remove(c.origin)
	c.inbox.Close()
	return nil
}
