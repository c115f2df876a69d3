package inproc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lanewave/pagelink-go/messaging"
	"github.com/lanewave/pagelink-go/probe"
)

// FrameFactory boots the frame side of a loaded URL: it typically starts a
// listener messenger on the frame's broadcast port and binds a responder.
// Load fails if the factory errors.
type FrameFactory func(ctx context.Context, frame *Context) error

// Loader materializes frame contexts for registered URLs on behalf of a
// host context. It implements probe.Loader; URLs nobody registered fail to
// load, which a prober treats as unreachable.
type Loader struct {
	hub  *Hub
	host *Context

	mu        sync.RWMutex
	factories map[string]FrameFactory
	logger    *slog.Logger
}

// LoaderOption configures the Loader.
type LoaderOption func(*Loader)

// WithLoaderLogger sets the logger.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates a loader that loads frames into the hub as seen from
// the host context.
func NewLoader(hub *Hub, host *Context, options ...LoaderOption) *Loader {
	l := &Loader{
		hub:       hub,
		host:      host,
		factories: make(map[string]FrameFactory),
		logger:    slog.Default(),
	}

	for _, opt := range options {
		opt(l)
	}

	return l
}

// Register maps a URL to the factory that boots its frame context.
func (l *Loader) Register(url string, factory FrameFactory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.factories[url] = factory
}

// Load creates the frame context for the URL's origin, runs its factory and
// returns the host's view of the frame. Load returns once the factory has
// finished booting the frame side.
func (l *Loader) Load(ctx context.Context, url string) (probe.Frame, error) {
	l.mu.RLock()
	factory, ok := l.factories[url]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inproc: no frame registered for %s", url)
	}

	frame, err := l.hub.Context(url)
	if err != nil {
		return nil, fmt.Errorf("inproc: failed to create frame context: %w", err)
	}

	if err := factory(ctx, frame); err != nil {
		frame.Close()
		return nil, fmt.Errorf("inproc: frame factory for %s failed: %w", url, err)
	}

	l.logger.Debug("frame loaded", "url", url, "origin", frame.Origin())

	return &loadedFrame{
		frame: frame,
		port:  l.host.PortTo(frame),
	}, nil
}

// loadedFrame is the host's handle on a frame it loaded.
type loadedFrame struct {
	frame *Context
	port  messaging.Port
}

// Port returns the host-side port into the frame's broadcast inbox.
func (f *loadedFrame) Port() messaging.Port {
	return f.port
}

// Close tears the frame context down.
func (f *loadedFrame) Close() error {
	return f.frame.Close()
}
