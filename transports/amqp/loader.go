package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lanewave/pagelink-go/internal/origin"
	"github.com/lanewave/pagelink-go/messaging"
	"github.com/lanewave/pagelink-go/probe"
)

// DefaultAgentAddress is the broadcast queue a frame agent serves on unless
// configured otherwise.
const DefaultAgentAddress = "pagelink.agent"

// Control-plane topics between a Loader and an Agent.
const (
	TopicFrameLoad   = "frame-load"
	TopicFrameUnload = "frame-unload"
)

// FrameLoadRequest asks the agent to host a frame for the given URL.
type FrameLoadRequest struct {
	URL string `json:"url"`
}

// FrameLoadReply carries the hosted frame's address, or an error.
type FrameLoadReply struct {
	Address string `json:"address,omitempty"`
	Error   string `json:"error,omitempty"`
}

// FrameUnloadRequest asks the agent to tear a hosted frame down.
type FrameUnloadRequest struct {
	Address string `json:"address"`
}

// Agent hosts frames on a broker on behalf of a remote prober. Each
// frame-load request dials a fresh endpoint at the URL's origin, binds a
// responder with that origin's registered subscription state, and hands the
// frame's address back. The agent accepts a single loader connection per
// Serve call.
type Agent struct {
	brokerURL string
	origin    string
	address   string
	loaders   []string
	logger    *slog.Logger

	mu      sync.Mutex
	reports map[string]probe.StateReport
	frames  map[string]*hostedFrame
}

// AgentOption configures the Agent.
type AgentOption func(*Agent)

// WithAgentLogger sets the logger.
func WithAgentLogger(logger *slog.Logger) AgentOption {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithServeAddress pins the agent's broadcast queue name.
func WithServeAddress(address string) AgentOption {
	return func(a *Agent) {
		a.address = address
	}
}

// WithAllowedLoaders restricts which origins may connect to the agent.
// Defaults to any origin.
func WithAllowedLoaders(origins ...string) AgentOption {
	return func(a *Agent) {
		a.loaders = origins
	}
}

// NewAgent creates an agent for the given broker and agent origin. Nothing
// is dialed until Serve.
func NewAgent(brokerURL, rawOrigin string, options ...AgentOption) (*Agent, error) {
	if brokerURL == "" {
		return nil, fmt.Errorf("amqp: broker url cannot be empty")
	}
	normalized, err := origin.Normalize(rawOrigin)
	if err != nil {
		return nil, fmt.Errorf("amqp: invalid agent origin: %w", err)
	}

	a := &Agent{
		brokerURL: brokerURL,
		origin:    normalized,
		address:   DefaultAgentAddress,
		loaders:   []string{origin.Wildcard},
		logger:    slog.Default(),
		reports:   make(map[string]probe.StateReport),
		frames:    make(map[string]*hostedFrame),
	}

	for _, opt := range options {
		opt(a)
	}

	return a, nil
}

// RegisterReport sets the subscription state frames at the URL's origin
// will report. Unregistered origins report a zero state.
func (a *Agent) RegisterReport(url string, report probe.StateReport) error {
	normalized, err := origin.Normalize(url)
	if err != nil {
		return fmt.Errorf("amqp: invalid report url: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports[normalized] = report
	return nil
}

// Serve dials the broker, waits for one loader to connect and then answers
// frame-load and frame-unload requests until the context is cancelled.
func (a *Agent) Serve(ctx context.Context) error {
	ep, err := Dial(ctx, a.brokerURL, a.origin,
		WithAddress(a.address),
		WithEndpointLogger(a.logger),
	)
	if err != nil {
		return err
	}
	defer ep.Close()

	m := messaging.NewMessenger(
		messaging.WithPairer(ep),
		messaging.WithLogger(a.logger),
	)
	defer m.Close()
	defer a.closeFrames()

	if err := m.On(TopicFrameLoad, messaging.HandlerFunc(a.handleFrameLoad)); err != nil {
		return err
	}
	if err := m.On(TopicFrameUnload, messaging.HandlerFunc(a.handleFrameUnload)); err != nil {
		return err
	}

	a.logger.Info("frame agent serving",
		"address", a.address,
		"origin", a.origin,
	)

	if err := m.Listen(ctx, ep.Broadcast(), a.loaders); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

func (a *Agent) handleFrameLoad(ctx context.Context, msg *messaging.Message) error {
	var req FrameLoadRequest
	if err := msg.Decode(&req); err != nil {
		return reply(ctx, msg, FrameLoadReply{Error: err.Error()})
	}

	frame, err := a.loadFrame(ctx, req.URL)
	if err != nil {
		a.logger.Error("failed to load frame",
			"url", req.URL,
			"error", err,
		)
		return reply(ctx, msg, FrameLoadReply{Error: err.Error()})
	}

	a.logger.Info("frame loaded",
		"url", req.URL,
		"address", frame.endpoint.Address(),
	)
	return reply(ctx, msg, FrameLoadReply{Address: frame.endpoint.Address()})
}

func (a *Agent) handleFrameUnload(ctx context.Context, msg *messaging.Message) error {
	var req FrameUnloadRequest
	if err := msg.Decode(&req); err != nil {
		return reply(ctx, msg, nil)
	}

	a.mu.Lock()
	frame := a.frames[req.Address]
	delete(a.frames, req.Address)
	a.mu.Unlock()

	if frame != nil {
		frame.close()
		a.logger.Info("frame unloaded", "address", req.Address)
	}
	return reply(ctx, msg, nil)
}

// reply answers and drops the follow-up exchange the reply opens; the agent
// never continues these conversations.
func reply(ctx context.Context, msg *messaging.Message, payload any) error {
	_, err := msg.Reply(ctx, payload)
	return err
}

func (a *Agent) loadFrame(ctx context.Context, url string) (*hostedFrame, error) {
	frameOrigin, err := origin.Normalize(url)
	if err != nil {
		return nil, fmt.Errorf("amqp: invalid frame url: %w", err)
	}

	ep, err := Dial(ctx, a.brokerURL, frameOrigin, WithEndpointLogger(a.logger))
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	report := a.reports[frameOrigin]
	a.mu.Unlock()

	m := messaging.NewMessenger(
		messaging.WithPairer(ep),
		messaging.WithLogger(a.logger),
	)

	responder := probe.NewResponder(report, probe.WithResponderLogger(a.logger))
	if err := responder.Bind(m); err != nil {
		m.Close()
		ep.Close()
		return nil, err
	}

	frameCtx, cancel := context.WithCancel(context.Background())
	frame := &hostedFrame{
		endpoint:  ep,
		messenger: m,
		cancel:    cancel,
	}

	go func() {
		err := m.Listen(frameCtx, ep.Broadcast(), a.loaders)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("frame listener failed",
				"origin", frameOrigin,
				"error", err,
			)
		}
	}()

	a.mu.Lock()
	a.frames[ep.Address()] = frame
	a.mu.Unlock()

	return frame, nil
}

func (a *Agent) closeFrames() {
	a.mu.Lock()
	frames := a.frames
	a.frames = make(map[string]*hostedFrame)
	a.mu.Unlock()

	for _, frame := range frames {
		frame.close()
	}
}

// hostedFrame is one frame the agent keeps alive: its endpoint, its
// listening messenger and the context that scopes both.
type hostedFrame struct {
	endpoint  *Endpoint
	messenger *messaging.Messenger
	cancel    context.CancelFunc
}

func (f *hostedFrame) close() {
	f.cancel()
	f.messenger.Close()
	f.endpoint.Close()
}

// Loader loads frames through a remote agent. It implements probe.Loader:
// Load asks the agent to host a frame and returns a handle whose port
// reaches the frame's broadcast queue through the loader's own endpoint.
type Loader struct {
	ep           *Endpoint
	agentAddress string
	agentOrigin  string
	logger       *slog.Logger

	mu        sync.Mutex
	messenger *messaging.Messenger
}

// LoaderOption configures the Loader.
type LoaderOption func(*Loader)

// WithLoaderLogger sets the logger.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithAgentAddress sets the agent's broadcast queue name.
func WithAgentAddress(address string) LoaderOption {
	return func(l *Loader) {
		l.agentAddress = address
	}
}

// WithAgentOrigin restricts which origin may answer the loader's connect
// attempt. Defaults to any origin.
func WithAgentOrigin(agentOrigin string) LoaderOption {
	return func(l *Loader) {
		l.agentOrigin = agentOrigin
	}
}

// NewLoader creates a loader working through the given endpoint.
func NewLoader(ep *Endpoint, options ...LoaderOption) (*Loader, error) {
	if ep == nil {
		return nil, fmt.Errorf("amqp: endpoint cannot be nil")
	}

	l := &Loader{
		ep:           ep,
		agentAddress: DefaultAgentAddress,
		agentOrigin:  origin.Wildcard,
		logger:       slog.Default(),
	}

	for _, opt := range options {
		opt(l)
	}

	return l, nil
}

// Load asks the agent to host a frame for the URL and returns its handle.
// The first call connects to the agent; the connection is reused after
// that.
func (l *Loader) Load(ctx context.Context, url string) (probe.Frame, error) {
	m, err := l.connect(ctx)
	if err != nil {
		return nil, err
	}

	pending, err := m.Send(ctx, TopicFrameLoad, FrameLoadRequest{URL: url})
	if err != nil {
		return nil, err
	}

	reply, err := pending.Await(ctx)
	if err != nil {
		return nil, err
	}

	var loaded FrameLoadReply
	if err := reply.Decode(&loaded); err != nil {
		return nil, fmt.Errorf("amqp: undecodable frame-load reply: %w", err)
	}
	if loaded.Error != "" {
		return nil, fmt.Errorf("amqp: agent refused frame load: %s", loaded.Error)
	}

	return &remoteFrame{
		loader:  l,
		address: loaded.Address,
		port:    l.ep.PortTo(loaded.Address),
	}, nil
}

// Close shuts the agent connection down. The endpoint stays open; it
// belongs to the caller.
func (l *Loader) Close() error {
	l.mu.Lock()
	m := l.messenger
	l.messenger = nil
	l.mu.Unlock()

	if m == nil {
		return nil
	}
	return m.Close()
}

func (l *Loader) connect(ctx context.Context) (*messaging.Messenger, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.messenger != nil {
		return l.messenger, nil
	}

	m := messaging.NewMessenger(
		messaging.WithPairer(l.ep),
		messaging.WithLogger(l.logger),
	)
	if err := m.Connect(ctx, l.ep.PortTo(l.agentAddress), l.agentOrigin); err != nil {
		m.Close()
		return nil, fmt.Errorf("amqp: failed to connect to agent: %w", err)
	}

	l.messenger = m
	return m, nil
}

// remoteFrame is a frame hosted by a remote agent. Close asks the agent to
// unload it and does not wait for the answer.
type remoteFrame struct {
	loader  *Loader
	address string
	port    messaging.Port

	mu     sync.Mutex
	closed bool
}

func (f *remoteFrame) Port() messaging.Port {
	return f.port
}

func (f *remoteFrame) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	f.loader.mu.Lock()
	m := f.loader.messenger
	f.loader.mu.Unlock()
	if m == nil {
		return nil
	}

	_, err := m.Send(context.Background(), TopicFrameUnload, FrameUnloadRequest{Address: f.address})
	if err != nil && !errors.Is(err, messaging.ErrClosed) {
		return err
	}
	return nil
}

var (
	_ probe.Loader = (*Loader)(nil)
	_ probe.Frame  = (*remoteFrame)(nil)
)
