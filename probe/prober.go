package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lanewave/pagelink-go/contracts"
	"github.com/lanewave/pagelink-go/internal/origin"
	"github.com/lanewave/pagelink-go/messaging"
)

var (
	// ErrAlreadyStarted is returned by Run on a prober that has run before.
	ErrAlreadyStarted = errors.New("probe: prober already run")
)

// TargetStatus is the probing status of one target.
type TargetStatus string

const (
	TargetPending       TargetStatus = "pending"
	TargetLoaded        TargetStatus = "loaded"
	TargetAwaitingReply TargetStatus = "awaitingReply"
	TargetSubscribed    TargetStatus = "subscribed"
	TargetUnsubscribed  TargetStatus = "unsubscribed"
)

// RunState is the overall state of a prober run.
type RunState string

const (
	RunIdle      RunState = "idle"
	RunProbing   RunState = "probing"
	RunExhausted RunState = "exhausted"
	RunFrozen    RunState = "frozen"
)

// HandshakeFinisher releases a suspended handshake once probing concludes
// without a hit. *messaging.Messenger implements it.
type HandshakeFinisher interface {
	FinishHandshake(ctx context.Context) error
}

// TargetInfo is an inspection snapshot of one target.
type TargetInfo struct {
	URL    string
	Status TargetStatus
}

type target struct {
	url    string
	origin string
	status TargetStatus
}

// Prober checks a list of remote origins, strictly one at a time, for
// pre-existing push-subscription state. Each target is loaded, connected to
// over a fresh messenger restricted to the target's origin, and asked for a
// StateReport. A target whose report satisfies SubscribedAt freezes the run:
// the prober stops forever without finishing any suspended handshake it
// holds. Only when every target comes back unsubscribed does the run
// exhaust, and a configured HandshakeFinisher is invoked.
type Prober struct {
	loader      Loader
	pairer      messaging.Pairer
	fragment    string
	reportTopic string
	finisher    HandshakeFinisher
	logger      *slog.Logger

	mu      sync.RWMutex
	state   RunState
	targets []*target
}

// ProberOption configures the Prober.
type ProberOption func(*Prober)

// WithLogger sets the logger. Per-target messengers inherit it.
func WithLogger(logger *slog.Logger) ProberOption {
	return func(p *Prober) {
		p.logger = logger
	}
}

// WithWorkerPathFragment sets the path fragment the subscription predicate
// requires in a target's worker script URL. Empty matches any.
func WithWorkerPathFragment(fragment string) ProberOption {
	return func(p *Prober) {
		p.fragment = fragment
	}
}

// WithReportTopic overrides the topic the state-report request is sent on.
func WithReportTopic(topic string) ProberOption {
	return func(p *Prober) {
		p.reportTopic = topic
	}
}

// WithSuspendedHandshake hands the prober the suspended handshake it
// guards: finished only on exhaustion, never when frozen.
func WithSuspendedHandshake(finisher HandshakeFinisher) ProberOption {
	return func(p *Prober) {
		p.finisher = finisher
	}
}

// NewProber creates a prober over the given target URLs, probed in the
// given order. Every URL must yield a valid origin.
func NewProber(loader Loader, pairer messaging.Pairer, urls []string, options ...ProberOption) (*Prober, error) {
	if loader == nil {
		return nil, fmt.Errorf("probe: loader cannot be nil")
	}
	if pairer == nil {
		return nil, fmt.Errorf("probe: pairer cannot be nil")
	}

	p := &Prober{
		loader:      loader,
		pairer:      pairer,
		reportTopic: contracts.TopicOriginSubscriptionState,
		state:       RunIdle,
		logger:      slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	for _, url := range urls {
		o, err := origin.Normalize(url)
		if err != nil {
			return nil, fmt.Errorf("probe: invalid target url %s: %w", url, err)
		}
		p.targets = append(p.targets, &target{url: url, origin: o, status: TargetPending})
	}

	return p, nil
}

// Run probes the targets in order. It returns nil after exhausting the list
// (having finished the suspended handshake, if one was configured), or
// ctx.Err() once cancelled. A subscribed target freezes the run: Run blocks
// until cancellation and the suspended handshake is never finished. There
// are no internal timeouts; a target that accepts the connection but never
// answers holds Run on that target indefinitely.
func (p *Prober) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.state != RunIdle {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.state = RunProbing
	p.mu.Unlock()

	for _, t := range p.targets {
		if err := ctx.Err(); err != nil {
			return err
		}

		subscribed, err := p.probeTarget(ctx, t)
		if err != nil {
			return err
		}
		if subscribed {
			p.setState(RunFrozen)
			p.logger.Info("subscription found, freezing",
				"url", t.url,
				"origin", t.origin,
			)
			<-ctx.Done()
			return ctx.Err()
		}
	}

	p.setState(RunExhausted)
	p.logger.Info("all targets unsubscribed", "targets", len(p.targets))

	if p.finisher != nil {
		if err := p.finisher.FinishHandshake(ctx); err != nil {
			return fmt.Errorf("probe: failed to finish suspended handshake: %w", err)
		}
	}
	return nil
}

// probeTarget checks a single target. The only errors it surfaces are
// context errors; unreachable or uncooperative targets count as
// unsubscribed and probing moves on.
func (p *Prober) probeTarget(ctx context.Context, t *target) (bool, error) {
	p.logger.Debug("probing target", "url", t.url, "origin", t.origin)

	frame, err := p.loader.Load(ctx, t.url)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		p.logger.Debug("target unreachable", "url", t.url, "error", err)
		p.setTargetStatus(t, TargetUnsubscribed)
		return false, nil
	}
	p.setTargetStatus(t, TargetLoaded)

	m := messaging.NewMessenger(
		messaging.WithLogger(p.logger),
		messaging.WithPairer(p.pairer),
	)
	defer m.Close()

	if err := m.Connect(ctx, frame.Port(), t.origin); err != nil {
		frame.Close()
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		p.logger.Debug("target connect failed", "url", t.url, "error", err)
		p.setTargetStatus(t, TargetUnsubscribed)
		return false, nil
	}

	pending, err := m.Send(ctx, p.reportTopic, nil)
	if err != nil {
		frame.Close()
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		p.logger.Debug("state report request failed", "url", t.url, "error", err)
		p.setTargetStatus(t, TargetUnsubscribed)
		return false, nil
	}
	p.setTargetStatus(t, TargetAwaitingReply)

	// A silent target keeps the run here until the context dies. That is
	// the contract: no timeouts, no retries, no skipping ahead.
	reply, err := pending.Await(ctx)
	if err != nil {
		frame.Close()
		return false, err
	}

	// The frame is gone before its report is judged.
	frame.Close()

	var report StateReport
	if err := reply.Decode(&report); err != nil {
		p.logger.Debug("undecodable state report", "url", t.url, "error", err)
		p.setTargetStatus(t, TargetUnsubscribed)
		return false, nil
	}

	if report.SubscribedAt(p.fragment) {
		p.setTargetStatus(t, TargetSubscribed)
		return true, nil
	}

	p.logger.Debug("target not subscribed", "url", t.url)
	p.setTargetStatus(t, TargetUnsubscribed)
	return false, nil
}

// State returns the run state.
func (p *Prober) State() RunState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Targets returns an inspection snapshot of every target in probe order.
func (p *Prober) Targets() []TargetInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	infos := make([]TargetInfo, len(p.targets))
	for i, t := range p.targets {
		infos[i] = TargetInfo{URL: t.url, Status: t.status}
	}
	return infos
}

func (p *Prober) setState(state RunState) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

func (p *Prober) setTargetStatus(t *target, status TargetStatus) {
	p.mu.Lock()
	t.status = status
	p.mu.Unlock()
}
