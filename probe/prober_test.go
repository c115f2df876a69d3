package probe_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lanewave/pagelink-go/messaging"
	"github.com/lanewave/pagelink-go/probe"
	"github.com/lanewave/pagelink-go/transports/inproc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	portalOrigin = "https://portal.example.com"
	appOrigin    = "https://app.example.com"
)

func liveReport() probe.StateReport {
	return probe.StateReport{
		NotificationPermission:  probe.PermissionGranted,
		ServiceWorkerRegistered: true,
		ServiceWorkerState:      probe.WorkerActivated,
		ServiceWorkerURL:        "https://news.example.com/push/worker.js",
		Subscribed:              true,
	}
}

func idleReport() probe.StateReport {
	return probe.StateReport{NotificationPermission: probe.PermissionDefault}
}

// frameWith boots a probeable frame answering from the given report.
func frameWith(report probe.StateReport) inproc.FrameFactory {
	return func(ctx context.Context, frame *inproc.Context) error {
		m := messaging.NewMessenger()
		if err := probe.NewResponder(report).Bind(m); err != nil {
			return err
		}
		go m.Listen(ctx, frame.Broadcast(), []string{portalOrigin})
		return nil
	}
}

// silentFrame boots a frame that accepts the connection but answers nothing.
func silentFrame() inproc.FrameFactory {
	return func(ctx context.Context, frame *inproc.Context) error {
		m := messaging.NewMessenger()
		go m.Listen(ctx, frame.Broadcast(), []string{portalOrigin})
		return nil
	}
}

type fakeFinisher struct {
	calls atomic.Int32
}

func (f *fakeFinisher) FinishHandshake(ctx context.Context) error {
	f.calls.Add(1)
	return nil
}

func proberFixture(t *testing.T) (context.Context, *inproc.Hub, *inproc.Loader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := inproc.NewHub()
	portal, err := hub.Context(portalOrigin)
	require.NoError(t, err)
	return ctx, hub, inproc.NewLoader(hub, portal)
}

func statuses(p *probe.Prober) []probe.TargetStatus {
	targets := p.Targets()
	out := make([]probe.TargetStatus, len(targets))
	for i, t := range targets {
		out[i] = t.Status
	}
	return out
}

func TestNewProber(t *testing.T) {
	_, hub, loader := proberFixture(t)

	t.Run("requires a loader and a pairer", func(t *testing.T) {
		_, err := probe.NewProber(nil, hub, nil)
		assert.Error(t, err)
		_, err = probe.NewProber(loader, nil, nil)
		assert.Error(t, err)
	})

	t.Run("rejects target urls without an origin", func(t *testing.T) {
		_, err := probe.NewProber(loader, hub, []string{"news.example.com/push"})
		assert.Error(t, err)
	})

	t.Run("targets start pending in probe order", func(t *testing.T) {
		p, err := probe.NewProber(loader, hub, []string{
			"https://news.example.com/push/portal",
			"https://shop.example.com/push/portal",
		})
		require.NoError(t, err)
		assert.Equal(t, probe.RunIdle, p.State())
		assert.Equal(t,
			[]probe.TargetStatus{probe.TargetPending, probe.TargetPending},
			statuses(p))
	})
}

func TestProberRun(t *testing.T) {
	t.Run("exhausts when every target is unsubscribed", func(t *testing.T) {
		ctx, hub, loader := proberFixture(t)
		loader.Register("https://news.example.com/push/portal", frameWith(idleReport()))
		loader.Register("https://shop.example.com/push/portal", frameWith(idleReport()))

		finisher := &fakeFinisher{}
		p, err := probe.NewProber(loader, hub,
			[]string{"https://news.example.com/push/portal", "https://shop.example.com/push/portal"},
			probe.WithSuspendedHandshake(finisher))
		require.NoError(t, err)

		require.NoError(t, p.Run(ctx))

		assert.Equal(t, probe.RunExhausted, p.State())
		assert.Equal(t,
			[]probe.TargetStatus{probe.TargetUnsubscribed, probe.TargetUnsubscribed},
			statuses(p))
		assert.Equal(t, int32(1), finisher.calls.Load())
	})

	t.Run("freezes on a subscribed target and never finishes the handshake", func(t *testing.T) {
		ctx, hub, loader := proberFixture(t)
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		loader.Register("https://news.example.com/push/portal", frameWith(idleReport()))
		loader.Register("https://shop.example.com/push/portal", frameWith(liveReport()))
		loader.Register("https://mail.example.com/push/portal", frameWith(idleReport()))

		finisher := &fakeFinisher{}
		p, err := probe.NewProber(loader, hub,
			[]string{
				"https://news.example.com/push/portal",
				"https://shop.example.com/push/portal",
				"https://mail.example.com/push/portal",
			},
			probe.WithWorkerPathFragment("/push/worker"),
			probe.WithSuspendedHandshake(finisher))
		require.NoError(t, err)

		res := make(chan error, 1)
		go func() { res <- p.Run(runCtx) }()

		require.Eventually(t, func() bool { return p.State() == probe.RunFrozen },
			2*time.Second, 10*time.Millisecond)

		// Frozen means frozen: the run does not return and the third
		// target is never touched.
		select {
		case err := <-res:
			t.Fatalf("run returned while frozen: %v", err)
		case <-time.After(100 * time.Millisecond):
		}
		assert.Equal(t,
			[]probe.TargetStatus{probe.TargetUnsubscribed, probe.TargetSubscribed, probe.TargetPending},
			statuses(p))
		assert.Equal(t, int32(0), finisher.calls.Load())

		cancel()
		select {
		case err := <-res:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("run never returned after cancellation")
		}
		assert.Equal(t, int32(0), finisher.calls.Load())
		assert.Equal(t, probe.RunFrozen, p.State())
	})

	t.Run("a silent target stalls the run on that target", func(t *testing.T) {
		ctx, hub, loader := proberFixture(t)
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		loader.Register("https://news.example.com/push/portal", silentFrame())
		loader.Register("https://shop.example.com/push/portal", frameWith(idleReport()))

		p, err := probe.NewProber(loader, hub,
			[]string{"https://news.example.com/push/portal", "https://shop.example.com/push/portal"})
		require.NoError(t, err)

		res := make(chan error, 1)
		go func() { res <- p.Run(runCtx) }()

		require.Eventually(t, func() bool {
			return statuses(p)[0] == probe.TargetAwaitingReply
		}, 2*time.Second, 10*time.Millisecond)

		select {
		case err := <-res:
			t.Fatalf("run returned past a silent target: %v", err)
		case <-time.After(100 * time.Millisecond):
		}
		assert.Equal(t, probe.RunProbing, p.State())
		assert.Equal(t, probe.TargetPending, statuses(p)[1])

		cancel()
		select {
		case err := <-res:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("run never returned after cancellation")
		}
	})

	t.Run("unreachable target counts as unsubscribed", func(t *testing.T) {
		ctx, hub, loader := proberFixture(t)
		loader.Register("https://shop.example.com/push/portal", frameWith(idleReport()))

		p, err := probe.NewProber(loader, hub,
			[]string{"https://news.example.com/push/portal", "https://shop.example.com/push/portal"})
		require.NoError(t, err)

		require.NoError(t, p.Run(ctx))
		assert.Equal(t, probe.RunExhausted, p.State())
		assert.Equal(t,
			[]probe.TargetStatus{probe.TargetUnsubscribed, probe.TargetUnsubscribed},
			statuses(p))
	})

	t.Run("worker path fragment gates the verdict", func(t *testing.T) {
		ctx, hub, loader := proberFixture(t)
		elsewhere := liveReport()
		elsewhere.ServiceWorkerURL = "https://news.example.com/legacy/sw.js"
		loader.Register("https://news.example.com/push/portal", frameWith(elsewhere))

		p, err := probe.NewProber(loader, hub,
			[]string{"https://news.example.com/push/portal"},
			probe.WithWorkerPathFragment("/push/worker"))
		require.NoError(t, err)

		require.NoError(t, p.Run(ctx))
		assert.Equal(t, probe.RunExhausted, p.State())
	})

	t.Run("a prober runs once", func(t *testing.T) {
		ctx, hub, loader := proberFixture(t)
		p, err := probe.NewProber(loader, hub, nil)
		require.NoError(t, err)

		require.NoError(t, p.Run(ctx))
		assert.ErrorIs(t, p.Run(ctx), probe.ErrAlreadyStarted)
	})
}

// TestSuspendedHandshakeAcrossProbing exercises the whole arrangement: an
// embedding page connects to a portal that withholds its acknowledgment
// while probing runs, and only exhaustion lets the connect finish.
func TestSuspendedHandshakeAcrossProbing(t *testing.T) {
	t.Run("exhaustion releases the blocked connect", func(t *testing.T) {
		ctx, hub, loader := proberFixture(t)
		portal, err := hub.Context(portalOrigin)
		require.NoError(t, err)
		app, err := hub.Context(appOrigin)
		require.NoError(t, err)

		listener := messaging.NewMessenger()
		defer listener.Close()
		go listener.Listen(ctx, portal.Broadcast(), []string{appOrigin},
			messaging.WithDelayedHandshake())

		dialer := messaging.NewMessenger(messaging.WithPairer(hub))
		defer dialer.Close()
		connectRes := make(chan error, 1)
		go func() { connectRes <- dialer.Connect(ctx, app.PortTo(portal), portalOrigin) }()

		require.Eventually(t, listener.HandshakeSuspended, 2*time.Second, 10*time.Millisecond)

		loader.Register("https://news.example.com/push/portal", frameWith(idleReport()))
		p, err := probe.NewProber(loader, hub,
			[]string{"https://news.example.com/push/portal"},
			probe.WithSuspendedHandshake(listener))
		require.NoError(t, err)

		require.NoError(t, p.Run(ctx))

		select {
		case err := <-connectRes:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("connect never finished after exhaustion")
		}
		assert.Equal(t, messaging.StateConnected, listener.State())
		assert.Equal(t, messaging.StateConnected, dialer.State())
	})

	t.Run("a frozen run leaves the connect blocked forever", func(t *testing.T) {
		ctx, hub, loader := proberFixture(t)
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		portal, err := hub.Context(portalOrigin)
		require.NoError(t, err)
		app, err := hub.Context(appOrigin)
		require.NoError(t, err)

		listener := messaging.NewMessenger()
		defer listener.Close()
		go listener.Listen(ctx, portal.Broadcast(), []string{appOrigin},
			messaging.WithDelayedHandshake())

		dialer := messaging.NewMessenger(messaging.WithPairer(hub))
		defer dialer.Close()
		connectRes := make(chan error, 1)
		go func() { connectRes <- dialer.Connect(ctx, app.PortTo(portal), portalOrigin) }()

		require.Eventually(t, listener.HandshakeSuspended, 2*time.Second, 10*time.Millisecond)

		loader.Register("https://news.example.com/push/portal", frameWith(liveReport()))
		p, err := probe.NewProber(loader, hub,
			[]string{"https://news.example.com/push/portal"},
			probe.WithSuspendedHandshake(listener))
		require.NoError(t, err)

		go p.Run(runCtx)

		require.Eventually(t, func() bool { return p.State() == probe.RunFrozen },
			2*time.Second, 10*time.Millisecond)

		select {
		case err := <-connectRes:
			t.Fatalf("connect finished despite frozen probing: %v", err)
		case <-time.After(150 * time.Millisecond):
		}
		assert.True(t, listener.HandshakeSuspended())
		assert.Equal(t, messaging.StateListening, listener.State())
	})
}
