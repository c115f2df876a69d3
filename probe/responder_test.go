package probe_test

import (
	"context"
	"testing"
	"time"

	"github.com/lanewave/pagelink-go/contracts"
	"github.com/lanewave/pagelink-go/messaging"
	"github.com/lanewave/pagelink-go/probe"
	"github.com/lanewave/pagelink-go/transports/inproc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := inproc.NewHub()
	news, err := hub.Context("https://news.example.com")
	require.NoError(t, err)
	portal, err := hub.Context(portalOrigin)
	require.NoError(t, err)

	listener := messaging.NewMessenger()
	t.Cleanup(func() { listener.Close() })
	require.NoError(t, probe.NewResponder(liveReport()).Bind(listener))
	go listener.Listen(ctx, news.Broadcast(), []string{portalOrigin})

	dialer := messaging.NewMessenger(messaging.WithPairer(hub))
	t.Cleanup(func() { dialer.Close() })
	require.NoError(t, dialer.Connect(ctx, portal.PortTo(news), "https://news.example.com"))

	ask := func(t *testing.T, topic string, out any) {
		t.Helper()
		pending, err := dialer.Send(ctx, topic, nil)
		require.NoError(t, err)
		awaitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		reply, err := pending.Await(awaitCtx)
		require.NoError(t, err)
		require.NoError(t, reply.Decode(out))
	}

	t.Run("consolidated state report", func(t *testing.T) {
		var report probe.StateReport
		ask(t, contracts.TopicOriginSubscriptionState, &report)
		assert.Equal(t, liveReport(), report)
	})

	t.Run("notification permission", func(t *testing.T) {
		var state probe.PermissionState
		ask(t, contracts.TopicNotificationPermission, &state)
		assert.Equal(t, probe.PermissionGranted, state.Permission)
	})

	t.Run("worker state and query", func(t *testing.T) {
		for _, topic := range []string{contracts.TopicServiceWorkerState, contracts.TopicServiceWorkerQuery} {
			var state probe.WorkerState
			ask(t, topic, &state)
			assert.True(t, state.Registered)
			assert.Equal(t, probe.WorkerActivated, state.State)
			assert.Equal(t, liveReport().ServiceWorkerURL, state.URL)
		}
	})

	t.Run("worker registration", func(t *testing.T) {
		var reg probe.WorkerRegistration
		ask(t, contracts.TopicServiceWorkerRegistration, &reg)
		assert.True(t, reg.Registered)
		assert.Equal(t, liveReport().ServiceWorkerURL, reg.URL)
	})
}
