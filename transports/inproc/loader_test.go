package inproc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader(t *testing.T) {
	ctx := context.Background()

	t.Run("loads a registered url and wires the host port", func(t *testing.T) {
		hub := NewHub()
		host, err := hub.Context("https://app.example.com")
		require.NoError(t, err)

		loader := NewLoader(hub, host)
		var booted *Context
		loader.Register("https://news.example.com/push/portal", func(ctx context.Context, frame *Context) error {
			booted = frame
			return nil
		})

		frame, err := loader.Load(ctx, "https://news.example.com/push/portal")
		require.NoError(t, err)
		defer frame.Close()

		require.NotNil(t, booted)
		assert.Equal(t, "https://news.example.com", booted.Origin())

		// The returned port feeds the frame's inbox, tagged with the host.
		require.NoError(t, frame.Port().Send(ctx, []byte("hi")))
		d := waitDelivery(t, booted.Broadcast().Deliveries())
		assert.Equal(t, "https://app.example.com", d.Origin)
	})

	t.Run("unregistered url fails to load", func(t *testing.T) {
		hub := NewHub()
		host, err := hub.Context("https://app.example.com")
		require.NoError(t, err)

		_, err = NewLoader(hub, host).Load(ctx, "https://nowhere.example.com/push")
		assert.Error(t, err)
	})

	t.Run("factory failure tears the frame down", func(t *testing.T) {
		hub := NewHub()
		host, err := hub.Context("https://app.example.com")
		require.NoError(t, err)

		loader := NewLoader(hub, host)
		loader.Register("https://news.example.com/push", func(ctx context.Context, frame *Context) error {
			return errors.New("boot failed")
		})

		_, err = loader.Load(ctx, "https://news.example.com/push")
		require.Error(t, err)

		// The origin is free again; a fresh context can claim it.
		fresh, err := hub.Context("https://news.example.com")
		require.NoError(t, err)
		assert.NotNil(t, fresh)
	})
}
