package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingAwait(t *testing.T) {
	t.Run("returns the reply once resolved", func(t *testing.T) {
		p := newPending("ex-1", "updates")
		p.resolve(&Message{ID: "ex-1", Topic: "updates"})

		msg, err := p.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ex-1", msg.ID)
	})

	t.Run("cancellation abandons the wait without losing the reply", func(t *testing.T) {
		p := newPending("ex-1", "updates")

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := p.Await(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		p.resolve(&Message{ID: "ex-1", Topic: "updates"})
		msg, err := p.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ex-1", msg.ID)
	})

	t.Run("second resolution is discarded", func(t *testing.T) {
		p := newPending("ex-1", "updates")
		p.resolve(&Message{ID: "ex-1", Topic: "updates", Data: []byte(`"first"`)})
		p.resolve(&Message{ID: "ex-1", Topic: "updates", Data: []byte(`"second"`)})

		msg, err := p.Await(context.Background())
		require.NoError(t, err)
		assert.JSONEq(t, `"first"`, string(msg.Data))
	})

	t.Run("exposes id and topic", func(t *testing.T) {
		p := newPending("ex-1", "updates")
		assert.Equal(t, "ex-1", p.ID())
		assert.Equal(t, "updates", p.Topic())
	})
}

func TestPendingRegistry(t *testing.T) {
	t.Run("take removes exactly once", func(t *testing.T) {
		r := newPendingRegistry()
		r.add(newPending("ex-1", "updates"))

		p, ok := r.take("ex-1")
		require.True(t, ok)
		assert.Equal(t, "ex-1", p.ID())

		_, ok = r.take("ex-1")
		assert.False(t, ok)
		assert.Equal(t, 0, r.size())
	})

	t.Run("same id replaces the earlier exchange", func(t *testing.T) {
		r := newPendingRegistry()
		first := newPending("ex-1", "updates")
		second := newPending("ex-1", "updates")
		r.add(first)
		r.add(second)

		assert.Equal(t, 1, r.size())
		p, ok := r.take("ex-1")
		require.True(t, ok)
		assert.Same(t, second, p)
	})

	t.Run("remove drops without returning", func(t *testing.T) {
		r := newPendingRegistry()
		r.add(newPending("ex-1", "updates"))
		r.remove("ex-1")

		_, ok := r.take("ex-1")
		assert.False(t, ok)
	})
}
