package contracts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	t.Run("generates a fresh id and carries the topic", func(t *testing.T) {
		e, err := NewEnvelope("ping", map[string]int{"n": 1})

		require.NoError(t, err)
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, "ping", e.Topic)
		assert.False(t, e.IsReply)
		assert.JSONEq(t, `{"n":1}`, string(e.Data))
	})

	t.Run("ids are unique across envelopes", func(t *testing.T) {
		a, err := NewEnvelope("ping", nil)
		require.NoError(t, err)
		b, err := NewEnvelope("ping", nil)
		require.NoError(t, err)

		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("nil payload omits data", func(t *testing.T) {
		e, err := NewEnvelope("ping", nil)

		require.NoError(t, err)
		assert.Nil(t, e.Data)

		encoded, err := e.Encode()
		require.NoError(t, err)
		assert.NotContains(t, string(encoded), `"data"`)
	})

	t.Run("raw JSON payload is forwarded untouched", func(t *testing.T) {
		raw := json.RawMessage(`{"already":"encoded"}`)

		e, err := NewEnvelope("relay", raw)

		require.NoError(t, err)
		assert.Equal(t, raw, e.Data)
	})

	t.Run("unmarshalable payload fails", func(t *testing.T) {
		_, err := NewEnvelope("bad", func() {})

		assert.Error(t, err)
	})
}

func TestNewReply(t *testing.T) {
	t.Run("reuses the id it answers and sets the reply flag", func(t *testing.T) {
		request, err := NewEnvelope("ping", map[string]int{"n": 1})
		require.NoError(t, err)

		reply, err := NewReply(request.ID, request.Topic, map[string]int{"n": 2})

		require.NoError(t, err)
		assert.Equal(t, request.ID, reply.ID)
		assert.Equal(t, "ping", reply.Topic)
		assert.True(t, reply.IsReply)
		assert.JSONEq(t, `{"n":2}`, string(reply.Data))
	})
}

func TestDecode(t *testing.T) {
	t.Run("round-trips an encoded envelope", func(t *testing.T) {
		e, err := NewReply("abc-123", "status", map[string]bool{"ok": true})
		require.NoError(t, err)

		encoded, err := e.Encode()
		require.NoError(t, err)

		decoded, err := Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, e.ID, decoded.ID)
		assert.Equal(t, e.Topic, decoded.Topic)
		assert.True(t, decoded.IsReply)
		assert.JSONEq(t, `{"ok":true}`, string(decoded.Data))
	})

	t.Run("rejects bodies that are not JSON", func(t *testing.T) {
		_, err := Decode([]byte("not json"))

		assert.Error(t, err)
	})

	t.Run("rejects an envelope without an id", func(t *testing.T) {
		_, err := Decode([]byte(`{"topic":"ping"}`))

		assert.ErrorIs(t, err, ErrMissingID)
	})

	t.Run("rejects an envelope without a topic", func(t *testing.T) {
		_, err := Decode([]byte(`{"id":"abc-123"}`))

		assert.ErrorIs(t, err, ErrMissingTopic)
	})

	t.Run("absent isReply decodes as a fresh message", func(t *testing.T) {
		decoded, err := Decode([]byte(`{"id":"abc-123","topic":"ping"}`))

		require.NoError(t, err)
		assert.False(t, decoded.IsReply)
	})
}
