package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseflow/relay/core"
)

func event(t *testing.T, eventType string, payload string) *core.Event {
	t.Helper()
	return &core.Event{Type: eventType, Payload: json.RawMessage(payload)}
}

func TestDecodePayload(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		var payload SendMessagePayload
		err := decodePayload(event(t, SendMessageEvent,
			`{"recipientId":"bob","content":"hello"}`), &payload)
		require.Nil(t, err)
		assert.Equal(t, "bob", payload.RecipientID)
		assert.Equal(t, "hello", payload.Content)
	})

	t.Run("malformed json", func(t *testing.T) {
		var payload SendMessagePayload
		err := decodePayload(event(t, SendMessageEvent, `{not json`), &payload)
		require.NotNil(t, err)
		assert.True(t, core.IsCode(err, core.CodeInvalidPayload))
	})

	t.Run("missing required field", func(t *testing.T) {
		var payload SendMessagePayload
		err := decodePayload(event(t, SendMessageEvent, `{"content":"hello"}`), &payload)
		require.NotNil(t, err)
		assert.True(t, core.IsCode(err, core.CodeInvalidPayload))
	})

	t.Run("room join payload", func(t *testing.T) {
		var payload core.JoinRoomPayload
		err := decodePayload(event(t, core.EventJoinRoom, `{"userId":"alice"}`), &payload)
		require.NotNil(t, err)
		assert.True(t, core.IsCode(err, core.CodeInvalidPayload))
	})
}
