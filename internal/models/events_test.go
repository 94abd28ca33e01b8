package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventKind(t *testing.T) {
	assert.Equal(t, EventMessageSend, ParseEventKind("message:send"))
	assert.Equal(t, EventHuddleICECandidate, ParseEventKind("huddle:ice-candidate"))
	assert.Equal(t, EventPresenceHeartbeat, ParseEventKind("presence:heartbeat"))
	assert.Equal(t, EventUnknown, ParseEventKind("message:unsend"))
	assert.Equal(t, EventUnknown, ParseEventKind(""))
}

func TestInboundEventDecoding(t *testing.T) {
	raw := []byte(`{"event":"message:send","payload":{"channel_id":"c1","content":"hi"}}`)

	var event InboundEvent
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, EventMessageSend, ParseEventKind(event.Event))

	var payload MessageSendPayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "c1", payload.ChannelID)
	assert.Equal(t, "hi", payload.Content)
	assert.Nil(t, payload.ReplyTo)
}
