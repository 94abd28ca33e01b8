package ws

import (
	"context"
	"strings"

	"rtc-service/internal/models"
	"rtc-service/internal/observability"
)

// BridgedBroadcaster decorates a local Broadcaster with a publish to the
// AMQP fabric exchange, so additional processes can mirror room fan-out by
// subscribing to the room-kind routing keys. Local delivery is
// authoritative; a bridge failure degrades to single-process fan-out.
type BridgedBroadcaster struct {
	local Broadcaster
}

// NewBridgedBroadcaster wraps the in-process broadcaster.
func NewBridgedBroadcaster(local Broadcaster) *BridgedBroadcaster {
	return &BridgedBroadcaster{local: local}
}

type bridgedEvent struct {
	RoomID  string               `json:"room_id"`
	Exclude []string             `json:"exclude,omitempty"`
	Event   models.OutboundEvent `json:"event"`
}

// Broadcast fans out locally, then publishes the envelope for other
// processes. The local error is the one callers care about.
func (b *BridgedBroadcaster) Broadcast(roomID string, event models.OutboundEvent, exclude ...string) error {
	err := b.local.Broadcast(roomID, event, exclude...)

	_ = observability.PublishEvent(context.Background(), bridgeRoutingKey(roomID), observability.EventEnvelope{
		EventType: "room_events",
		EventName: event.Event,
		Payload:   bridgedEvent{RoomID: roomID, Exclude: exclude, Event: event},
	}, nil)

	return err
}

func bridgeRoutingKey(roomID string) string {
	kind, _, found := strings.Cut(roomID, ":")
	if !found {
		kind = "room"
	}
	return "fabric." + kind
}
