package models

import "encoding/json"

// InboundEvent is the envelope every client frame decodes into.
type InboundEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// OutboundEvent is the envelope for everything written to a connection.
type OutboundEvent struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// EventKind is the closed set of inbound event kinds. Parsing an unknown
// event name yields EventUnknown, which the dispatcher ignores.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventWorkspaceJoin
	EventChannelJoin
	EventChannelLeave
	EventMessageSend
	EventMessageEdit
	EventMessageDelete
	EventReactionAdd
	EventReactionRemove
	EventTypingStart
	EventTypingStop
	EventPresenceUpdate
	EventPresenceHeartbeat
	EventHuddleCreate
	EventHuddleJoin
	EventHuddleLeave
	EventHuddleOffer
	EventHuddleAnswer
	EventHuddleICECandidate
	EventHuddleToggleMute
	EventHuddleToggleVideo
	EventHuddleToggleScreen
)

var eventKinds = map[string]EventKind{
	"workspace:join":           EventWorkspaceJoin,
	"channel:join":             EventChannelJoin,
	"channel:leave":            EventChannelLeave,
	"message:send":             EventMessageSend,
	"message:edit":             EventMessageEdit,
	"message:delete":           EventMessageDelete,
	"reaction:add":             EventReactionAdd,
	"reaction:remove":          EventReactionRemove,
	"typing:start":             EventTypingStart,
	"typing:stop":              EventTypingStop,
	"presence:update":          EventPresenceUpdate,
	"presence:heartbeat":       EventPresenceHeartbeat,
	"huddle:create":            EventHuddleCreate,
	"huddle:join-room":         EventHuddleJoin,
	"huddle:leave-room":        EventHuddleLeave,
	"huddle:offer":             EventHuddleOffer,
	"huddle:answer":            EventHuddleAnswer,
	"huddle:ice-candidate":     EventHuddleICECandidate,
	"huddle:toggle-mute":       EventHuddleToggleMute,
	"huddle:toggle-video":      EventHuddleToggleVideo,
	"huddle:toggle-screen":     EventHuddleToggleScreen,
}

// ParseEventKind maps an inbound event name onto the closed kind set.
func ParseEventKind(name string) EventKind {
	return eventKinds[name]
}

// Outbound event names.
const (
	OutError              = "error"
	OutMessageSent        = "message:sent"
	OutMessageNew         = "message:new"
	OutMessageUpdated     = "message:updated"
	OutMessageDeleted     = "message:deleted"
	OutReactionAdded      = "reaction:added"
	OutReactionRemoved    = "reaction:removed"
	OutTypingUser         = "typing:user"
	OutPresenceChanged    = "presence:changed"
	OutHuddleStarted      = "huddle:started"
	OutHuddleEnded        = "huddle:ended"
	OutHuddleJoined       = "huddle:participant-joined"
	OutHuddleLeft         = "huddle:participant-left"
	OutHuddleUpdated      = "huddle:participant-updated"
	OutHuddleSignal       = "huddle:signal"
	OutWorkspaceJoined    = "workspace:joined"
	OutChannelJoined      = "channel:joined"
	OutChannelLeft        = "channel:left"
	OutHuddleCreated      = "huddle:created"
	OutHuddleJoinedAck    = "huddle:joined"
	OutHuddleLeftAck      = "huddle:left"
)

// Inbound payloads.

type WorkspaceJoinPayload struct {
	WorkspaceID string `json:"workspace_id"`
}

type ChannelPayload struct {
	ChannelID string `json:"channel_id"`
}

type MessageSendPayload struct {
	ChannelID string  `json:"channel_id"`
	Content   string  `json:"content"`
	ReplyTo   *string `json:"reply_to,omitempty"`
}

type MessageEditPayload struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

type MessageDeletePayload struct {
	MessageID string `json:"message_id"`
}

type ReactionPayload struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type PresenceUpdatePayload struct {
	WorkspaceID string         `json:"workspace_id"`
	Status      PresenceStatus `json:"status"`
	ChannelHint string         `json:"channel_hint,omitempty"`
}

type PresenceHeartbeatPayload struct {
	WorkspaceID string `json:"workspace_id"`
}

type HuddleCreatePayload struct {
	ChannelID   string          `json:"channel_id"`
	WorkspaceID string          `json:"workspace_id"`
	MediaType   HuddleMediaType `json:"media_type"`
}

type HuddleRoomPayload struct {
	HuddleID string `json:"huddle_id"`
}

type HuddleTogglePayload struct {
	HuddleID string `json:"huddle_id"`
	Enabled  bool   `json:"enabled"`
}

type HuddleSignalPayload struct {
	HuddleID     string          `json:"huddle_id"`
	TargetUserID string          `json:"target_user_id"`
	Payload      json.RawMessage `json:"payload"`
}

// SignalEvent is the outbound point-to-point relay envelope. Payload is
// opaque to the fabric.
type SignalEvent struct {
	HuddleID   string          `json:"huddle_id"`
	FromUserID string          `json:"from_user_id"`
	Kind       SignalKind      `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
}
