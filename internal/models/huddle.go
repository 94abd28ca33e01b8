package models

import "time"

// HuddleMediaType is the media kind a huddle was started with.
type HuddleMediaType string

const (
	HuddleAudio HuddleMediaType = "audio"
	HuddleVideo HuddleMediaType = "video"
)

// Valid reports whether t is a known media type.
func (t HuddleMediaType) Valid() bool {
	return t == HuddleAudio || t == HuddleVideo
}

// HuddleStatus is the lifecycle state of a huddle session.
type HuddleStatus string

const (
	HuddleActive HuddleStatus = "active"
	HuddleEnded  HuddleStatus = "ended"
)

// SignalKind names the relayed negotiation payload types.
type SignalKind string

const (
	SignalOffer  SignalKind = "offer"
	SignalAnswer SignalKind = "answer"
	SignalICE    SignalKind = "ice-candidate"
)

// Participant is one member of a huddle session.
type Participant struct {
	UserID          string    `json:"user_id"`
	ConnID          string    `json:"-"`
	JoinedAt        time.Time `json:"joined_at"`
	IsMuted         bool      `json:"is_muted"`
	IsVideoOff      bool      `json:"is_video_off"`
	IsScreenSharing bool      `json:"is_screen_sharing"`
}

// ParticipantUpdate carries the optional status fields of an update event.
// Nil fields are left unchanged.
type ParticipantUpdate struct {
	IsMuted         *bool `json:"is_muted,omitempty"`
	IsVideoOff      *bool `json:"is_video_off,omitempty"`
	IsScreenSharing *bool `json:"is_screen_sharing,omitempty"`
}

// Huddle is a snapshot of one voice/video session bound to a channel.
type Huddle struct {
	ID           string          `json:"id"`
	ChannelID    string          `json:"channel_id"`
	WorkspaceID  string          `json:"workspace_id"`
	CreatorID    string          `json:"creator_id"`
	MediaType    HuddleMediaType `json:"media_type"`
	Status       HuddleStatus    `json:"status"`
	Participants []Participant   `json:"participants"`
	CreatedAt    time.Time       `json:"created_at"`
	EndedAt      *time.Time      `json:"ended_at,omitempty"`
}
