package models

import "time"

// PresenceStatus enumerates the live states a user can report.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceDND     PresenceStatus = "dnd"
	PresenceOffline PresenceStatus = "offline"
)

// Valid reports whether s is one of the known presence statuses.
func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceOnline, PresenceAway, PresenceDND, PresenceOffline:
		return true
	}
	return false
}

// PresenceRecord is a user's live status within a workspace.
type PresenceRecord struct {
	UserID      string         `json:"user_id"`
	WorkspaceID string         `json:"workspace_id"`
	Status      PresenceStatus `json:"status"`
	ChannelHint string         `json:"channel_hint,omitempty"`
	LastSeenAt  time.Time      `json:"last_seen_at"`
}

// TypingEntry marks a user actively composing in a channel.
type TypingEntry struct {
	ChannelID   string    `json:"channel_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	StartedAt   time.Time `json:"started_at"`
}
