package models

import "time"

// Tombstone replaces the content of soft-deleted messages.
const Tombstone = "This message was deleted"

// Message represents a persisted chat message.
type Message struct {
	ID         string    `db:"id" json:"id"`
	ChannelID  string    `db:"channel_id" json:"channel_id"`
	AuthorID   string    `db:"author_id" json:"author_id"`
	Content    string    `db:"content" json:"content"`
	ReplyTo    *string   `db:"reply_to" json:"reply_to,omitempty"`
	ReplyCount int       `db:"reply_count" json:"reply_count"`
	Edited     bool      `db:"edited" json:"edited"`
	Deleted    bool      `db:"deleted" json:"deleted"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Reaction is one user's emoji reaction on a message.
type Reaction struct {
	MessageID string `db:"message_id" json:"message_id"`
	UserID    string `db:"user_id" json:"user_id"`
	Emoji     string `db:"emoji" json:"emoji"`
}

// ReactionDelta is broadcast instead of the full reaction list.
type ReactionDelta struct {
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
	Added     bool   `json:"added"`
}
