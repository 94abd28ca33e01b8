package ws

import (
	"context"
	"log"
	"time"

	"rtc-service/internal/auth"
	"rtc-service/internal/models"
	"rtc-service/internal/repositories"
)

// DefaultStoreTimeout bounds every call into the message store.
const DefaultStoreTimeout = 5 * time.Second

// MessageRelay validates chat mutations, persists them through the external
// message store, and only then fans them out. A broadcast failure never
// unwinds a persisted mutation; reconnecting clients re-fetch history and
// must find everything they saw live.
type MessageRelay struct {
	store       repositories.MessageRepository
	broadcaster Broadcaster
	timeout     time.Duration
}

// NewMessageRelay constructs a relay.
func NewMessageRelay(store repositories.MessageRepository, broadcaster Broadcaster, timeout time.Duration) *MessageRelay {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &MessageRelay{store: store, broadcaster: broadcaster, timeout: timeout}
}

// Publish stores a new message and broadcasts message:new to the channel,
// excluding the originating connection, which gets a synchronous ack.
func (r *MessageRelay) Publish(ctx context.Context, channelID string, author auth.Identity, content string, replyTo *string, originConnID string) (models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg, err := r.store.Create(ctx, channelID, author.UserID, content, replyTo)
	if err != nil {
		return models.Message{}, err
	}

	r.broadcast(ChannelRoom(channelID), models.OutboundEvent{Event: models.OutMessageNew, Payload: msg}, originConnID)
	return msg, nil
}

// Edit updates a message's content. Only the author may edit.
func (r *MessageRelay) Edit(ctx context.Context, messageID, authorID, newContent, originConnID string) (models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg, err := r.store.Edit(ctx, messageID, authorID, newContent)
	if err != nil {
		return models.Message{}, err
	}

	r.broadcast(ChannelRoom(msg.ChannelID), models.OutboundEvent{Event: models.OutMessageUpdated, Payload: msg}, originConnID)
	return msg, nil
}

// Delete soft-deletes a message. Only the author may delete; the row stays
// tombstoned so reply threads keep their parent.
func (r *MessageRelay) Delete(ctx context.Context, messageID, authorID, originConnID string) (models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg, err := r.store.SoftDelete(ctx, messageID, authorID)
	if err != nil {
		return models.Message{}, err
	}

	r.broadcast(ChannelRoom(msg.ChannelID), models.OutboundEvent{Event: models.OutMessageDeleted, Payload: msg}, originConnID)
	return msg, nil
}

// AddReaction places a reaction. Duplicates conflict. The broadcast carries
// only the delta; reaction lists can grow without bound, typing sets cannot.
func (r *MessageRelay) AddReaction(ctx context.Context, messageID, userID, emoji, originConnID string) (models.ReactionDelta, error) {
	return r.reaction(ctx, messageID, userID, emoji, originConnID, true)
}

// RemoveReaction removes a reaction the user previously placed.
func (r *MessageRelay) RemoveReaction(ctx context.Context, messageID, userID, emoji, originConnID string) (models.ReactionDelta, error) {
	return r.reaction(ctx, messageID, userID, emoji, originConnID, false)
}

// History reads channel messages by created-at cursor.
func (r *MessageRelay) History(ctx context.Context, channelID string, before, after *time.Time, limit int) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.store.ListChannelMessages(ctx, channelID, before, after, limit)
}

func (r *MessageRelay) reaction(ctx context.Context, messageID, userID, emoji, originConnID string, added bool) (models.ReactionDelta, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg, err := r.store.Get(ctx, messageID)
	if err != nil {
		return models.ReactionDelta{}, err
	}

	if added {
		err = r.store.AddReaction(ctx, messageID, userID, emoji)
	} else {
		err = r.store.RemoveReaction(ctx, messageID, userID, emoji)
	}
	if err != nil {
		return models.ReactionDelta{}, err
	}

	delta := models.ReactionDelta{
		MessageID: messageID,
		ChannelID: msg.ChannelID,
		UserID:    userID,
		Emoji:     emoji,
		Added:     added,
	}
	event := models.OutReactionAdded
	if !added {
		event = models.OutReactionRemoved
	}
	r.broadcast(ChannelRoom(msg.ChannelID), models.OutboundEvent{Event: event, Payload: delta}, originConnID)
	return delta, nil
}

func (r *MessageRelay) broadcast(roomID string, event models.OutboundEvent, originConnID string) {
	var err error
	if originConnID != "" {
		err = r.broadcaster.Broadcast(roomID, event, originConnID)
	} else {
		err = r.broadcaster.Broadcast(roomID, event)
	}
	if err != nil {
		log.Printf("relay broadcast failed room=%s event=%s: %v", roomID, event.Event, err)
	}
}
