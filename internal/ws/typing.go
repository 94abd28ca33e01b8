package ws

import (
	"log"
	"sync"
	"time"

	"rtc-service/internal/models"
)

// DefaultTypingTimeout is how long a typing entry lives without a refresh.
const DefaultTypingTimeout = 5 * time.Second

type typingState struct {
	entry models.TypingEntry
	timer *time.Timer
}

// TypingPayload is the full current typing set for a channel; the fabric
// broadcasts state, not deltas, so clients just replace what they have.
type TypingPayload struct {
	ChannelID string               `json:"channel_id"`
	Users     []models.TypingEntry `json:"users"`
}

// TypingManager tracks who is composing in which channel, with auto-expiry.
type TypingManager struct {
	broadcaster Broadcaster
	timeout     time.Duration

	mu       sync.Mutex
	channels map[string]map[string]*typingState
}

// NewTypingManager constructs a manager broadcasting typing:user events.
func NewTypingManager(broadcaster Broadcaster, timeout time.Duration) *TypingManager {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &TypingManager{
		broadcaster: broadcaster,
		timeout:     timeout,
		channels:    make(map[string]map[string]*typingState),
	}
}

// Start inserts or refreshes a typing entry. A repeat start resets the
// expiry timer instead of stacking a duplicate.
func (m *TypingManager) Start(channelID, userID, displayName string) {
	m.mu.Lock()
	users, ok := m.channels[channelID]
	if !ok {
		users = make(map[string]*typingState)
		m.channels[channelID] = users
	}
	if state, ok := users[userID]; ok {
		state.timer.Stop()
		state.entry.StartedAt = time.Now()
		state.timer = m.expireTimer(channelID, userID)
	} else {
		users[userID] = &typingState{
			entry: models.TypingEntry{
				ChannelID:   channelID,
				UserID:      userID,
				DisplayName: displayName,
				StartedAt:   time.Now(),
			},
			timer: m.expireTimer(channelID, userID),
		}
	}
	m.broadcastLocked(channelID)
	m.mu.Unlock()
}

// Stop removes the entry and cancels its timer.
func (m *TypingManager) Stop(channelID, userID string) {
	m.mu.Lock()
	if m.removeLocked(channelID, userID) {
		m.broadcastLocked(channelID)
	}
	m.mu.Unlock()
}

// ClearUser removes the user's entries across all channels and cancels
// their timers. Called on disconnect; no timers may be left behind.
func (m *TypingManager) ClearUser(userID string) {
	m.mu.Lock()
	var affected []string
	for channelID, users := range m.channels {
		if _, ok := users[userID]; ok {
			affected = append(affected, channelID)
		}
	}
	for _, channelID := range affected {
		m.removeLocked(channelID, userID)
		m.broadcastLocked(channelID)
	}
	m.mu.Unlock()
}

// Typing returns the current entries for a channel.
func (m *TypingManager) Typing(channelID string) []models.TypingEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entriesLocked(channelID)
}

func (m *TypingManager) expireTimer(channelID, userID string) *time.Timer {
	return time.AfterFunc(m.timeout, func() {
		m.mu.Lock()
		state, ok := m.channels[channelID][userID]
		// a refresh re-arms a new timer, so a stale fire must not remove
		// the refreshed entry
		if ok && time.Since(state.entry.StartedAt) >= m.timeout {
			m.removeLocked(channelID, userID)
			m.broadcastLocked(channelID)
		}
		m.mu.Unlock()
	})
}

func (m *TypingManager) removeLocked(channelID, userID string) bool {
	users, ok := m.channels[channelID]
	if !ok {
		return false
	}
	state, ok := users[userID]
	if !ok {
		return false
	}
	state.timer.Stop()
	delete(users, userID)
	if len(users) == 0 {
		delete(m.channels, channelID)
	}
	return true
}

func (m *TypingManager) entriesLocked(channelID string) []models.TypingEntry {
	users := m.channels[channelID]
	entries := make([]models.TypingEntry, 0, len(users))
	for _, state := range users {
		entries = append(entries, state.entry)
	}
	return entries
}

func (m *TypingManager) broadcastLocked(channelID string) {
	payload := TypingPayload{ChannelID: channelID, Users: m.entriesLocked(channelID)}
	if err := m.broadcaster.Broadcast(ChannelRoom(channelID), models.OutboundEvent{Event: models.OutTypingUser, Payload: payload}); err != nil {
		log.Printf("typing broadcast failed channel=%s: %v", channelID, err)
	}
}
