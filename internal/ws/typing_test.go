package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtc-service/internal/models"
)

func typingUsers(call recordedBroadcast) []models.TypingEntry {
	return call.Event.Payload.(TypingPayload).Users
}

func TestTypingStartBroadcastsFullSet(t *testing.T) {
	broadcaster := &fakeBroadcaster{}
	manager := NewTypingManager(broadcaster, time.Minute)

	manager.Start("c1", "u1", "Alice")
	manager.Start("c1", "u2", "Bob")

	calls := broadcaster.events(models.OutTypingUser)
	require.Len(t, calls, 2)
	assert.Equal(t, ChannelRoom("c1"), calls[0].RoomID)
	assert.Len(t, typingUsers(calls[0]), 1)
	assert.Len(t, typingUsers(calls[1]), 2)
}

func TestTypingStopRemovesEntry(t *testing.T) {
	broadcaster := &fakeBroadcaster{}
	manager := NewTypingManager(broadcaster, time.Minute)

	manager.Start("c1", "u1", "Alice")
	manager.Stop("c1", "u1")

	assert.Empty(t, manager.Typing("c1"))
	calls := broadcaster.events(models.OutTypingUser)
	require.Len(t, calls, 2)
	assert.Empty(t, typingUsers(calls[1]))

	// stopping again must not broadcast an empty set twice
	manager.Stop("c1", "u1")
	assert.Len(t, broadcaster.events(models.OutTypingUser), 2)
}

func TestTypingAutoExpires(t *testing.T) {
	broadcaster := &fakeBroadcaster{}
	manager := NewTypingManager(broadcaster, 30*time.Millisecond)

	manager.Start("c1", "u1", "Alice")
	require.Len(t, manager.Typing("c1"), 1)

	assert.Eventually(t, func() bool {
		return len(manager.Typing("c1")) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestTypingRefreshResetsExpiry(t *testing.T) {
	broadcaster := &fakeBroadcaster{}
	manager := NewTypingManager(broadcaster, 200*time.Millisecond)

	manager.Start("c1", "u1", "Alice")
	time.Sleep(120 * time.Millisecond)
	manager.Start("c1", "u1", "Alice")

	// the first timer's window has passed but the refresh re-armed it
	time.Sleep(120 * time.Millisecond)
	assert.Len(t, manager.Typing("c1"), 1)

	assert.Eventually(t, func() bool {
		return len(manager.Typing("c1")) == 0
	}, time.Second, 20*time.Millisecond)
}

func TestTypingClearUser(t *testing.T) {
	broadcaster := &fakeBroadcaster{}
	manager := NewTypingManager(broadcaster, time.Minute)

	manager.Start("c1", "u1", "Alice")
	manager.Start("c2", "u1", "Alice")
	manager.Start("c1", "u2", "Bob")

	manager.ClearUser("u1")

	require.Len(t, manager.Typing("c1"), 1)
	assert.Equal(t, "u2", manager.Typing("c1")[0].UserID)
	assert.Empty(t, manager.Typing("c2"))
}
