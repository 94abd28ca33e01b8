package ws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rtc-service/internal/mocks"
	"rtc-service/internal/models"
	"rtc-service/internal/repositories"
)

func TestRelayPublishBroadcastsAfterPersist(t *testing.T) {
	store := new(mocks.MessageRepositoryMock)
	broadcaster := &fakeBroadcaster{}
	relay := NewMessageRelay(store, broadcaster, time.Second)

	stored := models.Message{ID: "m1", ChannelID: "c1", AuthorID: "u1", Content: "hello"}
	store.On("Create", mock.Anything, "c1", "u1", "hello", (*string)(nil)).Return(stored, nil).Once()

	msg, err := relay.Publish(context.Background(), "c1", testIdentity("u1"), "hello", nil, "conn1")
	require.NoError(t, err)
	assert.Equal(t, stored, msg)

	calls := broadcaster.events(models.OutMessageNew)
	require.Len(t, calls, 1)
	assert.Equal(t, ChannelRoom("c1"), calls[0].RoomID)
	assert.Equal(t, []string{"conn1"}, calls[0].Exclude)
	store.AssertExpectations(t)
}

func TestRelayPublishStoreFailureSkipsBroadcast(t *testing.T) {
	store := new(mocks.MessageRepositoryMock)
	broadcaster := &fakeBroadcaster{}
	relay := NewMessageRelay(store, broadcaster, time.Second)

	store.On("Create", mock.Anything, "c1", "u1", "hello", (*string)(nil)).
		Return(models.Message{}, assert.AnError).Once()

	_, err := relay.Publish(context.Background(), "c1", testIdentity("u1"), "hello", nil, "conn1")
	require.Error(t, err)
	assert.Empty(t, broadcaster.recorded())
	store.AssertExpectations(t)
}

func TestRelayEditByNonAuthor(t *testing.T) {
	store := new(mocks.MessageRepositoryMock)
	broadcaster := &fakeBroadcaster{}
	relay := NewMessageRelay(store, broadcaster, time.Second)

	store.On("Edit", mock.Anything, "m1", "u2", "tampered").
		Return(models.Message{}, repositories.ErrNotAuthor).Once()

	_, err := relay.Edit(context.Background(), "m1", "u2", "tampered", "conn1")
	assert.ErrorIs(t, err, repositories.ErrNotAuthor)
	assert.Empty(t, broadcaster.recorded())
	store.AssertExpectations(t)
}

func TestRelayDeleteBroadcastsTombstone(t *testing.T) {
	store := new(mocks.MessageRepositoryMock)
	broadcaster := &fakeBroadcaster{}
	relay := NewMessageRelay(store, broadcaster, time.Second)

	tombstoned := models.Message{ID: "m1", ChannelID: "c1", AuthorID: "u1", Content: models.Tombstone, Deleted: true}
	store.On("SoftDelete", mock.Anything, "m1", "u1").Return(tombstoned, nil).Once()

	msg, err := relay.Delete(context.Background(), "m1", "u1", "conn1")
	require.NoError(t, err)
	assert.True(t, msg.Deleted)
	assert.Equal(t, models.Tombstone, msg.Content)

	calls := broadcaster.events(models.OutMessageDeleted)
	require.Len(t, calls, 1)
	store.AssertExpectations(t)
}

func TestRelayReactionRoundTrip(t *testing.T) {
	store := new(mocks.MessageRepositoryMock)
	broadcaster := &fakeBroadcaster{}
	relay := NewMessageRelay(store, broadcaster, time.Second)

	msg := models.Message{ID: "m1", ChannelID: "c1", AuthorID: "u1"}
	store.On("Get", mock.Anything, "m1").Return(msg, nil).Twice()
	store.On("AddReaction", mock.Anything, "m1", "u2", "🎉").Return(nil).Once()
	store.On("RemoveReaction", mock.Anything, "m1", "u2", "🎉").Return(nil).Once()

	added, err := relay.AddReaction(context.Background(), "m1", "u2", "🎉", "conn2")
	require.NoError(t, err)
	assert.True(t, added.Added)
	assert.Equal(t, "c1", added.ChannelID)

	removed, err := relay.RemoveReaction(context.Background(), "m1", "u2", "🎉", "conn2")
	require.NoError(t, err)
	assert.False(t, removed.Added)

	assert.Len(t, broadcaster.events(models.OutReactionAdded), 1)
	assert.Len(t, broadcaster.events(models.OutReactionRemoved), 1)
	store.AssertExpectations(t)
}

func TestRelayDuplicateReaction(t *testing.T) {
	store := new(mocks.MessageRepositoryMock)
	broadcaster := &fakeBroadcaster{}
	relay := NewMessageRelay(store, broadcaster, time.Second)

	msg := models.Message{ID: "m1", ChannelID: "c1"}
	store.On("Get", mock.Anything, "m1").Return(msg, nil).Once()
	store.On("AddReaction", mock.Anything, "m1", "u2", "👍").Return(repositories.ErrDuplicateReaction).Once()

	_, err := relay.AddReaction(context.Background(), "m1", "u2", "👍", "conn2")
	assert.ErrorIs(t, err, repositories.ErrDuplicateReaction)
	assert.Empty(t, broadcaster.recorded())
	store.AssertExpectations(t)
}

func TestRelayBroadcastFailureDoesNotUnwind(t *testing.T) {
	store := new(mocks.MessageRepositoryMock)
	broadcaster := &fakeBroadcaster{err: assert.AnError}
	relay := NewMessageRelay(store, broadcaster, time.Second)

	stored := models.Message{ID: "m1", ChannelID: "c1", AuthorID: "u1", Content: "hello"}
	store.On("Create", mock.Anything, "c1", "u1", "hello", (*string)(nil)).Return(stored, nil).Once()

	msg, err := relay.Publish(context.Background(), "c1", testIdentity("u1"), "hello", nil, "conn1")
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	store.AssertExpectations(t)
}

func TestRelayHistory(t *testing.T) {
	store := new(mocks.MessageRepositoryMock)
	relay := NewMessageRelay(store, &fakeBroadcaster{}, time.Second)

	msgs := []models.Message{{ID: "m1"}, {ID: "m2"}}
	store.On("ListChannelMessages", mock.Anything, "c1", (*time.Time)(nil), (*time.Time)(nil), 50).
		Return(msgs, nil).Once()

	got, err := relay.History(context.Background(), "c1", nil, nil, 50)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	store.AssertExpectations(t)
}
