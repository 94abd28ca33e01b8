package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rtc-service/internal/mocks"
	"rtc-service/internal/models"
)

type supervisorHarness struct {
	handler     *SessionHandler
	registry    *Registry
	presence    *PresenceTracker
	typing      *TypingManager
	huddles     *HuddleEngine
	broadcaster *fakeBroadcaster
	store       *mocks.MessageRepositoryMock
	members     *mocks.MembershipRepositoryMock
	sess        *session
}

func newSupervisorHarness(userID string) *supervisorHarness {
	registry := NewRegistry()
	broadcaster := &fakeBroadcaster{}
	store := new(mocks.MessageRepositoryMock)
	members := new(mocks.MembershipRepositoryMock)

	presence := NewPresenceTracker(broadcaster, time.Minute)
	typing := NewTypingManager(broadcaster, time.Minute)
	relay := NewMessageRelay(store, broadcaster, time.Second)
	huddles := NewHuddleEngine(broadcaster, registry)

	handler := NewSessionHandler(registry, presence, typing, relay, huddles, nil, members, nil)

	conn := newTestConn(userID)
	registry.Register(conn)
	sess := &session{conn: conn, workspaces: make(map[string]struct{})}

	return &supervisorHarness{
		handler:     handler,
		registry:    registry,
		presence:    presence,
		typing:      typing,
		huddles:     huddles,
		broadcaster: broadcaster,
		store:       store,
		members:     members,
		sess:        sess,
	}
}

func (h *supervisorHarness) dispatch(t *testing.T, event, payload string) {
	t.Helper()
	h.handler.dispatch(h.sess, models.InboundEvent{Event: event, Payload: json.RawMessage(payload)})
}

func lastErrorAck(t *testing.T, conn *Conn) ErrorPayload {
	t.Helper()
	events := receivedEvents(conn)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, models.OutError, last.Event)
	return last.Payload.(ErrorPayload)
}

func TestDispatchUnknownEventIgnored(t *testing.T) {
	h := newSupervisorHarness("u1")

	h.dispatch(t, "message:unsend", `{}`)

	assert.Empty(t, receivedEvents(h.sess.conn))
	assert.Empty(t, h.broadcaster.recorded())
}

func TestDispatchErrorAckStaysConnectionScoped(t *testing.T) {
	h := newSupervisorHarness("u1")

	h.members.On("CanJoinChannel", mock.Anything, "c1", "u1").Return(false, nil).Once()

	h.dispatch(t, "message:send", `{"channel_id":"c1","content":"hi"}`)

	ack := lastErrorAck(t, h.sess.conn)
	assert.Equal(t, CodeForbidden, ack.Code)
	assert.Empty(t, h.broadcaster.recorded())
	h.members.AssertExpectations(t)
	h.store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchWorkspaceJoin(t *testing.T) {
	h := newSupervisorHarness("u1")

	h.members.On("IsWorkspaceMember", mock.Anything, "w1", "u1").Return(true, nil).Once()

	h.dispatch(t, "workspace:join", `{"workspace_id":"w1"}`)

	events := receivedEvents(h.sess.conn)
	require.Len(t, events, 1)
	assert.Equal(t, models.OutWorkspaceJoined, events[0].Event)
	assert.True(t, h.sess.inWorkspace("w1"))
	assert.Contains(t, h.registry.Members(WorkspaceRoom("w1")), h.sess.conn.ID)
	h.members.AssertExpectations(t)
}

func TestDispatchWorkspaceJoinForbidden(t *testing.T) {
	h := newSupervisorHarness("u1")

	h.members.On("IsWorkspaceMember", mock.Anything, "w1", "u1").Return(false, nil).Once()

	h.dispatch(t, "workspace:join", `{"workspace_id":"w1"}`)

	ack := lastErrorAck(t, h.sess.conn)
	assert.Equal(t, CodeForbidden, ack.Code)
	assert.False(t, h.sess.inWorkspace("w1"))
	h.members.AssertExpectations(t)
}

func TestDispatchPresenceUpdateRequiresJoinedWorkspace(t *testing.T) {
	h := newSupervisorHarness("u1")

	h.dispatch(t, "presence:update", `{"workspace_id":"w1","status":"online"}`)

	ack := lastErrorAck(t, h.sess.conn)
	assert.Equal(t, CodeForbidden, ack.Code)
	assert.Empty(t, h.broadcaster.recorded())
	assert.Empty(t, h.presence.Snapshot("w1"))
}

func TestDispatchHeartbeatRequiresJoinedWorkspace(t *testing.T) {
	h := newSupervisorHarness("u1")

	h.dispatch(t, "presence:heartbeat", `{"workspace_id":"w1"}`)

	ack := lastErrorAck(t, h.sess.conn)
	assert.Equal(t, CodeForbidden, ack.Code)
	assert.Empty(t, h.presence.Snapshot("w1"))
}

func TestDispatchInvalidPresenceStatus(t *testing.T) {
	h := newSupervisorHarness("u1")
	h.sess.trackWorkspace("w1")

	h.dispatch(t, "presence:update", `{"workspace_id":"w1","status":"sleeping"}`)

	ack := lastErrorAck(t, h.sess.conn)
	assert.Equal(t, CodeInternal, ack.Code)
	assert.Empty(t, h.broadcaster.recorded())
}

func TestCleanupRunsOnceInOrder(t *testing.T) {
	h := newSupervisorHarness("u1")
	conn := h.sess.conn

	h.sess.trackWorkspace("w1")
	h.presence.Track(conn.ID, "u1", "w1")
	h.presence.SetPresence("u1", "w1", models.PresenceOnline, "")
	h.typing.Start("c1", "u1", "Alice")
	_, err := h.huddles.Create("c1", "w1", testIdentity("u1"), conn.ID, models.HuddleAudio)
	require.NoError(t, err)
	h.registry.Join(conn.ID, WorkspaceRoom("w1"))
	baseline := len(h.broadcaster.recorded())

	h.handler.cleanup(h.sess, "connection reset")
	h.handler.cleanup(h.sess, "connection reset")

	calls := h.broadcaster.recorded()[baseline:]

	indexOf := func(name string) int {
		for i, call := range calls {
			if call.Event.Event == name {
				return i
			}
		}
		return -1
	}
	countOf := func(name string) int {
		n := 0
		for _, call := range calls {
			if call.Event.Event == name {
				n++
			}
		}
		return n
	}

	offlineAt := indexOf(models.OutPresenceChanged)
	typingAt := indexOf(models.OutTypingUser)
	endedAt := indexOf(models.OutHuddleEnded)
	require.GreaterOrEqual(t, offlineAt, 0)
	require.GreaterOrEqual(t, typingAt, 0)
	require.GreaterOrEqual(t, endedAt, 0)

	// presence offline, then typing clear, then huddle end
	assert.Less(t, offlineAt, typingAt)
	assert.Less(t, typingAt, endedAt)

	// the second cleanup call must not re-announce anything
	assert.Equal(t, 1, countOf(models.OutPresenceChanged))
	assert.Equal(t, 1, countOf(models.OutTypingUser))
	assert.Equal(t, 2, countOf(models.OutHuddleEnded))

	record := calls[offlineAt].Event.Payload.(models.PresenceRecord)
	assert.Equal(t, models.PresenceOffline, record.Status)
	assert.Empty(t, calls[typingAt].Event.Payload.(TypingPayload).Users)

	assert.True(t, conn.Closed())
	assert.Empty(t, h.registry.Members(WorkspaceRoom("w1")))
	assert.Empty(t, h.presence.Snapshot("w1"))
	assert.Empty(t, h.typing.Typing("c1"))
	_, active := h.huddles.Active("c1")
	assert.False(t, active)
}
