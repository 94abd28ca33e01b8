package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"rtc-service/internal/models"
)

// DefaultPresenceExpiry is how long a record survives without a heartbeat.
const DefaultPresenceExpiry = 60 * time.Second

type presenceState struct {
	status      models.PresenceStatus
	channelHint string
	lastSeen    time.Time
	conns       map[string]struct{}
}

// PresenceTracker keeps per-workspace live status with heartbeat expiry.
// It counts connections per user: a user stays online while at least one of
// their connections in that workspace is live, and offline is broadcast only
// once the last one goes away.
type PresenceTracker struct {
	broadcaster Broadcaster
	expiry      time.Duration

	mu         sync.Mutex
	workspaces map[string]map[string]*presenceState
}

// NewPresenceTracker constructs a tracker broadcasting presence:changed
// events through the given broadcaster.
func NewPresenceTracker(broadcaster Broadcaster, expiry time.Duration) *PresenceTracker {
	if expiry <= 0 {
		expiry = DefaultPresenceExpiry
	}
	return &PresenceTracker{
		broadcaster: broadcaster,
		expiry:      expiry,
		workspaces:  make(map[string]map[string]*presenceState),
	}
}

// Track registers a live connection for the user in the workspace.
func (t *PresenceTracker) Track(connID, userID, workspaceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state := t.stateLocked(workspaceID, userID)
	state.conns[connID] = struct{}{}
	state.lastSeen = time.Now()
}

// SetPresence upserts the record and broadcasts only when the stored status
// actually changes.
func (t *PresenceTracker) SetPresence(userID, workspaceID string, status models.PresenceStatus, channelHint string) {
	t.mu.Lock()
	state := t.stateLocked(workspaceID, userID)
	changed := state.status != status
	state.status = status
	state.channelHint = channelHint
	state.lastSeen = time.Now()
	if status == models.PresenceOffline && len(state.conns) == 0 {
		delete(t.workspaces[workspaceID], userID)
		if len(t.workspaces[workspaceID]) == 0 {
			delete(t.workspaces, workspaceID)
		}
	}
	t.mu.Unlock()

	if changed {
		t.broadcastChange(userID, workspaceID, status, channelHint)
	}
}

// Heartbeat extends the expiry window without changing status. Heartbeats
// alone never broadcast.
func (t *PresenceTracker) Heartbeat(userID, workspaceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if users, ok := t.workspaces[workspaceID]; ok {
		if state, ok := users[userID]; ok {
			state.lastSeen = time.Now()
		}
	}
}

// Disconnect drops one connection reference. Only the last connection for
// the user in that workspace transitions the record offline.
func (t *PresenceTracker) Disconnect(connID, userID, workspaceID string) {
	t.mu.Lock()
	users, ok := t.workspaces[workspaceID]
	if !ok {
		t.mu.Unlock()
		return
	}
	state, ok := users[userID]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(state.conns, connID)
	if len(state.conns) > 0 {
		t.mu.Unlock()
		return
	}
	changed := state.status != models.PresenceOffline
	delete(users, userID)
	if len(users) == 0 {
		delete(t.workspaces, workspaceID)
	}
	t.mu.Unlock()

	if changed {
		t.broadcastChange(userID, workspaceID, models.PresenceOffline, "")
	}
}

// Online returns the users currently reporting any non-offline status.
func (t *PresenceTracker) Online(workspaceID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	users := make([]string, 0, len(t.workspaces[workspaceID]))
	for userID, state := range t.workspaces[workspaceID] {
		if state.status != models.PresenceOffline {
			users = append(users, userID)
		}
	}
	return users
}

// Snapshot returns the workspace's presence records for read endpoints.
func (t *PresenceTracker) Snapshot(workspaceID string) []models.PresenceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	records := make([]models.PresenceRecord, 0, len(t.workspaces[workspaceID]))
	for userID, state := range t.workspaces[workspaceID] {
		records = append(records, models.PresenceRecord{
			UserID:      userID,
			WorkspaceID: workspaceID,
			Status:      state.status,
			ChannelHint: state.channelHint,
			LastSeenAt:  state.lastSeen,
		})
	}
	return records
}

// ExpireStale transitions records whose heartbeat age exceeds the expiry
// window to offline, broadcasting each change exactly once.
func (t *PresenceTracker) ExpireStale() {
	type expired struct {
		userID, workspaceID string
	}

	t.mu.Lock()
	now := time.Now()
	var stale []expired
	for workspaceID, users := range t.workspaces {
		for userID, state := range users {
			if state.status == models.PresenceOffline {
				continue
			}
			if now.Sub(state.lastSeen) > t.expiry {
				state.status = models.PresenceOffline
				stale = append(stale, expired{userID: userID, workspaceID: workspaceID})
			}
		}
	}
	for _, e := range stale {
		users := t.workspaces[e.workspaceID]
		if state, ok := users[e.userID]; ok && len(state.conns) == 0 {
			delete(users, e.userID)
			if len(users) == 0 {
				delete(t.workspaces, e.workspaceID)
			}
		}
	}
	t.mu.Unlock()

	for _, e := range stale {
		t.broadcastChange(e.userID, e.workspaceID, models.PresenceOffline, "")
	}
}

// Run expires stale records on a ticker until the context ends.
func (t *PresenceTracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = t.expiry / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.ExpireStale()
		}
	}
}

func (t *PresenceTracker) stateLocked(workspaceID, userID string) *presenceState {
	users, ok := t.workspaces[workspaceID]
	if !ok {
		users = make(map[string]*presenceState)
		t.workspaces[workspaceID] = users
	}
	state, ok := users[userID]
	if !ok {
		state = &presenceState{status: models.PresenceOffline, conns: make(map[string]struct{})}
		users[userID] = state
	}
	return state
}

func (t *PresenceTracker) broadcastChange(userID, workspaceID string, status models.PresenceStatus, channelHint string) {
	record := models.PresenceRecord{
		UserID:      userID,
		WorkspaceID: workspaceID,
		Status:      status,
		ChannelHint: channelHint,
		LastSeenAt:  time.Now(),
	}
	if err := t.broadcaster.Broadcast(WorkspaceRoom(workspaceID), models.OutboundEvent{Event: models.OutPresenceChanged, Payload: record}); err != nil {
		log.Printf("presence broadcast failed workspace=%s user=%s: %v", workspaceID, userID, err)
	}
}
