package ws

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"rtc-service/internal/auth"
	"rtc-service/internal/models"
)

var (
	ErrHuddleNotFound     = errors.New("huddle not found")
	ErrActiveHuddleExists = errors.New("channel already has an active huddle")
	ErrNotParticipant     = errors.New("not a huddle participant")
)

type huddleSession struct {
	mu           sync.Mutex
	info         models.Huddle
	participants map[string]*models.Participant
}

func (s *huddleSession) snapshotLocked() models.Huddle {
	h := s.info
	h.Participants = make([]models.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		h.Participants = append(h.Participants, *p)
	}
	return h
}

// HuddleEngine drives the per-session call state machine:
// Created(active, 1) -> Joined(active, n) -> Ended(terminal). Signaling
// payloads are relayed opaquely between two participants; the engine never
// inspects them.
type HuddleEngine struct {
	broadcaster Broadcaster
	sender      Sender

	mu        sync.RWMutex
	sessions  map[string]*huddleSession
	byChannel map[string]string
	byConn    map[string]string
}

// NewHuddleEngine constructs an engine.
func NewHuddleEngine(broadcaster Broadcaster, sender Sender) *HuddleEngine {
	return &HuddleEngine{
		broadcaster: broadcaster,
		sender:      sender,
		sessions:    make(map[string]*huddleSession),
		byChannel:   make(map[string]string),
		byConn:      make(map[string]string),
	}
}

// Create starts a huddle with the creator as sole participant. A channel
// holds at most one active huddle.
func (e *HuddleEngine) Create(channelID, workspaceID string, creator auth.Identity, connID string, mediaType models.HuddleMediaType) (models.Huddle, error) {
	e.mu.Lock()
	if _, exists := e.byChannel[channelID]; exists {
		e.mu.Unlock()
		return models.Huddle{}, ErrActiveHuddleExists
	}
	if _, busy := e.byConn[connID]; busy {
		e.mu.Unlock()
		return models.Huddle{}, ErrActiveHuddleExists
	}

	session := &huddleSession{
		info: models.Huddle{
			ID:          uuid.NewString(),
			ChannelID:   channelID,
			WorkspaceID: workspaceID,
			CreatorID:   creator.UserID,
			MediaType:   mediaType,
			Status:      models.HuddleActive,
			CreatedAt:   time.Now(),
		},
		participants: map[string]*models.Participant{
			creator.UserID: {UserID: creator.UserID, ConnID: connID, JoinedAt: time.Now()},
		},
	}
	e.sessions[session.info.ID] = session
	e.byChannel[channelID] = session.info.ID
	e.byConn[connID] = session.info.ID
	e.mu.Unlock()

	session.mu.Lock()
	snapshot := session.snapshotLocked()
	session.mu.Unlock()

	e.broadcast(ChannelRoom(channelID), models.OutHuddleStarted, snapshot)
	return snapshot, nil
}

// Join adds a participant. Rejoining an existing membership is a no-op that
// returns the current state, not an error.
func (e *HuddleEngine) Join(huddleID, userID, connID string) (models.Huddle, error) {
	session, err := e.session(huddleID)
	if err != nil {
		return models.Huddle{}, err
	}

	// a connection belongs to at most one huddle
	e.mu.RLock()
	current, busy := e.byConn[connID]
	e.mu.RUnlock()
	if busy && current != huddleID {
		return models.Huddle{}, ErrActiveHuddleExists
	}

	session.mu.Lock()
	if session.info.Status == models.HuddleEnded {
		session.mu.Unlock()
		return models.Huddle{}, ErrHuddleNotFound
	}
	if _, ok := session.participants[userID]; ok {
		snapshot := session.snapshotLocked()
		session.mu.Unlock()
		return snapshot, nil
	}
	participant := &models.Participant{UserID: userID, ConnID: connID, JoinedAt: time.Now()}
	session.participants[userID] = participant
	snapshot := session.snapshotLocked()
	session.mu.Unlock()

	e.mu.Lock()
	e.byConn[connID] = huddleID
	e.mu.Unlock()

	e.broadcast(HuddleRoom(huddleID), models.OutHuddleJoined, *participant)
	return snapshot, nil
}

// Leave removes a participant. The last leaver ends the session, which is
// then terminal and announced to both the huddle and its channel.
func (e *HuddleEngine) Leave(huddleID, userID string) (models.Huddle, error) {
	session, err := e.session(huddleID)
	if err != nil {
		return models.Huddle{}, err
	}

	session.mu.Lock()
	participant, ok := session.participants[userID]
	if !ok || session.info.Status == models.HuddleEnded {
		session.mu.Unlock()
		return models.Huddle{}, ErrNotParticipant
	}
	delete(session.participants, userID)
	ended := len(session.participants) == 0
	if ended {
		session.info.Status = models.HuddleEnded
		now := time.Now()
		session.info.EndedAt = &now
	}
	snapshot := session.snapshotLocked()
	session.mu.Unlock()

	e.mu.Lock()
	delete(e.byConn, participant.ConnID)
	if ended {
		delete(e.sessions, huddleID)
		delete(e.byChannel, snapshot.ChannelID)
	}
	e.mu.Unlock()

	if ended {
		e.broadcast(HuddleRoom(huddleID), models.OutHuddleEnded, snapshot)
		e.broadcast(ChannelRoom(snapshot.ChannelID), models.OutHuddleEnded, snapshot)
	} else {
		e.broadcast(HuddleRoom(huddleID), models.OutHuddleLeft, *participant)
	}
	return snapshot, nil
}

// LeaveByConn resolves the huddle a connection participates in, if any, and
// leaves it. Used by disconnect cleanup.
func (e *HuddleEngine) LeaveByConn(connID, userID string) (models.Huddle, bool) {
	e.mu.RLock()
	huddleID, ok := e.byConn[connID]
	e.mu.RUnlock()
	if !ok {
		return models.Huddle{}, false
	}

	snapshot, err := e.Leave(huddleID, userID)
	if err != nil {
		return models.Huddle{}, false
	}
	return snapshot, true
}

// UpdateStatus merges the provided mute/video/screen fields into the
// participant and broadcasts the result to the huddle.
func (e *HuddleEngine) UpdateStatus(huddleID, userID string, update models.ParticipantUpdate) (models.Participant, error) {
	session, err := e.session(huddleID)
	if err != nil {
		return models.Participant{}, err
	}

	session.mu.Lock()
	participant, ok := session.participants[userID]
	if !ok {
		session.mu.Unlock()
		return models.Participant{}, ErrNotParticipant
	}
	if update.IsMuted != nil {
		participant.IsMuted = *update.IsMuted
	}
	if update.IsVideoOff != nil {
		participant.IsVideoOff = *update.IsVideoOff
	}
	if update.IsScreenSharing != nil {
		participant.IsScreenSharing = *update.IsScreenSharing
	}
	updated := *participant
	session.mu.Unlock()

	e.broadcast(HuddleRoom(huddleID), models.OutHuddleUpdated, updated)
	return updated, nil
}

// Signal relays an opaque negotiation payload to the single connection of
// the target participant. Signaling is best-effort: an offline target is a
// silent drop, never an error back to the sender.
func (e *HuddleEngine) Signal(huddleID, fromUserID, toUserID string, kind models.SignalKind, payload json.RawMessage) error {
	session, err := e.session(huddleID)
	if err != nil {
		return err
	}

	session.mu.Lock()
	_, fromOK := session.participants[fromUserID]
	target, toOK := session.participants[toUserID]
	var targetConn string
	if toOK {
		targetConn = target.ConnID
	}
	session.mu.Unlock()

	if !fromOK {
		return ErrNotParticipant
	}
	if !toOK {
		return nil
	}

	event := models.OutboundEvent{Event: models.OutHuddleSignal, Payload: models.SignalEvent{
		HuddleID:   huddleID,
		FromUserID: fromUserID,
		Kind:       kind,
		Payload:    payload,
	}}
	if !e.sender.Send(targetConn, event) {
		log.Printf("huddle signal dropped huddle=%s target=%s kind=%s", huddleID, toUserID, kind)
	}
	return nil
}

// Active returns the active huddle for a channel, if any.
func (e *HuddleEngine) Active(channelID string) (models.Huddle, bool) {
	e.mu.RLock()
	huddleID, ok := e.byChannel[channelID]
	e.mu.RUnlock()
	if !ok {
		return models.Huddle{}, false
	}
	session, err := e.session(huddleID)
	if err != nil {
		return models.Huddle{}, false
	}
	session.mu.Lock()
	snapshot := session.snapshotLocked()
	session.mu.Unlock()
	return snapshot, true
}

func (e *HuddleEngine) session(huddleID string) (*huddleSession, error) {
	e.mu.RLock()
	session, ok := e.sessions[huddleID]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrHuddleNotFound
	}
	return session, nil
}

func (e *HuddleEngine) broadcast(roomID, event string, payload interface{}) {
	if err := e.broadcaster.Broadcast(roomID, models.OutboundEvent{Event: event, Payload: payload}); err != nil {
		log.Printf("huddle broadcast failed room=%s event=%s: %v", roomID, event, err)
	}
}
