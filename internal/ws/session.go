package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"rtc-service/internal/auth"
	"rtc-service/internal/models"
	"rtc-service/internal/observability"
	"rtc-service/internal/repositories"
	"rtc-service/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SessionHandler owns the lifecycle of client connections: connect-time
// authentication, inbound dispatch, and at-most-once disconnect cleanup.
type SessionHandler struct {
	registry *Registry
	presence *PresenceTracker
	typing   *TypingManager
	relay    *MessageRelay
	huddles  *HuddleEngine
	authn    *auth.Authenticator
	members  repositories.MembershipRepository
	audit    *telemetry.AuditEmitter
	timeout  time.Duration
}

// NewSessionHandler wires the supervisor to the fabric components.
func NewSessionHandler(
	registry *Registry,
	presence *PresenceTracker,
	typing *TypingManager,
	relay *MessageRelay,
	huddles *HuddleEngine,
	authn *auth.Authenticator,
	members repositories.MembershipRepository,
	audit *telemetry.AuditEmitter,
) *SessionHandler {
	return &SessionHandler{
		registry: registry,
		presence: presence,
		typing:   typing,
		relay:    relay,
		huddles:  huddles,
		authn:    authn,
		members:  members,
		audit:    audit,
		timeout:  DefaultStoreTimeout,
	}
}

// session is the supervisor's per-connection state.
type session struct {
	conn *Conn

	mu         sync.Mutex
	workspaces map[string]struct{}

	cleanupOnce sync.Once
}

func (s *session) trackWorkspace(workspaceID string) {
	s.mu.Lock()
	s.workspaces[workspaceID] = struct{}{}
	s.mu.Unlock()
}

func (s *session) inWorkspace(workspaceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.workspaces[workspaceID]
	return ok
}

func (s *session) workspaceIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.workspaces))
	for id := range s.workspaces {
		ids = append(ids, id)
	}
	return ids
}

// Handle authenticates and upgrades the connection, then hands it to the
// read loop. Identity is verified once here; revocation applies on the next
// reconnect.
func (h *SessionHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("rtc-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	identity, err := h.authn.Authenticate(ctx, token)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrAccountDisabled) {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": err.Error(), "code": CodeOf(err)})
		return
	}

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	conn := NewConn(sock, identity)
	conn.DeviceID = observability.DeviceIDFromRequest(c.Request)
	conn.IP = observability.IPFromRequest(c.Request)
	conn.RequestID = observability.RequestIDFromRequest(c.Request)
	conn.TraceID = observability.TraceIDFromContext(ctx)

	h.registry.Register(conn)
	h.registry.Join(conn.ID, UserRoom(identity.UserID))

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishConnEvent(conn, "ws_connect", "")

	sess := &session{conn: conn, workspaces: make(map[string]struct{})}

	go conn.WritePump()
	go h.readLoop(sess)
}

func (h *SessionHandler) readLoop(sess *session) {
	conn := sess.conn
	var closeReason string
	defer func() {
		h.cleanup(sess, closeReason)
	}()

	conn.sock.SetReadLimit(maxFrameSize)
	conn.sock.SetReadDeadline(time.Now().Add(pongWait))
	conn.sock.SetPongHandler(func(string) error {
		conn.sock.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.sock.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}

		var event models.InboundEvent
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("ws bad frame conn_id=%s: %v", conn.ID, err)
			continue
		}
		h.dispatch(sess, event)
	}
}

// dispatch routes one inbound event. Failures become connection-scoped
// error acks; unknown event names are dropped so old clients survive
// protocol evolution.
func (h *SessionHandler) dispatch(sess *session, event models.InboundEvent) {
	kind := models.ParseEventKind(event.Event)
	if kind == models.EventUnknown {
		observability.IncWSUnknownEvent()
		log.Printf("ws unknown event %q conn_id=%s", event.Event, sess.conn.ID)
		return
	}
	observability.IncWSEvent(event.Event)

	ctx := context.Background()
	var err error
	switch kind {
	case models.EventWorkspaceJoin:
		err = h.handleWorkspaceJoin(ctx, sess, event.Payload)
	case models.EventChannelJoin:
		err = h.handleChannelJoin(ctx, sess, event.Payload)
	case models.EventChannelLeave:
		err = h.handleChannelLeave(sess, event.Payload)
	case models.EventMessageSend:
		err = h.handleMessageSend(ctx, sess, event.Payload)
	case models.EventMessageEdit:
		err = h.handleMessageEdit(ctx, sess, event.Payload)
	case models.EventMessageDelete:
		err = h.handleMessageDelete(ctx, sess, event.Payload)
	case models.EventReactionAdd:
		err = h.handleReaction(ctx, sess, event.Payload, true)
	case models.EventReactionRemove:
		err = h.handleReaction(ctx, sess, event.Payload, false)
	case models.EventTypingStart:
		err = h.handleTyping(sess, event.Payload, true)
	case models.EventTypingStop:
		err = h.handleTyping(sess, event.Payload, false)
	case models.EventPresenceUpdate:
		err = h.handlePresenceUpdate(sess, event.Payload)
	case models.EventPresenceHeartbeat:
		err = h.handleHeartbeat(sess, event.Payload)
	case models.EventHuddleCreate:
		err = h.handleHuddleCreate(ctx, sess, event.Payload)
	case models.EventHuddleJoin:
		err = h.handleHuddleJoin(sess, event.Payload)
	case models.EventHuddleLeave:
		err = h.handleHuddleLeave(sess, event.Payload)
	case models.EventHuddleOffer:
		err = h.handleSignal(sess, event.Payload, models.SignalOffer)
	case models.EventHuddleAnswer:
		err = h.handleSignal(sess, event.Payload, models.SignalAnswer)
	case models.EventHuddleICECandidate:
		err = h.handleSignal(sess, event.Payload, models.SignalICE)
	case models.EventHuddleToggleMute:
		err = h.handleHuddleToggle(sess, event.Payload, kind)
	case models.EventHuddleToggleVideo:
		err = h.handleHuddleToggle(sess, event.Payload, kind)
	case models.EventHuddleToggleScreen:
		err = h.handleHuddleToggle(sess, event.Payload, kind)
	}

	if err != nil {
		log.Printf("ws event %s failed conn_id=%s user_id=%s: %v", event.Event, sess.conn.ID, sess.conn.Identity.UserID, err)
		sess.conn.Send(ErrorAck(err))
	}
}

func (h *SessionHandler) handleWorkspaceJoin(ctx context.Context, sess *session, raw json.RawMessage) error {
	var payload models.WorkspaceJoinPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	member, err := h.members.IsWorkspaceMember(ctx, payload.WorkspaceID, sess.conn.Identity.UserID)
	if err != nil {
		return err
	}
	if !member {
		return fmt.Errorf("workspace %s: %w", payload.WorkspaceID, ErrForbidden)
	}

	h.registry.Join(sess.conn.ID, WorkspaceRoom(payload.WorkspaceID))
	sess.trackWorkspace(payload.WorkspaceID)
	h.presence.Track(sess.conn.ID, sess.conn.Identity.UserID, payload.WorkspaceID)
	h.presence.SetPresence(sess.conn.Identity.UserID, payload.WorkspaceID, models.PresenceOnline, "")

	sess.conn.Send(models.OutboundEvent{Event: models.OutWorkspaceJoined, Payload: gin.H{
		"workspace_id": payload.WorkspaceID,
		"online":       h.presence.Online(payload.WorkspaceID),
	}})
	return nil
}

func (h *SessionHandler) handleChannelJoin(ctx context.Context, sess *session, raw json.RawMessage) error {
	var payload models.ChannelPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	allowed, err := h.members.CanJoinChannel(ctx, payload.ChannelID, sess.conn.Identity.UserID)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("channel %s: %w", payload.ChannelID, ErrForbidden)
	}

	h.registry.Join(sess.conn.ID, ChannelRoom(payload.ChannelID))

	ack := gin.H{"channel_id": payload.ChannelID}
	if huddle, ok := h.huddles.Active(payload.ChannelID); ok {
		ack["huddle"] = huddle
	}
	sess.conn.Send(models.OutboundEvent{Event: models.OutChannelJoined, Payload: ack})
	return nil
}

func (h *SessionHandler) handleChannelLeave(sess *session, raw json.RawMessage) error {
	var payload models.ChannelPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}

	h.typing.Stop(payload.ChannelID, sess.conn.Identity.UserID)
	h.registry.Leave(sess.conn.ID, ChannelRoom(payload.ChannelID))
	sess.conn.Send(models.OutboundEvent{Event: models.OutChannelLeft, Payload: gin.H{"channel_id": payload.ChannelID}})
	return nil
}

func (h *SessionHandler) handleMessageSend(ctx context.Context, sess *session, raw json.RawMessage) error {
	var payload models.MessageSendPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}

	mctx, cancel := context.WithTimeout(ctx, h.timeout)
	allowed, err := h.members.CanJoinChannel(mctx, payload.ChannelID, sess.conn.Identity.UserID)
	cancel()
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("channel %s: %w", payload.ChannelID, ErrForbidden)
	}

	msg, err := h.relay.Publish(ctx, payload.ChannelID, sess.conn.Identity, payload.Content, payload.ReplyTo, sess.conn.ID)
	if err != nil {
		return err
	}
	sess.conn.Send(models.OutboundEvent{Event: models.OutMessageSent, Payload: msg})
	return nil
}

func (h *SessionHandler) handleMessageEdit(ctx context.Context, sess *session, raw json.RawMessage) error {
	var payload models.MessageEditPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}

	msg, err := h.relay.Edit(ctx, payload.MessageID, sess.conn.Identity.UserID, payload.Content, sess.conn.ID)
	if err != nil {
		return err
	}
	sess.conn.Send(models.OutboundEvent{Event: models.OutMessageUpdated, Payload: msg})
	return nil
}

func (h *SessionHandler) handleMessageDelete(ctx context.Context, sess *session, raw json.RawMessage) error {
	var payload models.MessageDeletePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}

	msg, err := h.relay.Delete(ctx, payload.MessageID, sess.conn.Identity.UserID, sess.conn.ID)
	if err != nil {
		return err
	}
	sess.conn.Send(models.OutboundEvent{Event: models.OutMessageDeleted, Payload: msg})
	return nil
}

func (h *SessionHandler) handleReaction(ctx context.Context, sess *session, raw json.RawMessage, added bool) error {
	var payload models.ReactionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}

	var delta models.ReactionDelta
	var err error
	if added {
		delta, err = h.relay.AddReaction(ctx, payload.MessageID, sess.conn.Identity.UserID, payload.Emoji, sess.conn.ID)
	} else {
		delta, err = h.relay.RemoveReaction(ctx, payload.MessageID, sess.conn.Identity.UserID, payload.Emoji, sess.conn.ID)
	}
	if err != nil {
		return err
	}

	event := models.OutReactionAdded
	if !added {
		event = models.OutReactionRemoved
	}
	sess.conn.Send(models.OutboundEvent{Event: event, Payload: delta})
	return nil
}

func (h *SessionHandler) handleTyping(sess *session, raw json.RawMessage, start bool) error {
	var payload models.ChannelPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}

	if start {
		h.typing.Start(payload.ChannelID, sess.conn.Identity.UserID, sess.conn.Identity.DisplayName)
	} else {
		h.typing.Stop(payload.ChannelID, sess.conn.Identity.UserID)
	}
	return nil
}

func (h *SessionHandler) handlePresenceUpdate(sess *session, raw json.RawMessage) error {
	var payload models.PresenceUpdatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if !sess.inWorkspace(payload.WorkspaceID) {
		return fmt.Errorf("workspace %s: %w", payload.WorkspaceID, ErrForbidden)
	}
	if !payload.Status.Valid() {
		return fmt.Errorf("invalid presence status %q", payload.Status)
	}

	h.presence.SetPresence(sess.conn.Identity.UserID, payload.WorkspaceID, payload.Status, payload.ChannelHint)
	return nil
}

func (h *SessionHandler) handleHeartbeat(sess *session, raw json.RawMessage) error {
	var payload models.PresenceHeartbeatPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if !sess.inWorkspace(payload.WorkspaceID) {
		return fmt.Errorf("workspace %s: %w", payload.WorkspaceID, ErrForbidden)
	}

	h.presence.Heartbeat(sess.conn.Identity.UserID, payload.WorkspaceID)
	return nil
}

func (h *SessionHandler) handleHuddleCreate(ctx context.Context, sess *session, raw json.RawMessage) error {
	var payload models.HuddleCreatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if !payload.MediaType.Valid() {
		return fmt.Errorf("invalid media type %q", payload.MediaType)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	allowed, err := h.members.CanJoinChannel(ctx, payload.ChannelID, sess.conn.Identity.UserID)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("channel %s: %w", payload.ChannelID, ErrForbidden)
	}

	workspaceID := payload.WorkspaceID
	if workspaceID == "" {
		workspaceID, err = h.members.ChannelWorkspace(ctx, payload.ChannelID)
		if err != nil {
			return err
		}
	}

	huddle, err := h.huddles.Create(payload.ChannelID, workspaceID, sess.conn.Identity, sess.conn.ID, payload.MediaType)
	if err != nil {
		return err
	}

	h.registry.Join(sess.conn.ID, HuddleRoom(huddle.ID))
	observability.IncHuddlesActive()
	h.auditHuddle(sess, "huddle started", huddle.ID)

	sess.conn.Send(models.OutboundEvent{Event: models.OutHuddleCreated, Payload: huddle})
	return nil
}

func (h *SessionHandler) handleHuddleJoin(sess *session, raw json.RawMessage) error {
	var payload models.HuddleRoomPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}

	huddle, err := h.huddles.Join(payload.HuddleID, sess.conn.Identity.UserID, sess.conn.ID)
	if err != nil {
		return err
	}

	h.registry.Join(sess.conn.ID, HuddleRoom(huddle.ID))
	sess.conn.Send(models.OutboundEvent{Event: models.OutHuddleJoinedAck, Payload: huddle})
	return nil
}

func (h *SessionHandler) handleHuddleLeave(sess *session, raw json.RawMessage) error {
	var payload models.HuddleRoomPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}

	huddle, err := h.huddles.Leave(payload.HuddleID, sess.conn.Identity.UserID)
	if err != nil {
		return err
	}

	h.registry.Leave(sess.conn.ID, HuddleRoom(payload.HuddleID))
	if huddle.Status == models.HuddleEnded {
		observability.DecHuddlesActive()
		h.auditHuddle(sess, "huddle ended", huddle.ID)
	}
	sess.conn.Send(models.OutboundEvent{Event: models.OutHuddleLeftAck, Payload: gin.H{"huddle_id": payload.HuddleID}})
	return nil
}

func (h *SessionHandler) handleHuddleToggle(sess *session, raw json.RawMessage, kind models.EventKind) error {
	var payload models.HuddleTogglePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}

	var update models.ParticipantUpdate
	switch kind {
	case models.EventHuddleToggleMute:
		update.IsMuted = &payload.Enabled
	case models.EventHuddleToggleVideo:
		update.IsVideoOff = &payload.Enabled
	case models.EventHuddleToggleScreen:
		update.IsScreenSharing = &payload.Enabled
	}

	_, err := h.huddles.UpdateStatus(payload.HuddleID, sess.conn.Identity.UserID, update)
	return err
}

func (h *SessionHandler) handleSignal(sess *session, raw json.RawMessage, kind models.SignalKind) error {
	var payload models.HuddleSignalPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}

	return h.huddles.Signal(payload.HuddleID, sess.conn.Identity.UserID, payload.TargetUserID, kind, payload.Payload)
}

// cleanup runs the disconnect sequence at most once: presence offline,
// typing clear, huddle leave, room leave-all. Every step runs even when an
// earlier one misbehaves.
func (h *SessionHandler) cleanup(sess *session, reason string) {
	sess.cleanupOnce.Do(func() {
		conn := sess.conn
		userID := conn.Identity.UserID

		for _, workspaceID := range sess.workspaceIDs() {
			h.presence.Disconnect(conn.ID, userID, workspaceID)
		}

		h.typing.ClearUser(userID)

		if huddle, ok := h.huddles.LeaveByConn(conn.ID, userID); ok {
			h.registry.Leave(conn.ID, HuddleRoom(huddle.ID))
			if huddle.Status == models.HuddleEnded {
				observability.DecHuddlesActive()
				h.auditHuddle(sess, "huddle ended", huddle.ID)
			}
		}

		h.registry.LeaveAll(conn.ID)
		h.registry.Unregister(conn.ID)
		conn.Close()

		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.publishConnEvent(conn, "ws_disconnect", reason)
	})
}

func (h *SessionHandler) publishConnEvent(conn *Conn, name, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       name,
			"conn_id":     conn.ID,
			"duration_ms": time.Since(conn.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   conn.Identity.UserID,
			"device_id": conn.DeviceID,
			"ip":        conn.IP,
		},
	}

	headers := observability.BuildHeaders(conn.RequestID, conn.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.fabric", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload:   payload,
	}, headers)
}

func (h *SessionHandler) auditHuddle(sess *session, text, huddleID string) {
	if h.audit == nil {
		return
	}
	userID := sess.conn.Identity.UserID
	h.audit.Emit(context.Background(), "INFO", fmt.Sprintf("%s huddle_id=%s", text, huddleID), sess.conn.RequestID, &userID)
}
