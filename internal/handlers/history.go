package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rtc-service/internal/repositories"
	"rtc-service/internal/ws"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HistoryHandler serves message backfill for channels over REST. Live
// traffic stays on the socket; this endpoint exists for scrollback and
// reconnect catch-up.
type HistoryHandler struct {
	relay   *ws.MessageRelay
	members repositories.MembershipRepository
}

// NewHistoryHandler builds a HistoryHandler.
func NewHistoryHandler(relay *ws.MessageRelay, members repositories.MembershipRepository) *HistoryHandler {
	return &HistoryHandler{relay: relay, members: members}
}

// GetChannelMessages returns channel messages newest-first, filtered by
// optional before/after RFC3339 cursors.
func (h *HistoryHandler) GetChannelMessages(c *gin.Context) {
	channelID := c.Param("channel_id")
	if channelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}

	userID := c.GetString("userID")
	allowed, err := h.members.CanJoinChannel(c.Request.Context(), channelID, userID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChannelNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "failed to verify membership"})
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a channel member"})
		return
	}

	before, err := parseCursor(c.Query("before"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before cursor"})
		return
	}
	after, err := parseCursor(c.Query("after"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after cursor"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	msgs, err := h.relay.History(c.Request.Context(), channelID, before, after, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func parseCursor(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}
