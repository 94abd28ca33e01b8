package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rtc-service/internal/repositories"
	"rtc-service/internal/ws"
)

// PresenceHandler exposes a point-in-time presence snapshot per workspace.
type PresenceHandler struct {
	presence *ws.PresenceTracker
	members  repositories.MembershipRepository
}

// NewPresenceHandler builds a PresenceHandler.
func NewPresenceHandler(presence *ws.PresenceTracker, members repositories.MembershipRepository) *PresenceHandler {
	return &PresenceHandler{presence: presence, members: members}
}

// GetWorkspacePresence returns the known presence records for a workspace.
func (h *PresenceHandler) GetWorkspacePresence(c *gin.Context) {
	workspaceID := c.Param("workspace_id")
	if workspaceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workspace id"})
		return
	}

	userID := c.GetString("userID")
	member, err := h.members.IsWorkspaceMember(c.Request.Context(), workspaceID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a workspace member"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"presence": h.presence.Snapshot(workspaceID)})
}
