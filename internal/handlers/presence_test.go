package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rtc-service/internal/mocks"
	"rtc-service/internal/models"
	"rtc-service/internal/ws"
)

func setupPresenceRouter(handler *PresenceHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "u1")
		c.Next()
	})
	r.GET("/workspaces/:workspace_id/presence", handler.GetWorkspacePresence)
	return r
}

func TestGetWorkspacePresence(t *testing.T) {
	members := new(mocks.MembershipRepositoryMock)
	tracker := ws.NewPresenceTracker(ws.NewRegistry(), time.Minute)
	handler := NewPresenceHandler(tracker, members)
	router := setupPresenceRouter(handler)

	tracker.Track("conn1", "u2", "w1")
	tracker.SetPresence("u2", "w1", models.PresenceOnline, "")
	members.On("IsWorkspaceMember", mock.Anything, "w1", "u1").Return(true, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/workspaces/w1/presence", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string][]models.PresenceRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp["presence"], 1)
	assert.Equal(t, "u2", resp["presence"][0].UserID)

	members.AssertExpectations(t)
}

func TestGetWorkspacePresenceNotMember(t *testing.T) {
	members := new(mocks.MembershipRepositoryMock)
	tracker := ws.NewPresenceTracker(ws.NewRegistry(), time.Minute)
	handler := NewPresenceHandler(tracker, members)
	router := setupPresenceRouter(handler)

	members.On("IsWorkspaceMember", mock.Anything, "w1", "u1").Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/workspaces/w1/presence", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	members.AssertExpectations(t)
}

func TestGetWorkspacePresenceLookupError(t *testing.T) {
	members := new(mocks.MembershipRepositoryMock)
	tracker := ws.NewPresenceTracker(ws.NewRegistry(), time.Minute)
	handler := NewPresenceHandler(tracker, members)
	router := setupPresenceRouter(handler)

	members.On("IsWorkspaceMember", mock.Anything, "w1", "u1").Return(false, assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/workspaces/w1/presence", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	members.AssertExpectations(t)
}
