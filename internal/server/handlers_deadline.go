package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"nomikai/apps/backend/internal/deadline"
)

type createDeadlineRequest struct {
	SessionID       int64  `json:"session_id"`
	GroupID         string `json:"group_id"`
	DeadlineMinutes int    `json:"deadline_minutes"`
}

type deadlineEnvelope struct {
	Success     bool `json:"success"`
	HasDeadline bool `json:"has_deadline"`
	deadline.Info
}

func (a *App) createDeadline(c *gin.Context) {
	var req createDeadlineRequest
	if !mustJSON(c, &req) {
		return
	}
	if req.SessionID <= 0 {
		writeError(c, http.StatusBadRequest, "session_id is required")
		return
	}
	info, err := a.deps.Deadlines.Create(c.Request.Context(), req.SessionID, strings.TrimSpace(req.GroupID), req.DeadlineMinutes)
	if err != nil {
		writeStoreError(c, err, "Failed to create deadline")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Deadline created successfully",
		"deadline": info,
	})
}

func (a *App) getDeadline(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	info, err := a.deps.Deadlines.Get(c.Request.Context(), sessionID)
	if errors.Is(err, deadline.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{
			"success":           true,
			"has_deadline":      false,
			"session_id":        sessionID,
			"deadline":          nil,
			"is_expired":        false,
			"remaining_seconds": -1,
		})
		return
	}
	if err != nil {
		writeStoreError(c, err, "Failed to load deadline")
		return
	}
	c.JSON(http.StatusOK, deadlineEnvelope{Success: true, HasDeadline: true, Info: info})
}

func (a *App) checkDeadline(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	expired, err := a.deps.Deadlines.Expired(c.Request.Context(), sessionID)
	if err != nil {
		writeStoreError(c, err, "Failed to check deadline")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"is_expired": expired,
		"can_vote":   !expired,
	})
}

// ensureDeadline is called by the poll page on load so a session always has a deadline.
func (a *App) ensureDeadline(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	minutes, ok := optionalIntQuery(c, "deadline_minutes")
	if !ok {
		return
	}
	var reset *bool
	if raw := strings.TrimSpace(c.Query("reset_if_expired")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "Invalid reset_if_expired")
			return
		}
		reset = &v
	}
	m := 0
	if minutes != nil {
		m = *minutes
	}
	info, err := a.deps.Deadlines.Ensure(c.Request.Context(), sessionID, strings.TrimSpace(c.Query("group_id")), m, reset)
	if err != nil {
		writeStoreError(c, err, "Failed to ensure deadline")
		return
	}
	c.JSON(http.StatusOK, deadlineEnvelope{Success: true, HasDeadline: true, Info: info})
}

func (a *App) deleteDeadline(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	deleted, err := a.deps.Deadlines.Delete(c.Request.Context(), sessionID)
	if err != nil {
		writeStoreError(c, err, "Failed to delete deadline")
		return
	}
	message := "No deadline found"
	if deleted {
		message = "Deadline removed"
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"deleted": deleted,
		"message": message,
	})
}
