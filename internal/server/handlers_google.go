package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nomikai/apps/backend/internal/google"
	"nomikai/apps/backend/internal/poll"
	"nomikai/apps/backend/internal/user"
)

type googleCallbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

type lineUserRequest struct {
	LineUserID string `json:"lineUserId"`
}

func (a *App) googleLogin(c *gin.Context) {
	lineUserID := strings.TrimSpace(c.Query("lineUserId"))
	if lineUserID == "" {
		writeError(c, http.StatusBadRequest, "lineUserId is required")
		return
	}
	authURL, err := a.deps.Auth.AuthURL(c.Request.Context(), lineUserID)
	if errors.Is(err, google.ErrNotConfigured) {
		writeError(c, http.StatusInternalServerError, "Google OAuth credentials not configured")
		return
	}
	if err != nil {
		writeStoreError(c, err, "Failed to start Google authorization")
		return
	}
	c.JSON(http.StatusOK, gin.H{"authUrl": authURL})
}

func (a *App) googleCallback(c *gin.Context) {
	var req googleCallbackRequest
	if !mustJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.State) == "" {
		writeError(c, http.StatusBadRequest, "code and state are required")
		return
	}
	u, err := a.deps.Auth.Callback(c.Request.Context(), req.Code, req.State)
	switch {
	case errors.Is(err, google.ErrNotConfigured):
		writeError(c, http.StatusInternalServerError, "Google OAuth credentials not configured")
		return
	case errors.Is(err, google.ErrInvalidState):
		writeError(c, http.StatusBadRequest, "Invalid or expired state")
		return
	case err != nil:
		log.Printf("google callback failed err=%v", err)
		writeError(c, http.StatusBadRequest, "Failed to complete Google authorization")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"email":   u.Email,
		"message": "Google Calendar connected successfully",
	})
}

func (a *App) googleRefresh(c *gin.Context) {
	var req lineUserRequest
	if !mustJSON(c, &req) {
		return
	}
	err := a.deps.Auth.Refresh(c.Request.Context(), strings.TrimSpace(req.LineUserID))
	switch {
	case errors.Is(err, user.ErrNotFound):
		writeError(c, http.StatusNotFound, "User not found")
		return
	case errors.Is(err, google.ErrNoRefreshToken):
		writeError(c, http.StatusBadRequest, "No refresh token available. Please re-authenticate.")
		return
	case err != nil:
		writeStoreError(c, err, "Failed to refresh token")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Token refreshed successfully",
	})
}

func (a *App) googleDisconnect(c *gin.Context) {
	var req lineUserRequest
	if !mustJSON(c, &req) {
		return
	}
	if err := a.deps.Auth.Disconnect(c.Request.Context(), strings.TrimSpace(req.LineUserID)); err != nil {
		writeStoreError(c, err, "Failed to disconnect Google Calendar")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Google Calendar disconnected",
	})
}

func (a *App) calendarEvents(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	events, err := a.deps.Calendar.Events(c.Request.Context(), sessionID)
	if err != nil {
		writeStoreError(c, err, "Failed to load calendar events")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"events":     events,
		"total":      len(events),
	})
}

func (a *App) createWithRestaurant(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	var req google.RestaurantRequest
	if !mustJSON(c, &req) {
		return
	}
	req.RestaurantName = strings.TrimSpace(req.RestaurantName)
	if req.RestaurantName == "" {
		writeError(c, http.StatusBadRequest, "restaurant_name is required")
		return
	}

	result, err := a.deps.Calendar.CreateWithRestaurant(c.Request.Context(), sessionID, req)
	switch {
	case errors.Is(err, poll.ErrSessionNotFound):
		writeError(c, http.StatusNotFound, "Session not found")
		return
	case errors.Is(err, google.ErrAlreadyRegistered):
		writeError(c, http.StatusBadRequest, "Calendar events already created for this session")
		return
	case errors.Is(err, google.ErrNotConfirmed):
		writeError(c, http.StatusBadRequest, "Session date/time not yet finalized")
		return
	case err != nil:
		writeStoreError(c, err, "Failed to create calendar events")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"session_id":        sessionID,
		"restaurant_name":   req.RestaurantName,
		"restaurant_url":    req.RestaurantURL,
		"calendar_creation": result,
		"message":           fmt.Sprintf("%sで予約確定！カレンダーに自動登録しました。", req.RestaurantName),
	})
}
