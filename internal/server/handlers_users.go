package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nomikai/apps/backend/internal/user"
)

type linkLineUserRequest struct {
	LineUserID  string `json:"line_user_id"`
	DisplayName string `json:"display_name"`
	PictureURL  string `json:"picture_url"`
}

// linkLineUser registers the LIFF user so later calendar and vote lookups
// can show a display name.
func (a *App) linkLineUser(c *gin.Context) {
	var req linkLineUserRequest
	if !mustJSON(c, &req) {
		return
	}
	lineUserID := strings.TrimSpace(req.LineUserID)
	if lineUserID == "" {
		writeError(c, http.StatusBadRequest, "line_user_id is required")
		return
	}
	u, err := a.deps.Users.Upsert(c.Request.Context(), user.Profile{
		LineUserID:  lineUserID,
		DisplayName: strings.TrimSpace(req.DisplayName),
		PictureURL:  strings.TrimSpace(req.PictureURL),
	})
	if err != nil {
		writeStoreError(c, err, "Failed to link LINE user")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    u,
	})
}

func (a *App) getUser(c *gin.Context) {
	u, err := a.deps.Users.Get(c.Request.Context(), c.Param("line_user_id"))
	if err != nil {
		writeStoreError(c, err, "Failed to load user")
		return
	}
	c.JSON(http.StatusOK, u)
}

func (a *App) updateUser(c *gin.Context) {
	var req user.Update
	if !mustJSON(c, &req) {
		return
	}
	u, err := a.deps.Users.Update(c.Request.Context(), c.Param("line_user_id"), req)
	if err != nil {
		writeStoreError(c, err, "Failed to update user")
		return
	}
	c.JSON(http.StatusOK, u)
}

func (a *App) deleteUser(c *gin.Context) {
	if err := a.deps.Users.Delete(c.Request.Context(), c.Param("line_user_id")); err != nil {
		writeStoreError(c, err, "Failed to delete user")
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *App) calendarStatus(c *gin.Context) {
	status, err := user.StatusOf(a.deps.Users.Get(c.Request.Context(), c.Param("line_user_id")))
	if err != nil {
		writeStoreError(c, err, "Failed to load calendar status")
		return
	}
	c.JSON(http.StatusOK, status)
}
