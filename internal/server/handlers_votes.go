package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nomikai/apps/backend/internal/responses"
)

type submitVotesRequest struct {
	LineUserID string           `json:"line_user_id"`
	SessionID  *int64           `json:"session_id"`
	Votes      []responses.Item `json:"votes"`
}

type summaryEnvelope struct {
	Success bool `json:"success"`
	responses.Summary
}

func (a *App) submitVotes(c *gin.Context) {
	var req submitVotesRequest
	if !mustJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.LineUserID) == "" {
		writeError(c, http.StatusBadRequest, "line_user_id is required")
		return
	}
	if len(req.Votes) == 0 {
		writeError(c, http.StatusBadRequest, "At least one vote is required")
		return
	}

	saved, err := a.deps.Responses.Submit(c.Request.Context(), req.LineUserID, req.SessionID, req.Votes)
	switch {
	case errors.Is(err, responses.ErrDeadlinePassed):
		writeError(c, http.StatusForbidden, "Voting deadline has passed")
		return
	case errors.Is(err, responses.ErrInvalidInput):
		writeError(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeStoreError(c, err, "Failed to save votes")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "Votes saved successfully",
		"saved_count": saved,
	})
}

func (a *App) listVotes(c *gin.Context) {
	sessionID, ok := optionalInt64Query(c, "session_id")
	if !ok {
		return
	}
	votes, err := a.deps.Responses.List(c.Request.Context(), responses.Filter{
		LineUserID: strings.TrimSpace(c.Query("line_user_id")),
		SessionID:  sessionID,
	})
	if err != nil {
		writeStoreError(c, err, "Failed to load votes")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"votes":   votes,
		"count":   len(votes),
	})
}

func (a *App) voteSummary(c *gin.Context) {
	sessionID, ok := optionalInt64Query(c, "session_id")
	if !ok {
		return
	}
	summary, err := a.deps.Responses.Summary(c.Request.Context(), sessionID)
	if err != nil {
		writeStoreError(c, err, "Failed to summarize votes")
		return
	}
	c.JSON(http.StatusOK, summaryEnvelope{Success: true, Summary: summary})
}

func (a *App) deleteVotes(c *gin.Context) {
	sessionID, ok := optionalInt64Query(c, "session_id")
	if !ok {
		return
	}
	deleted, err := a.deps.Responses.Delete(c.Request.Context(), c.Param("line_user_id"), sessionID)
	if err != nil {
		writeStoreError(c, err, "Failed to delete votes")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       fmt.Sprintf("Deleted %d vote(s)", deleted),
		"deleted_count": deleted,
	})
}

func (a *App) checkCompletion(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	expected, ok := optionalIntQuery(c, "expected_voters")
	if !ok {
		return
	}
	status, err := a.deps.Completion.Check(c.Request.Context(), sessionID, expected)
	if err != nil {
		writeStoreError(c, err, "Failed to check voting status")
		return
	}
	c.JSON(http.StatusOK, status)
}

// completeVoting searches shops with the gathered conditions and announces
// the result to the session's conversation.
func (a *App) completeVoting(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	expected, ok := optionalIntQuery(c, "expected_voters")
	if !ok {
		return
	}
	outcome, err := a.deps.Completion.Complete(c.Request.Context(), sessionID, expected)
	if err != nil {
		writeStoreError(c, err, "Failed to complete voting")
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (a *App) votingResults(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	results, err := a.deps.Completion.Results(c.Request.Context(), sessionID)
	if err != nil {
		writeStoreError(c, err, "Failed to load voting results")
		return
	}
	c.JSON(http.StatusOK, results)
}
