package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"nomikai/apps/backend/internal/completion"
	"nomikai/apps/backend/internal/config"
	"nomikai/apps/backend/internal/deadline"
	"nomikai/apps/backend/internal/google"
	"nomikai/apps/backend/internal/line"
	"nomikai/apps/backend/internal/poll"
	"nomikai/apps/backend/internal/responses"
	"nomikai/apps/backend/internal/restaurant"
	"nomikai/apps/backend/internal/user"
)

// Deps are the services behind the HTTP surface. Webhook may be nil when LINE
// is not configured; the route then answers 500.
type Deps struct {
	Deadlines   *deadline.Service
	Responses   *responses.Service
	Restaurants *restaurant.Service
	Completion  *completion.Service
	Users       user.Store
	Auth        *google.Auth
	Calendar    *google.Calendar
	Webhook     *line.Handler
}

type App struct {
	cfg  config.Config
	deps Deps
}

func New(cfg config.Config, deps Deps) *App {
	return &App{cfg: cfg, deps: deps}
}

func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSAllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Line-Signature"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", a.health)
	router.POST("/webhook/line", a.lineWebhook)

	api := router.Group(a.cfg.APIPrefix)

	api.POST("/events/deadline", a.createDeadline)
	api.GET("/events/deadline/:session_id", a.getDeadline)
	api.GET("/events/deadline/:session_id/check", a.checkDeadline)
	api.POST("/events/deadline/:session_id/ensure", a.ensureDeadline)
	api.DELETE("/events/deadline/:session_id", a.deleteDeadline)

	api.POST("/events/vote", a.submitVotes)
	api.GET("/events/votes", a.listVotes)
	api.GET("/events/votes/summary", a.voteSummary)
	api.DELETE("/events/votes/:line_user_id", a.deleteVotes)

	api.POST("/survey/conditions", a.saveConditions)
	api.GET("/survey/conditions/:session_id", a.listConditions)
	api.GET("/survey/conditions/:session_id/aggregated", a.aggregatedConditions)
	api.GET("/survey/search", a.searchShops)
	api.GET("/survey/search/session/:session_id", a.searchSessionShops)
	api.POST("/survey/shop-vote", a.submitShopVote)
	api.GET("/survey/shop-votes/:session_id", a.shopVoteTallies)

	api.GET("/votes/check/:session_id", a.checkCompletion)
	api.POST("/votes/complete/:session_id", a.completeVoting)
	api.GET("/votes/results/:session_id", a.votingResults)

	api.POST("/line/link", a.linkLineUser)
	api.GET("/users/:line_user_id", a.getUser)
	api.PUT("/users/:line_user_id", a.updateUser)
	api.DELETE("/users/:line_user_id", a.deleteUser)
	api.GET("/users/:line_user_id/calendar-status", a.calendarStatus)

	api.GET("/auth/google/login", a.googleLogin)
	api.POST("/auth/google/callback", a.googleCallback)
	api.POST("/auth/google/refresh", a.googleRefresh)
	api.POST("/auth/google/disconnect", a.googleDisconnect)

	api.GET("/calendar/sessions/:session_id/events", a.calendarEvents)
	api.POST("/calendar/sessions/:session_id/create-with-restaurant", a.createWithRestaurant)

	return router
}

func (a *App) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "nomikai-api",
	})
}

func (a *App) lineWebhook(c *gin.Context) {
	if a.deps.Webhook == nil {
		writeError(c, http.StatusInternalServerError, "LINE integration is not configured")
		return
	}
	a.deps.Webhook.Webhook(c)
}

func writeError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func mustJSON(c *gin.Context, payload any) bool {
	if err := c.ShouldBindJSON(payload); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

// sessionParam reads the :session_id path segment.
func sessionParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("session_id")), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "Invalid session_id")
		return 0, false
	}
	return id, true
}

// optionalInt64Query returns nil for a missing query value.
func optionalInt64Query(c *gin.Context, key string) (*int64, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, "Invalid "+key)
		return nil, false
	}
	return &v, true
}

func optionalIntQuery(c *gin.Context, key string) (*int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeError(c, http.StatusBadRequest, "Invalid "+key)
		return nil, false
	}
	return &v, true
}

// writeStoreError maps the sentinel errors shared by several handlers and
// answers 500 with fallback for anything else.
func writeStoreError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, poll.ErrSessionNotFound):
		writeError(c, http.StatusNotFound, "Session not found")
	case errors.Is(err, user.ErrNotFound):
		writeError(c, http.StatusNotFound, "User not found")
	default:
		log.Printf("request failed path=%s err=%v", c.FullPath(), err)
		writeError(c, http.StatusInternalServerError, fallback)
	}
}
