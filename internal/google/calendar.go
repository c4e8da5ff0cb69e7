package google

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	calendarapi "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"nomikai/apps/backend/internal/poll"
	"nomikai/apps/backend/internal/user"
)

var (
	ErrAlreadyRegistered = errors.New("calendar events already created for this session")
	ErrNotConfirmed      = errors.New("session date/time not yet finalized")
)

const primaryCalendar = "primary"

// SessionReader is the slice of poll storage the calendar flow needs.
type SessionReader interface {
	GetSession(ctx context.Context, sessionID int64) (poll.Session, error)
	ListOptions(ctx context.Context, sessionID int64) ([]poll.Option, error)
	MarkEventRegistered(ctx context.Context, sessionID int64) (bool, error)
}

// VoterSource lists everyone who took part in a session.
type VoterSource interface {
	SessionVoters(ctx context.Context, sessionID int64) ([]string, error)
}

type TokenSources interface {
	TokenSource(ctx context.Context, u user.User) oauth2.TokenSource
}

type EventInserter interface {
	Insert(ctx context.Context, ts oauth2.TokenSource, calendarID string, event *calendarapi.Event) (*calendarapi.Event, error)
}

type Event struct {
	ID            int64     `json:"id"`
	SessionID     int64     `json:"session_id"`
	LineUserID    string    `json:"line_user_id"`
	DisplayName   string    `json:"display_name"`
	GoogleEventID string    `json:"google_event_id"`
	CalendarID    string    `json:"calendar_id"`
	HTMLLink      string    `json:"html_link"`
	CreatedAt     time.Time `json:"created_at"`
}

type EventStore interface {
	Save(ctx context.Context, e Event) (int64, error)
	ListBySession(ctx context.Context, sessionID int64) ([]Event, error)
}

type RestaurantRequest struct {
	RestaurantName   string  `json:"restaurant_name"`
	RestaurantURL    *string `json:"restaurant_url"`
	ReservationNotes *string `json:"reservation_notes"`
}

type EventResult struct {
	LineUserID    string `json:"line_user_id"`
	DisplayName   string `json:"display_name"`
	Success       bool   `json:"success"`
	GoogleEventID string `json:"google_event_id,omitempty"`
	DBEventID     int64  `json:"db_event_id,omitempty"`
	EventLink     string `json:"event_link,omitempty"`
	Error         string `json:"error,omitempty"`
}

type CreationResult struct {
	Success         bool          `json:"success"`
	Message         string        `json:"message"`
	CreatedEvents   []EventResult `json:"created_events"`
	TotalUsers      int           `json:"total_users"`
	SuccessfulCount int           `json:"successful_count"`
}

type CalendarConfig struct {
	Sessions SessionReader
	Voters   VoterSource
	Users    user.Store
	Tokens   TokenSources
	Events   EventStore
	Inserter EventInserter
	Location *time.Location
}

type Calendar struct {
	sessions SessionReader
	voters   VoterSource
	users    user.Store
	tokens   TokenSources
	events   EventStore
	inserter EventInserter
	loc      *time.Location
}

func NewCalendar(cfg CalendarConfig) *Calendar {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	inserter := cfg.Inserter
	if inserter == nil {
		inserter = NewAPIInserter()
	}
	return &Calendar{
		sessions: cfg.Sessions,
		voters:   cfg.Voters,
		users:    cfg.Users,
		tokens:   cfg.Tokens,
		events:   cfg.Events,
		inserter: inserter,
		loc:      loc,
	}
}

// CreateWithRestaurant puts the confirmed slot on every connected voter's
// primary calendar. The session is marked registered before any insert so a
// concurrent request cannot create duplicates.
func (c *Calendar) CreateWithRestaurant(ctx context.Context, sessionID int64, req RestaurantRequest) (CreationResult, error) {
	session, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return CreationResult{}, err
	}
	if session.EventRegistered {
		return CreationResult{}, ErrAlreadyRegistered
	}
	if session.FinalOptionID == nil {
		return CreationResult{}, ErrNotConfirmed
	}
	options, err := c.sessions.ListOptions(ctx, sessionID)
	if err != nil {
		return CreationResult{}, fmt.Errorf("list options: %w", err)
	}
	var slot *poll.Option
	for i := range options {
		if options[i].ID == *session.FinalOptionID {
			slot = &options[i]
			break
		}
	}
	if slot == nil {
		return CreationResult{}, ErrNotConfirmed
	}

	first, err := c.sessions.MarkEventRegistered(ctx, sessionID)
	if err != nil {
		return CreationResult{}, fmt.Errorf("mark registered: %w", err)
	}
	if !first {
		return CreationResult{}, ErrAlreadyRegistered
	}

	voterIDs, err := c.voters.SessionVoters(ctx, sessionID)
	if err != nil {
		return CreationResult{}, fmt.Errorf("list voters: %w", err)
	}
	connected, err := c.users.Connected(ctx, voterIDs)
	if err != nil {
		return CreationResult{}, fmt.Errorf("list connected users: %w", err)
	}
	if len(connected) == 0 {
		return CreationResult{
			Success:       false,
			Message:       "No users with Google Calendar connected",
			CreatedEvents: []EventResult{},
		}, nil
	}

	event := c.buildEvent(session, *slot, req)
	results := make([]EventResult, 0, len(connected))
	successful := 0
	for _, u := range connected {
		result := c.createFor(ctx, sessionID, u, event)
		if result.Success {
			successful++
		}
		results = append(results, result)
	}
	return CreationResult{
		Success:         successful > 0,
		Message:         fmt.Sprintf("Created %d/%d calendar events", successful, len(connected)),
		CreatedEvents:   results,
		TotalUsers:      len(connected),
		SuccessfulCount: successful,
	}, nil
}

func (c *Calendar) buildEvent(session poll.Session, slot poll.Option, req RestaurantRequest) *calendarapi.Event {
	var description strings.Builder
	description.WriteString("session_id:" + strconv.FormatInt(session.ID, 10) + "\n\n")
	if req.RestaurantURL != nil && strings.TrimSpace(*req.RestaurantURL) != "" {
		description.WriteString(strings.TrimSpace(*req.RestaurantURL) + "\n")
	}
	if req.ReservationNotes != nil {
		description.WriteString(strings.TrimSpace(*req.ReservationNotes))
	}
	summary := strings.TrimSpace(session.Topic)
	if summary == "" {
		summary = "飲み会"
	}
	return &calendarapi.Event{
		Summary:     summary,
		Location:    strings.TrimSpace(req.RestaurantName),
		Description: strings.TrimSpace(description.String()),
		Start: &calendarapi.EventDateTime{
			DateTime: slot.StartTime.In(c.loc).Format(time.RFC3339),
			TimeZone: c.loc.String(),
		},
		End: &calendarapi.EventDateTime{
			DateTime: slot.EndTime.In(c.loc).Format(time.RFC3339),
			TimeZone: c.loc.String(),
		},
	}
}

func (c *Calendar) createFor(ctx context.Context, sessionID int64, u user.User, event *calendarapi.Event) EventResult {
	result := EventResult{LineUserID: u.LineUserID, DisplayName: u.DisplayName}
	if result.DisplayName == "" {
		result.DisplayName = "Unknown"
	}
	created, err := c.inserter.Insert(ctx, c.tokens.TokenSource(ctx, u), primaryCalendar, event)
	if err != nil {
		log.Printf("calendar insert failed session_id=%d line_user_id=%s err=%v", sessionID, u.LineUserID, err)
		result.Error = err.Error()
		return result
	}
	id, err := c.events.Save(ctx, Event{
		SessionID:     sessionID,
		LineUserID:    u.LineUserID,
		GoogleEventID: created.Id,
		CalendarID:    primaryCalendar,
		HTMLLink:      created.HtmlLink,
	})
	if err != nil {
		log.Printf("calendar event save failed session_id=%d line_user_id=%s err=%v", sessionID, u.LineUserID, err)
		result.Error = err.Error()
		return result
	}
	result.Success = true
	result.GoogleEventID = created.Id
	result.DBEventID = id
	result.EventLink = created.HtmlLink
	return result
}

func (c *Calendar) Events(ctx context.Context, sessionID int64) ([]Event, error) {
	return c.events.ListBySession(ctx, sessionID)
}

type apiInserter struct {
	opts []option.ClientOption
}

// NewAPIInserter inserts through the Calendar v3 API; opts are appended to the token source option.
func NewAPIInserter(opts ...option.ClientOption) EventInserter {
	return apiInserter{opts: opts}
}

func (a apiInserter) Insert(ctx context.Context, ts oauth2.TokenSource, calendarID string, event *calendarapi.Event) (*calendarapi.Event, error) {
	svc, err := calendarapi.NewService(ctx, append([]option.ClientOption{option.WithTokenSource(ts)}, a.opts...)...)
	if err != nil {
		return nil, fmt.Errorf("calendar client: %w", err)
	}
	return svc.Events.Insert(calendarID, event).Context(ctx).Do()
}
