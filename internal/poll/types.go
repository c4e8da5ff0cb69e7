// Package poll implements the conversation-driven scheduling poll: the
// intent parser, the session state machine and the reply formatter.
package poll

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrSessionNotFound = errors.New("poll session not found")
	ErrSessionClosed   = errors.New("poll session is closed")
	ErrOptionNotFound  = errors.New("poll option not found")
)

type Kind string

const (
	KindSchedule Kind = "schedule"
	KindShop     Kind = "shop"
)

type State string

const (
	StatePendingDefaults State = "pending_defaults"
	StateVoting          State = "voting"
	StateShopVoting      State = "shop_voting"
	StateClosed          State = "closed"
)

type Session struct {
	ID              int64     `json:"id"`
	ConversationID  string    `json:"conversation_id"`
	Topic           string    `json:"topic"`
	Kind            Kind      `json:"kind"`
	State           State     `json:"state"`
	CreatedBy       string    `json:"created_by"`
	Settings        Settings  `json:"settings"`
	FinalOptionID   *int64    `json:"final_option_id,omitempty"`
	EventRegistered bool      `json:"event_registered"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (s Session) Open() bool {
	return s.State != StateClosed
}

// Option is one votable candidate. ID is stable; list positions are not.
type Option struct {
	ID          int64     `json:"id"`
	SessionID   int64     `json:"session_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Label       string    `json:"label"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	Votes       int       `json:"votes"`
}

type NewOption struct {
	StartTime   time.Time
	EndTime     time.Time
	Label       string
	Description string
	CreatedBy   string
}

type Settings struct {
	RangeDays    int    `json:"range_days"`
	WeekdayStart string `json:"weekday_start"`
	WeekdayEnd   string `json:"weekday_end"`
	WeekendStart string `json:"weekend_start"`
	WeekendEnd   string `json:"weekend_end"`
}

func DefaultSettings() Settings {
	return Settings{
		RangeDays:    14,
		WeekdayStart: "19:00",
		WeekdayEnd:   "21:00",
		WeekendStart: "18:00",
		WeekendEnd:   "20:00",
	}
}

// withDefaults fills empty or unparsable fields from DefaultSettings.
func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.RangeDays <= 0 {
		s.RangeDays = d.RangeDays
	}
	if _, ok := parseClock(s.WeekdayStart); !ok {
		s.WeekdayStart = d.WeekdayStart
	}
	if _, ok := parseClock(s.WeekdayEnd); !ok {
		s.WeekdayEnd = d.WeekdayEnd
	}
	if _, ok := parseClock(s.WeekendStart); !ok {
		s.WeekendStart = d.WeekendStart
	}
	if _, ok := parseClock(s.WeekendEnd); !ok {
		s.WeekendEnd = d.WeekendEnd
	}
	return s
}

// Clock is minutes since midnight.
type Clock int

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func parseClock(raw string) (Clock, bool) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return 0, false
	}
	h, ok := atoiBounded(parts[0], 0, 23)
	if !ok {
		return 0, false
	}
	m, ok := atoiBounded(parts[1], 0, 59)
	if !ok {
		return 0, false
	}
	return Clock(h*60 + m), true
}

type TimeWindow struct {
	Start Clock
	End   Clock
}

func (w TimeWindow) String() string {
	return w.Start.String() + "-" + w.End.String()
}

type CreateSessionInput struct {
	ConversationID string
	Topic          string
	Kind           Kind
	State          State
	CreatedBy      string
	Settings       Settings
}

type PollLink struct {
	LiffID          string
	FrontendBaseURL string
}

func (l PollLink) For(sessionID int64) string {
	if strings.TrimSpace(l.LiffID) != "" {
		return fmt.Sprintf("https://liff.line.me/%s?sessionId=%d", strings.TrimSpace(l.LiffID), sessionID)
	}
	base := strings.TrimRight(strings.TrimSpace(l.FrontendBaseURL), "/")
	return fmt.Sprintf("%s/poll/%d", base, sessionID)
}
