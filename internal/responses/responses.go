// Package responses stores the slot selections members submit from the poll page.
package responses

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrDeadlinePassed = errors.New("voting deadline has passed")
	ErrInvalidInput   = errors.New("invalid vote submission")
)

type Item struct {
	Date      string  `json:"date"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	IsLate    bool    `json:"is_late"`
}

type Response struct {
	ID           int64     `json:"id"`
	SessionID    *int64    `json:"session_id"`
	LineUserID   string    `json:"line_user_id"`
	SelectedDate string    `json:"selected_date"`
	StartTime    *string   `json:"start_time"`
	EndTime      *string   `json:"end_time"`
	IsLate       bool      `json:"is_late"`
	CreatedAt    time.Time `json:"created_at"`
}

type Filter struct {
	LineUserID string
	SessionID  *int64
}

type Voter struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// Selection is one submitted slot joined with the voter's profile name.
type Selection struct {
	SelectedDate string
	StartTime    *string
	EndTime      *string
	LineUserID   string
	DisplayName  string
}

type Summary struct {
	TotalVoters    int                `json:"total_voters"`
	VoteCounts     map[string]int     `json:"vote_counts"`
	VotersByOption map[string][]Voter `json:"voters_by_option"`
}

type SlotResult struct {
	DateLabel string   `json:"date_label"`
	StartTime *string  `json:"start_time"`
	EndTime   *string  `json:"end_time"`
	VoteCount int      `json:"vote_count"`
	Voters    []string `json:"voters"`
}

type Store interface {
	Replace(ctx context.Context, lineUserID string, sessionID *int64, items []Item) (int, error)
	List(ctx context.Context, filter Filter) ([]Response, error)
	Selections(ctx context.Context, sessionID *int64) ([]Selection, error)
	DeleteUser(ctx context.Context, lineUserID string, sessionID *int64) (int64, error)
}

// DeadlineChecker reports whether a session no longer accepts submissions.
type DeadlineChecker interface {
	Expired(ctx context.Context, sessionID int64) (bool, error)
}

type Service struct {
	store     Store
	deadlines DeadlineChecker
}

func NewService(store Store, deadlines DeadlineChecker) *Service {
	return &Service{store: store, deadlines: deadlines}
}

// Submit replaces the user's selections for the session.
func (s *Service) Submit(ctx context.Context, lineUserID string, sessionID *int64, items []Item) (int, error) {
	lineUserID = strings.TrimSpace(lineUserID)
	if lineUserID == "" {
		return 0, fmt.Errorf("%w: line_user_id is required", ErrInvalidInput)
	}
	if len(items) == 0 {
		return 0, fmt.Errorf("%w: at least one vote is required", ErrInvalidInput)
	}
	for i := range items {
		items[i].StartTime = normalizeTimestamp(items[i].StartTime)
		items[i].EndTime = normalizeTimestamp(items[i].EndTime)
	}
	if sessionID != nil && s.deadlines != nil {
		expired, err := s.deadlines.Expired(ctx, *sessionID)
		if err != nil {
			return 0, fmt.Errorf("check deadline: %w", err)
		}
		if expired {
			return 0, ErrDeadlinePassed
		}
	}
	return s.store.Replace(ctx, lineUserID, sessionID, items)
}

func (s *Service) List(ctx context.Context, filter Filter) ([]Response, error) {
	return s.store.List(ctx, filter)
}

func (s *Service) Delete(ctx context.Context, lineUserID string, sessionID *int64) (int64, error) {
	return s.store.DeleteUser(ctx, lineUserID, sessionID)
}

func (s *Service) Summary(ctx context.Context, sessionID *int64) (Summary, error) {
	rows, err := s.store.Selections(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(rows), nil
}

// Voters lists distinct voters of a session in first-seen order.
func (s *Service) Voters(ctx context.Context, sessionID int64) ([]Voter, error) {
	rows, err := s.store.Selections(ctx, &sessionID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	out := make([]Voter, 0)
	for _, r := range rows {
		if _, ok := seen[r.LineUserID]; ok {
			continue
		}
		seen[r.LineUserID] = struct{}{}
		out = append(out, voterOf(r))
	}
	return out, nil
}

func (s *Service) Results(ctx context.Context, sessionID int64) ([]SlotResult, error) {
	rows, err := s.store.Selections(ctx, &sessionID)
	if err != nil {
		return nil, err
	}
	return RankSlots(rows), nil
}

func voterOf(r Selection) Voter {
	name := strings.TrimSpace(r.DisplayName)
	if name == "" {
		id := r.LineUserID
		if len(id) > 4 {
			id = id[len(id)-4:]
		}
		name = "ユーザー" + id
	}
	return Voter{UserID: r.LineUserID, DisplayName: name}
}

func Summarize(rows []Selection) Summary {
	out := Summary{
		VoteCounts:     make(map[string]int),
		VotersByOption: make(map[string][]Voter),
	}
	voters := make(map[string]struct{})
	for _, r := range rows {
		voters[r.LineUserID] = struct{}{}
		out.VoteCounts[r.SelectedDate]++
		out.VotersByOption[r.SelectedDate] = append(out.VotersByOption[r.SelectedDate], voterOf(r))
	}
	out.TotalVoters = len(voters)
	return out
}

// RankSlots groups selections by slot, most votes first, earlier start breaking ties.
func RankSlots(rows []Selection) []SlotResult {
	type key struct{ label, start, end string }
	index := make(map[key]int)
	out := make([]SlotResult, 0)
	for _, r := range rows {
		k := key{r.SelectedDate, deref(r.StartTime), deref(r.EndTime)}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, SlotResult{DateLabel: r.SelectedDate, StartTime: r.StartTime, EndTime: r.EndTime})
		}
		out[i].VoteCount++
		out[i].Voters = append(out[i].Voters, voterOf(r).DisplayName)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].VoteCount != out[j].VoteCount {
			return out[i].VoteCount > out[j].VoteCount
		}
		return deref(out[i].StartTime) < deref(out[j].StartTime)
	})
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// normalizeTimestamp keeps parseable ISO timestamps as RFC 3339 and drops the rest.
func normalizeTimestamp(raw *string) *string {
	if raw == nil {
		return nil
	}
	v := strings.TrimSpace(*raw)
	if v == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		formatted := t.Format(time.RFC3339)
		return &formatted
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, v); err == nil {
			formatted := t.Format("2006-01-02T15:04:05")
			return &formatted
		}
	}
	return nil
}
