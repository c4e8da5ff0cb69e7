// Package deadline tracks the voting deadline attached to each poll session.
package deadline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("deadline not found")

type Deadline struct {
	ID        int64
	SessionID int64
	GroupID   string
	At        time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Store interface {
	Upsert(ctx context.Context, sessionID int64, groupID string, at time.Time) (Deadline, error)
	Get(ctx context.Context, sessionID int64) (Deadline, error)
	Delete(ctx context.Context, sessionID int64) (bool, error)
}

// Info is a deadline evaluated against the current time.
type Info struct {
	ID               int64   `json:"id"`
	SessionID        int64   `json:"session_id"`
	GroupID          *string `json:"group_id"`
	Deadline         string  `json:"deadline"`
	IsExpired        bool    `json:"is_expired"`
	RemainingSeconds int     `json:"remaining_seconds"`
	CreatedAt        string  `json:"created_at"`
}

type Config struct {
	Store          Store
	Location       *time.Location
	DefaultMinutes int
	ResetExpired   bool
	Now            func() time.Time
}

type Service struct {
	store          Store
	loc            *time.Location
	defaultMinutes int
	resetExpired   bool
	now            func() time.Time
}

func NewService(cfg Config) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	minutes := cfg.DefaultMinutes
	if minutes <= 0 {
		minutes = 1440
	}
	return &Service{
		store:          cfg.Store,
		loc:            loc,
		defaultMinutes: minutes,
		resetExpired:   cfg.ResetExpired,
		now:            now,
	}
}

func (s *Service) info(d Deadline) Info {
	now := s.now()
	remaining := int(d.At.Sub(now).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	var group *string
	if d.GroupID != "" {
		g := d.GroupID
		group = &g
	}
	return Info{
		ID:               d.ID,
		SessionID:        d.SessionID,
		GroupID:          group,
		Deadline:         d.At.In(s.loc).Format(time.RFC3339),
		IsExpired:        d.At.Before(now),
		RemainingSeconds: remaining,
		CreatedAt:        d.CreatedAt.In(s.loc).Format(time.RFC3339),
	}
}

// Create sets (or moves) the session deadline minutes from now; minutes <= 0 uses the default.
func (s *Service) Create(ctx context.Context, sessionID int64, groupID string, minutes int) (Info, error) {
	if minutes <= 0 {
		minutes = s.defaultMinutes
	}
	at := s.now().Add(time.Duration(minutes) * time.Minute)
	d, err := s.store.Upsert(ctx, sessionID, groupID, at)
	if err != nil {
		return Info{}, fmt.Errorf("upsert deadline: %w", err)
	}
	return s.info(d), nil
}

// Get returns ErrNotFound when the session has no deadline.
func (s *Service) Get(ctx context.Context, sessionID int64) (Info, error) {
	d, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return Info{}, err
	}
	return s.info(d), nil
}

// Expired reports false for sessions without a deadline.
func (s *Service) Expired(ctx context.Context, sessionID int64) (bool, error) {
	d, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return d.At.Before(s.now()), nil
}

// Ensure returns the existing deadline, creating one when missing. Expired
// deadlines are reset when reset is true, or when reset is nil and the service
// was configured with ResetExpired.
func (s *Service) Ensure(ctx context.Context, sessionID int64, groupID string, minutes int, reset *bool) (Info, error) {
	resetExpired := s.resetExpired
	if reset != nil {
		resetExpired = *reset
	}
	d, err := s.store.Get(ctx, sessionID)
	switch {
	case errors.Is(err, ErrNotFound):
		return s.Create(ctx, sessionID, groupID, minutes)
	case err != nil:
		return Info{}, err
	}
	if resetExpired && d.At.Before(s.now()) {
		if groupID == "" {
			groupID = d.GroupID
		}
		return s.Create(ctx, sessionID, groupID, minutes)
	}
	return s.info(d), nil
}

func (s *Service) Delete(ctx context.Context, sessionID int64) (bool, error) {
	return s.store.Delete(ctx, sessionID)
}

// Schedule opens the default-length deadline for a session that just started voting.
func (s *Service) Schedule(ctx context.Context, sessionID int64, conversationID string) (time.Time, error) {
	at := s.now().Add(time.Duration(s.defaultMinutes) * time.Minute)
	d, err := s.store.Upsert(ctx, sessionID, conversationID, at)
	if err != nil {
		return time.Time{}, fmt.Errorf("upsert deadline: %w", err)
	}
	return d.At, nil
}
