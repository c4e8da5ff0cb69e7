// Package user stores LINE members and their Google Calendar connection.
package user

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("user not found")

type User struct {
	ID                int64      `json:"id"`
	LineUserID        string     `json:"line_user_id"`
	DisplayName       string     `json:"line_display_name"`
	PictureURL        string     `json:"line_picture_url"`
	GoogleID          string     `json:"-"`
	Email             *string    `json:"email"`
	AccessToken       string     `json:"-"`
	RefreshToken      string     `json:"-"`
	TokenExpiry       *time.Time `json:"-"`
	CalendarConnected bool       `json:"calendar_connected"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type Profile struct {
	LineUserID  string
	DisplayName string
	PictureURL  string
}

// Update applies only the non-nil fields.
type Update struct {
	DisplayName       *string `json:"line_display_name"`
	PictureURL        *string `json:"line_picture_url"`
	Email             *string `json:"email"`
	CalendarConnected *bool   `json:"calendar_connected"`
}

type GoogleTokens struct {
	GoogleID     string
	Email        string
	AccessToken  string
	RefreshToken string
	Expiry       *time.Time
}

type Store interface {
	Get(ctx context.Context, lineUserID string) (User, error)
	// Upsert creates the user or refreshes its LINE profile.
	Upsert(ctx context.Context, p Profile) (User, error)
	Update(ctx context.Context, lineUserID string, u Update) (User, error)
	Delete(ctx context.Context, lineUserID string) error
	// SaveGoogleTokens keeps the stored refresh token when the new one is empty.
	SaveGoogleTokens(ctx context.Context, lineUserID string, t GoogleTokens) (User, error)
	DisconnectGoogle(ctx context.Context, lineUserID string) error
	// Connected returns the users among lineUserIDs with a connected calendar.
	Connected(ctx context.Context, lineUserIDs []string) ([]User, error)
}

type CalendarStatus struct {
	IsConnected bool    `json:"isConnected"`
	Email       *string `json:"email"`
	Message     string  `json:"message"`
}

func StatusOf(u User, err error) (CalendarStatus, error) {
	if errors.Is(err, ErrNotFound) {
		return CalendarStatus{Message: "User not found"}, nil
	}
	if err != nil {
		return CalendarStatus{}, err
	}
	msg := "Not connected"
	if u.CalendarConnected {
		msg = "Connected"
	}
	return CalendarStatus{IsConnected: u.CalendarConnected, Email: u.Email, Message: msg}, nil
}
