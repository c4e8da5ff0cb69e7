package poll

import "context"

// Store persists sessions, options and votes. Implementations must make
// ReplaceOptions and StartVoting atomic and reject votes on closed sessions with ErrSessionClosed.
type Store interface {
	ActiveSession(ctx context.Context, conversationID string) (Session, error)
	// LatestSession returns the newest session of kind in any state.
	LatestSession(ctx context.Context, conversationID string, kind Kind) (Session, error)
	GetSession(ctx context.Context, sessionID int64) (Session, error)
	CreateSession(ctx context.Context, input CreateSessionInput) (Session, error)
	UpdateSettings(ctx context.Context, sessionID int64, settings Settings) error
	UpdateState(ctx context.Context, sessionID int64, state State) error
	CloseSession(ctx context.Context, sessionID int64, finalOptionID *int64) error

	ListOptions(ctx context.Context, sessionID int64) ([]Option, error)
	AddOption(ctx context.Context, sessionID int64, option NewOption) (Option, error)
	DeleteOption(ctx context.Context, sessionID, optionID int64) error
	ReplaceOptions(ctx context.Context, sessionID int64, options []NewOption) error
	// StartVoting replaces the options and moves the session to voting atomically.
	StartVoting(ctx context.Context, sessionID int64, options []NewOption) error

	RecordVote(ctx context.Context, sessionID, optionID int64, lineUserID string) error
	ListVoters(ctx context.Context, sessionID int64) ([]string, error)
}
