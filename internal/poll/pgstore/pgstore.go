// Package pgstore is the PostgreSQL implementation of poll.Store.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nomikai/apps/backend/internal/db"
	"nomikai/apps/backend/internal/poll"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const sessionColumns = `id, conversation_id, topic, kind, state, COALESCE(created_by, ''), settings,
	final_option_id, event_registered, created_at, updated_at`

func scanSession(row pgx.Row) (poll.Session, error) {
	var (
		s           poll.Session
		kind, state string
		settingsRaw []byte
	)
	err := row.Scan(
		&s.ID,
		&s.ConversationID,
		&s.Topic,
		&kind,
		&state,
		&s.CreatedBy,
		&settingsRaw,
		&s.FinalOptionID,
		&s.EventRegistered,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return poll.Session{}, poll.ErrSessionNotFound
	}
	if err != nil {
		return poll.Session{}, err
	}
	s.Kind = poll.Kind(kind)
	s.State = poll.State(state)
	s.Settings = poll.DefaultSettings()
	if len(settingsRaw) > 0 {
		if err := json.Unmarshal(settingsRaw, &s.Settings); err != nil {
			return poll.Session{}, fmt.Errorf("decode settings for session %d: %w", s.ID, err)
		}
	}
	return s, nil
}

func (s *Store) ActiveSession(ctx context.Context, conversationID string) (poll.Session, error) {
	return scanSession(s.pool.QueryRow(
		ctx,
		`SELECT `+sessionColumns+`
		 FROM poll_sessions
		 WHERE conversation_id = $1 AND state <> 'closed'
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		conversationID,
	))
}

func (s *Store) LatestSession(ctx context.Context, conversationID string, kind poll.Kind) (poll.Session, error) {
	return scanSession(s.pool.QueryRow(
		ctx,
		`SELECT `+sessionColumns+`
		 FROM poll_sessions
		 WHERE conversation_id = $1 AND kind = $2
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		conversationID, string(kind),
	))
}

func (s *Store) GetSession(ctx context.Context, sessionID int64) (poll.Session, error) {
	return scanSession(s.pool.QueryRow(
		ctx,
		`SELECT `+sessionColumns+` FROM poll_sessions WHERE id = $1`,
		sessionID,
	))
}

func (s *Store) CreateSession(ctx context.Context, input poll.CreateSessionInput) (poll.Session, error) {
	settings, err := json.Marshal(input.Settings)
	if err != nil {
		return poll.Session{}, fmt.Errorf("encode settings: %w", err)
	}
	return scanSession(s.pool.QueryRow(
		ctx,
		`INSERT INTO poll_sessions (conversation_id, topic, kind, state, created_by, settings)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		 RETURNING `+sessionColumns,
		input.ConversationID,
		input.Topic,
		string(input.Kind),
		string(input.State),
		input.CreatedBy,
		settings,
	))
}

func (s *Store) UpdateSettings(ctx context.Context, sessionID int64, settings poll.Settings) error {
	encoded, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return s.execOne(ctx,
		`UPDATE poll_sessions SET settings = $2, updated_at = NOW() WHERE id = $1`,
		sessionID, encoded,
	)
}

func (s *Store) UpdateState(ctx context.Context, sessionID int64, state poll.State) error {
	return s.execOne(ctx,
		`UPDATE poll_sessions SET state = $2, updated_at = NOW() WHERE id = $1`,
		sessionID, string(state),
	)
}

func (s *Store) CloseSession(ctx context.Context, sessionID int64, finalOptionID *int64) error {
	return s.execOne(ctx,
		`UPDATE poll_sessions
		 SET state = 'closed', final_option_id = $2, updated_at = NOW()
		 WHERE id = $1`,
		sessionID, finalOptionID,
	)
}

// MarkEventRegistered flips event_registered once; false means it was already set.
func (s *Store) MarkEventRegistered(ctx context.Context, sessionID int64) (bool, error) {
	var id int64
	err := s.pool.QueryRow(
		ctx,
		`UPDATE poll_sessions SET event_registered = TRUE, updated_at = NOW()
		 WHERE id = $1 AND NOT event_registered
		 RETURNING id`,
		sessionID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.GetSession(ctx, sessionID); getErr != nil {
			return false, getErr
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return poll.ErrSessionNotFound
	}
	return nil
}

func (s *Store) ListOptions(ctx context.Context, sessionID int64) ([]poll.Option, error) {
	rows, err := s.pool.Query(
		ctx,
		`SELECT o.id, o.session_id, o.start_time, o.end_time, o.label, o.description,
		        COALESCE(o.created_by, ''), COUNT(v.id)
		 FROM poll_options o
		 LEFT JOIN poll_votes v ON v.option_id = o.id
		 WHERE o.session_id = $1
		 GROUP BY o.id
		 ORDER BY o.start_time ASC, o.id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]poll.Option, 0)
	for rows.Next() {
		var o poll.Option
		if err := rows.Scan(
			&o.ID,
			&o.SessionID,
			&o.StartTime,
			&o.EndTime,
			&o.Label,
			&o.Description,
			&o.CreatedBy,
			&o.Votes,
		); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) AddOption(ctx context.Context, sessionID int64, option poll.NewOption) (poll.Option, error) {
	o, err := insertOption(ctx, s.pool, sessionID, option)
	if err != nil && db.IsForeignKeyViolation(err) {
		return poll.Option{}, poll.ErrSessionNotFound
	}
	return o, err
}

func insertOption(ctx context.Context, q db.Querier, sessionID int64, option poll.NewOption) (poll.Option, error) {
	o := poll.Option{
		SessionID:   sessionID,
		StartTime:   option.StartTime,
		EndTime:     option.EndTime,
		Label:       option.Label,
		Description: option.Description,
		CreatedBy:   option.CreatedBy,
	}
	err := q.QueryRow(
		ctx,
		`INSERT INTO poll_options (session_id, start_time, end_time, label, description, created_by)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		 RETURNING id`,
		sessionID,
		option.StartTime,
		option.EndTime,
		option.Label,
		option.Description,
		option.CreatedBy,
	).Scan(&o.ID)
	return o, err
}

func (s *Store) DeleteOption(ctx context.Context, sessionID, optionID int64) error {
	tag, err := s.pool.Exec(
		ctx,
		`DELETE FROM poll_options WHERE id = $1 AND session_id = $2`,
		optionID, sessionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return poll.ErrOptionNotFound
	}
	return nil
}

// ReplaceOptions clears and regenerates options in one transaction.
func (s *Store) ReplaceOptions(ctx context.Context, sessionID int64, options []poll.NewOption) error {
	return db.WithTx(ctx, s.pool, func(q db.Querier) error {
		return replaceOptions(ctx, q, sessionID, options)
	})
}

// StartVoting regenerates options and flips the session to voting in the same transaction.
func (s *Store) StartVoting(ctx context.Context, sessionID int64, options []poll.NewOption) error {
	return db.WithTx(ctx, s.pool, func(q db.Querier) error {
		if err := replaceOptions(ctx, q, sessionID, options); err != nil {
			return err
		}
		if _, err := q.Exec(
			ctx,
			`UPDATE poll_sessions SET state = $2, updated_at = NOW() WHERE id = $1`,
			sessionID, string(poll.StateVoting),
		); err != nil {
			return fmt.Errorf("update state: %w", err)
		}
		return nil
	})
}

func replaceOptions(ctx context.Context, q db.Querier, sessionID int64, options []poll.NewOption) error {
	var id int64
	err := q.QueryRow(ctx, `SELECT id FROM poll_sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return poll.ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	if _, err := q.Exec(ctx, `DELETE FROM poll_options WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear options: %w", err)
	}
	for _, option := range options {
		if _, err := insertOption(ctx, q, sessionID, option); err != nil {
			return fmt.Errorf("insert option: %w", err)
		}
	}
	return nil
}

// RecordVote locks the session row so a concurrent close cannot slip in between
// the state check and the upsert.
func (s *Store) RecordVote(ctx context.Context, sessionID, optionID int64, lineUserID string) error {
	return db.WithTx(ctx, s.pool, func(q db.Querier) error {
		var state string
		err := q.QueryRow(ctx, `SELECT state FROM poll_sessions WHERE id = $1 FOR SHARE`, sessionID).Scan(&state)
		if errors.Is(err, pgx.ErrNoRows) {
			return poll.ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		if poll.State(state) == poll.StateClosed {
			return poll.ErrSessionClosed
		}

		var exists bool
		if err := q.QueryRow(
			ctx,
			`SELECT EXISTS (SELECT 1 FROM poll_options WHERE id = $1 AND session_id = $2)`,
			optionID, sessionID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return poll.ErrOptionNotFound
		}

		_, err = q.Exec(
			ctx,
			`INSERT INTO poll_votes (session_id, option_id, line_user_id)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (session_id, line_user_id)
			 DO UPDATE SET option_id = EXCLUDED.option_id, updated_at = NOW()`,
			sessionID, optionID, lineUserID,
		)
		return err
	})
}

func (s *Store) ListVoters(ctx context.Context, sessionID int64) ([]string, error) {
	rows, err := s.pool.Query(
		ctx,
		`SELECT line_user_id FROM poll_votes WHERE session_id = $1 ORDER BY line_user_id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
