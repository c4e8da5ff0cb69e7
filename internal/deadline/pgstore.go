package deadline

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"nomikai/apps/backend/internal/db"
)

type PGStore struct {
	q db.Querier
}

func NewPGStore(q db.Querier) *PGStore {
	return &PGStore{q: q}
}

const columns = `id, session_id, COALESCE(group_id, ''), deadline, created_at, updated_at`

func scan(row pgx.Row) (Deadline, error) {
	var d Deadline
	err := row.Scan(&d.ID, &d.SessionID, &d.GroupID, &d.At, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Deadline{}, ErrNotFound
	}
	return d, err
}

func (s *PGStore) Upsert(ctx context.Context, sessionID int64, groupID string, at time.Time) (Deadline, error) {
	return scan(s.q.QueryRow(
		ctx,
		`INSERT INTO event_deadlines (session_id, group_id, deadline)
		 VALUES ($1, NULLIF($2, ''), $3)
		 ON CONFLICT (session_id) DO UPDATE
		 SET group_id = COALESCE(EXCLUDED.group_id, event_deadlines.group_id),
		     deadline = EXCLUDED.deadline,
		     updated_at = NOW()
		 RETURNING `+columns,
		sessionID, groupID, at,
	))
}

func (s *PGStore) Get(ctx context.Context, sessionID int64) (Deadline, error) {
	return scan(s.q.QueryRow(
		ctx,
		`SELECT `+columns+` FROM event_deadlines WHERE session_id = $1`,
		sessionID,
	))
}

func (s *PGStore) Delete(ctx context.Context, sessionID int64) (bool, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM event_deadlines WHERE session_id = $1`, sessionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
