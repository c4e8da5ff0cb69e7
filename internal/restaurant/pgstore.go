package restaurant

import (
	"context"

	"github.com/jackc/pgx/v5"

	"nomikai/apps/backend/internal/db"
)

type PGStore struct {
	q db.Querier
}

func NewPGStore(q db.Querier) *PGStore {
	return &PGStore{q: q}
}

func (s *PGStore) SaveCondition(ctx context.Context, in ConditionInput) (int64, error) {
	genres := in.GenreCodes
	if genres == nil {
		genres = []string{}
	}
	var id int64
	err := s.q.QueryRow(
		ctx,
		`INSERT INTO restaurant_conditions (session_id, line_user_id, area, genre_codes, budget_code)
		 VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''))
		 ON CONFLICT (session_id, line_user_id) DO UPDATE
		 SET area = EXCLUDED.area,
		     genre_codes = EXCLUDED.genre_codes,
		     budget_code = EXCLUDED.budget_code,
		     updated_at = NOW()
		 RETURNING id`,
		in.SessionID, in.LineUserID, in.Area, genres, in.BudgetCode,
	).Scan(&id)
	return id, err
}

// Conditions lists the newest answers first.
func (s *PGStore) Conditions(ctx context.Context, sessionID int64) ([]Condition, error) {
	rows, err := s.q.Query(
		ctx,
		`SELECT id, session_id, line_user_id, area, genre_codes, budget_code, created_at, updated_at
		 FROM restaurant_conditions
		 WHERE session_id = $1
		 ORDER BY updated_at DESC, id DESC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Condition, error) {
		var c Condition
		err := row.Scan(&c.ID, &c.SessionID, &c.LineUserID, &c.Area, &c.GenreCodes, &c.BudgetCode, &c.CreatedAt, &c.UpdatedAt)
		if c.GenreCodes == nil {
			c.GenreCodes = []string{}
		}
		return c, err
	})
}

func (s *PGStore) DeleteConditions(ctx context.Context, lineUserID string, sessionID *int64) (int64, error) {
	tag, err := s.q.Exec(
		ctx,
		`DELETE FROM restaurant_conditions
		 WHERE line_user_id = $1 AND ($2::BIGINT IS NULL OR session_id = $2)`,
		lineUserID, sessionID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) SaveVote(ctx context.Context, v Vote) (int64, error) {
	var id int64
	err := s.q.QueryRow(
		ctx,
		`INSERT INTO restaurant_votes (session_id, line_user_id, restaurant_id, restaurant_name)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id, line_user_id) DO UPDATE
		 SET restaurant_id = EXCLUDED.restaurant_id,
		     restaurant_name = EXCLUDED.restaurant_name,
		     updated_at = NOW()
		 RETURNING id`,
		v.SessionID, v.LineUserID, v.RestaurantID, v.RestaurantName,
	).Scan(&id)
	return id, err
}

func (s *PGStore) Tallies(ctx context.Context, sessionID int64) ([]Tally, error) {
	rows, err := s.q.Query(
		ctx,
		`SELECT restaurant_id, MAX(restaurant_name), COUNT(*)
		 FROM restaurant_votes
		 WHERE session_id = $1
		 GROUP BY restaurant_id
		 ORDER BY COUNT(*) DESC, MAX(restaurant_name) ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Tally, error) {
		var t Tally
		err := row.Scan(&t.RestaurantID, &t.RestaurantName, &t.VoteCount)
		return t, err
	})
}
