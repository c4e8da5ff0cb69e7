package responses

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nomikai/apps/backend/internal/db"
)

type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Replace swaps the user's selections in one transaction.
func (s *PGStore) Replace(ctx context.Context, lineUserID string, sessionID *int64, items []Item) (int, error) {
	err := db.WithTx(ctx, s.pool, func(q db.Querier) error {
		if _, err := q.Exec(
			ctx,
			`DELETE FROM poll_responses
			 WHERE line_user_id = $1 AND session_id IS NOT DISTINCT FROM $2`,
			lineUserID, sessionID,
		); err != nil {
			return fmt.Errorf("clear responses: %w", err)
		}
		for _, item := range items {
			if _, err := q.Exec(
				ctx,
				`INSERT INTO poll_responses (line_user_id, session_id, selected_date, start_time, end_time, is_late)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				lineUserID, sessionID, item.Date, item.StartTime, item.EndTime, item.IsLate,
			); err != nil {
				return fmt.Errorf("insert response: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (s *PGStore) List(ctx context.Context, filter Filter) ([]Response, error) {
	where := []string{"TRUE"}
	args := []any{}
	if filter.LineUserID != "" {
		args = append(args, filter.LineUserID)
		where = append(where, fmt.Sprintf("line_user_id = $%d", len(args)))
	}
	if filter.SessionID != nil {
		args = append(args, *filter.SessionID)
		where = append(where, fmt.Sprintf("session_id = $%d", len(args)))
	}
	rows, err := s.pool.Query(
		ctx,
		`SELECT id, session_id, line_user_id, selected_date, start_time, end_time, is_late, created_at
		 FROM poll_responses
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY created_at DESC, id DESC`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Response, error) {
		var r Response
		err := row.Scan(&r.ID, &r.SessionID, &r.LineUserID, &r.SelectedDate, &r.StartTime, &r.EndTime, &r.IsLate, &r.CreatedAt)
		return r, err
	})
}

func (s *PGStore) Selections(ctx context.Context, sessionID *int64) ([]Selection, error) {
	rows, err := s.pool.Query(
		ctx,
		`SELECT pr.selected_date, pr.start_time, pr.end_time, pr.line_user_id, COALESCE(u.display_name, '')
		 FROM poll_responses pr
		 LEFT JOIN users u ON u.line_user_id = pr.line_user_id
		 WHERE $1::BIGINT IS NULL OR pr.session_id = $1
		 ORDER BY pr.id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Selection, error) {
		var sel Selection
		err := row.Scan(&sel.SelectedDate, &sel.StartTime, &sel.EndTime, &sel.LineUserID, &sel.DisplayName)
		return sel, err
	})
}

func (s *PGStore) DeleteUser(ctx context.Context, lineUserID string, sessionID *int64) (int64, error) {
	tag, err := s.pool.Exec(
		ctx,
		`DELETE FROM poll_responses
		 WHERE line_user_id = $1 AND ($2::BIGINT IS NULL OR session_id = $2)`,
		lineUserID, sessionID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
