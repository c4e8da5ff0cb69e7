package google

import (
	"context"

	"github.com/jackc/pgx/v5"

	"nomikai/apps/backend/internal/db"
)

type PGEventStore struct {
	q db.Querier
}

func NewPGEventStore(q db.Querier) *PGEventStore {
	return &PGEventStore{q: q}
}

func (s *PGEventStore) Save(ctx context.Context, e Event) (int64, error) {
	var id int64
	err := s.q.QueryRow(
		ctx,
		`INSERT INTO calendar_events (session_id, line_user_id, google_event_id, calendar_id, html_link)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		e.SessionID, e.LineUserID, e.GoogleEventID, e.CalendarID, e.HTMLLink,
	).Scan(&id)
	return id, err
}

func (s *PGEventStore) ListBySession(ctx context.Context, sessionID int64) ([]Event, error) {
	rows, err := s.q.Query(
		ctx,
		`SELECT ce.id, ce.session_id, ce.line_user_id, COALESCE(u.display_name, ''),
		        ce.google_event_id, ce.calendar_id, ce.html_link, ce.created_at
		 FROM calendar_events ce
		 LEFT JOIN users u ON u.line_user_id = ce.line_user_id
		 WHERE ce.session_id = $1
		 ORDER BY ce.created_at DESC, ce.id DESC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
		var e Event
		err := row.Scan(&e.ID, &e.SessionID, &e.LineUserID, &e.DisplayName, &e.GoogleEventID, &e.CalendarID, &e.HTMLLink, &e.CreatedAt)
		return e, err
	})
}
