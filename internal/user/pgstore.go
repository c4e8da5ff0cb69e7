package user

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"nomikai/apps/backend/internal/db"
)

type PGStore struct {
	q db.Querier
}

func NewPGStore(q db.Querier) *PGStore {
	return &PGStore{q: q}
}

const columns = `id, line_user_id, display_name, picture_url, COALESCE(google_id, ''), google_email,
	COALESCE(access_token, ''), COALESCE(refresh_token, ''), token_expiry, calendar_connected, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.LineUserID,
		&u.DisplayName,
		&u.PictureURL,
		&u.GoogleID,
		&u.Email,
		&u.AccessToken,
		&u.RefreshToken,
		&u.TokenExpiry,
		&u.CalendarConnected,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *PGStore) Get(ctx context.Context, lineUserID string) (User, error) {
	return scanUser(s.q.QueryRow(ctx, `SELECT `+columns+` FROM users WHERE line_user_id = $1`, lineUserID))
}

func (s *PGStore) Upsert(ctx context.Context, p Profile) (User, error) {
	return scanUser(s.q.QueryRow(
		ctx,
		`INSERT INTO users (line_user_id, display_name, picture_url)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (line_user_id) DO UPDATE
		 SET display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), users.display_name),
		     picture_url = COALESCE(NULLIF(EXCLUDED.picture_url, ''), users.picture_url),
		     updated_at = NOW()
		 RETURNING `+columns,
		p.LineUserID, p.DisplayName, p.PictureURL,
	))
}

func (s *PGStore) Update(ctx context.Context, lineUserID string, u Update) (User, error) {
	return scanUser(s.q.QueryRow(
		ctx,
		`UPDATE users
		 SET display_name = COALESCE($2, display_name),
		     picture_url = COALESCE($3, picture_url),
		     google_email = COALESCE($4, google_email),
		     calendar_connected = COALESCE($5, calendar_connected),
		     updated_at = NOW()
		 WHERE line_user_id = $1
		 RETURNING `+columns,
		lineUserID, u.DisplayName, u.PictureURL, u.Email, u.CalendarConnected,
	))
}

func (s *PGStore) Delete(ctx context.Context, lineUserID string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM users WHERE line_user_id = $1`, lineUserID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) SaveGoogleTokens(ctx context.Context, lineUserID string, t GoogleTokens) (User, error) {
	return scanUser(s.q.QueryRow(
		ctx,
		`INSERT INTO users (line_user_id, google_id, google_email, access_token, refresh_token, token_expiry, calendar_connected)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, NULLIF($5, ''), $6, TRUE)
		 ON CONFLICT (line_user_id) DO UPDATE
		 SET google_id = COALESCE(EXCLUDED.google_id, users.google_id),
		     google_email = COALESCE(EXCLUDED.google_email, users.google_email),
		     access_token = EXCLUDED.access_token,
		     refresh_token = COALESCE(EXCLUDED.refresh_token, users.refresh_token),
		     token_expiry = EXCLUDED.token_expiry,
		     calendar_connected = TRUE,
		     updated_at = NOW()
		 RETURNING `+columns,
		lineUserID, t.GoogleID, t.Email, t.AccessToken, t.RefreshToken, t.Expiry,
	))
}

func (s *PGStore) DisconnectGoogle(ctx context.Context, lineUserID string) error {
	tag, err := s.q.Exec(
		ctx,
		`UPDATE users
		 SET access_token = NULL, refresh_token = NULL, token_expiry = NULL,
		     calendar_connected = FALSE, updated_at = NOW()
		 WHERE line_user_id = $1`,
		lineUserID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Connected(ctx context.Context, lineUserIDs []string) ([]User, error) {
	rows, err := s.q.Query(
		ctx,
		`SELECT `+columns+`
		 FROM users
		 WHERE line_user_id = ANY($1) AND calendar_connected AND access_token IS NOT NULL
		 ORDER BY id`,
		lineUserIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
