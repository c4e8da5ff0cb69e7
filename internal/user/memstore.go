package user

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User)}
}

func (m *MemoryStore) Get(_ context.Context, lineUserID string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[lineUserID]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryStore) ensure(lineUserID string) User {
	u, ok := m.users[lineUserID]
	if !ok {
		m.nextID++
		now := time.Now()
		u = User{ID: m.nextID, LineUserID: lineUserID, CreatedAt: now, UpdatedAt: now}
	}
	return u
}

func (m *MemoryStore) Upsert(_ context.Context, p Profile) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.ensure(p.LineUserID)
	if p.DisplayName != "" {
		u.DisplayName = p.DisplayName
	}
	if p.PictureURL != "" {
		u.PictureURL = p.PictureURL
	}
	m.users[u.LineUserID] = u
	return u, nil
}

func (m *MemoryStore) Update(_ context.Context, lineUserID string, up Update) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[lineUserID]
	if !ok {
		return User{}, ErrNotFound
	}
	if up.DisplayName != nil {
		u.DisplayName = *up.DisplayName
	}
	if up.PictureURL != nil {
		u.PictureURL = *up.PictureURL
	}
	if up.Email != nil {
		email := *up.Email
		u.Email = &email
	}
	if up.CalendarConnected != nil {
		u.CalendarConnected = *up.CalendarConnected
	}
	m.users[lineUserID] = u
	return u, nil
}

func (m *MemoryStore) Delete(_ context.Context, lineUserID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[lineUserID]; !ok {
		return ErrNotFound
	}
	delete(m.users, lineUserID)
	return nil
}

func (m *MemoryStore) SaveGoogleTokens(_ context.Context, lineUserID string, t GoogleTokens) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.ensure(lineUserID)
	if t.GoogleID != "" {
		u.GoogleID = t.GoogleID
	}
	if t.Email != "" {
		email := t.Email
		u.Email = &email
	}
	u.AccessToken = t.AccessToken
	if t.RefreshToken != "" {
		u.RefreshToken = t.RefreshToken
	}
	u.TokenExpiry = t.Expiry
	u.CalendarConnected = true
	m.users[lineUserID] = u
	return u, nil
}

func (m *MemoryStore) DisconnectGoogle(_ context.Context, lineUserID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[lineUserID]
	if !ok {
		return ErrNotFound
	}
	u.AccessToken, u.RefreshToken, u.TokenExpiry, u.CalendarConnected = "", "", nil, false
	m.users[lineUserID] = u
	return nil
}

func (m *MemoryStore) Connected(_ context.Context, lineUserIDs []string) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]User, 0)
	for _, id := range lineUserIDs {
		if u, ok := m.users[id]; ok && u.CalendarConnected && u.AccessToken != "" {
			out = append(out, u)
		}
	}
	return out, nil
}
