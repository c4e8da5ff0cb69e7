package poll

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and local runs without Postgres.
type MemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	nextID   int64
	sessions map[int64]Session
	options  map[int64]Option
	votes    map[int64]map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      time.Now,
		sessions: make(map[int64]Session),
		options:  make(map[int64]Option),
		votes:    make(map[int64]map[string]int64),
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryStore) ActiveSession(_ context.Context, conversationID string) (Session, error) {
	return m.newest(func(s Session) bool {
		return s.ConversationID == conversationID && s.Open()
	})
}

func (m *MemoryStore) LatestSession(_ context.Context, conversationID string, kind Kind) (Session, error) {
	return m.newest(func(s Session) bool {
		return s.ConversationID == conversationID && s.Kind == kind
	})
}

func (m *MemoryStore) newest(match func(Session) bool) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *Session
	for _, s := range m.sessions {
		if !match(s) {
			continue
		}
		if found == nil || s.CreatedAt.After(found.CreatedAt) || (s.CreatedAt.Equal(found.CreatedAt) && s.ID > found.ID) {
			cp := s
			found = &cp
		}
	}
	if found == nil {
		return Session{}, ErrSessionNotFound
	}
	return *found, nil
}

func (m *MemoryStore) GetSession(_ context.Context, sessionID int64) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, input CreateSessionInput) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s := Session{
		ID:             m.id(),
		ConversationID: input.ConversationID,
		Topic:          input.Topic,
		Kind:           input.Kind,
		State:          input.State,
		CreatedBy:      input.CreatedBy,
		Settings:       input.Settings.withDefaults(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.sessions[s.ID] = s
	return s, nil
}

func (m *MemoryStore) UpdateSettings(_ context.Context, sessionID int64, settings Settings) error {
	return m.mutateSession(sessionID, func(s *Session) { s.Settings = settings })
}

func (m *MemoryStore) UpdateState(_ context.Context, sessionID int64, state State) error {
	return m.mutateSession(sessionID, func(s *Session) { s.State = state })
}

func (m *MemoryStore) CloseSession(_ context.Context, sessionID int64, finalOptionID *int64) error {
	return m.mutateSession(sessionID, func(s *Session) {
		s.State = StateClosed
		s.FinalOptionID = finalOptionID
	})
}

func (m *MemoryStore) MarkEventRegistered(_ context.Context, sessionID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return false, ErrSessionNotFound
	}
	if s.EventRegistered {
		return false, nil
	}
	s.EventRegistered = true
	s.UpdatedAt = m.now()
	m.sessions[sessionID] = s
	return true, nil
}

func (m *MemoryStore) mutateSession(sessionID int64, fn func(*Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	fn(&s)
	s.UpdatedAt = m.now()
	m.sessions[sessionID] = s
	return nil
}

func (m *MemoryStore) ListOptions(_ context.Context, sessionID int64) ([]Option, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[int64]int)
	for _, optionID := range m.votes[sessionID] {
		counts[optionID]++
	}
	out := make([]Option, 0)
	for _, o := range m.options {
		if o.SessionID != sessionID {
			continue
		}
		o.Votes = counts[o.ID]
		out = append(out, o)
	}
	SortOptions(out)
	return out, nil
}

func (m *MemoryStore) AddOption(_ context.Context, sessionID int64, option NewOption) (Option, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return Option{}, ErrSessionNotFound
	}
	return m.insertOption(sessionID, option), nil
}

func (m *MemoryStore) insertOption(sessionID int64, option NewOption) Option {
	o := Option{
		ID:          m.id(),
		SessionID:   sessionID,
		StartTime:   option.StartTime,
		EndTime:     option.EndTime,
		Label:       option.Label,
		Description: option.Description,
		CreatedBy:   option.CreatedBy,
	}
	m.options[o.ID] = o
	return o
}

func (m *MemoryStore) DeleteOption(_ context.Context, sessionID, optionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.options[optionID]
	if !ok || o.SessionID != sessionID {
		return ErrOptionNotFound
	}
	m.removeOptionLocked(o)
	return nil
}

func (m *MemoryStore) removeOptionLocked(o Option) {
	delete(m.options, o.ID)
	for user, optionID := range m.votes[o.SessionID] {
		if optionID == o.ID {
			delete(m.votes[o.SessionID], user)
		}
	}
}

func (m *MemoryStore) ReplaceOptions(_ context.Context, sessionID int64, options []NewOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	m.replaceOptionsLocked(sessionID, options)
	return nil
}

func (m *MemoryStore) StartVoting(_ context.Context, sessionID int64, options []NewOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	m.replaceOptionsLocked(sessionID, options)
	s.State = StateVoting
	s.UpdatedAt = m.now()
	m.sessions[sessionID] = s
	return nil
}

func (m *MemoryStore) replaceOptionsLocked(sessionID int64, options []NewOption) {
	for _, o := range m.options {
		if o.SessionID == sessionID {
			m.removeOptionLocked(o)
		}
	}
	for _, option := range options {
		m.insertOption(sessionID, option)
	}
}

func (m *MemoryStore) RecordVote(_ context.Context, sessionID, optionID int64, lineUserID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if !s.Open() {
		return ErrSessionClosed
	}
	o, ok := m.options[optionID]
	if !ok || o.SessionID != sessionID {
		return ErrOptionNotFound
	}
	if m.votes[sessionID] == nil {
		m.votes[sessionID] = make(map[string]int64)
	}
	m.votes[sessionID][lineUserID] = optionID
	return nil
}

func (m *MemoryStore) ListVoters(_ context.Context, sessionID int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.votes[sessionID]))
	for user := range m.votes[sessionID] {
		out = append(out, user)
	}
	sort.Strings(out)
	return out, nil
}

// SortOptions orders options the way they are numbered in replies.
func SortOptions(options []Option) {
	sort.SliceStable(options, func(i, j int) bool {
		if !options[i].StartTime.Equal(options[j].StartTime) {
			return options[i].StartTime.Before(options[j].StartTime)
		}
		return options[i].ID < options[j].ID
	})
}
