package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/oauth2"
	calendarapi "google.golang.org/api/calendar/v3"

	"nomikai/apps/backend/internal/deadline"
	"nomikai/apps/backend/internal/google"
	"nomikai/apps/backend/internal/hotpepper"
	"nomikai/apps/backend/internal/responses"
	"nomikai/apps/backend/internal/restaurant"
)

type memDeadlines struct {
	mu   sync.Mutex
	next int64
	rows map[int64]deadline.Deadline
}

func newMemDeadlines() *memDeadlines {
	return &memDeadlines{rows: make(map[int64]deadline.Deadline)}
}

func (m *memDeadlines) Upsert(_ context.Context, sessionID int64, groupID string, at time.Time) (deadline.Deadline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[sessionID]
	if !ok {
		m.next++
		d = deadline.Deadline{ID: m.next, SessionID: sessionID, CreatedAt: at}
	}
	d.GroupID = groupID
	d.At = at
	d.UpdatedAt = at
	m.rows[sessionID] = d
	return d, nil
}

func (m *memDeadlines) Get(_ context.Context, sessionID int64) (deadline.Deadline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[sessionID]
	if !ok {
		return deadline.Deadline{}, deadline.ErrNotFound
	}
	return d, nil
}

func (m *memDeadlines) Delete(_ context.Context, sessionID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[sessionID]
	delete(m.rows, sessionID)
	return ok, nil
}

type memResponses struct {
	mu   sync.Mutex
	next int64
	rows []responses.Response
}

func newMemResponses() *memResponses {
	return &memResponses{}
}

func sameSession(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *memResponses) Replace(_ context.Context, lineUserID string, sessionID *int64, items []responses.Item) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.LineUserID == lineUserID && sameSession(r.SessionID, sessionID) {
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	for _, item := range items {
		m.next++
		m.rows = append(m.rows, responses.Response{
			ID:           m.next,
			SessionID:    sessionID,
			LineUserID:   lineUserID,
			SelectedDate: item.Date,
			StartTime:    item.StartTime,
			EndTime:      item.EndTime,
			IsLate:       item.IsLate,
			CreatedAt:    time.Now(),
		})
	}
	return len(items), nil
}

func (m *memResponses) List(_ context.Context, filter responses.Filter) ([]responses.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]responses.Response, 0)
	for _, r := range m.rows {
		if filter.LineUserID != "" && r.LineUserID != filter.LineUserID {
			continue
		}
		if filter.SessionID != nil && !sameSession(r.SessionID, filter.SessionID) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memResponses) Selections(ctx context.Context, sessionID *int64) ([]responses.Selection, error) {
	rows, _ := m.List(ctx, responses.Filter{SessionID: sessionID})
	out := make([]responses.Selection, 0, len(rows))
	for _, r := range rows {
		out = append(out, responses.Selection{
			SelectedDate: r.SelectedDate,
			StartTime:    r.StartTime,
			EndTime:      r.EndTime,
			LineUserID:   r.LineUserID,
		})
	}
	return out, nil
}

func (m *memResponses) DeleteUser(_ context.Context, lineUserID string, sessionID *int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.LineUserID == lineUserID && (sessionID == nil || sameSession(r.SessionID, sessionID)) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return deleted, nil
}

type memRestaurants struct {
	mu         sync.Mutex
	next       int64
	conditions []restaurant.Condition
	votes      []restaurant.Vote
}

func newMemRestaurants() *memRestaurants {
	return &memRestaurants{}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SaveCondition keeps the newest answer first, as the Postgres store orders them.
func (m *memRestaurants) SaveCondition(_ context.Context, in restaurant.ConditionInput) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	cond := restaurant.Condition{
		ID:         m.next,
		SessionID:  in.SessionID,
		LineUserID: in.LineUserID,
		Area:       optional(in.Area),
		GenreCodes: in.GenreCodes,
		BudgetCode: optional(in.BudgetCode),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	kept := []restaurant.Condition{cond}
	for _, c := range m.conditions {
		if c.SessionID == in.SessionID && c.LineUserID == in.LineUserID {
			continue
		}
		kept = append(kept, c)
	}
	m.conditions = kept
	return cond.ID, nil
}

func (m *memRestaurants) Conditions(_ context.Context, sessionID int64) ([]restaurant.Condition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]restaurant.Condition, 0)
	for _, c := range m.conditions {
		if c.SessionID == sessionID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memRestaurants) DeleteConditions(_ context.Context, lineUserID string, sessionID *int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	kept := m.conditions[:0]
	for _, c := range m.conditions {
		if c.LineUserID == lineUserID && (sessionID == nil || c.SessionID == *sessionID) {
			deleted++
			continue
		}
		kept = append(kept, c)
	}
	m.conditions = kept
	return deleted, nil
}

func (m *memRestaurants) SaveVote(_ context.Context, v restaurant.Vote) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.votes {
		if existing.SessionID == v.SessionID && existing.LineUserID == v.LineUserID {
			m.votes[i] = v
			return int64(i + 1), nil
		}
	}
	m.votes = append(m.votes, v)
	return int64(len(m.votes)), nil
}

func (m *memRestaurants) Tallies(_ context.Context, sessionID int64) ([]restaurant.Tally, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	index := make(map[string]int)
	out := make([]restaurant.Tally, 0)
	for _, v := range m.votes {
		if v.SessionID != sessionID {
			continue
		}
		i, ok := index[v.RestaurantID]
		if !ok {
			i = len(out)
			index[v.RestaurantID] = i
			out = append(out, restaurant.Tally{RestaurantID: v.RestaurantID, RestaurantName: v.RestaurantName})
		}
		out[i].VoteCount++
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].VoteCount > out[j].VoteCount })
	return out, nil
}

type stubSearcher struct {
	mu     sync.Mutex
	shops  []hotpepper.Shop
	params []hotpepper.SearchParams
}

func (s *stubSearcher) Search(_ context.Context, p hotpepper.SearchParams) hotpepper.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = append(s.params, p)
	shops := append([]hotpepper.Shop{}, s.shops...)
	return hotpepper.Result{ResultsAvailable: len(shops), ResultsReturned: len(shops), Shops: shops}
}

func (s *stubSearcher) FetchByID(_ context.Context, shopID string) hotpepper.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, shop := range s.shops {
		if shop.ID == shopID {
			return hotpepper.Result{ResultsAvailable: 1, ResultsReturned: 1, Shops: []hotpepper.Shop{shop}}
		}
	}
	return hotpepper.Result{Shops: []hotpepper.Shop{}}
}

type memEvents struct {
	mu   sync.Mutex
	rows []google.Event
}

func newMemEvents() *memEvents {
	return &memEvents{}
}

func (m *memEvents) Save(_ context.Context, e google.Event) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, e)
	return e.ID, nil
}

func (m *memEvents) ListBySession(_ context.Context, sessionID int64) ([]google.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]google.Event, 0)
	for _, e := range m.rows {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

type stubInserter struct {
	mu     sync.Mutex
	events []*calendarapi.Event
}

func (s *stubInserter) Insert(_ context.Context, _ oauth2.TokenSource, _ string, event *calendarapi.Event) (*calendarapi.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	id := fmt.Sprintf("evt-%d", len(s.events))
	return &calendarapi.Event{Id: id, HtmlLink: "https://calendar.google.com/event?eid=" + id}, nil
}
