package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
	calendarapi "google.golang.org/api/calendar/v3"

	"nomikai/apps/backend/internal/kv"
	"nomikai/apps/backend/internal/poll"
	"nomikai/apps/backend/internal/user"
)

type stubIdentities struct {
	identity Identity
}

func (s stubIdentities) Identity(context.Context, oauth2.TokenSource) (Identity, error) {
	return s.identity, nil
}

func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			if r.Form.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600}`))
		case "refresh_token":
			_, _ = w.Write([]byte(`{"access_token":"at-2","token_type":"Bearer","expires_in":3600}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestAuth(t *testing.T, users user.Store, now func() time.Time) *Auth {
	t.Helper()
	server := newTokenServer(t)
	return NewAuth(AuthConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURI:  "http://localhost/callback",
		StateSecret:  "state-secret",
		KV:           kv.NewMemory(),
		Users:        users,
		Endpoint: &oauth2.Endpoint{
			AuthURL:   server.URL + "/auth",
			TokenURL:  server.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Identities: stubIdentities{identity: Identity{GoogleID: "g-1", Email: "a@example.com"}},
		Now:        now,
	})
}

func stateFrom(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	q := u.Query()
	if q.Get("access_type") != "offline" || q.Get("prompt") != "consent" || q.Get("include_granted_scopes") != "true" {
		t.Fatalf("unexpected auth url params %v", q)
	}
	if !strings.Contains(q.Get("scope"), calendarapi.CalendarEventsScope) {
		t.Fatalf("missing calendar scope in %q", q.Get("scope"))
	}
	return q.Get("state")
}

func TestAuthURLRequiresCredentials(t *testing.T) {
	a := NewAuth(AuthConfig{KV: kv.NewMemory(), Users: user.NewMemoryStore()})
	if _, err := a.AuthURL(context.Background(), "U1"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestStateIsSingleUse(t *testing.T) {
	a := newTestAuth(t, user.NewMemoryStore(), nil)
	ctx := context.Background()

	authURL, err := a.AuthURL(ctx, "U1")
	if err != nil {
		t.Fatalf("auth url: %v", err)
	}
	state := stateFrom(t, authURL)

	owner, err := a.ConsumeState(ctx, state)
	if err != nil || owner != "U1" {
		t.Fatalf("expected U1, got %q err=%v", owner, err)
	}
	if _, err := a.ConsumeState(ctx, state); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("replayed state must fail, got %v", err)
	}
	if _, err := a.ConsumeState(ctx, "not-a-jwt"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("garbage state must fail, got %v", err)
	}
}

func TestStateExpires(t *testing.T) {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	a := newTestAuth(t, user.NewMemoryStore(), func() time.Time { return now })
	ctx := context.Background()

	authURL, err := a.AuthURL(ctx, "U1")
	if err != nil {
		t.Fatalf("auth url: %v", err)
	}
	now = now.Add(11 * time.Minute)
	if _, err := a.ConsumeState(ctx, stateFrom(t, authURL)); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expired state must fail, got %v", err)
	}
}

func TestCallbackStoresTokensAndRefreshPersists(t *testing.T) {
	users := user.NewMemoryStore()
	a := newTestAuth(t, users, nil)
	ctx := context.Background()

	authURL, err := a.AuthURL(ctx, "U1")
	if err != nil {
		t.Fatalf("auth url: %v", err)
	}
	u, err := a.Callback(ctx, "good-code", stateFrom(t, authURL))
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if !u.CalendarConnected || u.AccessToken != "at-1" || u.RefreshToken != "rt-1" || u.Email == nil || *u.Email != "a@example.com" {
		t.Fatalf("unexpected user after callback %+v", u)
	}

	if err := a.Refresh(ctx, "U1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	u, _ = users.Get(ctx, "U1")
	if u.AccessToken != "at-2" || u.RefreshToken != "rt-1" {
		t.Fatalf("refresh must swap access token and keep refresh token, got %+v", u)
	}

	if err := a.Disconnect(ctx, "U1"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := a.Refresh(ctx, "U1"); !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
}

func TestCallbackRejectsBadCode(t *testing.T) {
	a := newTestAuth(t, user.NewMemoryStore(), nil)
	ctx := context.Background()
	authURL, _ := a.AuthURL(ctx, "U1")
	if _, err := a.Callback(ctx, "bad-code", stateFrom(t, authURL)); err == nil {
		t.Fatal("expected exchange error")
	}
}

type fakeInserter struct {
	fail   map[string]bool
	events []*calendarapi.Event
}

func (f *fakeInserter) Insert(_ context.Context, ts oauth2.TokenSource, calendarID string, event *calendarapi.Event) (*calendarapi.Event, error) {
	token, err := ts.Token()
	if err != nil {
		return nil, err
	}
	if f.fail[token.AccessToken] {
		return nil, fmt.Errorf("insert rejected")
	}
	f.events = append(f.events, event)
	id := fmt.Sprintf("evt-%d", len(f.events))
	return &calendarapi.Event{Id: id, HtmlLink: "https://calendar.example/" + id}, nil
}

type memEvents struct {
	rows []Event
}

func (m *memEvents) Save(_ context.Context, e Event) (int64, error) {
	e.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, e)
	return e.ID, nil
}

func (m *memEvents) ListBySession(_ context.Context, sessionID int64) ([]Event, error) {
	var out []Event
	for _, e := range m.rows {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

type staticVoters []string

func (v staticVoters) SessionVoters(context.Context, int64) ([]string, error) { return v, nil }

type plainTokens struct{}

func (plainTokens) TokenSource(_ context.Context, u user.User) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: u.AccessToken})
}

func confirmedSession(t *testing.T, store *poll.MemoryStore, loc *time.Location) poll.Session {
	t.Helper()
	ctx := context.Background()
	s, err := store.CreateSession(ctx, poll.CreateSessionInput{ConversationID: "G1", Topic: "暑気払い", Kind: poll.KindSchedule, State: poll.StateVoting})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	start := time.Date(2025, 8, 5, 19, 0, 0, 0, loc)
	opt, err := store.AddOption(ctx, s.ID, poll.NewOption{StartTime: start, EndTime: start.Add(2 * time.Hour), Label: "08/05 19:00-21:00"})
	if err != nil {
		t.Fatalf("add option: %v", err)
	}
	if err := store.CloseSession(ctx, s.ID, &opt.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	s, _ = store.GetSession(ctx, s.ID)
	return s
}

func TestCreateWithRestaurant(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	ctx := context.Background()
	sessions := poll.NewMemoryStore()
	session := confirmedSession(t, sessions, loc)

	users := user.NewMemoryStore()
	for _, id := range []string{"U1", "U2"} {
		if _, err := users.SaveGoogleTokens(ctx, id, user.GoogleTokens{AccessToken: "token-" + id}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	if _, err := users.Upsert(ctx, user.Profile{LineUserID: "U3", DisplayName: "未連携"}); err != nil {
		t.Fatalf("seed U3: %v", err)
	}

	inserter := &fakeInserter{fail: map[string]bool{"token-U2": true}}
	events := &memEvents{}
	cal := NewCalendar(CalendarConfig{
		Sessions: sessions,
		Voters:   staticVoters{"U1", "U2", "U3"},
		Users:    users,
		Tokens:   plainTokens{},
		Events:   events,
		Inserter: inserter,
		Location: loc,
	})

	notes := "2階席"
	result, err := cal.CreateWithRestaurant(ctx, session.ID, RestaurantRequest{RestaurantName: "居酒屋 ほし", ReservationNotes: &notes})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !result.Success || result.TotalUsers != 2 || result.SuccessfulCount != 1 || result.Message != "Created 1/2 calendar events" {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(inserter.events) != 1 {
		t.Fatalf("expected one inserted event, got %d", len(inserter.events))
	}
	ev := inserter.events[0]
	if ev.Location != "居酒屋 ほし" || ev.Start.TimeZone != "Asia/Tokyo" || ev.Start.DateTime != "2025-08-05T19:00:00+09:00" {
		t.Fatalf("unexpected event %+v start=%+v", ev, ev.Start)
	}
	if !strings.HasPrefix(ev.Description, fmt.Sprintf("session_id:%d\n\n", session.ID)) || !strings.HasSuffix(ev.Description, notes) {
		t.Fatalf("unexpected description %q", ev.Description)
	}

	stored, _ := cal.Events(ctx, session.ID)
	if len(stored) != 1 || stored[0].LineUserID != "U1" || stored[0].CalendarID != "primary" {
		t.Fatalf("unexpected stored events %+v", stored)
	}

	if _, err := cal.CreateWithRestaurant(ctx, session.ID, RestaurantRequest{RestaurantName: "x"}); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestCreateWithRestaurantRejectsUnconfirmed(t *testing.T) {
	ctx := context.Background()
	sessions := poll.NewMemoryStore()
	s, _ := sessions.CreateSession(ctx, poll.CreateSessionInput{ConversationID: "G1", Topic: "t", Kind: poll.KindSchedule, State: poll.StateVoting})
	cal := NewCalendar(CalendarConfig{Sessions: sessions, Voters: staticVoters{}, Users: user.NewMemoryStore(), Tokens: plainTokens{}, Events: &memEvents{}, Inserter: &fakeInserter{}})

	if _, err := cal.CreateWithRestaurant(ctx, s.ID, RestaurantRequest{}); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}
	if _, err := cal.CreateWithRestaurant(ctx, 999, RestaurantRequest{}); !errors.Is(err, poll.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestCreateWithRestaurantWithoutConnectedUsers(t *testing.T) {
	ctx := context.Background()
	sessions := poll.NewMemoryStore()
	session := confirmedSession(t, sessions, time.UTC)
	cal := NewCalendar(CalendarConfig{Sessions: sessions, Voters: staticVoters{"U9"}, Users: user.NewMemoryStore(), Tokens: plainTokens{}, Events: &memEvents{}, Inserter: &fakeInserter{}})

	result, err := cal.CreateWithRestaurant(ctx, session.ID, RestaurantRequest{RestaurantName: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Success || result.Message != "No users with Google Calendar connected" {
		t.Fatalf("unexpected result %+v", result)
	}
}
