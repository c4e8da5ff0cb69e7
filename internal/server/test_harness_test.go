package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"nomikai/apps/backend/internal/completion"
	"nomikai/apps/backend/internal/config"
	"nomikai/apps/backend/internal/db"
	"nomikai/apps/backend/internal/deadline"
	"nomikai/apps/backend/internal/google"
	"nomikai/apps/backend/internal/kv"
	"nomikai/apps/backend/internal/line"
	"nomikai/apps/backend/internal/poll"
	"nomikai/apps/backend/internal/responses"
	"nomikai/apps/backend/internal/restaurant"
	"nomikai/apps/backend/internal/user"
)

var (
	testPool              *pgxpool.Pool
	baseTestConfig        config.Config
	integrationDBReady    bool
	integrationSkipReason string
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	baseTestConfig = newTestConfig()

	testDatabaseURL := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if testDatabaseURL == "" {
		integrationSkipReason = "integration tests skipped: TEST_DATABASE_URL is not set"
		fmt.Fprintln(os.Stderr, integrationSkipReason)
		os.Exit(m.Run())
	}
	testDatabaseURL = withSimpleProtocol(testDatabaseURL)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.Connect(ctx, testDatabaseURL)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration test setup failed: cannot connect TEST_DATABASE_URL: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 15*time.Second)
	err = db.Migrate(ctx, pool)
	if err == nil {
		err = db.ValidateRuntimeSchema(ctx, pool)
	}
	cancel()
	if err != nil {
		pool.Close()
		fmt.Fprintf(os.Stderr, "integration test setup failed: %v\n", err)
		os.Exit(1)
	}

	testPool = pool
	integrationDBReady = true

	exitCode := m.Run()
	testPool.Close()
	os.Exit(exitCode)
}

func withSimpleProtocol(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}
	queries := parsed.Query()
	queries.Set("default_query_exec_mode", "simple_protocol")
	parsed.RawQuery = queries.Encode()
	return parsed.String()
}

func newTestConfig() config.Config {
	return config.Config{
		AppEnv:             "test",
		AppName:            "Nomikai API Test",
		APIPrefix:          "/api",
		AppPort:            "0",
		DatabaseURL:        "test",
		Timezone:           "Asia/Tokyo",
		JWTSecret:          "test-secret-1234567890",
		LineChannelSecret:  "test-channel-secret",
		FrontendBaseURL:    "http://localhost:3000",
		GoogleClientID:     "test-client-id",
		GoogleClientSecret: "test-client-secret",
		GoogleRedirectURI:  "http://localhost:3000/auth/google/callback",
		DeadlineMinutes:    60,
		CORSAllowOrigins: []string{
			"http://localhost:3000",
		},
	}
}

func requireIntegration(t *testing.T) {
	t.Helper()
	if !integrationDBReady {
		if integrationSkipReason == "" {
			integrationSkipReason = "integration tests skipped: TEST_DATABASE_URL is not configured"
		}
		t.Skip(integrationSkipReason)
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	requireIntegration(t)
	return New(baseTestConfig, Wire(baseTestConfig, testPool, kv.NewMemory())).Router()
}

func resetDatabase(t *testing.T) {
	t.Helper()
	requireIntegration(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := testPool.Exec(
		ctx,
		`TRUNCATE TABLE
			calendar_events,
			restaurant_votes,
			restaurant_conditions,
			poll_responses,
			event_deadlines,
			poll_votes,
			poll_options,
			poll_sessions,
			users
		RESTART IDENTITY CASCADE`,
	)
	if err != nil {
		t.Fatalf("reset database: %v", err)
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memoryFixture is a router over in-memory stores, for handler tests that
// do not need Postgres.
type memoryFixture struct {
	router   *gin.Engine
	clock    *testClock
	polls    *poll.MemoryStore
	users    *user.MemoryStore
	searcher *stubSearcher
	inserter *stubInserter
}

func newMemoryFixture(t *testing.T) *memoryFixture {
	t.Helper()
	cfg := baseTestConfig
	loc := cfg.Location()
	f := &memoryFixture{
		clock:    &testClock{now: time.Date(2025, 8, 1, 12, 0, 0, 0, loc)},
		polls:    poll.NewMemoryStore(),
		users:    user.NewMemoryStore(),
		searcher: &stubSearcher{},
		inserter: &stubInserter{},
	}
	shared := kv.NewMemory()

	deadlines := deadline.NewService(deadline.Config{
		Store:          newMemDeadlines(),
		Location:       loc,
		DefaultMinutes: cfg.DeadlineMinutes,
		Now:            f.clock.Now,
	})
	votes := responses.NewService(newMemResponses(), deadlines)
	restaurants := restaurant.NewService(newMemRestaurants(), f.searcher, f.polls)
	auth := google.NewAuth(google.AuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURI:  cfg.GoogleRedirectURI,
		StateSecret:  cfg.JWTSecret,
		KV:           shared,
		Users:        f.users,
	})
	deps := Deps{
		Deadlines:   deadlines,
		Responses:   votes,
		Restaurants: restaurants,
		Completion:  completion.NewService(votes, restaurants, f.polls, nil),
		Users:       f.users,
		Auth:        auth,
		Calendar: google.NewCalendar(google.CalendarConfig{
			Sessions: f.polls,
			Voters:   sessionVoters{polls: f.polls, responses: votes},
			Users:    f.users,
			Tokens:   auth,
			Events:   newMemEvents(),
			Inserter: f.inserter,
			Location: loc,
		}),
		Webhook: line.NewHandler(line.HandlerConfig{
			ChannelSecret: cfg.LineChannelSecret,
			Conversation:  poll.NewMachine(poll.MachineConfig{Store: f.polls, Location: loc, Clock: f.clock}),
			ShopVotes:     restaurants,
			Members:       f.users,
			Seen:          shared,
		}),
	}
	f.router = New(cfg, deps).Router()
	return f
}

func performJSON(t *testing.T, router http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload == nil {
		body = bytes.NewReader(nil)
	} else {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSONMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v body=%s", err, rec.Body.String())
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected %d, got %d body=%s", want, rec.Code, rec.Body.String())
	}
}
