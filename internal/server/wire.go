package server

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"nomikai/apps/backend/internal/airouter"
	"nomikai/apps/backend/internal/completion"
	"nomikai/apps/backend/internal/config"
	"nomikai/apps/backend/internal/deadline"
	"nomikai/apps/backend/internal/google"
	"nomikai/apps/backend/internal/hotpepper"
	"nomikai/apps/backend/internal/kv"
	"nomikai/apps/backend/internal/line"
	"nomikai/apps/backend/internal/poll"
	"nomikai/apps/backend/internal/poll/pgstore"
	"nomikai/apps/backend/internal/responses"
	"nomikai/apps/backend/internal/restaurant"
	"nomikai/apps/backend/internal/user"
)

// Wire builds the Postgres-backed services. shared holds OAuth states and
// webhook redelivery markers; it is Redis in deployments and memory locally.
func Wire(cfg config.Config, pool *pgxpool.Pool, shared kv.Store) Deps {
	loc := cfg.Location()
	polls := pgstore.New(pool)
	users := user.NewPGStore(pool)

	deadlines := deadline.NewService(deadline.Config{
		Store:          deadline.NewPGStore(pool),
		Location:       loc,
		DefaultMinutes: cfg.DeadlineMinutes,
		ResetExpired:   cfg.DevModeResetExpired,
	})
	votes := responses.NewService(responses.NewPGStore(pool), deadlines)
	shops := hotpepper.NewClient(hotpepper.Config{
		APIKey:         cfg.HotpepperAPIKey,
		BaseURL:        cfg.HotpepperBaseURL,
		TimeoutSeconds: cfg.HotpepperTimeoutSeconds,
	})
	restaurants := restaurant.NewService(restaurant.NewPGStore(pool), shops, polls)

	var (
		messenger line.Messenger
		sender    completion.Sender
	)
	if cfg.LineEnabled() {
		client, err := line.NewClient(cfg.LineChannelAccessToken)
		if err != nil {
			log.Printf("line messaging disabled err=%v", err)
		} else {
			messenger, sender = client, client
		}
	}

	auth := google.NewAuth(google.AuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURI:  cfg.GoogleRedirectURI,
		StateSecret:  cfg.JWTSecret,
		KV:           shared,
		Users:        users,
	})
	calendar := google.NewCalendar(google.CalendarConfig{
		Sessions: polls,
		Voters:   sessionVoters{polls: polls, responses: votes},
		Users:    users,
		Tokens:   auth,
		Events:   google.NewPGEventStore(pool),
		Inserter: google.NewAPIInserter(),
		Location: loc,
	})

	machine := poll.NewMachine(poll.MachineConfig{
		Store:         polls,
		Location:      loc,
		Link:          poll.PollLink{LiffID: cfg.LiffID, FrontendBaseURL: cfg.FrontendBaseURL},
		Deadlines:     deadlines,
		Shops:         restaurants,
		Classifier:    classifierFor(cfg),
		MinConfidence: cfg.AIRouterMinConfidence,
	})

	return Deps{
		Deadlines:   deadlines,
		Responses:   votes,
		Restaurants: restaurants,
		Completion:  completion.NewService(votes, restaurants, polls, sender),
		Users:       users,
		Auth:        auth,
		Calendar:    calendar,
		Webhook: line.NewHandler(line.HandlerConfig{
			ChannelSecret: cfg.LineChannelSecret,
			BotMention:    cfg.BotMention,
			Messenger:     messenger,
			Conversation:  machine,
			ShopVotes:     restaurants,
			Members:       users,
			Seen:          shared,
		}),
	}
}

// classifierFor returns nil when the AI fallback is off, so the machine only
// uses the command grammar.
func classifierFor(cfg config.Config) poll.Classifier {
	if !cfg.AIRouterEnabled {
		return nil
	}
	if cfg.OpenAIAPIKey != "" {
		return airouter.New(cfg)
	}
	if cfg.AppEnv == "local" {
		log.Printf("ai router using keyword mock app_env=%s", cfg.AppEnv)
		return airouter.Mock{}
	}
	log.Printf("ai router disabled: OPENAI_API_KEY is not set")
	return nil
}

type pollVoters interface {
	ListVoters(ctx context.Context, sessionID int64) ([]string, error)
}

type pageVoters interface {
	Voters(ctx context.Context, sessionID int64) ([]responses.Voter, error)
}

// sessionVoters merges chat voters and poll page voters of a session.
type sessionVoters struct {
	polls     pollVoters
	responses pageVoters
}

func (v sessionVoters) SessionVoters(ctx context.Context, sessionID int64) ([]string, error) {
	chat, err := v.polls.ListVoters(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	page, err := v.responses.Voters(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(chat)+len(page))
	out := make([]string, 0, len(chat)+len(page))
	add := func(id string) {
		if _, ok := seen[id]; ok || id == "" {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range chat {
		add(id)
	}
	for _, p := range page {
		add(p.UserID)
	}
	return out, nil
}
