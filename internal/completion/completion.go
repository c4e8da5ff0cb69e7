// Package completion closes out a session: it checks who has voted, searches
// restaurants from the pooled conditions and announces the result on LINE.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"nomikai/apps/backend/internal/hotpepper"
	"nomikai/apps/backend/internal/poll"
	"nomikai/apps/backend/internal/responses"
	"nomikai/apps/backend/internal/restaurant"
)

const (
	searchCount   = 10
	topSlotLimit  = 5
	carouselTitle = "🍻 おすすめのお店"
	noShopsText   = "条件に合うお店が見つかりませんでした"
)

type VoteSource interface {
	Voters(ctx context.Context, sessionID int64) ([]responses.Voter, error)
	Results(ctx context.Context, sessionID int64) ([]responses.SlotResult, error)
}

type ShopSource interface {
	Aggregated(ctx context.Context, sessionID int64) (restaurant.Aggregate, error)
	Search(ctx context.Context, p hotpepper.SearchParams) hotpepper.Result
}

// Sender delivers replies outside a reply-token window.
type Sender interface {
	Push(ctx context.Context, to string, replies ...*poll.Reply) error
	Multicast(ctx context.Context, to []string, replies ...*poll.Reply) error
}

type SessionReader interface {
	GetSession(ctx context.Context, sessionID int64) (poll.Session, error)
}

type Status struct {
	SessionID      int64                  `json:"session_id"`
	TotalVoters    int                    `json:"total_voters"`
	ExpectedVoters int                    `json:"expected_voters"`
	IsComplete     bool                   `json:"is_complete"`
	Voters         []responses.Voter      `json:"voters"`
	TopDates       []responses.SlotResult `json:"top_dates"`
}

type Outcome struct {
	Success        bool                 `json:"success"`
	Message        string               `json:"message,omitempty"`
	MessageSent    bool                 `json:"message_sent"`
	VoteSummary    Status               `json:"vote_summary"`
	ConditionsUsed restaurant.Aggregate `json:"conditions_used"`
	ShopsFound     int                  `json:"shops_found"`
	SearchResult   *hotpepper.Result    `json:"search_result,omitempty"`
	Carousel       *poll.Carousel       `json:"carousel_message,omitempty"`
}

type Results struct {
	SessionID            int64                  `json:"session_id"`
	TotalVoters          int                    `json:"total_voters"`
	Voters               []responses.Voter      `json:"voters"`
	VoteResults          []responses.SlotResult `json:"vote_results"`
	RestaurantConditions restaurant.Aggregate   `json:"restaurant_conditions"`
}

type Service struct {
	votes    VoteSource
	shops    ShopSource
	sessions SessionReader
	sender   Sender
}

// NewService builds the flow; sender may be nil when LINE is not configured.
func NewService(votes VoteSource, shops ShopSource, sessions SessionReader, sender Sender) *Service {
	return &Service{votes: votes, shops: shops, sessions: sessions, sender: sender}
}

// Check reports whether expected voters have answered. A nil expected count
// treats the current voters as everyone.
func (s *Service) Check(ctx context.Context, sessionID int64, expected *int) (Status, error) {
	voters, err := s.votes.Voters(ctx, sessionID)
	if err != nil {
		return Status{}, fmt.Errorf("list voters: %w", err)
	}
	results, err := s.votes.Results(ctx, sessionID)
	if err != nil {
		return Status{}, fmt.Errorf("list results: %w", err)
	}
	want := len(voters)
	if expected != nil {
		want = *expected
	}
	if len(results) > topSlotLimit {
		results = results[:topSlotLimit]
	}
	return Status{
		SessionID:      sessionID,
		TotalVoters:    len(voters),
		ExpectedVoters: want,
		IsComplete:     len(voters) > 0 && len(voters) >= want,
		Voters:         voters,
		TopDates:       results,
	}, nil
}

// Complete searches shops for the session and announces them. Delivery
// goes to the session's conversation first and falls back to a multicast
// to the voters; delivery failures are logged, not returned.
func (s *Service) Complete(ctx context.Context, sessionID int64, expected *int) (Outcome, error) {
	status, err := s.Check(ctx, sessionID, expected)
	if err != nil {
		return Outcome{}, err
	}
	agg, err := s.shops.Aggregated(ctx, sessionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("aggregate conditions: %w", err)
	}
	result := s.shops.Search(ctx, agg.SearchParams(searchCount))
	if len(result.Shops) == 0 {
		return Outcome{
			Success:        false,
			Message:        noShopsText,
			VoteSummary:    status,
			ConditionsUsed: agg,
			SearchResult:   &result,
		}, nil
	}

	carousel := restaurant.ShopCarousel(result.Shops, sessionID, carouselTitle)
	summary := &poll.Reply{Text: SummaryText(status, agg, len(result.Shops))}
	shops := &poll.Reply{Carousel: carousel}

	sent := s.deliver(ctx, sessionID, status.Voters, summary, shops)
	out := Outcome{
		Success:        true,
		MessageSent:    sent,
		VoteSummary:    status,
		ConditionsUsed: agg,
		ShopsFound:     len(result.Shops),
	}
	if !sent {
		out.Carousel = carousel
	}
	return out, nil
}

func (s *Service) deliver(ctx context.Context, sessionID int64, voters []responses.Voter, replies ...*poll.Reply) bool {
	if s.sender == nil {
		return false
	}
	if s.sessions != nil {
		session, err := s.sessions.GetSession(ctx, sessionID)
		switch {
		case err == nil && session.ConversationID != "":
			err := s.sender.Push(ctx, session.ConversationID, replies...)
			if err == nil {
				return true
			}
			log.Printf("completion push failed session_id=%d to=%s err=%v", sessionID, session.ConversationID, err)
		case err != nil && !errors.Is(err, poll.ErrSessionNotFound):
			log.Printf("completion session lookup failed session_id=%d err=%v", sessionID, err)
		}
	}

	ids := make([]string, 0, len(voters))
	for _, v := range voters {
		if v.UserID != "" {
			ids = append(ids, v.UserID)
		}
	}
	if len(ids) == 0 {
		return false
	}
	if err := s.sender.Multicast(ctx, ids, replies...); err != nil {
		log.Printf("completion multicast failed session_id=%d recipients=%d err=%v", sessionID, len(ids), err)
		return false
	}
	return true
}

func (s *Service) Results(ctx context.Context, sessionID int64) (Results, error) {
	voters, err := s.votes.Voters(ctx, sessionID)
	if err != nil {
		return Results{}, fmt.Errorf("list voters: %w", err)
	}
	results, err := s.votes.Results(ctx, sessionID)
	if err != nil {
		return Results{}, fmt.Errorf("list results: %w", err)
	}
	agg, err := s.shops.Aggregated(ctx, sessionID)
	if err != nil {
		return Results{}, fmt.Errorf("aggregate conditions: %w", err)
	}
	return Results{
		SessionID:            sessionID,
		TotalVoters:          len(voters),
		Voters:               voters,
		VoteResults:          results,
		RestaurantConditions: agg,
	}, nil
}

func SummaryText(status Status, agg restaurant.Aggregate, shopCount int) string {
	var b strings.Builder
	b.WriteString("🎉 投票が完了しました！\n\n")
	if len(status.TopDates) > 0 {
		top := status.TopDates[0]
		fmt.Fprintf(&b, "📅 最も人気の日程: %s\n", top.DateLabel)
		fmt.Fprintf(&b, "   👥 %d人が参加可能\n\n", top.VoteCount)
	}
	if agg.MostCommonArea != nil {
		fmt.Fprintf(&b, "📍 エリア: %s\n", *agg.MostCommonArea)
	}
	if len(agg.MostCommonGenres) > 0 {
		genres := agg.MostCommonGenres
		if len(genres) > 2 {
			genres = genres[:2]
		}
		fmt.Fprintf(&b, "🍴 ジャンル: %s\n", strings.Join(genres, ", "))
	}
	if agg.MostCommonBudget != nil {
		fmt.Fprintf(&b, "💰 予算: %s\n", *agg.MostCommonBudget)
	}
	fmt.Fprintf(&b, "\n条件に合うお店を%d件見つけました！", shopCount)
	return b.String()
}
