// Package restaurant collects members' restaurant preferences and shop votes
// and turns them into Hotpepper searches.
package restaurant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"nomikai/apps/backend/internal/hotpepper"
	"nomikai/apps/backend/internal/poll"
)

var ErrInvalidInput = errors.New("invalid restaurant input")

type Condition struct {
	ID         int64     `json:"id"`
	SessionID  int64     `json:"session_id"`
	LineUserID string    `json:"line_user_id"`
	Area       *string   `json:"area"`
	GenreCodes []string  `json:"genre_codes"`
	BudgetCode *string   `json:"budget_code"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ConditionInput struct {
	SessionID  int64
	LineUserID string
	Area       string
	GenreCodes []string
	BudgetCode string
}

type Aggregate struct {
	Areas            []string       `json:"areas"`
	GenreCodes       map[string]int `json:"genre_codes"`
	BudgetCodes      map[string]int `json:"budget_codes"`
	MostCommonArea   *string        `json:"most_common_area"`
	MostCommonGenres []string       `json:"most_common_genres"`
	MostCommonBudget *string        `json:"most_common_budget"`
	TotalRespondents int            `json:"total_respondents"`
}

type Vote struct {
	SessionID      int64
	LineUserID     string
	RestaurantID   string
	RestaurantName string
}

type Tally struct {
	RestaurantID   string `json:"shop_id"`
	RestaurantName string `json:"shop_name"`
	VoteCount      int    `json:"vote_count"`
}

type Store interface {
	SaveCondition(ctx context.Context, in ConditionInput) (int64, error)
	Conditions(ctx context.Context, sessionID int64) ([]Condition, error)
	DeleteConditions(ctx context.Context, lineUserID string, sessionID *int64) (int64, error)
	SaveVote(ctx context.Context, v Vote) (int64, error)
	Tallies(ctx context.Context, sessionID int64) ([]Tally, error)
}

// Searcher is satisfied by *hotpepper.Client.
type Searcher interface {
	Search(ctx context.Context, p hotpepper.SearchParams) hotpepper.Result
	FetchByID(ctx context.Context, shopID string) hotpepper.Result
}

type SessionLocator interface {
	LatestSession(ctx context.Context, conversationID string, kind poll.Kind) (poll.Session, error)
}

type Service struct {
	store    Store
	searcher Searcher
	sessions SessionLocator
}

func NewService(store Store, searcher Searcher, sessions SessionLocator) *Service {
	return &Service{store: store, searcher: searcher, sessions: sessions}
}

func (s *Service) SaveConditions(ctx context.Context, in ConditionInput) (int64, error) {
	in.LineUserID = strings.TrimSpace(in.LineUserID)
	if in.LineUserID == "" {
		return 0, fmt.Errorf("%w: line_user_id is required", ErrInvalidInput)
	}
	if in.SessionID <= 0 {
		return 0, fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}
	in.Area = strings.TrimSpace(in.Area)
	in.BudgetCode = strings.TrimSpace(in.BudgetCode)
	genres := make([]string, 0, len(in.GenreCodes))
	for _, g := range in.GenreCodes {
		if g = strings.TrimSpace(g); g != "" {
			genres = append(genres, g)
		}
	}
	in.GenreCodes = genres
	return s.store.SaveCondition(ctx, in)
}

func (s *Service) Conditions(ctx context.Context, sessionID int64) ([]Condition, error) {
	return s.store.Conditions(ctx, sessionID)
}

func (s *Service) DeleteConditions(ctx context.Context, lineUserID string, sessionID *int64) (int64, error) {
	return s.store.DeleteConditions(ctx, lineUserID, sessionID)
}

func (s *Service) Aggregated(ctx context.Context, sessionID int64) (Aggregate, error) {
	conds, err := s.store.Conditions(ctx, sessionID)
	if err != nil {
		return Aggregate{}, err
	}
	return AggregateConditions(conds), nil
}

// AggregateConditions expects conditions newest first; ties go to the value seen first.
func AggregateConditions(conds []Condition) Aggregate {
	out := Aggregate{
		Areas:            []string{},
		GenreCodes:       map[string]int{},
		BudgetCodes:      map[string]int{},
		MostCommonGenres: []string{},
		TotalRespondents: len(conds),
	}
	areaCounts := map[string]int{}
	var areaOrder, genreOrder, budgetOrder []string
	for _, c := range conds {
		if c.Area != nil && *c.Area != "" {
			if areaCounts[*c.Area] == 0 {
				areaOrder = append(areaOrder, *c.Area)
			}
			areaCounts[*c.Area]++
		}
		for _, g := range c.GenreCodes {
			if out.GenreCodes[g] == 0 {
				genreOrder = append(genreOrder, g)
			}
			out.GenreCodes[g]++
		}
		if c.BudgetCode != nil && *c.BudgetCode != "" {
			if out.BudgetCodes[*c.BudgetCode] == 0 {
				budgetOrder = append(budgetOrder, *c.BudgetCode)
			}
			out.BudgetCodes[*c.BudgetCode]++
		}
	}
	out.Areas = append(out.Areas, areaOrder...)
	out.MostCommonArea = majority(areaOrder, areaCounts)
	out.MostCommonBudget = majority(budgetOrder, out.BudgetCodes)

	ranked := append([]string(nil), genreOrder...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return out.GenreCodes[ranked[i]] > out.GenreCodes[ranked[j]]
	})
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}
	out.MostCommonGenres = append(out.MostCommonGenres, ranked...)
	return out
}

func majority(order []string, counts map[string]int) *string {
	if len(order) == 0 {
		return nil
	}
	best := order[0]
	for _, v := range order[1:] {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return &best
}

func (a Aggregate) SearchParams(count int) hotpepper.SearchParams {
	p := hotpepper.SearchParams{Count: count}
	if a.MostCommonArea != nil {
		p.Area = *a.MostCommonArea
	}
	if len(a.MostCommonGenres) > 0 {
		p.GenreCodes = a.MostCommonGenres[:1]
	}
	if a.MostCommonBudget != nil {
		p.BudgetCode = *a.MostCommonBudget
	}
	return p
}

type SessionSearch struct {
	Aggregate Aggregate
	Params    hotpepper.SearchParams
	Result    hotpepper.Result
}

// SearchForSession searches with the session's majority conditions.
// Result is zero when nobody has answered yet.
func (s *Service) SearchForSession(ctx context.Context, sessionID int64, count int) (SessionSearch, error) {
	agg, err := s.Aggregated(ctx, sessionID)
	if err != nil {
		return SessionSearch{}, err
	}
	out := SessionSearch{Aggregate: agg, Params: agg.SearchParams(count)}
	if agg.TotalRespondents == 0 {
		return out, nil
	}
	out.Result = s.searcher.Search(ctx, out.Params)
	return out, nil
}

func (s *Service) Search(ctx context.Context, p hotpepper.SearchParams) hotpepper.Result {
	return s.searcher.Search(ctx, p)
}

// RecordVote stores a shop vote, filling in the shop name from Hotpepper when missing.
func (s *Service) RecordVote(ctx context.Context, v Vote) (int64, error) {
	v.LineUserID = strings.TrimSpace(v.LineUserID)
	v.RestaurantID = strings.TrimSpace(v.RestaurantID)
	if v.LineUserID == "" || v.RestaurantID == "" || v.SessionID <= 0 {
		return 0, fmt.Errorf("%w: session_id, line_user_id and shop_id are required", ErrInvalidInput)
	}
	if strings.TrimSpace(v.RestaurantName) == "" && s.searcher != nil {
		if found := s.searcher.FetchByID(ctx, v.RestaurantID); len(found.Shops) > 0 {
			v.RestaurantName = found.Shops[0].Name
		}
	}
	v.RestaurantName = poll.TruncateRunes(strings.TrimSpace(v.RestaurantName), 40)
	return s.store.SaveVote(ctx, v)
}

func (s *Service) Tallies(ctx context.Context, sessionID int64) ([]Tally, error) {
	return s.store.Tallies(ctx, sessionID)
}

// FindShops proposes shops for a conversation's shop poll from the conditions
// gathered for its latest schedule session.
func (s *Service) FindShops(ctx context.Context, conversationID string) ([]poll.ShopCandidate, error) {
	if s.sessions == nil || s.searcher == nil {
		return nil, nil
	}
	session, err := s.sessions.LatestSession(ctx, conversationID, poll.KindSchedule)
	if errors.Is(err, poll.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load schedule session: %w", err)
	}
	found, err := s.SearchForSession(ctx, session.ID, 10)
	if err != nil {
		return nil, err
	}
	if found.Result.Error != "" {
		return nil, errors.New(found.Result.Error)
	}
	out := make([]poll.ShopCandidate, 0, len(found.Result.Shops))
	for _, shop := range found.Result.Shops {
		desc := shop.Catch
		if desc == "" {
			desc = shop.Genre
		}
		out = append(out, poll.ShopCandidate{Name: shop.Name, Description: desc})
	}
	return out, nil
}
