package restaurant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"nomikai/apps/backend/internal/hotpepper"
	"nomikai/apps/backend/internal/poll"
)

func str(s string) *string { return &s }

type memStore struct {
	conds []Condition
	votes []Vote
}

func (m *memStore) SaveCondition(_ context.Context, in ConditionInput) (int64, error) {
	c := Condition{ID: int64(len(m.conds) + 1), SessionID: in.SessionID, LineUserID: in.LineUserID, GenreCodes: in.GenreCodes}
	if in.Area != "" {
		c.Area = str(in.Area)
	}
	if in.BudgetCode != "" {
		c.BudgetCode = str(in.BudgetCode)
	}
	m.conds = append([]Condition{c}, m.conds...)
	return c.ID, nil
}

func (m *memStore) Conditions(_ context.Context, sessionID int64) ([]Condition, error) {
	out := []Condition{}
	for _, c := range m.conds {
		if c.SessionID == sessionID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) DeleteConditions(context.Context, string, *int64) (int64, error) { return 0, nil }

func (m *memStore) SaveVote(_ context.Context, v Vote) (int64, error) {
	m.votes = append(m.votes, v)
	return int64(len(m.votes)), nil
}

func (m *memStore) Tallies(context.Context, int64) ([]Tally, error) { return nil, nil }

type fakeSearcher struct {
	params hotpepper.SearchParams
	result hotpepper.Result
	byID   map[string]hotpepper.Shop
}

func (f *fakeSearcher) Search(_ context.Context, p hotpepper.SearchParams) hotpepper.Result {
	f.params = p
	return f.result
}

func (f *fakeSearcher) FetchByID(_ context.Context, id string) hotpepper.Result {
	if shop, ok := f.byID[id]; ok {
		return hotpepper.Result{Shops: []hotpepper.Shop{shop}}
	}
	return hotpepper.Result{Shops: []hotpepper.Shop{}}
}

func TestAggregateConditionsMajorityAndTies(t *testing.T) {
	agg := AggregateConditions([]Condition{
		{Area: str("渋谷"), GenreCodes: []string{"G002", "G001"}, BudgetCode: str("B003")},
		{Area: str("新宿"), GenreCodes: []string{"G001", "G005"}, BudgetCode: str("B002")},
		{Area: str("新宿"), GenreCodes: []string{"G007"}},
		{Area: str("渋谷"), GenreCodes: []string{"G008"}},
	})
	if agg.TotalRespondents != 4 {
		t.Fatalf("expected 4 respondents, got %d", agg.TotalRespondents)
	}
	if agg.MostCommonArea == nil || *agg.MostCommonArea != "渋谷" {
		t.Fatalf("expected first-seen area to win the tie, got %v", agg.MostCommonArea)
	}
	if agg.MostCommonBudget == nil || *agg.MostCommonBudget != "B003" {
		t.Fatalf("unexpected budget %v", agg.MostCommonBudget)
	}
	want := []string{"G001", "G002", "G005"}
	if strings.Join(agg.MostCommonGenres, ",") != strings.Join(want, ",") {
		t.Fatalf("expected genres %v, got %v", want, agg.MostCommonGenres)
	}
	if len(agg.Areas) != 2 || agg.Areas[0] != "渋谷" {
		t.Fatalf("unexpected areas %v", agg.Areas)
	}
}

func TestAggregateConditionsEmpty(t *testing.T) {
	agg := AggregateConditions(nil)
	if agg.MostCommonArea != nil || agg.MostCommonBudget != nil || len(agg.MostCommonGenres) != 0 || agg.TotalRespondents != 0 {
		t.Fatalf("expected empty aggregate, got %+v", agg)
	}
}

func TestSaveConditionsValidates(t *testing.T) {
	svc := NewService(&memStore{}, nil, nil)
	if _, err := svc.SaveConditions(context.Background(), ConditionInput{SessionID: 1}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.SaveConditions(context.Background(), ConditionInput{LineUserID: "u"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without session, got %v", err)
	}
}

func TestSearchForSessionSkipsWithoutAnswers(t *testing.T) {
	searcher := &fakeSearcher{}
	svc := NewService(&memStore{}, searcher, nil)
	found, err := svc.SearchForSession(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if found.Aggregate.TotalRespondents != 0 || searcher.params.Count != 0 {
		t.Fatalf("expected no upstream search, got %+v", searcher.params)
	}
}

func TestFindShopsUsesLatestScheduleSession(t *testing.T) {
	ctx := context.Background()
	sessions := poll.NewMemoryStore()
	session, _ := sessions.CreateSession(ctx, poll.CreateSessionInput{ConversationID: "g1", Topic: "x", Kind: poll.KindSchedule, State: poll.StateVoting})

	store := &memStore{}
	searcher := &fakeSearcher{result: hotpepper.Result{Shops: []hotpepper.Shop{
		{ID: "J1", Name: "居酒屋 ほし", Catch: "飲み放題"},
		{ID: "J2", Name: "焼肉 まる", Genre: "焼肉"},
	}}}
	svc := NewService(store, searcher, sessions)
	if _, err := svc.SaveConditions(ctx, ConditionInput{SessionID: session.ID, LineUserID: "u1", Area: "渋谷", GenreCodes: []string{"G001"}, BudgetCode: "B002"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	shops, err := svc.FindShops(ctx, "g1")
	if err != nil {
		t.Fatalf("find shops: %v", err)
	}
	if len(shops) != 2 || shops[0].Description != "飲み放題" || shops[1].Description != "焼肉" {
		t.Fatalf("unexpected candidates %+v", shops)
	}
	if searcher.params.Area != "渋谷" || searcher.params.GenreCodes[0] != "G001" || searcher.params.BudgetCode != "B002" {
		t.Fatalf("unexpected search params %+v", searcher.params)
	}

	none, err := svc.FindShops(ctx, "other")
	if err != nil || none != nil {
		t.Fatalf("expected no candidates for unknown conversation, got %v err=%v", none, err)
	}
}

func TestFindShopsSurfacesSearchError(t *testing.T) {
	ctx := context.Background()
	sessions := poll.NewMemoryStore()
	session, _ := sessions.CreateSession(ctx, poll.CreateSessionInput{ConversationID: "g1", Kind: poll.KindSchedule, State: poll.StateClosed})
	store := &memStore{}
	_, _ = store.SaveCondition(ctx, ConditionInput{SessionID: session.ID, LineUserID: "u1", Area: "渋谷"})
	svc := NewService(store, &fakeSearcher{result: hotpepper.Result{Error: "HOTPEPPER_API_KEY is not configured"}}, sessions)
	if _, err := svc.FindShops(ctx, "g1"); err == nil {
		t.Fatalf("expected search error")
	}
}

func TestRecordVoteFillsShopName(t *testing.T) {
	store := &memStore{}
	svc := NewService(store, &fakeSearcher{byID: map[string]hotpepper.Shop{"J9": {ID: "J9", Name: "中華 福来"}}}, nil)
	if _, err := svc.RecordVote(context.Background(), Vote{SessionID: 1, LineUserID: "u1", RestaurantID: "J9"}); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if store.votes[0].RestaurantName != "中華 福来" {
		t.Fatalf("expected name lookup, got %q", store.votes[0].RestaurantName)
	}
	if _, err := svc.RecordVote(context.Background(), Vote{SessionID: 1, LineUserID: "u1"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without shop id, got %v", err)
	}
}

func TestSelectShopDataRoundTrip(t *testing.T) {
	data := SelectShopData(7, "J001", "居酒屋 ほし")
	vote, ok := ParseSelectShopData(data)
	if !ok || vote.SessionID != 7 || vote.RestaurantID != "J001" || vote.RestaurantName != "居酒屋 ほし" {
		t.Fatalf("unexpected vote %+v ok=%v", vote, ok)
	}
	if _, ok := ParseSelectShopData("shop_vote:1:2"); ok {
		t.Fatalf("expected shop_vote data to be rejected")
	}
	if _, ok := ParseSelectShopData(SelectShopData(0, "J001", "x")); ok {
		t.Fatalf("expected data without session to be rejected")
	}
}

func TestShopCarouselDefaults(t *testing.T) {
	if ShopCarousel(nil, 1, "alt") != nil {
		t.Fatalf("expected nil carousel for no shops")
	}
	shops := make([]hotpepper.Shop, 12)
	shops[0] = hotpepper.Shop{ID: "J1", Name: strings.Repeat("店", 50), Access: "駅から1分", PhotoSmall: "s.jpg"}
	c := ShopCarousel(shops, 3, "おすすめのお店")
	if len(c.Columns) != 10 {
		t.Fatalf("expected 10 columns, got %d", len(c.Columns))
	}
	first := c.Columns[0]
	if len([]rune(first.Title)) != 40 || first.Text != "駅から1分" || first.ThumbnailURL != "s.jpg" {
		t.Fatalf("unexpected first column %+v", first)
	}
	if len(first.Actions) != 2 || first.Actions[0].URI != defaultShopURL {
		t.Fatalf("unexpected actions %+v", first.Actions)
	}
	empty := c.Columns[1]
	if empty.Title != defaultShopTitle || empty.Text != defaultShopText || empty.ThumbnailURL != placeholderPhoto {
		t.Fatalf("unexpected defaults %+v", empty)
	}
}
