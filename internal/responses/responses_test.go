package responses

import (
	"context"
	"errors"
	"testing"
)

type fakeStore struct {
	replaced   []Item
	selections []Selection
}

func (f *fakeStore) Replace(_ context.Context, _ string, _ *int64, items []Item) (int, error) {
	f.replaced = items
	return len(items), nil
}

func (f *fakeStore) List(context.Context, Filter) ([]Response, error) { return nil, nil }

func (f *fakeStore) Selections(context.Context, *int64) ([]Selection, error) {
	return f.selections, nil
}

func (f *fakeStore) DeleteUser(context.Context, string, *int64) (int64, error) { return 0, nil }

type fixedDeadline bool

func (d fixedDeadline) Expired(context.Context, int64) (bool, error) { return bool(d), nil }

func strPtr(s string) *string { return &s }

func TestSubmitRejectsAfterDeadline(t *testing.T) {
	svc := NewService(&fakeStore{}, fixedDeadline(true))
	sid := int64(1)
	_, err := svc.Submit(context.Background(), "u1", &sid, []Item{{Date: "8/1"}})
	if !errors.Is(err, ErrDeadlinePassed) {
		t.Fatalf("expected ErrDeadlinePassed, got %v", err)
	}
}

func TestSubmitWithoutSessionSkipsDeadline(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, fixedDeadline(true))
	n, err := svc.Submit(context.Background(), "u1", nil, []Item{{Date: "8/1"}})
	if err != nil || n != 1 {
		t.Fatalf("expected 1 saved, got %d err=%v", n, err)
	}
}

func TestSubmitValidatesInput(t *testing.T) {
	svc := NewService(&fakeStore{}, nil)
	if _, err := svc.Submit(context.Background(), " ", nil, []Item{{Date: "x"}}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank user, got %v", err)
	}
	if _, err := svc.Submit(context.Background(), "u1", nil, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty votes, got %v", err)
	}
}

func TestSubmitNormalizesTimestamps(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, nil)
	_, err := svc.Submit(context.Background(), "u1", nil, []Item{{
		Date:      "8/1",
		StartTime: strPtr("2025-08-01T10:00:00Z"),
		EndTime:   strPtr("not a time"),
	}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	got := store.replaced[0]
	if got.StartTime == nil || *got.StartTime != "2025-08-01T10:00:00Z" {
		t.Fatalf("unexpected start %v", got.StartTime)
	}
	if got.EndTime != nil {
		t.Fatalf("expected unparseable end to be dropped, got %q", *got.EndTime)
	}
}

func TestSummarizeFallsBackToShortUserID(t *testing.T) {
	summary := Summarize([]Selection{
		{SelectedDate: "A", LineUserID: "U000abcd", DisplayName: "Alice"},
		{SelectedDate: "A", LineUserID: "U000wxyz"},
		{SelectedDate: "B", LineUserID: "U000abcd", DisplayName: "Alice"},
	})
	if summary.TotalVoters != 2 {
		t.Fatalf("expected 2 voters, got %d", summary.TotalVoters)
	}
	if summary.VoteCounts["A"] != 2 || summary.VoteCounts["B"] != 1 {
		t.Fatalf("unexpected counts %v", summary.VoteCounts)
	}
	if name := summary.VotersByOption["A"][1].DisplayName; name != "ユーザーwxyz" {
		t.Fatalf("unexpected fallback name %q", name)
	}
}

func TestRankSlotsOrdersByCountThenStart(t *testing.T) {
	early, late := strPtr("2025-08-01T19:00:00"), strPtr("2025-08-02T19:00:00")
	ranked := RankSlots([]Selection{
		{SelectedDate: "late", StartTime: late, LineUserID: "u1"},
		{SelectedDate: "early", StartTime: early, LineUserID: "u1"},
		{SelectedDate: "late", StartTime: late, LineUserID: "u2"},
		{SelectedDate: "early", StartTime: early, LineUserID: "u3"},
		{SelectedDate: "other", LineUserID: "u3"},
	})
	if len(ranked) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(ranked))
	}
	if ranked[0].DateLabel != "early" || ranked[1].DateLabel != "late" || ranked[0].VoteCount != 2 {
		t.Fatalf("unexpected ranking %+v", ranked)
	}
}

func TestVotersAreDistinct(t *testing.T) {
	svc := NewService(&fakeStore{selections: []Selection{
		{SelectedDate: "A", LineUserID: "u1", DisplayName: "One"},
		{SelectedDate: "B", LineUserID: "u1", DisplayName: "One"},
		{SelectedDate: "B", LineUserID: "u2", DisplayName: "Two"},
	}}, nil)
	voters, err := svc.Voters(context.Background(), 1)
	if err != nil || len(voters) != 2 {
		t.Fatalf("expected 2 voters, got %v err=%v", voters, err)
	}
}
