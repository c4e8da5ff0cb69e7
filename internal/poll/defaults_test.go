package poll

import (
	"context"
	"testing"
	"time"
)

func TestGenerateDefaultOptionsUsesWeekendWindow(t *testing.T) {
	// 2025-08-01 is a Friday.
	now := time.Date(2025, 8, 1, 23, 30, 0, 0, tokyo)
	options := GenerateDefaultOptions(DefaultSettings(), now, tokyo)
	if len(options) != 14 {
		t.Fatalf("expected 14 options, got %d", len(options))
	}
	if options[0].Label != "08/01 19:00-21:00" {
		t.Fatalf("unexpected friday label %q", options[0].Label)
	}
	if options[1].Label != "08/02 18:00-20:00" || options[2].Label != "08/03 18:00-20:00" {
		t.Fatalf("unexpected weekend labels %q %q", options[1].Label, options[2].Label)
	}
	if options[3].Label != "08/04 19:00-21:00" {
		t.Fatalf("unexpected monday label %q", options[3].Label)
	}
	for _, o := range options {
		if o.CreatedBy != "system" {
			t.Fatalf("expected system creator, got %q", o.CreatedBy)
		}
	}
}

func TestGenerateDefaultOptionsFallsBackOnBadSettings(t *testing.T) {
	now := time.Date(2025, 8, 4, 9, 0, 0, 0, tokyo)
	options := GenerateDefaultOptions(Settings{RangeDays: 2, WeekdayStart: "bogus", WeekdayEnd: "22:00"}, now, tokyo)
	if len(options) != 2 {
		t.Fatalf("expected 2 options, got %d", len(options))
	}
	if options[0].Label != "08/04 19:00-22:00" {
		t.Fatalf("unexpected label %q", options[0].Label)
	}
}

func TestGenerateDefaultOptionsRollsOvernightWindow(t *testing.T) {
	now := time.Date(2025, 8, 4, 9, 0, 0, 0, tokyo)
	settings := Settings{RangeDays: 1, WeekdayStart: "22:00", WeekdayEnd: "01:00", WeekendStart: "22:00", WeekendEnd: "01:00"}
	options := GenerateDefaultOptions(settings, now, tokyo)
	if len(options) != 1 {
		t.Fatalf("expected 1 option, got %d", len(options))
	}
	o := options[0]
	if !o.StartTime.Equal(time.Date(2025, 8, 4, 22, 0, 0, 0, tokyo)) || !o.EndTime.Equal(time.Date(2025, 8, 5, 1, 0, 0, 0, tokyo)) {
		t.Fatalf("unexpected overnight slot %s - %s", o.StartTime, o.EndTime)
	}
	if o.Label != "08/04 22:00-01:00" {
		t.Fatalf("unexpected label %q", o.Label)
	}
}

func TestRegeneratingDefaultsReplacesOptions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	store := NewMemoryStore()
	session, err := store.CreateSession(ctx, CreateSessionInput{
		ConversationID: "group-1",
		Topic:          "飲み会",
		Kind:           KindSchedule,
		State:          StatePendingDefaults,
		Settings:       Settings{RangeDays: 5},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, tokyo)
	for i := 0; i < 3; i++ {
		if err := store.ReplaceOptions(ctx, session.ID, GenerateDefaultOptions(session.Settings, now, tokyo)); err != nil {
			t.Fatalf("replace options: %v", err)
		}
	}
	options, err := store.ListOptions(ctx, session.ID)
	if err != nil {
		t.Fatalf("list options: %v", err)
	}
	if len(options) != 5 {
		t.Fatalf("expected exactly 5 options after regeneration, got %d", len(options))
	}
}
