package airouter

import (
	"context"
	"strings"

	"nomikai/apps/backend/internal/poll"
)

// Mock classifies by keyword so local setups without an API key still
// exercise the fallback path.
type Mock struct{}

func (Mock) Classify(_ context.Context, text string, _ *poll.Session) (poll.Intent, float64, error) {
	lowered := strings.ToLower(strings.TrimSpace(text))
	switch {
	case lowered == "":
		return poll.Intent{Action: poll.ActionNone}, 0, nil
	case strings.Contains(lowered, "使い方") || strings.Contains(lowered, "how to"):
		return poll.Intent{Action: poll.ActionHelp}, 0.9, nil
	case strings.Contains(lowered, "お店") || strings.Contains(lowered, "restaurant"):
		return poll.Intent{Action: poll.ActionStartShopPoll}, 0.8, nil
	case strings.Contains(lowered, "集計") || strings.Contains(lowered, "結果"):
		return poll.Intent{Action: poll.ActionList}, 0.8, nil
	case strings.Contains(lowered, "飲み会") || strings.Contains(lowered, "日程"):
		return poll.Intent{Action: poll.ActionStart, Topic: "予定調整"}, 0.7, nil
	}
	return poll.Intent{Action: poll.ActionClarify, Clarification: clarifyFallback}, 0.3, nil
}
