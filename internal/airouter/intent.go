package airouter

import (
	"strings"
	"time"

	"nomikai/apps/backend/internal/poll"
)

const clarifyFallback = "もう少し詳しく教えてください。"

// Intent maps the decision onto the poll grammar. Actions the bot has no
// chat flow for (cancel, connect_google) become ActionNone.
func (d Decision) Intent(loc *time.Location) poll.Intent {
	if loc == nil {
		loc = time.UTC
	}
	p := d.Params
	switch d.Action {
	case "help":
		return poll.Intent{Action: poll.ActionHelp}
	case "start_poll":
		topic := strings.TrimSpace(deref(p.Topic))
		if topic == "" {
			topic = "予定調整"
		}
		return poll.Intent{Action: poll.ActionStart, Topic: topic}
	case "tally":
		return poll.Intent{Action: poll.ActionList}
	case "vote":
		if p.VoteIndex == nil {
			return poll.Intent{Action: poll.ActionClarify, Clarification: "何番に投票しますか？（例: 1）"}
		}
		return poll.Intent{Action: poll.ActionVote, Index: *p.VoteIndex}
	case "confirm":
		if p.ConfirmIndex == nil {
			return poll.Intent{Action: poll.ActionConfirm, Clarification: "確定する候補番号を指定してください。（例: 確定 1）"}
		}
		return poll.Intent{Action: poll.ActionConfirm, Index: *p.ConfirmIndex}
	case "add_candidate":
		slot, ok := p.slot(loc)
		if !ok {
			return poll.Intent{Action: poll.ActionAddCandidate, Clarification: "候補の形式が読み取れませんでした。（例: 候補 8/5 19:00-21:00）"}
		}
		return poll.Intent{Action: poll.ActionAddCandidate, Slot: slot}
	case "find_restaurant":
		return poll.Intent{Action: poll.ActionStartShopPoll}
	case "clarify":
		question := strings.TrimSpace(deref(p.ClarifyQuestion))
		if question == "" {
			question = clarifyFallback
		}
		return poll.Intent{Action: poll.ActionClarify, Clarification: question}
	}
	if p.TimeWindow != nil {
		start, okStart := parseClock(deref(p.TimeWindow.Start))
		end, okEnd := parseClock(deref(p.TimeWindow.End))
		if okStart && okEnd && end != start {
			return poll.Intent{Action: poll.ActionSetTimeWindow, Window: poll.TimeWindow{Start: start, End: end}}
		}
	}
	return poll.Intent{Action: poll.ActionNone}
}

func (p Params) slot(loc *time.Location) (poll.Slot, bool) {
	c := p.Candidate
	if c == nil {
		return poll.Slot{}, false
	}
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(deref(c.Date)), loc)
	if err != nil {
		return poll.Slot{}, false
	}
	start, ok := parseClock(deref(c.StartTime))
	if !ok {
		return poll.Slot{}, false
	}
	end, ok := parseClock(deref(c.EndTime))
	if !ok {
		return poll.Slot{}, false
	}
	startAt := day.Add(time.Duration(start) * time.Minute)
	endAt := day.Add(time.Duration(end) * time.Minute)
	if !endAt.After(startAt) {
		endAt = endAt.AddDate(0, 0, 1)
	}
	return poll.Slot{Start: startAt, End: endAt}, true
}

func parseClock(raw string) (poll.Clock, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return poll.Clock(t.Hour()*60 + t.Minute()), true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
