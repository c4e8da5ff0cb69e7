package poll

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"
)

type Action int

const (
	ActionNone Action = iota
	ActionHelp
	ActionAcceptDefaults
	ActionSetRange
	ActionSetTimeWindow
	ActionStart
	ActionList
	ActionAddCandidate
	ActionDeleteCandidate
	ActionConfirm
	ActionVote
	ActionStartShopPoll
	ActionShopRecommend
	ActionClarify
)

var actionNames = map[Action]string{
	ActionNone:            "none",
	ActionHelp:            "help",
	ActionAcceptDefaults:  "accept_defaults",
	ActionSetRange:        "set_range",
	ActionSetTimeWindow:   "set_time_window",
	ActionStart:           "start",
	ActionList:            "list",
	ActionAddCandidate:    "add_candidate",
	ActionDeleteCandidate: "delete_candidate",
	ActionConfirm:         "confirm",
	ActionVote:            "vote",
	ActionStartShopPoll:   "start_shop_poll",
	ActionShopRecommend:   "shop_recommend",
	ActionClarify:         "clarify",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// legalActions lists what each session kind accepts once it is the active session.
var legalActions = map[Kind]map[Action]bool{
	KindSchedule: {
		ActionAcceptDefaults:  true,
		ActionSetRange:        true,
		ActionSetTimeWindow:   true,
		ActionList:            true,
		ActionAddCandidate:    true,
		ActionDeleteCandidate: true,
		ActionConfirm:         true,
		ActionVote:            true,
	},
	KindShop: {
		ActionStartShopPoll: true,
		ActionShopRecommend: true,
	},
}

func (k Kind) Allows(a Action) bool {
	return legalActions[k][a]
}

type Slot struct {
	Start time.Time
	End   time.Time
}

func (s Slot) Label() string {
	return s.Start.Format("01/02 15:04") + "-" + s.End.Format("15:04")
}

type Intent struct {
	Action        Action
	Topic         string
	RangeDays     int
	Window        TimeWindow
	Slot          Slot
	Index         int
	Clarification string
}

type ParseContext struct {
	Session  *Session
	Now      time.Time
	Location *time.Location
}

const (
	maxRangeDays = 60

	clarifyRange     = "期間の指定が読み取れませんでした。（例: 期間 10日）"
	clarifyRangeMax  = "期間は1〜60日で指定してください。"
	clarifyWindow    = "時間帯の指定が読み取れませんでした。（例: 時間帯 19:00-21:00）"
	clarifyCandidate = "候補の形式が読み取れませんでした。（例: 候補 8/5 19:00-21:00）"
	clarifyDelete    = "削除する候補番号を指定してください。（例: 削除 2）"
	clarifyConfirm   = "確定する候補番号を指定してください。（例: 確定 1）"
)

var (
	rangeDaysRe = regexp.MustCompile(`(\d+)\s*日`)
	timeRangeRe = regexp.MustCompile(`(\d{1,2}):(\d{2})\s*[-~〜]\s*(\d{1,2}):(\d{2})`)
	fullDateRe  = regexp.MustCompile(`(\d{1,4})[/-](\d{1,2})[/-](\d{1,2})`)
	shortDateRe = regexp.MustCompile(`(\d{1,2})[/-](\d{1,2})`)
	numberRe    = regexp.MustCompile(`\d+`)
	digitsRe    = regexp.MustCompile(`^\d+$`)

	helpWords     = wordSet("ヘルプ", "help", "?")
	acceptWords   = wordSet("OK", "ok", "はい", "開始", "デフォルト")
	listWords     = wordSet("候補一覧", "一覧", "リスト", "集計")
	shopPollWords = wordSet("お店投票", "test")
)

func wordSet(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

func has(set map[string]struct{}, word string) bool {
	_, ok := set[word]
	return ok
}

// Normalize trims the message and folds full-width ASCII (digits, colon, slash) to half-width.
func Normalize(text string) string {
	return strings.TrimSpace(width.Fold.String(text))
}

// Parse maps a message to an intent. It never fails: unreadable arguments
// come back as an intent carrying a Clarification reply.
func Parse(text string, pc ParseContext) Intent {
	msg := Normalize(text)
	loc := pc.Location
	if loc == nil {
		loc = time.UTC
	}
	now := pc.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(loc)

	if has(helpWords, msg) {
		return Intent{Action: ActionHelp}
	}

	if s := pc.Session; s != nil && s.Kind == KindSchedule && s.State == StatePendingDefaults {
		if has(acceptWords, msg) {
			return Intent{Action: ActionAcceptDefaults}
		}
		if strings.HasPrefix(msg, "期間") {
			return parseRange(msg)
		}
		if strings.HasPrefix(msg, "時間帯") {
			window, ok := parseWindow(msg)
			if !ok {
				return Intent{Action: ActionSetTimeWindow, Clarification: clarifyWindow}
			}
			return Intent{Action: ActionSetTimeWindow, Window: window}
		}
	}

	switch {
	case strings.HasPrefix(msg, "開始"):
		topic := strings.TrimSpace(strings.TrimPrefix(msg, "開始"))
		if topic == "" {
			topic = "予定調整"
		}
		return Intent{Action: ActionStart, Topic: topic}
	case has(listWords, msg):
		return Intent{Action: ActionList}
	case strings.HasPrefix(msg, "候補"):
		slot, ok := parseCandidate(msg, now, loc)
		if !ok {
			return Intent{Action: ActionAddCandidate, Clarification: clarifyCandidate}
		}
		return Intent{Action: ActionAddCandidate, Slot: slot}
	case strings.HasPrefix(msg, "削除"):
		return parseIndexed(ActionDeleteCandidate, msg, clarifyDelete)
	case strings.HasPrefix(msg, "確定"):
		return parseIndexed(ActionConfirm, msg, clarifyConfirm)
	case digitsRe.MatchString(msg):
		return Intent{Action: ActionVote, Index: atoiOrZero(msg)}
	case has(shopPollWords, msg):
		return Intent{Action: ActionStartShopPoll}
	case strings.HasPrefix(msg, "予約"):
		return Intent{Action: ActionShopRecommend}
	}
	return Intent{Action: ActionNone}
}

func parseRange(msg string) Intent {
	m := rangeDaysRe.FindStringSubmatch(msg)
	if m == nil {
		return Intent{Action: ActionSetRange, Clarification: clarifyRange}
	}
	days := atoiOrZero(m[1])
	if days <= 0 {
		return Intent{Action: ActionSetRange, Clarification: clarifyRange}
	}
	if days > maxRangeDays {
		return Intent{Action: ActionSetRange, Clarification: clarifyRangeMax}
	}
	return Intent{Action: ActionSetRange, RangeDays: days}
}

func parseIndexed(action Action, msg, clarification string) Intent {
	m := numberRe.FindString(msg)
	if m == "" {
		return Intent{Action: action, Clarification: clarification}
	}
	return Intent{Action: action, Index: atoiOrZero(m)}
}

func parseWindow(msg string) (TimeWindow, bool) {
	m := timeRangeRe.FindStringSubmatch(msg)
	if m == nil {
		return TimeWindow{}, false
	}
	start, ok := clockFromParts(m[1], m[2])
	if !ok {
		return TimeWindow{}, false
	}
	// An end before the start is an overnight window; defaults roll it to the next day.
	end, ok := clockFromParts(m[3], m[4])
	if !ok || end == start {
		return TimeWindow{}, false
	}
	return TimeWindow{Start: start, End: end}, true
}

func parseCandidate(msg string, now time.Time, loc *time.Location) (Slot, bool) {
	rangeIdx := timeRangeRe.FindStringSubmatchIndex(msg)
	if rangeIdx == nil {
		return Slot{}, false
	}
	m := timeRangeRe.FindStringSubmatch(msg)
	start, ok := clockFromParts(m[1], m[2])
	if !ok {
		return Slot{}, false
	}
	end, ok := clockFromParts(m[3], m[4])
	if !ok {
		return Slot{}, false
	}

	// The time range itself contains digit-separator pairs, so dates are
	// searched in the text with the range removed.
	rest := msg[:rangeIdx[0]] + " " + msg[rangeIdx[1]:]
	var year, month, day int
	if d := fullDateRe.FindStringSubmatch(rest); d != nil {
		year, month, day = atoiOrZero(d[1]), atoiOrZero(d[2]), atoiOrZero(d[3])
		if year < 100 {
			year += 2000
		}
	} else if d := shortDateRe.FindStringSubmatch(rest); d != nil {
		year, month, day = now.Year(), atoiOrZero(d[1]), atoiOrZero(d[2])
	} else {
		return Slot{}, false
	}
	if !validDate(year, month, day) {
		return Slot{}, false
	}

	startAt := time.Date(year, time.Month(month), day, int(start)/60, int(start)%60, 0, 0, loc)
	endAt := time.Date(year, time.Month(month), day, int(end)/60, int(end)%60, 0, 0, loc)
	if !endAt.After(startAt) {
		endAt = endAt.AddDate(0, 0, 1)
	}
	return Slot{Start: startAt, End: endAt}, true
}

func validDate(year, month, day int) bool {
	if year < 1 || year > 9999 || month < 1 || month > 12 || day < 1 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && int(t.Month()) == month && t.Day() == day
}

func clockFromParts(hour, minute string) (Clock, bool) {
	h, ok := atoiBounded(hour, 0, 23)
	if !ok {
		return 0, false
	}
	m, ok := atoiBounded(minute, 0, 59)
	if !ok {
		return 0, false
	}
	return Clock(h*60 + m), true
}

func atoiBounded(raw string, lo, hi int) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}

// atoiOrZero maps overflowing or empty input to 0, which no index or count accepts.
func atoiOrZero(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
