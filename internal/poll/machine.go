package poll

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
)

// Classifier is consulted for messages the command grammar does not match.
type Classifier interface {
	Classify(ctx context.Context, text string, session *Session) (Intent, float64, error)
}

// DeadlineScheduler opens a voting deadline once defaults are generated.
type DeadlineScheduler interface {
	Schedule(ctx context.Context, sessionID int64, conversationID string) (time.Time, error)
}

type ShopCandidate struct {
	Name        string
	Description string
}

// ShopFinder proposes restaurants for a new shop poll in a conversation.
type ShopFinder interface {
	FindShops(ctx context.Context, conversationID string) ([]ShopCandidate, error)
}

// TimeSource supplies the current time; tests inject a fixed one.
type TimeSource interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

var ShopPresets = []ShopCandidate{
	{Name: "和食 さくら", Description: "落ち着いた和食"},
	{Name: "ビストロ青空", Description: "カジュアルに洋食"},
	{Name: "中華 福来", Description: "がっつり中華"},
	{Name: "焼肉 まる", Description: "しっかり食べたい"},
	{Name: "居酒屋 ほし", Description: "飲みメイン"},
}

type MachineConfig struct {
	Store         Store
	Location      *time.Location
	Clock         TimeSource
	Link          PollLink
	Deadlines     DeadlineScheduler
	Shops         ShopFinder
	Classifier    Classifier
	MinConfidence float64
}

type Machine struct {
	store         Store
	loc           *time.Location
	clock         TimeSource
	link          PollLink
	deadlines     DeadlineScheduler
	shops         ShopFinder
	classifier    Classifier
	minConfidence float64
}

type Input struct {
	ConversationID string
	UserID         string
	Text           string
}

type Postback struct {
	ConversationID string
	UserID         string
	Data           string
}

func NewMachine(cfg MachineConfig) *Machine {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Machine{
		store:         cfg.Store,
		loc:           loc,
		clock:         clock,
		link:          cfg.Link,
		deadlines:     cfg.Deadlines,
		shops:         cfg.Shops,
		classifier:    cfg.Classifier,
		minConfidence: cfg.MinConfidence,
	}
}

func (m *Machine) activeSession(ctx context.Context, conversationID string) (*Session, error) {
	s, err := m.store.ActiveSession(ctx, conversationID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load active session: %w", err)
	}
	return &s, nil
}

// Handle applies one text message to the conversation's active session.
// User-level problems become reply text; only storage failures return an error.
// A nil reply means the message was not addressed to the bot.
func (m *Machine) Handle(ctx context.Context, in Input) (*Reply, error) {
	session, err := m.activeSession(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}

	intent := Parse(in.Text, ParseContext{Session: session, Now: m.clock.Now(), Location: m.loc})
	if intent.Action == ActionNone && m.classifier != nil {
		intent = m.classify(ctx, in.Text, session)
	}
	return m.apply(ctx, in, session, intent)
}

func (m *Machine) classify(ctx context.Context, text string, session *Session) Intent {
	intent, confidence, err := m.classifier.Classify(ctx, text, session)
	if err != nil {
		log.Printf("intent classifier failed err=%v", err)
		return Intent{Action: ActionNone}
	}
	if confidence < m.minConfidence {
		return Intent{Action: ActionNone}
	}
	// Classified intents skip the grammar, so pending-only actions are rechecked here.
	switch intent.Action {
	case ActionAcceptDefaults, ActionSetRange, ActionSetTimeWindow:
		if session == nil || session.State != StatePendingDefaults {
			return Intent{Action: ActionNone}
		}
	}
	return intent
}

func (m *Machine) apply(ctx context.Context, in Input, session *Session, intent Intent) (*Reply, error) {
	switch intent.Action {
	case ActionNone:
		return nil, nil
	case ActionHelp:
		return textReply(HelpText), nil
	case ActionClarify:
		if intent.Clarification == "" {
			return nil, nil
		}
		return textReply(intent.Clarification), nil
	case ActionStart:
		return m.start(ctx, in, session, intent.Topic)
	case ActionStartShopPoll:
		return m.startShopPoll(ctx, in, session)
	}

	if session == nil || !session.Kind.Allows(intent.Action) {
		return textReply(noSessionText(intent.Action)), nil
	}
	if intent.Clarification != "" {
		return textReply(intent.Clarification), nil
	}

	switch intent.Action {
	case ActionAcceptDefaults:
		return m.acceptDefaults(ctx, *session)
	case ActionSetRange:
		settings := session.Settings.withDefaults()
		settings.RangeDays = intent.RangeDays
		if err := m.store.UpdateSettings(ctx, session.ID, settings); err != nil {
			return nil, fmt.Errorf("update settings: %w", err)
		}
		return textReply(fmt.Sprintf("期間を%d日に更新しました。\nOKで候補を作成します。", intent.RangeDays)), nil
	case ActionSetTimeWindow:
		settings := session.Settings.withDefaults()
		settings.WeekdayStart = intent.Window.Start.String()
		settings.WeekdayEnd = intent.Window.End.String()
		settings.WeekendStart = intent.Window.Start.String()
		settings.WeekendEnd = intent.Window.End.String()
		if err := m.store.UpdateSettings(ctx, session.ID, settings); err != nil {
			return nil, fmt.Errorf("update settings: %w", err)
		}
		return textReply(fmt.Sprintf("時間帯を%sに更新しました。\nOKで候補を作成します。", intent.Window)), nil
	case ActionAddCandidate:
		return m.addCandidate(ctx, in, *session, intent.Slot)
	case ActionDeleteCandidate:
		return m.deleteCandidate(ctx, *session, intent.Index)
	case ActionList:
		options, err := m.store.ListOptions(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("list options: %w", err)
		}
		return textReply(FormatOptions(options, m.loc)), nil
	case ActionConfirm:
		return m.confirm(ctx, *session, intent.Index)
	case ActionVote:
		return m.vote(ctx, in, *session, intent.Index)
	case ActionShopRecommend:
		options, err := m.store.ListOptions(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("list options: %w", err)
		}
		return textReply(FormatShopRecommendation(options)), nil
	}
	return nil, nil
}

func noSessionText(action Action) string {
	switch action {
	case ActionAddCandidate:
		return "先に「開始 <タイトル>」で投票を始めてください。"
	case ActionDeleteCandidate:
		return "削除する投票が見つかりません。"
	case ActionShopRecommend:
		return "お店投票が進行中ではありません。"
	default:
		return "進行中の投票がありません。"
	}
}

func (m *Machine) start(ctx context.Context, in Input, session *Session, topic string) (*Reply, error) {
	if session != nil && session.Kind == KindSchedule {
		options, err := m.store.ListOptions(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("list options: %w", err)
		}
		return textReply("すでに進行中の投票があります。\n" + FormatOptions(options, m.loc)), nil
	}
	_, err := m.store.CreateSession(ctx, CreateSessionInput{
		ConversationID: in.ConversationID,
		Topic:          topic,
		Kind:           KindSchedule,
		State:          StatePendingDefaults,
		CreatedBy:      in.UserID,
		Settings:       DefaultSettings(),
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return textReply(fmt.Sprintf("「%s」の投票を開始します。\n%s", topic, DefaultsPrompt)), nil
}

func (m *Machine) acceptDefaults(ctx context.Context, session Session) (*Reply, error) {
	options := GenerateDefaultOptions(session.Settings, m.clock.Now(), m.loc)
	if err := m.store.StartVoting(ctx, session.ID, options); err != nil {
		return nil, fmt.Errorf("start voting: %w", err)
	}

	text := "投票ページ: " + m.link.For(session.ID)
	if m.deadlines != nil {
		deadline, err := m.deadlines.Schedule(ctx, session.ID, session.ConversationID)
		if err != nil {
			log.Printf("deadline schedule failed session_id=%d err=%v", session.ID, err)
		} else {
			text += "\n締切: " + deadline.In(m.loc).Format("01/02 15:04")
		}
	}
	return textReply(text), nil
}

func (m *Machine) addCandidate(ctx context.Context, in Input, session Session, slot Slot) (*Reply, error) {
	_, err := m.store.AddOption(ctx, session.ID, NewOption{
		StartTime: slot.Start,
		EndTime:   slot.End,
		Label:     slot.Label(),
		CreatedBy: in.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("add option: %w", err)
	}
	options, err := m.store.ListOptions(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	return textReply("候補を追加しました。\n" + FormatOptions(options, m.loc)), nil
}

// pick resolves a 1-based listing position against the current listing.
func pick(options []Option, index int) (Option, bool) {
	if index < 1 || index > len(options) {
		return Option{}, false
	}
	return options[index-1], true
}

const badIndexText = "指定の候補番号が見つかりません。"

func (m *Machine) deleteCandidate(ctx context.Context, session Session, index int) (*Reply, error) {
	options, err := m.store.ListOptions(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	chosen, ok := pick(options, index)
	if !ok {
		return textReply(badIndexText), nil
	}
	if err := m.store.DeleteOption(ctx, session.ID, chosen.ID); err != nil && !errors.Is(err, ErrOptionNotFound) {
		return nil, fmt.Errorf("delete option: %w", err)
	}
	options, err = m.store.ListOptions(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	return textReply("候補を削除しました。\n" + FormatOptions(options, m.loc)), nil
}

func (m *Machine) confirm(ctx context.Context, session Session, index int) (*Reply, error) {
	options, err := m.store.ListOptions(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	chosen, ok := pick(options, index)
	if !ok {
		return textReply(badIndexText), nil
	}
	finalID := chosen.ID
	if err := m.store.CloseSession(ctx, session.ID, &finalID); err != nil {
		return nil, fmt.Errorf("close session: %w", err)
	}
	return textReply("候補を確定しました。" + slotIn(chosen, m.loc).Label()), nil
}

func (m *Machine) vote(ctx context.Context, in Input, session Session, index int) (*Reply, error) {
	options, err := m.store.ListOptions(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	chosen, ok := pick(options, index)
	if !ok {
		return textReply(badIndexText), nil
	}
	err = m.store.RecordVote(ctx, session.ID, chosen.ID, in.UserID)
	switch {
	case errors.Is(err, ErrSessionClosed):
		return textReply("進行中の投票がありません。"), nil
	case errors.Is(err, ErrOptionNotFound):
		return textReply(badIndexText), nil
	case err != nil:
		return nil, fmt.Errorf("record vote: %w", err)
	}
	options, err = m.store.ListOptions(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	return textReply("投票を受け付けました。\n" + FormatOptions(options, m.loc)), nil
}

func (m *Machine) startShopPoll(ctx context.Context, in Input, session *Session) (*Reply, error) {
	if session != nil && session.Kind == KindSchedule {
		return textReply("別の投票が進行中です。終了してから試してください。"), nil
	}
	if session != nil && session.Kind == KindShop {
		options, err := m.store.ListOptions(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("list options: %w", err)
		}
		return &Reply{Carousel: ShopColumns(session.ID, options)}, nil
	}

	candidates := ShopPresets
	if m.shops != nil {
		found, err := m.shops.FindShops(ctx, in.ConversationID)
		if err != nil {
			log.Printf("shop finder failed conversation_id=%s err=%v", in.ConversationID, err)
		} else if len(found) > 0 {
			candidates = found
		}
	}
	if len(candidates) > carouselMaxColumn {
		candidates = candidates[:carouselMaxColumn]
	}

	created, err := m.store.CreateSession(ctx, CreateSessionInput{
		ConversationID: in.ConversationID,
		Topic:          shopAltText,
		Kind:           KindShop,
		State:          StateShopVoting,
		CreatedBy:      in.UserID,
		Settings:       DefaultSettings(),
	})
	if err != nil {
		return nil, fmt.Errorf("create shop session: %w", err)
	}

	// Shop options carry staggered times only so the listing keeps preset order.
	now := m.clock.Now()
	options := make([]NewOption, 0, len(candidates))
	for i, c := range candidates {
		start := now.Add(time.Duration(i) * time.Minute)
		options = append(options, NewOption{
			StartTime:   start,
			EndTime:     start.Add(time.Hour),
			Label:       c.Name,
			Description: c.Description,
			CreatedBy:   in.UserID,
		})
	}
	if err := m.store.ReplaceOptions(ctx, created.ID, options); err != nil {
		return nil, fmt.Errorf("create shop options: %w", err)
	}
	listed, err := m.store.ListOptions(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	return &Reply{Carousel: ShopColumns(created.ID, listed)}, nil
}

// HandlePostback records a carousel vote. Unknown postback data yields a nil reply.
func (m *Machine) HandlePostback(ctx context.Context, pb Postback) (*Reply, error) {
	sessionID, optionID, ok := ParseShopVoteData(pb.Data)
	if !ok {
		return nil, nil
	}
	session, err := m.store.GetSession(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return textReply("お店投票が進行中ではありません。"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session.Kind != KindShop {
		return textReply("お店投票が進行中ではありません。"), nil
	}

	err = m.store.RecordVote(ctx, sessionID, optionID, pb.UserID)
	switch {
	case errors.Is(err, ErrSessionClosed):
		return textReply("この投票は終了しています。"), nil
	case errors.Is(err, ErrOptionNotFound):
		return textReply("指定のお店が見つかりません。"), nil
	case err != nil:
		return nil, fmt.Errorf("record shop vote: %w", err)
	}

	options, err := m.store.ListOptions(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	for _, o := range options {
		if o.ID == optionID {
			return textReply(fmt.Sprintf("「%s」に投票しました。", o.Label)), nil
		}
	}
	return textReply("投票を受け付けました。"), nil
}

func ParseShopVoteData(data string) (int64, int64, bool) {
	if !strings.HasPrefix(data, shopVotePrefix) {
		return 0, 0, false
	}
	parts := strings.Split(strings.TrimPrefix(data, shopVotePrefix), ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	sessionID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	optionID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return sessionID, optionID, true
}
