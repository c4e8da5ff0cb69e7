package line

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"nomikai/apps/backend/internal/kv"
	"nomikai/apps/backend/internal/poll"
	"nomikai/apps/backend/internal/restaurant"
	"nomikai/apps/backend/internal/user"
)

const (
	signatureHeader = "X-Line-Signature"
	dedupeTTL       = 10 * time.Minute
	dedupePrefix    = "line_event:"

	followGreeting = "友だち追加ありがとうございます！\nGoogleカレンダーと連携すると、スケジュール調整ができるようになります。"
)

// Conversation is the poll state machine as seen from LINE.
type Conversation interface {
	Handle(ctx context.Context, in poll.Input) (*poll.Reply, error)
	HandlePostback(ctx context.Context, pb poll.Postback) (*poll.Reply, error)
}

type ShopVotes interface {
	RecordVote(ctx context.Context, v restaurant.Vote) (int64, error)
}

type Members interface {
	Upsert(ctx context.Context, p user.Profile) (user.User, error)
}

type HandlerConfig struct {
	ChannelSecret string
	BotMention    string
	Messenger     Messenger
	Conversation  Conversation
	ShopVotes     ShopVotes
	Members       Members
	// Seen dedupes redelivered events; nil disables deduplication.
	Seen kv.Store
}

type Handler struct {
	secret       string
	botMention   string
	messenger    Messenger
	conversation Conversation
	shopVotes    ShopVotes
	members      Members
	seen         kv.Store
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		secret:       strings.TrimSpace(cfg.ChannelSecret),
		botMention:   strings.TrimSpace(cfg.BotMention),
		messenger:    cfg.Messenger,
		conversation: cfg.Conversation,
		shopVotes:    cfg.ShopVotes,
		members:      cfg.Members,
		seen:         cfg.Seen,
	}
}

func writeError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// Webhook verifies the delivery and processes its events in order.
func (h *Handler) Webhook(c *gin.Context) {
	if h.secret == "" {
		writeError(c, http.StatusInternalServerError, "LINE_CHANNEL_SECRET is not configured")
		return
	}
	signature := strings.TrimSpace(c.GetHeader(signatureHeader))
	if signature == "" {
		writeError(c, http.StatusBadRequest, "Missing X-Line-Signature header")
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, http.StatusBadRequest, "Unable to read request body")
		return
	}
	if !webhook.ValidateSignature(h.secret, signature, body) {
		writeError(c, http.StatusUnauthorized, "Invalid signature")
		return
	}
	var req webhook.CallbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	ctx := c.Request.Context()
	handled := 0
	for _, event := range req.Events {
		if h.duplicate(ctx, event) {
			continue
		}
		if err := h.dispatch(ctx, event); err != nil {
			log.Printf("line event failed type=%T err=%v", event, err)
			continue
		}
		handled++
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "handledEvents": handled})
}

func (h *Handler) duplicate(ctx context.Context, event webhook.EventInterface) bool {
	id := eventID(event)
	if h.seen == nil || id == "" {
		return false
	}
	first, err := h.seen.SetNX(ctx, dedupePrefix+id, "1", dedupeTTL)
	if err != nil {
		log.Printf("line event dedupe failed webhook_event_id=%s err=%v", id, err)
		return false
	}
	if !first {
		log.Printf("line event redelivered webhook_event_id=%s skipped", id)
	}
	return !first
}

func (h *Handler) dispatch(ctx context.Context, event webhook.EventInterface) error {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return h.onMessage(ctx, e)
	case *webhook.MessageEvent:
		return h.onMessage(ctx, *e)
	case webhook.PostbackEvent:
		return h.onPostback(ctx, e)
	case *webhook.PostbackEvent:
		return h.onPostback(ctx, *e)
	case webhook.FollowEvent:
		return h.onFollow(ctx, e)
	case *webhook.FollowEvent:
		return h.onFollow(ctx, *e)
	case webhook.UnfollowEvent:
		src := sourceOf(e.Source)
		log.Printf("line user unfollowed line_user_id=%s", src.UserID)
		return nil
	case *webhook.UnfollowEvent:
		src := sourceOf(e.Source)
		log.Printf("line user unfollowed line_user_id=%s", src.UserID)
		return nil
	}
	log.Printf("line event skipped type=%T", event)
	return nil
}

func (h *Handler) onMessage(ctx context.Context, e webhook.MessageEvent) error {
	var content webhook.TextMessageContent
	switch m := e.Message.(type) {
	case webhook.TextMessageContent:
		content = m
	case *webhook.TextMessageContent:
		content = *m
	default:
		return nil
	}
	src := sourceOf(e.Source)
	spans := mentionSpans(content.Mention)
	if !shouldHandle(src, content.Text, spans, h.botMention) {
		return nil
	}
	text := stripMentions(content.Text, spans, h.botMention)
	log.Printf("line text conversation_id=%s line_user_id=%s", src.ConversationID, src.UserID)

	reply, err := h.conversation.Handle(ctx, poll.Input{
		ConversationID: src.ConversationID,
		UserID:         src.UserID,
		Text:           text,
	})
	if err != nil {
		return fmt.Errorf("handle message: %w", err)
	}
	return h.reply(ctx, e.ReplyToken, reply)
}

func (h *Handler) onPostback(ctx context.Context, e webhook.PostbackEvent) error {
	if e.Postback == nil {
		return nil
	}
	src := sourceOf(e.Source)
	if src.UserID == "" {
		return nil
	}
	data := e.Postback.Data

	if vote, ok := restaurant.ParseSelectShopData(data); ok {
		if h.shopVotes == nil {
			return nil
		}
		vote.LineUserID = src.UserID
		if _, err := h.shopVotes.RecordVote(ctx, vote); err != nil {
			return fmt.Errorf("record shop selection: %w", err)
		}
		name := vote.RestaurantName
		if name == "" {
			name = vote.RestaurantID
		}
		return h.reply(ctx, e.ReplyToken, &poll.Reply{Text: fmt.Sprintf("「%s」に投票しました！", name)})
	}

	reply, err := h.conversation.HandlePostback(ctx, poll.Postback{
		ConversationID: src.ConversationID,
		UserID:         src.UserID,
		Data:           data,
	})
	if err != nil {
		return fmt.Errorf("handle postback: %w", err)
	}
	return h.reply(ctx, e.ReplyToken, reply)
}

func (h *Handler) onFollow(ctx context.Context, e webhook.FollowEvent) error {
	src := sourceOf(e.Source)
	if src.UserID == "" {
		return nil
	}
	if h.members != nil {
		profile := user.Profile{LineUserID: src.UserID}
		if h.messenger != nil {
			fetched, err := h.messenger.Profile(ctx, src.UserID)
			if err != nil {
				log.Printf("line profile lookup failed line_user_id=%s err=%v", src.UserID, err)
			} else {
				profile = fetched
			}
		}
		if _, err := h.members.Upsert(ctx, profile); err != nil {
			return fmt.Errorf("register follower: %w", err)
		}
	}
	return h.reply(ctx, e.ReplyToken, &poll.Reply{Text: followGreeting})
}

// reply failures are logged and dropped; the event still counts as handled.
func (h *Handler) reply(ctx context.Context, token string, reply *poll.Reply) error {
	if reply == nil || token == "" || h.messenger == nil {
		return nil
	}
	if err := h.messenger.Reply(ctx, token, reply); err != nil {
		log.Printf("line reply failed err=%v", err)
	}
	return nil
}

func eventID(event webhook.EventInterface) string {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return e.WebhookEventId
	case *webhook.MessageEvent:
		return e.WebhookEventId
	case webhook.PostbackEvent:
		return e.WebhookEventId
	case *webhook.PostbackEvent:
		return e.WebhookEventId
	case webhook.FollowEvent:
		return e.WebhookEventId
	case *webhook.FollowEvent:
		return e.WebhookEventId
	case webhook.UnfollowEvent:
		return e.WebhookEventId
	case *webhook.UnfollowEvent:
		return e.WebhookEventId
	}
	return ""
}
