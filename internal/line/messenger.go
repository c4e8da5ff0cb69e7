// Package line connects the poll machine to the LINE Messaging API: webhook
// intake on one side, replies and pushes on the other.
package line

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"nomikai/apps/backend/internal/poll"
	"nomikai/apps/backend/internal/user"
)

//go:generate mockgen -source=messenger.go -destination=mocks/messenger.go -package=mocks

const (
	maxMessagesPerRequest = 5
	maxMulticastTargets   = 500
	maxTextRunes          = 2000
	carouselFallbackAlt   = "投票"
	shopVoteFallbackText  = "このお店に投票しますか？"
)

var ErrNotConfigured = errors.New("LINE_CHANNEL_ACCESS_TOKEN is not configured")

// Messenger sends bot output. Reply is bound to a webhook reply token and
// carries at most five messages; Push and Multicast batch larger payloads.
type Messenger interface {
	Reply(ctx context.Context, replyToken string, replies ...*poll.Reply) error
	Push(ctx context.Context, to string, replies ...*poll.Reply) error
	Multicast(ctx context.Context, to []string, replies ...*poll.Reply) error
	Profile(ctx context.Context, userID string) (user.Profile, error)
}

type Client struct {
	api *messaging_api.MessagingApiAPI
}

func NewClient(accessToken string) (*Client, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, ErrNotConfigured
	}
	api, err := messaging_api.NewMessagingApiAPI(accessToken)
	if err != nil {
		return nil, fmt.Errorf("create messaging api client: %w", err)
	}
	return &Client{api: api}, nil
}

func (c *Client) Reply(ctx context.Context, replyToken string, replies ...*poll.Reply) error {
	messages := Messages(replies...)
	if replyToken == "" || len(messages) == 0 {
		return nil
	}
	if len(messages) > maxMessagesPerRequest {
		messages = messages[:maxMessagesPerRequest]
	}
	_, err := c.api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   messages,
	})
	if err != nil {
		return fmt.Errorf("line reply: %w", err)
	}
	return nil
}

func (c *Client) Push(ctx context.Context, to string, replies ...*poll.Reply) error {
	messages := Messages(replies...)
	for _, batch := range chunk(messages, maxMessagesPerRequest) {
		_, err := c.api.WithContext(ctx).PushMessage(&messaging_api.PushMessageRequest{
			To:       to,
			Messages: batch,
		}, uuid.NewString())
		if err != nil {
			return fmt.Errorf("line push: %w", err)
		}
	}
	return nil
}

func (c *Client) Multicast(ctx context.Context, to []string, replies ...*poll.Reply) error {
	messages := Messages(replies...)
	for _, targets := range chunk(to, maxMulticastTargets) {
		for _, batch := range chunk(messages, maxMessagesPerRequest) {
			_, err := c.api.WithContext(ctx).Multicast(&messaging_api.MulticastRequest{
				To:       targets,
				Messages: batch,
			}, uuid.NewString())
			if err != nil {
				return fmt.Errorf("line multicast: %w", err)
			}
		}
	}
	return nil
}

func (c *Client) Profile(ctx context.Context, userID string) (user.Profile, error) {
	profile, err := c.api.WithContext(ctx).GetProfile(userID)
	if err != nil {
		return user.Profile{}, fmt.Errorf("line profile: %w", err)
	}
	return user.Profile{
		LineUserID:  userID,
		DisplayName: profile.DisplayName,
		PictureURL:  profile.PictureUrl,
	}, nil
}

// Messages converts replies to API messages. A reply with both text and a
// carousel yields the text first.
func Messages(replies ...*poll.Reply) []messaging_api.MessageInterface {
	out := make([]messaging_api.MessageInterface, 0, len(replies))
	for _, r := range replies {
		if r == nil {
			continue
		}
		if text := strings.TrimSpace(r.Text); text != "" {
			out = append(out, messaging_api.TextMessage{Text: poll.TruncateRunes(text, maxTextRunes)})
		}
		if r.Carousel != nil && len(r.Carousel.Columns) > 0 {
			out = append(out, carouselMessage(r.Carousel))
		}
	}
	return out
}

func carouselMessage(c *poll.Carousel) *messaging_api.TemplateMessage {
	alt := c.AltText
	if alt == "" {
		alt = carouselFallbackAlt
	}
	columns := make([]messaging_api.CarouselColumn, 0, len(c.Columns))
	for _, col := range c.Columns {
		text := col.Text
		if text == "" {
			text = shopVoteFallbackText
		}
		actions := make([]messaging_api.ActionInterface, 0, len(col.Actions))
		for _, a := range col.Actions {
			if a.PostbackData != "" {
				actions = append(actions, &messaging_api.PostbackAction{Label: a.Label, Data: a.PostbackData})
				continue
			}
			actions = append(actions, &messaging_api.UriAction{Label: a.Label, Uri: a.URI})
		}
		columns = append(columns, messaging_api.CarouselColumn{
			ThumbnailImageUrl: col.ThumbnailURL,
			Title:             col.Title,
			Text:              text,
			Actions:           actions,
		})
	}
	return &messaging_api.TemplateMessage{
		AltText:  poll.TruncateRunes(alt, 400),
		Template: &messaging_api.CarouselTemplate{Columns: columns},
	}
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
