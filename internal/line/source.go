package line

import (
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

type source struct {
	ConversationID string
	UserID         string
	Direct         bool
}

func sourceOf(s webhook.SourceInterface) source {
	switch v := s.(type) {
	case webhook.UserSource:
		return source{ConversationID: v.UserId, UserID: v.UserId, Direct: true}
	case *webhook.UserSource:
		return source{ConversationID: v.UserId, UserID: v.UserId, Direct: true}
	case webhook.GroupSource:
		return source{ConversationID: v.GroupId, UserID: v.UserId}
	case *webhook.GroupSource:
		return source{ConversationID: v.GroupId, UserID: v.UserId}
	case webhook.RoomSource:
		return source{ConversationID: v.RoomId, UserID: v.UserId}
	case *webhook.RoomSource:
		return source{ConversationID: v.RoomId, UserID: v.UserId}
	}
	return source{ConversationID: "unknown"}
}

// span is a mention position in UTF-16 code units, as LINE reports it.
type span struct {
	index  int
	length int
}

func mentionSpans(m *webhook.Mention) []span {
	if m == nil {
		return nil
	}
	out := make([]span, 0, len(m.Mentionees))
	for _, item := range m.Mentionees {
		switch v := item.(type) {
		case webhook.UserMentionee:
			out = append(out, span{index: int(v.Index), length: int(v.Length)})
		case *webhook.UserMentionee:
			out = append(out, span{index: int(v.Index), length: int(v.Length)})
		case webhook.AllMentionee:
			out = append(out, span{index: int(v.Index), length: int(v.Length)})
		case *webhook.AllMentionee:
			out = append(out, span{index: int(v.Index), length: int(v.Length)})
		}
	}
	return out
}

// shouldHandle accepts every 1:1 message; in groups and rooms the bot
// answers only when mentioned.
func shouldHandle(src source, text string, spans []span, botMention string) bool {
	if src.Direct {
		return true
	}
	if len(spans) > 0 {
		return true
	}
	return botMention != "" && strings.Contains(text, botMention)
}

func stripMentions(text string, spans []span, botMention string) string {
	if len(spans) > 0 {
		units := utf16.Encode([]rune(text))
		sorted := append([]span(nil), spans...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].index > sorted[j].index })
		for _, s := range sorted {
			if s.length <= 0 || s.index < 0 || s.index+s.length > len(units) {
				continue
			}
			units = append(units[:s.index:s.index], units[s.index+s.length:]...)
		}
		return strings.TrimSpace(string(utf16.Decode(units)))
	}
	if botMention != "" {
		text = strings.ReplaceAll(text, botMention, "")
	}
	return strings.TrimSpace(text)
}
