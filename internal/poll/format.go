package poll

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	HelpText = "使い方:\n" +
		"開始 飲み会  -> セッション開始\n" +
		"OK           -> デフォルト候補を作成\n" +
		"候補 8/5 19:00-21:00 -> 候補追加\n" +
		"1            -> 投票\n" +
		"集計         -> 現在の票数\n" +
		"確定 1       -> 確定\n" +
		"削除 3       -> 候補削除\n" +
		"お店投票     -> お店の投票を開始\n" +
		"予約         -> 人気のお店を確認"

	DefaultsPrompt = "デフォルト候補を自動で作成しますか？\n" +
		"期間: 今日〜14日 / 平日19:00-21:00 / 週末18:00-20:00\n" +
		"OKなら「OK」、変更するなら「期間 10日」「時間帯 19:00-21:00」を送ってください。"

	noOptionsText     = "候補がまだありません。"
	shopColumnText    = "このお店に投票しますか？"
	shopVoteLabel     = "投票する"
	shopAltText       = "お店投票"
	shopVotePrefix    = "shop_vote:"
	carouselMaxColumn = 10
)

type Reply struct {
	Text     string
	Carousel *Carousel
}

type Carousel struct {
	AltText string
	Columns []CarouselColumn
}

type CarouselColumn struct {
	Title        string
	Text         string
	ThumbnailURL string
	Actions      []CarouselAction
}

// CarouselAction is a postback when PostbackData is set, otherwise a link to URI.
type CarouselAction struct {
	Label        string
	PostbackData string
	URI          string
}

func textReply(text string) *Reply {
	return &Reply{Text: text}
}

// FormatOptions renders the numbered listing; options must already be sorted.
func FormatOptions(options []Option, loc *time.Location) string {
	if len(options) == 0 {
		return noOptionsText
	}
	lines := make([]string, 0, len(options))
	for i, o := range options {
		lines = append(lines, fmt.Sprintf("%d. %s (%d票)", i+1, slotIn(o, loc).Label(), o.Votes))
	}
	return strings.Join(lines, "\n")
}

func slotIn(o Option, loc *time.Location) Slot {
	if loc == nil {
		return Slot{Start: o.StartTime, End: o.EndTime}
	}
	return Slot{Start: o.StartTime.In(loc), End: o.EndTime.In(loc)}
}

func ShopVoteData(sessionID, optionID int64) string {
	return fmt.Sprintf("%s%d:%d", shopVotePrefix, sessionID, optionID)
}

func ShopColumns(sessionID int64, options []Option) *Carousel {
	columns := make([]CarouselColumn, 0, len(options))
	for _, o := range options {
		if len(columns) == carouselMaxColumn {
			break
		}
		text := o.Description
		if strings.TrimSpace(text) == "" {
			text = shopColumnText
		}
		columns = append(columns, CarouselColumn{
			Title: TruncateRunes(o.Label, 40),
			Text:  TruncateRunes(text, 60),
			Actions: []CarouselAction{{
				Label:        shopVoteLabel,
				PostbackData: ShopVoteData(sessionID, o.ID),
			}},
		})
	}
	return &Carousel{AltText: shopAltText, Columns: columns}
}

func FormatShopRecommendation(options []Option) string {
	if len(options) == 0 {
		return "投票対象がありません。"
	}
	best := 0
	for _, o := range options {
		if o.Votes > best {
			best = o.Votes
		}
	}
	if best == 0 {
		return "まだ投票がありません。"
	}
	winners := make([]string, 0)
	for _, o := range options {
		if o.Votes == best {
			winners = append(winners, o.Label)
		}
	}
	if len(winners) == 1 {
		return fmt.Sprintf("現状「%s」が人気だけど、この店にしますか？", winners[0])
	}
	return fmt.Sprintf("現状同率で人気: %s。どの店にしますか？", strings.Join(winners, " / "))
}

func TruncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
