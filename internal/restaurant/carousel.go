package restaurant

import (
	"net/url"
	"strconv"
	"strings"

	"nomikai/apps/backend/internal/hotpepper"
	"nomikai/apps/backend/internal/poll"
)

const (
	SelectShopAction   = "select_shop"
	defaultShopTitle   = "お店"
	defaultShopText    = "詳細はリンクをご確認ください"
	defaultShopURL     = "https://www.hotpepper.jp/"
	placeholderPhoto   = "https://via.placeholder.com/300x200"
	detailLabel        = "🔗 お店の詳細"
	voteLabel          = "ここがいい！"
	maxCarouselColumns = 10
)

func SelectShopData(sessionID int64, shopID, shopName string) string {
	v := url.Values{}
	v.Set("action", SelectShopAction)
	v.Set("shop_id", shopID)
	v.Set("shop_name", poll.TruncateRunes(shopName, 40))
	if sessionID > 0 {
		v.Set("session_id", strconv.FormatInt(sessionID, 10))
	}
	return v.Encode()
}

// ParseSelectShopData decodes postback data built by SelectShopData.
func ParseSelectShopData(data string) (Vote, bool) {
	if !strings.Contains(data, "action="+SelectShopAction) {
		return Vote{}, false
	}
	v, err := url.ParseQuery(data)
	if err != nil || v.Get("action") != SelectShopAction {
		return Vote{}, false
	}
	sessionID, err := strconv.ParseInt(v.Get("session_id"), 10, 64)
	if err != nil || sessionID <= 0 || v.Get("shop_id") == "" {
		return Vote{}, false
	}
	return Vote{
		SessionID:      sessionID,
		RestaurantID:   v.Get("shop_id"),
		RestaurantName: v.Get("shop_name"),
	}, true
}

// ShopCarousel renders Hotpepper shops; a nil result means there is nothing to show.
func ShopCarousel(shops []hotpepper.Shop, sessionID int64, altText string) *poll.Carousel {
	if len(shops) == 0 {
		return nil
	}
	columns := make([]poll.CarouselColumn, 0, maxCarouselColumns)
	for _, shop := range shops {
		if len(columns) == maxCarouselColumns {
			break
		}
		title := defaultShopTitle
		if shop.Name != "" {
			title = poll.TruncateRunes(shop.Name, 40)
		}
		text := shop.Catch
		if text == "" {
			text = shop.Access
		}
		if text == "" {
			text = defaultShopText
		}
		link := shop.URL
		if link == "" {
			link = defaultShopURL
		}
		photo := shop.Photo
		if photo == "" {
			photo = shop.PhotoSmall
		}
		if photo == "" {
			photo = placeholderPhoto
		}
		actions := []poll.CarouselAction{{Label: detailLabel, URI: link}}
		if sessionID > 0 {
			actions = append(actions, poll.CarouselAction{
				Label:        voteLabel,
				PostbackData: SelectShopData(sessionID, shop.ID, shop.Name),
			})
		}
		columns = append(columns, poll.CarouselColumn{
			Title:        title,
			Text:         poll.TruncateRunes(text, 60),
			ThumbnailURL: photo,
			Actions:      actions,
		})
	}
	return &poll.Carousel{AltText: altText, Columns: columns}
}
