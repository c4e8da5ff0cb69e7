// Package hotpepper searches restaurants on the Hotpepper Gourmet API.
//
// Lookups never fail with an error: transport and decoding problems come back
// as a Result with Error set and zero counts, so callers can fall back.
package hotpepper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://webservice.recruit.co.jp/hotpepper/gourmet/v1/"
	maxCount       = 100
)

type Shop struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	NameKana      string  `json:"name_kana"`
	Address       string  `json:"address"`
	StationName   string  `json:"station_name"`
	Access        string  `json:"access"`
	URL           string  `json:"url"`
	Photo         string  `json:"photo"`
	PhotoSmall    string  `json:"photo_s"`
	Genre         string  `json:"genre"`
	Budget        string  `json:"budget"`
	BudgetAverage string  `json:"budget_average"`
	Open          string  `json:"open"`
	Close         string  `json:"close"`
	Catch         string  `json:"catch"`
	Capacity      int     `json:"capacity"`
	PrivateRoom   string  `json:"private_room"`
	Card          string  `json:"card"`
	NonSmoking    string  `json:"non_smoking"`
	Parking       string  `json:"parking"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
}

type Result struct {
	Error            string `json:"error,omitempty"`
	ResultsAvailable int    `json:"results_available"`
	ResultsReturned  int    `json:"results_returned"`
	ResultsStart     int    `json:"results_start,omitempty"`
	Shops            []Shop `json:"shops"`
}

func failed(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...), Shops: []Shop{}}
}

type SearchParams struct {
	Area       string
	GenreCodes []string
	BudgetCode string
	Keyword    string
	Count      int
	Start      int
}

type Config struct {
	APIKey         string
	BaseURL        string
	TimeoutSeconds int
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	timeoutSeconds := cfg.TimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = 10
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
	}
}

func (c *Client) Search(ctx context.Context, p SearchParams) Result {
	if c.apiKey == "" {
		return failed("HOTPEPPER_API_KEY is not configured")
	}
	count := p.Count
	if count <= 0 {
		count = 10
	}
	if count > maxCount {
		count = maxCount
	}
	start := p.Start
	if start <= 0 {
		start = 1
	}

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("format", "json")
	q.Set("count", strconv.Itoa(count))
	q.Set("start", strconv.Itoa(start))
	keyword := strings.TrimSpace(strings.TrimSpace(p.Area) + " " + strings.TrimSpace(p.Keyword))
	if keyword != "" {
		q.Set("keyword", keyword)
	}
	if len(p.GenreCodes) > 0 && strings.TrimSpace(p.GenreCodes[0]) != "" {
		q.Set("genre", strings.TrimSpace(p.GenreCodes[0]))
	}
	if b := strings.TrimSpace(p.BudgetCode); b != "" {
		q.Set("budget", b)
	}
	return c.get(ctx, q)
}

// FetchByID returns an empty, error-free Result when the shop does not exist.
func (c *Client) FetchByID(ctx context.Context, shopID string) Result {
	if c.apiKey == "" {
		return failed("HOTPEPPER_API_KEY is not configured")
	}
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("format", "json")
	q.Set("id", shopID)
	q.Set("count", "1")
	result := c.get(ctx, q)
	if len(result.Shops) > 1 {
		result.Shops = result.Shops[:1]
	}
	return result
}

func (c *Client) get(ctx context.Context, q url.Values) Result {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return failed("Unexpected error: %v", err)
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return failed("Network error: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return failed("API request failed with status %d", response.StatusCode)
	}
	// The API labels JSON as text/javascript, so the content type is ignored.
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return failed("Network error: %v", err)
	}
	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return failed("Failed to decode API response")
	}
	if len(envelope.Results.Error) > 0 {
		return failed("API error: %s", envelope.Results.Error[0].Message)
	}

	shops := make([]Shop, 0, len(envelope.Results.Shop))
	for _, s := range envelope.Results.Shop {
		shops = append(shops, s.flatten())
	}
	start := int(envelope.Results.ResultsStart)
	if start == 0 {
		start = 1
	}
	return Result{
		ResultsAvailable: int(envelope.Results.ResultsAvailable),
		ResultsReturned:  int(envelope.Results.ResultsReturned),
		ResultsStart:     start,
		Shops:            shops,
	}
}
