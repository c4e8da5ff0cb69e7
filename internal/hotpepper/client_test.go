package hotpepper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const sampleBody = `{"results":{
	"results_available": 42,
	"results_returned": "2",
	"results_start": 1,
	"shop": [
		{"id":"J001","name":"居酒屋 ほし","catch":"飲み放題あり","capacity":"40","lat":"35.66","lng":139.7,
		 "urls":{"pc":"https://example.com/J001"},
		 "photo":{"pc":{"l":"https://img/l.jpg","s":"https://img/s.jpg"}},
		 "genre":{"name":"居酒屋"},"budget":{"name":"3001～4000円","average":"3500円"}},
		{"id":"J002","name":"焼肉 まる"}
	]}}`

func TestSearchBuildsQueryAndFlattensShops(t *testing.T) {
	t.Parallel()

	var query map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Header().Set("Content-Type", "text/javascript;charset=utf-8")
		_, _ = w.Write([]byte(sampleBody))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL + "/"})
	result := client.Search(context.Background(), SearchParams{
		Area:       "渋谷",
		Keyword:    "個室",
		GenreCodes: []string{"G001", "G002"},
		BudgetCode: "B003",
		Count:      500,
	})
	if result.Error != "" {
		t.Fatalf("unexpected error %q", result.Error)
	}
	if got := query["keyword"]; len(got) != 1 || got[0] != "渋谷 個室" {
		t.Fatalf("unexpected keyword %v", got)
	}
	if query["genre"][0] != "G001" || query["budget"][0] != "B003" || query["count"][0] != "100" {
		t.Fatalf("unexpected query %v", query)
	}
	if result.ResultsAvailable != 42 || result.ResultsReturned != 2 || len(result.Shops) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	shop := result.Shops[0]
	if shop.URL != "https://example.com/J001" || shop.Photo != "https://img/l.jpg" || shop.Genre != "居酒屋" {
		t.Fatalf("unexpected flattened shop %+v", shop)
	}
	if shop.Capacity != 40 || shop.Lat != 35.66 {
		t.Fatalf("expected loose numbers to decode, got capacity=%d lat=%v", shop.Capacity, shop.Lat)
	}
}

func TestSearchWithoutKeyReturnsErrorResult(t *testing.T) {
	t.Parallel()

	result := NewClient(Config{}).Search(context.Background(), SearchParams{Area: "新宿"})
	if !strings.Contains(result.Error, "HOTPEPPER_API_KEY") {
		t.Fatalf("expected missing key error, got %q", result.Error)
	}
	if result.Shops == nil || len(result.Shops) != 0 || result.ResultsAvailable != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestSearchReportsUpstreamFailures(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("keyword") == "broken" {
			_, _ = w.Write([]byte("<html>"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL})
	if result := client.Search(context.Background(), SearchParams{}); result.Error != "API request failed with status 503" {
		t.Fatalf("unexpected status error %q", result.Error)
	}
	if result := client.Search(context.Background(), SearchParams{Keyword: "broken"}); result.Error != "Failed to decode API response" {
		t.Fatalf("unexpected decode error %q", result.Error)
	}
}

func TestFetchByIDUsesIDParam(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "J001" {
			_, _ = w.Write([]byte(`{"results":{"results_available":0,"results_returned":"0","shop":[]}}`))
			return
		}
		_, _ = w.Write([]byte(sampleBody))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL})
	found := client.FetchByID(context.Background(), "J001")
	if len(found.Shops) != 1 || found.Shops[0].ID != "J001" {
		t.Fatalf("expected single shop, got %+v", found.Shops)
	}
	missing := client.FetchByID(context.Background(), "nope")
	if missing.Error != "" || len(missing.Shops) != 0 {
		t.Fatalf("expected empty error-free result, got %+v", missing)
	}
}

func TestBudgetCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		min, max int
		want     string
		ok       bool
	}{
		{2000, 3000, "B001,B002", true},
		{0, 400, "B009", true},
		{3500, 3600, "B003", true},
		{5000, 1000, "", false},
		{200000, 300000, "", false},
	}
	for _, tc := range cases {
		got, ok := BudgetCode(tc.min, tc.max)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("BudgetCode(%d, %d) = %q, %v; want %q, %v", tc.min, tc.max, got, ok, tc.want, tc.ok)
		}
	}
}
