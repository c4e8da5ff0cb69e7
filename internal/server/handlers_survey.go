package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"nomikai/apps/backend/internal/hotpepper"
	"nomikai/apps/backend/internal/restaurant"
)

const defaultSearchCount = 10

type saveConditionsRequest struct {
	LineUserID string   `json:"line_user_id"`
	SessionID  int64    `json:"session_id"`
	Area       string   `json:"area"`
	GenreCodes []string `json:"genre_codes"`
	BudgetCode string   `json:"budget_code"`
}

type shopVoteRequest struct {
	SessionID  int64  `json:"session_id"`
	LineUserID string `json:"line_user_id"`
	ShopID     string `json:"shop_id"`
	ShopName   string `json:"shop_name"`
}

type aggregateEnvelope struct {
	Success bool `json:"success"`
	restaurant.Aggregate
}

type searchEnvelope struct {
	Success bool `json:"success"`
	hotpepper.Result
}

type usedConditions struct {
	Area       *string  `json:"area"`
	GenreCodes []string `json:"genre_codes"`
	BudgetCode *string  `json:"budget_code"`
}

type sessionSearchEnvelope struct {
	Success        bool           `json:"success"`
	UsedConditions usedConditions `json:"used_conditions"`
	AggregatedFrom int            `json:"aggregated_from"`
	hotpepper.Result
}

func (a *App) saveConditions(c *gin.Context) {
	var req saveConditionsRequest
	if !mustJSON(c, &req) {
		return
	}
	id, err := a.deps.Restaurants.SaveConditions(c.Request.Context(), restaurant.ConditionInput{
		SessionID:  req.SessionID,
		LineUserID: req.LineUserID,
		Area:       req.Area,
		GenreCodes: req.GenreCodes,
		BudgetCode: req.BudgetCode,
	})
	if errors.Is(err, restaurant.ErrInvalidInput) {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeStoreError(c, err, "Failed to save conditions")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "条件を保存しました",
		"id":      id,
	})
}

func (a *App) listConditions(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	conds, err := a.deps.Restaurants.Conditions(c.Request.Context(), sessionID)
	if err != nil {
		writeStoreError(c, err, "Failed to load conditions")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"conditions": conds,
		"count":      len(conds),
	})
}

func (a *App) aggregatedConditions(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	agg, err := a.deps.Restaurants.Aggregated(c.Request.Context(), sessionID)
	if err != nil {
		writeStoreError(c, err, "Failed to aggregate conditions")
		return
	}
	c.JSON(http.StatusOK, aggregateEnvelope{Success: true, Aggregate: agg})
}

func (a *App) searchShops(c *gin.Context) {
	count, ok := searchCount(c)
	if !ok {
		return
	}
	params := hotpepper.SearchParams{
		Area:       strings.TrimSpace(c.Query("area")),
		GenreCodes: splitCSV(c.Query("genre")),
		BudgetCode: strings.TrimSpace(c.Query("budget")),
		Keyword:    strings.TrimSpace(c.Query("keyword")),
		Count:      count,
	}
	result := a.deps.Restaurants.Search(c.Request.Context(), params)
	c.JSON(http.StatusOK, searchEnvelope{Success: result.Error == "", Result: result})
}

func (a *App) searchSessionShops(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	count, ok := searchCount(c)
	if !ok {
		return
	}
	found, err := a.deps.Restaurants.SearchForSession(c.Request.Context(), sessionID, count)
	if err != nil {
		writeStoreError(c, err, "Failed to search shops")
		return
	}
	if found.Aggregate.TotalRespondents == 0 {
		c.JSON(http.StatusOK, gin.H{
			"success":           true,
			"message":           "まだ誰も条件を入力していません",
			"results_available": 0,
			"shops":             []hotpepper.Shop{},
		})
		return
	}
	c.JSON(http.StatusOK, sessionSearchEnvelope{
		Success: found.Result.Error == "",
		UsedConditions: usedConditions{
			Area:       found.Aggregate.MostCommonArea,
			GenreCodes: found.Params.GenreCodes,
			BudgetCode: found.Aggregate.MostCommonBudget,
		},
		AggregatedFrom: found.Aggregate.TotalRespondents,
		Result:         found.Result,
	})
}

func (a *App) submitShopVote(c *gin.Context) {
	var req shopVoteRequest
	if !mustJSON(c, &req) {
		return
	}
	id, err := a.deps.Restaurants.RecordVote(c.Request.Context(), restaurant.Vote{
		SessionID:      req.SessionID,
		LineUserID:     req.LineUserID,
		RestaurantID:   req.ShopID,
		RestaurantName: req.ShopName,
	})
	if errors.Is(err, restaurant.ErrInvalidInput) {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeStoreError(c, err, "Failed to save shop vote")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "投票しました",
		"id":      id,
	})
}

func (a *App) shopVoteTallies(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	tallies, err := a.deps.Restaurants.Tallies(c.Request.Context(), sessionID)
	if err != nil {
		writeStoreError(c, err, "Failed to load shop votes")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"session_id": sessionID,
		"votes":      tallies,
		"count":      len(tallies),
	})
}

// searchCount reads ?count=, clamped to Hotpepper's 1..100 page size.
func searchCount(c *gin.Context) (int, bool) {
	raw := strings.TrimSpace(c.Query("count"))
	if raw == "" {
		return defaultSearchCount, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 100 {
		writeError(c, http.StatusBadRequest, "count must be between 1 and 100")
		return 0, false
	}
	return n, true
}

func splitCSV(raw string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
