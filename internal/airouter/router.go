// Package airouter classifies free-form chat messages with the OpenAI
// Responses API when the command grammar finds no match.
package airouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"nomikai/apps/backend/internal/config"
	"nomikai/apps/backend/internal/poll"
)

const systemPrompt = "You are a routing engine for a LINE scheduling assistant.\n" +
	"Given a user message and optional context, return JSON only.\n" +
	"Pick the best action and extract parameters when possible.\n" +
	"If required info is missing or ambiguous, set action=clarify and ask a question.\n" +
	"Never include text outside the JSON output."

var actions = []string{
	"start_poll",
	"add_candidate",
	"vote",
	"tally",
	"confirm",
	"cancel",
	"help",
	"connect_google",
	"find_restaurant",
	"clarify",
}

func nullable(kind string) map[string]any {
	return map[string]any{"type": []string{kind, "null"}}
}

func object(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for name := range props {
		required = append(required, name)
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             required,
		"properties":           props,
	}
}

// Strict structured output needs every property listed as required, so
// optional values are modelled as nullable.
func routerSchema() map[string]any {
	clock := func() map[string]any {
		return object(map[string]any{"start": nullable("string"), "end": nullable("string")})
	}
	params := object(map[string]any{
		"topic": nullable("string"),
		"candidate": object(map[string]any{
			"date":       nullable("string"),
			"start_time": nullable("string"),
			"end_time":   nullable("string"),
		}),
		"vote_index":       nullable("integer"),
		"confirm_index":    nullable("integer"),
		"time_window":      clock(),
		"clarify_question": nullable("string"),
	})
	return object(map[string]any{
		"action":     map[string]any{"type": "string", "enum": actions},
		"confidence": map[string]any{"type": "number"},
		"params":     params,
	})
}

// Decision is the model's routing output.
type Decision struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Params     Params  `json:"params"`
}

type Params struct {
	Topic     *string `json:"topic"`
	Candidate *struct {
		Date      *string `json:"date"`
		StartTime *string `json:"start_time"`
		EndTime   *string `json:"end_time"`
	} `json:"candidate"`
	VoteIndex    *int `json:"vote_index"`
	ConfirmIndex *int `json:"confirm_index"`
	TimeWindow   *struct {
		Start *string `json:"start"`
		End   *string `json:"end"`
	} `json:"time_window"`
	ClarifyQuestion *string `json:"clarify_question"`
}

// Router implements poll.Classifier on top of the Responses API.
type Router struct {
	apiKey          string
	baseURL         string
	model           string
	maxOutputTokens int
	loc             *time.Location
	httpClient      *http.Client
}

func New(cfg config.Config) *Router {
	timeoutSeconds := cfg.AITimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = 20
	}
	return &Router{
		apiKey:          strings.TrimSpace(cfg.OpenAIAPIKey),
		baseURL:         strings.TrimRight(strings.TrimSpace(cfg.OpenAIBaseURL), "/"),
		model:           strings.TrimSpace(cfg.OpenAIModel),
		maxOutputTokens: cfg.AIMaxOutputTokens,
		loc:             cfg.Location(),
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
	}
}

func (r *Router) Classify(ctx context.Context, text string, session *poll.Session) (poll.Intent, float64, error) {
	decision, err := r.Route(ctx, text, session)
	if err != nil {
		return poll.Intent{Action: poll.ActionNone}, 0, err
	}
	return decision.Intent(r.loc), decision.Confidence, nil
}

// Route asks the model for a Decision. A 5xx answer is retried once.
func (r *Router) Route(ctx context.Context, text string, session *poll.Session) (Decision, error) {
	if r.apiKey == "" {
		return Decision{}, errors.New("OPENAI_API_KEY is not configured")
	}
	if r.baseURL == "" {
		return Decision{}, errors.New("OPENAI_BASE_URL is not configured")
	}
	if r.model == "" {
		return Decision{}, errors.New("OPENAI_MODEL is not configured")
	}

	userInput := map[string]any{"message": strings.TrimSpace(text)}
	if session != nil {
		userInput["context"] = map[string]any{
			"topic": session.Topic,
			"kind":  session.Kind,
			"state": session.State,
		}
	}
	userRaw, err := json.Marshal(userInput)
	if err != nil {
		return Decision{}, err
	}

	maxTokens := r.maxOutputTokens
	if maxTokens < 300 {
		maxTokens = 300
	}
	payload := map[string]any{
		"model": r.model,
		"input": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": string(userRaw)},
		},
		"max_output_tokens": maxTokens,
		"text": map[string]any{
			"format": map[string]any{
				"type":   "json_schema",
				"name":   "line_router_output",
				"strict": true,
				"schema": routerSchema(),
			},
		},
	}
	bodyRaw, err := json.Marshal(payload)
	if err != nil {
		return Decision{}, err
	}

	statusCode, responseBody, err := r.post(ctx, bodyRaw)
	if err == nil && statusCode >= 500 {
		statusCode, responseBody, err = r.post(ctx, bodyRaw)
	}
	if err != nil {
		return Decision{}, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return Decision{}, fmt.Errorf("openai responses error (%d): %s", statusCode, truncateForLog(string(responseBody), 500))
	}

	var parsed map[string]any
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return Decision{}, fmt.Errorf("decode openai response: %w", err)
	}
	answer := extractResponseAnswer(parsed)
	if answer == "" {
		log.Printf("openai router response had no output_text: %s", truncateForLog(string(responseBody), 1200))
		return Decision{}, errors.New("openai response missing output_text")
	}
	var decision Decision
	if err := json.Unmarshal([]byte(answer), &decision); err != nil {
		return Decision{}, fmt.Errorf("decode router decision: %w", err)
	}
	return decision, nil
}

func (r *Router) post(ctx context.Context, body []byte) (int, []byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	request.Header.Set("Authorization", "Bearer "+r.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := r.httpClient.Do(request)
	if err != nil {
		return 0, nil, err
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return 0, nil, err
	}
	return response.StatusCode, responseBody, nil
}

func extractResponseAnswer(data map[string]any) string {
	if direct, ok := data["output_text"].(string); ok && strings.TrimSpace(direct) != "" {
		return strings.TrimSpace(direct)
	}
	outputs, _ := data["output"].([]any)
	for _, item := range outputs {
		block, ok := item.(map[string]any)
		if !ok {
			continue
		}
		contentList, _ := block["content"].([]any)
		for _, contentItem := range contentList {
			contentMap, ok := contentItem.(map[string]any)
			if !ok || contentMap["type"] != "output_text" {
				continue
			}
			if text, ok := contentMap["text"].(string); ok && strings.TrimSpace(text) != "" {
				return strings.TrimSpace(text)
			}
		}
	}
	return ""
}

func truncateForLog(value string, limit int) string {
	trimmed := strings.TrimSpace(value)
	if limit <= 0 || len(trimmed) <= limit {
		return trimmed
	}
	return trimmed[:limit] + "...(truncated)"
}
