package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/okral/overseer/internal/config"
)

// APIJudge calls an LLM provider's HTTP API directly. Unlike a worker
// agent it only ever sends one prompt and reads one text answer, so any
// transport or status failure is collapsed into "judgment unavailable".
type APIJudge struct {
	tier   string
	cfg    config.Judge
	apiKey string
	client *http.Client
}

// NewAPIJudge creates a judge that calls LLM APIs.
func NewAPIJudge(tier string, cfg config.Judge, timeout time.Duration) (*APIJudge, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("judge %s: environment variable %s is not set", tier, cfg.APIKeyEnv)
	}
	return &APIJudge{
		tier:   tier,
		cfg:    cfg,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (j *APIJudge) Tier() string { return j.tier }

// Evaluate sends the prompt to the configured API provider.
func (j *APIJudge) Evaluate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	if req.TimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutSec)*time.Second)
		defer cancel()
	}

	switch j.cfg.Provider {
	case "anthropic":
		return j.evalAnthropic(ctx, req, start)
	case "openai":
		return j.evalOpenAI(ctx, req, start)
	default:
		return nil, fmt.Errorf("unsupported API provider: %s", j.cfg.Provider)
	}
}

// evalAnthropic handles Anthropic's Messages API.
func (j *APIJudge) evalAnthropic(ctx context.Context, req Request, start time.Time) (*Response, error) {
	body := map[string]any{
		"model":      j.cfg.Model,
		"max_tokens": 1024,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
	}

	respBody, err := j.post(ctx, "https://api.anthropic.com/v1/messages", body, func(h http.Header) {
		h.Set("x-api-key", j.apiKey)
		h.Set("anthropic-version", "2023-06-01")
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	output := ""
	if len(result.Content) > 0 {
		output = result.Content[0].Text
	}
	return &Response{Output: output, Duration: time.Since(start).Seconds()}, nil
}

// evalOpenAI handles OpenAI-compatible chat completion APIs.
func (j *APIJudge) evalOpenAI(ctx context.Context, req Request, start time.Time) (*Response, error) {
	body := map[string]any{
		"model": j.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
		"max_tokens": 1024,
	}

	respBody, err := j.post(ctx, "https://api.openai.com/v1/chat/completions", body, func(h http.Header) {
		h.Set("Authorization", "Bearer "+j.apiKey)
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	output := ""
	if len(result.Choices) > 0 {
		output = result.Choices[0].Message.Content
	}
	return &Response{Output: output, Duration: time.Since(start).Seconds()}, nil
}

// post marshals the body, sends the request with provider headers applied,
// and returns the raw response body for 200s. Everything else is an error.
func (j *APIJudge) post(ctx context.Context, url string, body map[string]any, headers func(http.Header)) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	headers(httpReq.Header)

	httpResp, err := j.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("API call failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", httpResp.StatusCode, string(respBody))
	}
	return respBody, nil
}
