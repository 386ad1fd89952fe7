package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

const defaultXAIBaseURL = "https://api.x.ai/v1"

// XAIAdapter implements Provider against xAI's OpenAI-compatible chat completions
// endpoint. It is typically wired as a function's fallback provider: a function
// mapping routes content blocked by a stricter primary (Google, for instance)
// to xAI for a second attempt.
type XAIAdapter struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float32
	baseURL     string
	httpClient  *http.Client
}

// NewXAIAdapter creates an adapter against the public xAI endpoint.
func NewXAIAdapter(apiKey, model string, maxTokens int, temperature float32) (*XAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("xai: API key cannot be empty")
	}
	if model == "" {
		model = "grok-2-latest"
	}
	if maxTokens == 0 {
		maxTokens = 1024
	}
	if temperature == 0 {
		temperature = 0.7
	}

	return &XAIAdapter{
		apiKey:      apiKey,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		baseURL:     defaultXAIBaseURL,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
	}, nil
}

func (x *XAIAdapter) Available() bool { return x.apiKey != "" }

func (x *XAIAdapter) Kind() string { return "xai-style" }

// Generate implements Provider. xAI speaks the OpenAI chat completions wire
// format, so the response shape and error classification mirror the OpenAI
// adapter directly.
func (x *XAIAdapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if req.Prompt == "" {
		return "", &ProviderError{Kind: KindProviderError, Provider: x.Kind(), Err: errors.New("prompt cannot be empty")}
	}

	maxTokens := x.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	temperature := x.temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = x.httpClient.Timeout
	}

	messages := []map[string]string{}
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})

	body, err := json.Marshal(map[string]interface{}{
		"model":       x.model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": temperature,
	})
	if err != nil {
		return "", &ProviderError{Kind: KindProviderError, Provider: x.Kind(), Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", &ProviderError{Kind: KindProviderError, Provider: x.Kind(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+x.apiKey)

	resp, err := x.httpClient.Do(httpReq)
	if err != nil {
		return "", classifyHTTPError(x.Kind(), ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &ProviderError{Kind: KindRateLimit, Provider: x.Kind(), Err: errors.New("rate limited")}
	}
	if resp.StatusCode >= 500 {
		return "", &ProviderError{Kind: KindTransient, Provider: x.Kind(), Err: errors.New("upstream 5xx")}
	}

	var parsed openAIChatResponse
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(raw, &parsed)
		if parsed.Error != nil && isContentPolicyMessage(parsed.Error.Type, parsed.Error.Message) {
			return "", &ProviderError{Kind: KindContentBlocked, Provider: x.Kind(), Err: errors.New(parsed.Error.Message)}
		}
		return "", &ProviderError{Kind: KindProviderError, Provider: x.Kind(), Err: errors.New(string(raw))}
	}

	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &ProviderError{Kind: KindProviderError, Provider: x.Kind(), Err: err}
	}
	if len(parsed.Choices) == 0 {
		return "", &ProviderError{Kind: KindProviderError, Provider: x.Kind(), Err: errors.New("no completion choices returned")}
	}
	if parsed.Choices[0].FinishReason == "content_filter" {
		return "", &ProviderError{Kind: KindContentBlocked, Provider: x.Kind(), Err: errors.New("finish_reason: content_filter")}
	}

	return parsed.Choices[0].Message.Content, nil
}
