package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// OpenRouterAdapter implements Provider for OpenRouter's unified, OpenAI-compatible API.
type OpenRouterAdapter struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float32
	baseURL     string
	siteURL     string // optional, sets HTTP-Referer for OpenRouter rankings
	siteName    string // optional, sets X-Title for OpenRouter rankings
	httpClient  *http.Client
}

// NewOpenRouterAdapter creates a new OpenRouterAdapter instance.
func NewOpenRouterAdapter(apiKey, model, baseURL string, maxTokens int, temperature float32, siteURL, siteName string) (*OpenRouterAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openrouter: API key cannot be empty")
	}
	if model == "" {
		model = "openai/gpt-3.5-turbo"
	}
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	if maxTokens == 0 {
		maxTokens = 2000
	}
	if temperature == 0 {
		temperature = 0.7
	}

	return &OpenRouterAdapter{
		apiKey:      apiKey,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		siteURL:     siteURL,
		siteName:    siteName,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
	}, nil
}

func (o *OpenRouterAdapter) Available() bool { return o.apiKey != "" }

func (o *OpenRouterAdapter) Kind() string { return "openai-style" }

type openRouterChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate implements Provider.
func (o *OpenRouterAdapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if req.Prompt == "" {
		return "", &ProviderError{Kind: KindProviderError, Provider: o.Kind(), Err: errors.New("prompt cannot be empty")}
	}

	maxTokens := o.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	temperature := o.temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = o.httpClient.Timeout
	}

	messages := []map[string]string{}
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})

	body, err := json.Marshal(map[string]interface{}{
		"model":       o.model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": temperature,
	})
	if err != nil {
		return "", &ProviderError{Kind: KindProviderError, Provider: o.Kind(), Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", &ProviderError{Kind: KindProviderError, Provider: o.Kind(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	if o.siteURL != "" {
		httpReq.Header.Set("HTTP-Referer", o.siteURL)
	}
	if o.siteName != "" {
		httpReq.Header.Set("X-Title", o.siteName)
	}

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", classifyHTTPError(o.Kind(), ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &ProviderError{Kind: KindRateLimit, Provider: o.Kind(), Err: errors.New("rate limited")}
	}
	if resp.StatusCode >= 500 {
		return "", &ProviderError{Kind: KindTransient, Provider: o.Kind(), Err: errors.New("upstream 5xx")}
	}

	var parsed openRouterChatResponse
	if resp.StatusCode != http.StatusOK {
		_ = json.NewDecoder(resp.Body).Decode(&parsed)
		if parsed.Error != nil {
			if isContentPolicyMessage(parsed.Error.Type, parsed.Error.Message) {
				return "", &ProviderError{Kind: KindContentBlocked, Provider: o.Kind(), Err: errors.New(parsed.Error.Message)}
			}
			return "", &ProviderError{Kind: KindProviderError, Provider: o.Kind(), Err: errors.New(parsed.Error.Message)}
		}
		return "", &ProviderError{Kind: KindProviderError, Provider: o.Kind(), Err: errors.New("openrouter request failed")}
	}

	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &ProviderError{Kind: KindProviderError, Provider: o.Kind(), Err: err}
	}
	if len(parsed.Choices) == 0 {
		return "", &ProviderError{Kind: KindProviderError, Provider: o.Kind(), Err: errors.New("no completion choices returned")}
	}
	if parsed.Choices[0].FinishReason == "content_filter" {
		return "", &ProviderError{Kind: KindContentBlocked, Provider: o.Kind(), Err: errors.New("finish_reason: content_filter")}
	}

	return parsed.Choices[0].Message.Content, nil
}
