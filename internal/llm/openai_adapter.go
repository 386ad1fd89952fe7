package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultOpenAIBaseURL is the default OpenAI API endpoint.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIAdapterConfig holds extended configuration for OpenAI-compatible adapters.
type OpenAIAdapterConfig struct {
	APIKey       string
	Model        string
	MaxTokens    int
	Temperature  float32
	BaseURL      string            // custom base URL, for OpenAI-compatible gateways
	ExtraHeaders map[string]string // custom headers, for gateways that require them
	HTTPTimeout  time.Duration
}

// OpenAIAdapter implements Provider for OpenAI-compatible chat completion APIs.
type OpenAIAdapter struct {
	apiKey       string
	model        string
	maxTokens    int
	temperature  float32
	baseURL      string
	extraHeaders map[string]string
	httpClient   *http.Client
}

// NewOpenAIAdapter creates an adapter against the public OpenAI endpoint.
func NewOpenAIAdapter(apiKey, model string, maxTokens int, temperature float32) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai: API key cannot be empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if maxTokens == 0 {
		maxTokens = 1000
	}
	if temperature == 0 {
		temperature = 0.7
	}

	return &OpenAIAdapter{
		apiKey:      apiKey,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		baseURL:     DefaultOpenAIBaseURL,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// NewOpenAIAdapterWithConfig creates an OpenAI-compatible adapter for a non-default
// endpoint (self-hosted gateways and the like).
func NewOpenAIAdapterWithConfig(config OpenAIAdapterConfig) (*OpenAIAdapter, error) {
	if config.Model == "" {
		return nil, errors.New("openai: model is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultOpenAIBaseURL
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 2048
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 120 * time.Second
	}

	return &OpenAIAdapter{
		apiKey:       config.APIKey,
		model:        config.Model,
		maxTokens:    config.MaxTokens,
		temperature:  config.Temperature,
		baseURL:      strings.TrimSuffix(config.BaseURL, "/"),
		extraHeaders: config.ExtraHeaders,
		httpClient:   &http.Client{Timeout: config.HTTPTimeout},
	}, nil
}

func (o *OpenAIAdapter) Available() bool { return o.apiKey != "" }

func (o *OpenAIAdapter) Kind() string { return "openai-style" }

func (o *OpenAIAdapter) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	for key, value := range o.extraHeaders {
		req.Header.Set(key, value)
	}
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate implements Provider.
func (o *OpenAIAdapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
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

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", &ProviderError{Kind: KindProviderError, Provider: o.Kind(), Err: err}
	}
	o.setHeaders(httpReq)

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

	var parsed openAIChatResponse
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(raw, &parsed)
		if parsed.Error != nil && isContentPolicyMessage(parsed.Error.Type, parsed.Error.Message) {
			return "", &ProviderError{Kind: KindContentBlocked, Provider: o.Kind(), Err: errors.New(parsed.Error.Message)}
		}
		return "", &ProviderError{Kind: KindProviderError, Provider: o.Kind(), Err: errors.New(string(raw))}
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

// classifyHTTPError maps net/http transport failures onto the Kind taxonomy.
func classifyHTTPError(provider string, ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &ProviderError{Kind: KindTimeout, Provider: provider, Err: ctx.Err()}
	}
	return &ProviderError{Kind: KindTransient, Provider: provider, Err: err}
}

func isContentPolicyMessage(errType, msg string) bool {
	lower := strings.ToLower(msg + " " + errType)
	return strings.Contains(lower, "content_policy") || strings.Contains(lower, "content policy") || strings.Contains(lower, "safety")
}
