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

const defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
const anthropicAPIVersion = "2023-06-01"

// AnthropicAdapter implements Provider against Anthropic's Messages API.
type AnthropicAdapter struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float32
	baseURL     string
	httpClient  *http.Client
}

// NewAnthropicAdapter creates an adapter against the public Anthropic endpoint.
func NewAnthropicAdapter(apiKey, model string, maxTokens int, temperature float32) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: API key cannot be empty")
	}
	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}
	if maxTokens == 0 {
		maxTokens = 1024
	}
	if temperature == 0 {
		temperature = 0.7
	}

	return &AnthropicAdapter{
		apiKey:      apiKey,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		baseURL:     defaultAnthropicBaseURL,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
	}, nil
}

func (a *AnthropicAdapter) Available() bool { return a.apiKey != "" }

func (a *AnthropicAdapter) Kind() string { return "anthropic-style" }

type anthropicMessagesRequest struct {
	Model       string                     `json:"model"`
	System      string                     `json:"system,omitempty"`
	Messages    []anthropicMessage         `json:"messages"`
	MaxTokens   int                        `json:"max_tokens"`
	Temperature float32                    `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicMessagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate implements Provider. The contract and failure classification mirror
// Anthropic's Messages API: a stop_reason of "refusal" or an error type of
// "invalid_request_error" carrying content-policy wording both map to
// KindContentBlocked rather than a generic provider error.
func (a *AnthropicAdapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if req.Prompt == "" {
		return "", &ProviderError{Kind: KindProviderError, Provider: a.Kind(), Err: errors.New("prompt cannot be empty")}
	}

	maxTokens := a.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	temperature := a.temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = a.httpClient.Timeout
	}

	apiReq := anthropicMessagesRequest{
		Model:       a.model,
		System:      req.System,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return "", &ProviderError{Kind: KindProviderError, Provider: a.Kind(), Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewBuffer(body))
	if err != nil {
		return "", &ProviderError{Kind: KindProviderError, Provider: a.Kind(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", classifyHTTPError(a.Kind(), ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &ProviderError{Kind: KindRateLimit, Provider: a.Kind(), Err: errors.New("rate limited")}
	}
	if resp.StatusCode >= 500 {
		return "", &ProviderError{Kind: KindTransient, Provider: a.Kind(), Err: errors.New("upstream 5xx")}
	}

	var parsed anthropicMessagesResponse
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(raw, &parsed)
		if parsed.Error != nil && isContentPolicyMessage(parsed.Error.Type, parsed.Error.Message) {
			return "", &ProviderError{Kind: KindContentBlocked, Provider: a.Kind(), Err: errors.New(parsed.Error.Message)}
		}
		if parsed.Error != nil {
			return "", &ProviderError{Kind: KindProviderError, Provider: a.Kind(), Err: errors.New(parsed.Error.Message)}
		}
		return "", &ProviderError{Kind: KindProviderError, Provider: a.Kind(), Err: errors.New(string(raw))}
	}

	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &ProviderError{Kind: KindProviderError, Provider: a.Kind(), Err: err}
	}
	if parsed.StopReason == "refusal" {
		return "", &ProviderError{Kind: KindContentBlocked, Provider: a.Kind(), Err: errors.New("stop_reason: refusal")}
	}
	if len(parsed.Content) == 0 {
		return "", &ProviderError{Kind: KindProviderError, Provider: a.Kind(), Err: errors.New("no content blocks returned")}
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}
