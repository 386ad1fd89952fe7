package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const azureAPIVersion = "2024-02-15-preview"

type azureChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

type azureChatCompletionsRequest struct {
	Messages    []azureChatMessage `json:"messages"`
	Temperature float32            `json:"temperature,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
}

type azureChatCompletionsResponse struct {
	Choices []struct {
		Message      azureChatMessage `json:"message"`
		FinishReason string           `json:"finish_reason"`
	} `json:"choices"`
}

type azureErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// AzureOpenAIAdapterOptions holds configuration options for the AzureOpenAIAdapter.
type AzureOpenAIAdapterOptions struct {
	Endpoint       string // Example: "https://your-resource-name.openai.azure.com"
	APIKey         string
	ChatDeployment string
	HTTPClient     *http.Client
}

// AzureOpenAIAdapter implements Provider using direct HTTP calls to an Azure OpenAI deployment.
type AzureOpenAIAdapter struct {
	httpClient      *http.Client
	endpointBaseURL string
	apiKey          string
	chatDeployment  string
}

// NewAzureOpenAIAdapter creates a new adapter for Azure OpenAI using direct HTTP calls.
func NewAzureOpenAIAdapter(opts AzureOpenAIAdapterOptions) (*AzureOpenAIAdapter, error) {
	if opts.Endpoint == "" || opts.ChatDeployment == "" {
		return nil, errors.New("azure adapter requires endpoint and chat deployment")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	return &AzureOpenAIAdapter{
		httpClient:      client,
		endpointBaseURL: strings.TrimSuffix(opts.Endpoint, "/"),
		apiKey:          opts.APIKey,
		chatDeployment:  opts.ChatDeployment,
	}, nil
}

func (a *AzureOpenAIAdapter) Available() bool { return a.apiKey != "" }

func (a *AzureOpenAIAdapter) Kind() string { return "openai-style" }

func (a *AzureOpenAIAdapter) buildURL() string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		a.endpointBaseURL, a.chatDeployment, azureAPIVersion)
}

// Generate implements Provider.
func (a *AzureOpenAIAdapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if req.Prompt == "" {
		return "", &ProviderError{Kind: KindProviderError, Provider: a.Kind(), Err: errors.New("prompt cannot be empty")}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = a.httpClient.Timeout
	}

	messages := []azureChatMessage{}
	if req.System != "" {
		messages = append(messages, azureChatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, azureChatMessage{Role: "user", Content: req.Prompt})

	apiReq := azureChatCompletionsRequest{
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return "", &ProviderError{Kind: KindProviderError, Provider: a.Kind(), Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.buildURL(), bytes.NewBuffer(body))
	if err != nil {
		return "", &ProviderError{Kind: KindProviderError, Provider: a.Kind(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", a.apiKey)

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
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		var apiErr azureErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && isContentPolicyMessage(apiErr.Error.Type, apiErr.Error.Message) {
			return "", &ProviderError{Kind: KindContentBlocked, Provider: a.Kind(), Err: errors.New(apiErr.Error.Message)}
		}
		return "", &ProviderError{Kind: KindProviderError, Provider: a.Kind(), Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))}
	}

	var apiResp azureChatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", &ProviderError{Kind: KindProviderError, Provider: a.Kind(), Err: err}
	}
	if len(apiResp.Choices) == 0 {
		return "", &ProviderError{Kind: KindProviderError, Provider: a.Kind(), Err: errors.New("api returned no choices")}
	}
	if apiResp.Choices[0].FinishReason == "content_filter" {
		return "", &ProviderError{Kind: KindContentBlocked, Provider: a.Kind(), Err: errors.New("finish_reason: content_filter")}
	}

	return apiResp.Choices[0].Message.Content, nil
}
