package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaAdapter implements Provider against a local or remote Ollama server.
type OllamaAdapter struct {
	baseURL     string
	model       string
	maxTokens   int
	temperature float32
	httpClient  *http.Client
}

// NewOllamaAdapter creates a new OllamaAdapter instance.
// baseURL should include scheme and host, e.g. http://localhost:11434
func NewOllamaAdapter(baseURL, model string, maxTokens int, temperature float32) (*OllamaAdapter, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2:latest"
	}
	if maxTokens == 0 {
		maxTokens = 150
	}
	if temperature == 0 {
		temperature = 0.7
	}

	return &OllamaAdapter{
		baseURL:     baseURL,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (o *OllamaAdapter) Available() bool { return o.baseURL != "" }

func (o *OllamaAdapter) Kind() string { return "openai-style" }

// Generate implements Provider.
func (o *OllamaAdapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
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

	payload, err := json.Marshal(map[string]interface{}{
		"model":       o.model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": temperature,
		"stream":      false,
	})
	if err != nil {
		return "", &ProviderError{Kind: KindProviderError, Provider: o.Kind(), Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewBuffer(payload))
	if err != nil {
		return "", &ProviderError{Kind: KindProviderError, Provider: o.Kind(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", classifyHTTPError(o.Kind(), ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", &ProviderError{Kind: KindProviderError, Provider: o.Kind(), Err: fmt.Errorf("ollama error: %s", string(raw))}
	}

	var apiResp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", &ProviderError{Kind: KindProviderError, Provider: o.Kind(), Err: err}
	}

	return apiResp.Message.Content, nil
}
