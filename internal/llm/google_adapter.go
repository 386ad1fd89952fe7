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

const defaultGoogleBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GoogleAdapter implements Provider against the Gemini generateContent API.
//
// Google's safety filtering surfaces in three different shapes rather than a
// single error code: an empty candidate list with a prompt-level block
// reason, a candidate whose finish reason is SAFETY or RECITATION, or a
// candidate with no content parts at all. Generate checks all three on a
// 200 response; for any other non-5xx, non-429 status it instead matches
// block wording in the error message.
type GoogleAdapter struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float32
	baseURL     string
	httpClient  *http.Client
}

// NewGoogleAdapter creates an adapter against the public Gemini endpoint.
func NewGoogleAdapter(apiKey, model string, maxTokens int, temperature float32) (*GoogleAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("google: API key cannot be empty")
	}
	if model == "" {
		model = "gemini-1.5-pro"
	}
	if maxTokens == 0 {
		maxTokens = 1024
	}
	if temperature == 0 {
		temperature = 0.7
	}

	return &GoogleAdapter{
		apiKey:      apiKey,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		baseURL:     defaultGoogleBaseURL,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
	}, nil
}

func (g *GoogleAdapter) Available() bool { return g.apiKey != "" }

func (g *GoogleAdapter) Kind() string { return "google-style" }

type googleGenerateRequest struct {
	SystemInstruction *googleContent         `json:"systemInstruction,omitempty"`
	Contents          []googleContent        `json:"contents"`
	GenerationConfig  googleGenerationConfig `json:"generationConfig"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text"`
}

type googleGenerationConfig struct {
	Temperature     float32 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type googleGenerateResponse struct {
	Candidates []struct {
		Content      googleContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// googleBlockedFinishReasons mirrors the finish_reason codes the Gemini API
// uses for safety (3) and recitation (4) refusals when surfaced as strings.
var googleBlockedFinishReasons = map[string]bool{
	"SAFETY":     true,
	"RECITATION": true,
}

// Generate implements Provider.
func (g *GoogleAdapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if req.Prompt == "" {
		return "", &ProviderError{Kind: KindProviderError, Provider: g.Kind(), Err: errors.New("prompt cannot be empty")}
	}

	maxTokens := g.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	temperature := g.temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = g.httpClient.Timeout
	}

	apiReq := googleGenerateRequest{
		Contents: []googleContent{{Role: "user", Parts: []googlePart{{Text: req.Prompt}}}},
		GenerationConfig: googleGenerationConfig{
			Temperature:     temperature,
			MaxOutputTokens: maxTokens,
		},
	}
	if req.System != "" {
		apiReq.SystemInstruction = &googleContent{Parts: []googlePart{{Text: req.System}}}
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return "", &ProviderError{Kind: KindProviderError, Provider: g.Kind(), Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", &ProviderError{Kind: KindProviderError, Provider: g.Kind(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", classifyHTTPError(g.Kind(), ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &ProviderError{Kind: KindRateLimit, Provider: g.Kind(), Err: errors.New("rate limited")}
	}
	if resp.StatusCode >= 500 {
		return "", &ProviderError{Kind: KindTransient, Provider: g.Kind(), Err: errors.New("upstream 5xx")}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ProviderError{Kind: KindProviderError, Provider: g.Kind(), Err: err}
	}

	var parsed googleGenerateResponse
	if resp.StatusCode != http.StatusOK {
		_ = json.Unmarshal(raw, &parsed)
		if parsed.Error != nil && isGoogleBlockMessage(parsed.Error.Message) {
			return "", &ProviderError{Kind: KindContentBlocked, Provider: g.Kind(), Err: errors.New(parsed.Error.Message)}
		}
		if parsed.Error != nil {
			return "", &ProviderError{Kind: KindProviderError, Provider: g.Kind(), Err: errors.New(parsed.Error.Message)}
		}
		return "", &ProviderError{Kind: KindProviderError, Provider: g.Kind(), Err: errors.New(string(raw))}
	}

	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &ProviderError{Kind: KindProviderError, Provider: g.Kind(), Err: err}
	}

	if len(parsed.Candidates) == 0 {
		if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
			return "", &ProviderError{Kind: KindContentBlocked, Provider: g.Kind(), Err: fmt.Errorf("blocked: %s", parsed.PromptFeedback.BlockReason)}
		}
		return "", &ProviderError{Kind: KindProviderError, Provider: g.Kind(), Err: errors.New("no candidates returned")}
	}

	candidate := parsed.Candidates[0]
	if googleBlockedFinishReasons[candidate.FinishReason] {
		return "", &ProviderError{Kind: KindContentBlocked, Provider: g.Kind(), Err: fmt.Errorf("finishReason: %s", candidate.FinishReason)}
	}
	if len(candidate.Content.Parts) == 0 {
		return "", &ProviderError{Kind: KindContentBlocked, Provider: g.Kind(), Err: errors.New("candidate returned no content parts")}
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}
	return text.String(), nil
}

func isGoogleBlockMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "prohibited_content") || strings.Contains(lower, "block_reason") || strings.Contains(lower, "safety")
}
