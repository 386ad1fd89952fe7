// Package core provides public constructors for the vendor adapters that live
// in internal/llm, wrapped to satisfy the public ModelProvider contract.
package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/yarnspinner/pipeline/internal/llm"
)

// NewModelProvider constructs the adapter named by cfg.AdapterKind and wraps it
// as a ModelProvider. The credential is resolved from cfg.CredentialEnvVar here,
// at construction time, not baked into the stored config.
func NewModelProvider(cfg ProviderConfig) (ModelProvider, error) {
	apiKey := ""
	if cfg.CredentialEnvVar != "" {
		apiKey = os.Getenv(cfg.CredentialEnvVar)
	}

	var internalProvider llm.Provider
	var err error

	switch cfg.AdapterKind {
	case "openai":
		if cfg.BaseURL != "" {
			internalProvider, err = llm.NewOpenAIAdapterWithConfig(llm.OpenAIAdapterConfig{
				APIKey: apiKey, Model: cfg.Model, MaxTokens: int(cfg.MaxTokens),
				Temperature: cfg.Temperature, BaseURL: cfg.BaseURL, HTTPTimeout: cfg.Timeout,
			})
		} else {
			internalProvider, err = llm.NewOpenAIAdapter(apiKey, cfg.Model, int(cfg.MaxTokens), cfg.Temperature)
		}
	case "azure":
		internalProvider, err = llm.NewAzureOpenAIAdapter(llm.AzureOpenAIAdapterOptions{
			Endpoint: cfg.BaseURL, APIKey: apiKey, ChatDeployment: cfg.Model,
		})
	case "ollama":
		internalProvider, err = llm.NewOllamaAdapter(cfg.BaseURL, cfg.Model, int(cfg.MaxTokens), cfg.Temperature)
	case "openrouter":
		internalProvider, err = llm.NewOpenRouterAdapter(apiKey, cfg.Model, cfg.BaseURL, int(cfg.MaxTokens), cfg.Temperature, "", "")
	case "anthropic":
		internalProvider, err = llm.NewAnthropicAdapter(apiKey, cfg.Model, int(cfg.MaxTokens), cfg.Temperature)
	case "google":
		internalProvider, err = llm.NewGoogleAdapter(apiKey, cfg.Model, int(cfg.MaxTokens), cfg.Temperature)
	case "xai":
		internalProvider, err = llm.NewXAIAdapter(apiKey, cfg.Model, int(cfg.MaxTokens), cfg.Temperature)
	default:
		return nil, &EngineError{Kind: KindBadConfiguration, Op: "NewModelProvider", Err: fmt.Errorf("unknown adapter kind %q", cfg.AdapterKind)}
	}

	if err != nil {
		return nil, &EngineError{Kind: KindBadConfiguration, Op: "NewModelProvider", Err: err}
	}

	return &modelProviderWrapper{internal: internalProvider, timeout: cfg.Timeout}, nil
}

// modelProviderWrapper adapts an internal/llm.Provider to the public ModelProvider
// interface, translating internal/llm.Kind onto this package's richer Kind taxonomy.
type modelProviderWrapper struct {
	internal llm.Provider
	timeout  time.Duration
}

func (w *modelProviderWrapper) Generate(ctx context.Context, params GenerateParams) (string, error) {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = w.timeout
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	text, err := w.internal.Generate(ctx, llm.GenerateRequest{
		System:      params.System,
		Prompt:      params.Prompt,
		Temperature: params.Temperature,
		MaxTokens:   int(params.MaxTokens),
		Timeout:     timeout,
	})
	if err != nil {
		return "", &EngineError{Kind: translateProviderKind(err), Op: "ModelProvider.Generate", Err: err}
	}
	return text, nil
}

func (w *modelProviderWrapper) Available() bool { return w.internal.Available() }

func (w *modelProviderWrapper) ProviderKind() string { return w.internal.Kind() }

// translateProviderKind maps internal/llm.Kind onto core.Kind. Errors the
// adapter did not classify (e.g. a plain JSON decode failure) fall back to
// KindProviderError.
func translateProviderKind(err error) Kind {
	var pe *llm.ProviderError
	if !errors.As(err, &pe) {
		return KindProviderError
	}
	switch pe.Kind {
	case llm.KindContentBlocked:
		return KindContentBlocked
	case llm.KindTimeout:
		return KindTimeout
	case llm.KindRateLimit:
		return KindRateLimit
	case llm.KindTransient:
		return KindTransient
	default:
		return KindProviderError
	}
}
