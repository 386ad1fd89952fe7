// Package core implements the provider abstraction, function router, agent
// layer, execution patterns and pipeline runtime of the orchestration engine.
package core

import (
	"context"
	"fmt"
	"time"
)

// Kind classifies why a call into the orchestration engine failed. Provider-level
// kinds (ContentBlocked, Timeout, RateLimit, Transient, ProviderError) originate
// from an adapter; the rest (BadConfiguration, BadInput, NoProvider, ParseFailed,
// Cancelled) are raised above the provider boundary by the router, agent layer,
// or pipeline runtime.
type Kind string

const (
	KindContentBlocked   Kind = "content_blocked"
	KindTimeout          Kind = "timeout"
	KindRateLimit        Kind = "rate_limit"
	KindTransient        Kind = "transient"
	KindProviderError    Kind = "provider_error"
	KindParseFailed      Kind = "parse_failed"
	KindBadInput         Kind = "bad_input"
	KindBadConfiguration Kind = "bad_configuration"
	KindNoProvider       Kind = "no_provider"
	KindCancelled        Kind = "cancelled"
)

// EngineError wraps a failure with the Kind callers can branch on. Retry
// and fallback decisions throughout the engine switch on Kind, never on
// error text.
type EngineError struct {
	Kind Kind
	Op   string // where the error originated, e.g. "Agent.Execute", "FunctionRouter.Select"
	Err  error
}

func (e *EngineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// ErrorKind extracts the Kind carried by err, defaulting to KindProviderError
// for errors the engine did not itself classify.
func ErrorKind(err error) Kind {
	if err == nil {
		return ""
	}
	var ee *EngineError
	if asEngineError(err, &ee) {
		return ee.Kind
	}
	return KindProviderError
}

func asEngineError(err error, target **EngineError) bool {
	for err != nil {
		if ee, ok := err.(*EngineError); ok {
			*target = ee
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// GenerateParams carries the per-call overrides to a provider's generate operation.
type GenerateParams struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int32
	Timeout     time.Duration
}

// ModelProvider is the uniform contract every vendor-backed adapter satisfies:
// one operation, generate(system, prompt, temperature, max_tokens, timeout) -> text.
type ModelProvider interface {
	// Generate sends a prompt to the backing model and returns its text output,
	// or an *EngineError classifying the failure.
	Generate(ctx context.Context, params GenerateParams) (string, error)

	// Available reports whether the provider has what it needs to be called
	// (credentials, reachable endpoint).
	Available() bool

	// ProviderKind names the vendor family this adapter speaks, e.g. "anthropic-style".
	ProviderKind() string
}

// ProviderConfig names one configured backend: which adapter kind to construct,
// which model to call on it, and the name of the environment variable the
// credential is read from when the provider is constructed, so a config can
// be serialized/distributed without embedding secrets.
type ProviderConfig struct {
	Name            string // unique name referenced by FunctionMapping.Primary/Fallback
	AdapterKind     string // "openai", "azure", "ollama", "openrouter", "anthropic", "google", "xai"
	Model           string
	CredentialEnvVar string // read with os.Getenv at provider construction time
	BaseURL         string // optional, for self-hosted/gateway deployments
	MaxTokens       int32
	Temperature     float32
	Timeout         time.Duration
}
