// Package core: error routing classifies a failure into a Kind so callers can
// decide whether to retry, fall back to another provider, or give up.
package core

import (
	"context"
	"errors"
	"strings"
)

// ClassifyError returns the Kind carried by err if it is (or wraps) an
// *EngineError, and otherwise falls back to substring matching against the
// error text - the same style of heuristic the vendor adapters use as a last
// resort when a provider's error body doesn't cleanly map to a structured field.
func ClassifyError(ctx context.Context, err error) Kind {
	if err == nil {
		return ""
	}

	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}

	if ctx != nil && ctx.Err() != nil {
		return KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "rate limit", "429", "too many requests"):
		return KindRateLimit
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return KindTimeout
	case containsAny(msg, "content_policy", "content policy", "safety", "blocked", "prohibited_content"):
		return KindContentBlocked
	case containsAny(msg, "connection refused", "connection reset", "eof", "temporary failure", "5xx", "upstream"):
		return KindTransient
	default:
		return KindProviderError
	}
}

// IsRetryable reports whether a call that failed with this Kind should be
// retried by the agent layer. Only the three provider-level transient kinds
// are retryable; content blocking and configuration/input errors are not.
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindTimeout, KindRateLimit, KindTransient:
		return true
	default:
		return false
	}
}

// IsFallbackEligible reports whether a function router should attempt the
// fallback provider for this failure. Per the router's selection rule,
// fallback fires only on content blocking - never on timeouts, rate limits,
// or generic provider errors, which the caller should handle by retrying
// the primary instead.
func IsFallbackEligible(kind Kind) bool {
	return kind == KindContentBlocked
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
