package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError_PrefersWrappedEngineErrorKind(t *testing.T) {
	err := &EngineError{Kind: KindRateLimit, Op: "test", Err: errors.New("429")}

	assert.Equal(t, KindRateLimit, ClassifyError(context.Background(), err))
}

func TestClassifyError_FallsBackToMessageHeuristics(t *testing.T) {
	cases := map[string]Kind{
		"429 too many requests":        KindRateLimit,
		"request timed out":            KindTimeout,
		"blocked by content policy":    KindContentBlocked,
		"connection reset by peer":     KindTransient,
		"something entirely different": KindProviderError,
	}
	for msg, want := range cases {
		assert.Equal(t, want, ClassifyError(context.Background(), errors.New(msg)), "message: %q", msg)
	}
}

func TestClassifyError_ContextCancelledTakesPrecedence(t *testing.T) {
	assert.Equal(t, KindCancelled, ClassifyError(context.Background(), context.Canceled))
}

func TestClassifyError_DeadlineExceeded(t *testing.T) {
	assert.Equal(t, KindTimeout, ClassifyError(context.Background(), context.DeadlineExceeded))
}

func TestIsRetryable_OnlyTransientProviderKinds(t *testing.T) {
	assert.True(t, IsRetryable(KindTimeout))
	assert.True(t, IsRetryable(KindRateLimit))
	assert.True(t, IsRetryable(KindTransient))
	assert.False(t, IsRetryable(KindContentBlocked))
	assert.False(t, IsRetryable(KindBadConfiguration))
	assert.False(t, IsRetryable(KindBadInput))
}

func TestIsFallbackEligible_OnlyContentBlocked(t *testing.T) {
	assert.True(t, IsFallbackEligible(KindContentBlocked))
	assert.False(t, IsFallbackEligible(KindTimeout))
	assert.False(t, IsFallbackEligible(KindRateLimit))
	assert.False(t, IsFallbackEligible(KindProviderError))
}
