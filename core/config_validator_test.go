package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateConfig_ValidConfigHasNoProblems(t *testing.T) {
	cfg := &Config{
		Providers: map[string]ProviderConfigToml{
			"primary": {AdapterKind: "anthropic", Model: "claude"},
		},
		Functions: map[string]FunctionMappingToml{
			"draft": {Primary: "primary"},
		},
		Agents: map[string]AgentConfigToml{
			"drafter": {Function: "draft", Template: "go", RetryCount: 1},
		},
	}

	assert.Empty(t, ValidateConfig(cfg))
}

func TestValidateConfig_CatchesUnknownAdapterKind(t *testing.T) {
	cfg := &Config{
		Providers: map[string]ProviderConfigToml{
			"primary": {AdapterKind: "not-a-real-vendor", Model: "claude"},
		},
	}

	problems := ValidateConfig(cfg)

	a := assert.New(t)
	a.NotEmpty(problems)
	a.Contains(problems[0].Field, "adapter_kind")
}

func TestValidateConfig_CatchesUndefinedProviderReferences(t *testing.T) {
	cfg := &Config{
		Providers: map[string]ProviderConfigToml{},
		Functions: map[string]FunctionMappingToml{
			"draft": {Primary: "ghost", Fallback: "also-ghost"},
		},
	}

	problems := ValidateConfig(cfg)

	assert.Len(t, problems, 2)
}

func TestValidateConfig_CatchesNegativeRetryCount(t *testing.T) {
	cfg := &Config{
		Functions: map[string]FunctionMappingToml{"draft": {Primary: "p"}},
		Providers: map[string]ProviderConfigToml{"p": {AdapterKind: "openai", Model: "gpt"}},
		Agents: map[string]AgentConfigToml{
			"drafter": {Function: "draft", Template: "go", RetryCount: -1},
		},
	}

	problems := ValidateConfig(cfg)

	found := false
	for _, p := range problems {
		if p.Field == "agents.drafter.retry_count" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateConfig_CatchesAgentReferencingUndefinedFunction(t *testing.T) {
	cfg := &Config{
		Agents: map[string]AgentConfigToml{
			"drafter": {Function: "ghost-function", Template: "go"},
		},
	}

	problems := ValidateConfig(cfg)

	assert.NotEmpty(t, problems)
}
