package core

import (
	"os"
	"strconv"
	"strings"
)

// ConfigResolver applies environment variable overrides on top of a loaded
// Config, so a deployment can tune retry counts, temperatures, and max tokens
// without editing the TOML file.
type ConfigResolver struct {
	config *Config
}

// NewConfigResolver wraps config for environment-override resolution.
func NewConfigResolver(config *Config) *ConfigResolver {
	return &ConfigResolver{config: config}
}

// envPrefix names the environment variable family an agent's overrides live
// under: AGENT_<NAME>_RETRY_COUNT, AGENT_<NAME>_TEMPERATURE and
// AGENT_<NAME>_MAX_TOKENS.
func envPrefix(agentName string) string {
	return "AGENT_" + strings.ToUpper(strings.ReplaceAll(agentName, "-", "_")) + "_"
}

// ResolveAgentConfig returns the AgentConfig for agentName with any matching
// environment variable overrides applied.
func (r *ConfigResolver) ResolveAgentConfig(agentName string) (AgentConfig, error) {
	ac, ok := r.config.Agents[agentName]
	if !ok {
		return AgentConfig{}, &EngineError{Kind: KindBadConfiguration, Op: "ConfigResolver.ResolveAgentConfig", Err: errAgentNotFound(agentName)}
	}

	prefix := envPrefix(agentName)
	config := AgentConfig{
		Name:         agentName,
		Function:     ac.Function,
		SystemPrompt: ac.SystemPrompt,
		Template:     ac.Template,
		RetryCount:   ac.RetryCount,
		Temperature:  ac.Temperature,
		MaxTokens:    ac.MaxTokens,
	}

	if v, ok := os.LookupEnv(prefix + "RETRY_COUNT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			config.RetryCount = n
		}
	}
	if v, ok := os.LookupEnv(prefix + "TEMPERATURE"); ok {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			config.Temperature = float32(f)
		}
	}
	if v, ok := os.LookupEnv(prefix + "MAX_TOKENS"); ok {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			config.MaxTokens = int32(n)
		}
	}

	return config, nil
}

type errAgentNotFound string

func (e errAgentNotFound) Error() string { return "agent not found in configuration: " + string(e) }
