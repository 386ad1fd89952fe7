// Package core provides configuration loading for the orchestration engine.
package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk TOML shape of a pipeline deployment: named providers,
// the function mappings that route to them, the agents built on top, and the
// ambient logging/runtime/execution defaults.
type Config struct {
	Engine struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"engine"`

	Logging struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"logging"`

	Runtime struct {
		MaxConcurrentAgents int `toml:"max_concurrent_agents"`
		TimeoutSeconds      int `toml:"timeout_seconds"`
	} `toml:"runtime"`

	Execution ExecutionDefaultsToml `toml:"execution"`

	Providers map[string]ProviderConfigToml `toml:"providers"`
	Functions map[string]FunctionMappingToml `toml:"functions"`
	Agents    map[string]AgentConfigToml     `toml:"agents"`
}

// ProviderConfigToml is the TOML representation of a ProviderConfig. The
// credential itself is never stored here - only the name of the environment
// variable to resolve it from at provider construction time.
type ProviderConfigToml struct {
	AdapterKind      string  `toml:"adapter_kind"`
	Model            string  `toml:"model"`
	CredentialEnvVar string  `toml:"credential_env_var"`
	BaseURL          string  `toml:"base_url"`
	MaxTokens        int32   `toml:"max_tokens"`
	Temperature      float32 `toml:"temperature"`
	TimeoutSeconds   int     `toml:"timeout_seconds"`
}

// FunctionMappingToml is the TOML representation of a FunctionMapping.
type FunctionMappingToml struct {
	Primary  string `toml:"primary"`
	Fallback string `toml:"fallback"`
}

// AgentConfigToml is the TOML representation of an AgentConfig, minus its
// Parser (parsers are wired in code, not declared in configuration).
type AgentConfigToml struct {
	Function       string  `toml:"function"`
	SystemPrompt   string  `toml:"system_prompt"`
	Template       string  `toml:"template"`
	RetryCount     int     `toml:"retry_count"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	Temperature    float32 `toml:"temperature"`
	MaxTokens      int32   `toml:"max_tokens"`
}

// ExecutionDefaultsToml holds advisory defaults that callers may apply when
// building WorkflowSteps - the pipeline runtime itself does not read these
// directly, since every step carries its own explicit configuration.
type ExecutionDefaultsToml struct {
	ParallelAgents      int     `toml:"parallel_agents"`
	ConsensusThreshold  float64 `toml:"consensus_threshold"`
	MaxRetries          int     `toml:"max_retries"`
	ChunkSize           int     `toml:"chunk_size"`
	ChunkOverlap        int     `toml:"chunk_overlap"`
}

// LoadConfig loads configuration from the specified TOML file path.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &EngineError{Kind: KindBadConfiguration, Op: "LoadConfig", Err: fmt.Errorf("configuration file not found: %s", path)}
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, &EngineError{Kind: KindBadConfiguration, Op: "LoadConfig", Err: fmt.Errorf("failed to parse %s: %w", path, err)}
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadConfigFromWorkingDir looks for pipeline.toml in the current working directory.
func LoadConfigFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, &EngineError{Kind: KindBadConfiguration, Op: "LoadConfigFromWorkingDir", Err: err}
	}
	return LoadConfig(filepath.Join(wd, "pipeline.toml"))
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Runtime.MaxConcurrentAgents == 0 {
		cfg.Runtime.MaxConcurrentAgents = 5
	}
	if cfg.Runtime.TimeoutSeconds == 0 {
		cfg.Runtime.TimeoutSeconds = 30
	}
	if cfg.Execution.ParallelAgents == 0 {
		cfg.Execution.ParallelAgents = 3
	}
	if cfg.Execution.ConsensusThreshold == 0 {
		cfg.Execution.ConsensusThreshold = 0.6
	}
	if cfg.Execution.MaxRetries == 0 {
		cfg.Execution.MaxRetries = 2
	}
}

// BuildRouter constructs a FunctionRouter with every configured provider and
// function mapping wired in.
func (c *Config) BuildRouter() (*FunctionRouter, error) {
	router := NewFunctionRouter()

	for name, pc := range c.Providers {
		provider, err := NewModelProvider(ProviderConfig{
			Name:             name,
			AdapterKind:      pc.AdapterKind,
			Model:            pc.Model,
			CredentialEnvVar: pc.CredentialEnvVar,
			BaseURL:          pc.BaseURL,
			MaxTokens:        pc.MaxTokens,
			Temperature:      pc.Temperature,
			Timeout:          time.Duration(pc.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		router.RegisterProvider(name, provider)
	}

	for functionID, fm := range c.Functions {
		router.RegisterFunction(FunctionMapping{FunctionID: functionID, Primary: fm.Primary, Fallback: fm.Fallback})
	}

	return router, nil
}

// BuildPool constructs an AgentPool with every configured agent registered,
// routed through router. parsers supplies the Parser for each agent by name;
// an agent without an entry gets IdentityParser.
func (c *Config) BuildPool(router *FunctionRouter, parsers map[string]Parser) *AgentPool {
	pool := NewAgentPool(c.Runtime.MaxConcurrentAgents)

	for name, ac := range c.Agents {
		config := AgentConfig{
			Name:         name,
			Function:     ac.Function,
			SystemPrompt: ac.SystemPrompt,
			Template:     ac.Template,
			RetryCount:   ac.RetryCount,
			Timeout:      time.Duration(ac.TimeoutSeconds) * time.Second,
			Temperature:  ac.Temperature,
			MaxTokens:    ac.MaxTokens,
		}
		if p, ok := parsers[name]; ok {
			config.Parser = p
		}
		pool.Register(NewAgent(config, router))
	}

	return pool
}
