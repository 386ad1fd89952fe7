package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfigTOML = `
[engine]
name = "yarnspinner"
version = "1.0.0"

[runtime]
max_concurrent_agents = 4

[providers.primary]
adapter_kind = "anthropic"
model = "claude"
credential_env_var = "ANTHROPIC_API_KEY"

[providers.backup]
adapter_kind = "openai"
model = "gpt"
credential_env_var = "OPENAI_API_KEY"

[functions.draft]
primary = "primary"
fallback = "backup"

[agents.drafter]
function = "draft"
template = "write about {{.topic}}"
retry_count = 2
`

func TestLoadConfig_ParsesAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfigTOML), 0o644))

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, "yarnspinner", cfg.Engine.Name)
	assert.Equal(t, 4, cfg.Runtime.MaxConcurrentAgents)
	assert.Equal(t, "info", cfg.Logging.Level, "logging level defaults to info when unset")
	assert.Equal(t, 3, cfg.Execution.ParallelAgents, "execution defaults apply when unset")
}

func TestLoadConfig_MissingFileIsBadConfiguration(t *testing.T) {
	_, err := LoadConfig("/nonexistent/pipeline.toml")

	require.Error(t, err)
	assert.Equal(t, KindBadConfiguration, ErrorKind(err))
}

func TestConfig_BuildRouterAndPoolWireEveryEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfigTOML), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	router, err := cfg.BuildRouter()
	require.NoError(t, err)

	stats := router.Stats("draft")
	assert.Equal(t, 0, stats.CallCount, "a freshly built router has no call history yet")

	pool := cfg.BuildPool(router, nil)
	agent, err := pool.get("drafter")
	require.NoError(t, err)
	assert.Equal(t, "draft", agent.Config().Function)
	assert.Equal(t, 2, agent.Config().RetryCount)
}
