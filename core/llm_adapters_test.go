package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModelProvider_UnknownAdapterKindIsBadConfiguration(t *testing.T) {
	_, err := NewModelProvider(ProviderConfig{Name: "x", AdapterKind: "not-a-vendor", Model: "m"})

	require.Error(t, err)
	assert.Equal(t, KindBadConfiguration, ErrorKind(err))
}

func TestNewModelProvider_ConstructsEveryKnownAdapterKind(t *testing.T) {
	t.Setenv("TEST_PROVIDER_API_KEY", "dummy-key")

	for kind := range knownAdapterKinds {
		cfg := ProviderConfig{Name: kind, AdapterKind: kind, Model: "test-model", CredentialEnvVar: "TEST_PROVIDER_API_KEY"}
		if kind == "azure" {
			cfg.BaseURL = "https://example.openai.azure.com"
		}
		provider, err := NewModelProvider(cfg)

		require.NoError(t, err, "adapter kind %q should construct without error", kind)
		assert.NotNil(t, provider)
		assert.NotEmpty(t, provider.ProviderKind())
	}
}
