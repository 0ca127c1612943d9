package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromReader(t *testing.T) {
	yaml := `
base_url: https://relay.example.com/v1
api_key: sk-test
default_model: gpt-4o-mini
timeout: 45s
max_retries: 2
`
	cfg, err := LoadConfigFromReader(strings.NewReader(yaml))
	require.NoError(t, err)
	require.Equal(t, "https://relay.example.com/v1", cfg.BaseURL)
	require.Equal(t, "gpt-4o-mini", cfg.DefaultModel)
	require.Equal(t, 2, cfg.MaxRetries)
	require.Equal(t, "45s", cfg.Timeout.String())
}

func TestLoadConfigDefaults(t *testing.T) {
	yaml := `
api_key: sk-test
default_model: gpt-4o-mini
`
	cfg, err := LoadConfigFromReader(strings.NewReader(yaml))
	require.NoError(t, err)
	require.Equal(t, defaultBaseURL, cfg.BaseURL)
	require.Equal(t, defaultTimeout, cfg.Timeout)
	require.Equal(t, defaultMaxRetries, cfg.MaxRetries)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv(envAPIKey, "sk-from-env")
	t.Setenv(envDefaultModel, "gpt-4o")

	yaml := `
api_key: sk-file
default_model: gpt-4o-mini
`
	cfg, err := LoadConfigFromReader(strings.NewReader(yaml))
	require.NoError(t, err)
	require.Equal(t, "sk-from-env", cfg.APIKey)
	require.Equal(t, "gpt-4o", cfg.DefaultModel)
}

func TestLoadConfigExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "sk-expanded")

	yaml := `
api_key: ${TEST_LLM_KEY}
default_model: gpt-4o-mini
`
	cfg, err := LoadConfigFromReader(strings.NewReader(yaml))
	require.NoError(t, err)
	require.Equal(t, "sk-expanded", cfg.APIKey)
}

func TestLoadConfigMissingAPIKey(t *testing.T) {
	yaml := `
default_model: gpt-4o-mini
`
	_, err := LoadConfigFromReader(strings.NewReader(yaml))
	require.Error(t, err)
	require.Contains(t, err.Error(), "api_key")
}

func TestLoadConfigInvalidTimeout(t *testing.T) {
	yaml := `
api_key: sk-test
default_model: gpt-4o-mini
timeout: soon
`
	_, err := LoadConfigFromReader(strings.NewReader(yaml))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid timeout")
}
