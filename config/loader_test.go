package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `
model_list:
  - model_name: rainymodel/auto
    litellm_params:
      model: huggingface/meta/llama
      api_base: https://api-inference.huggingface.co
      api_key: ${HF_TOKEN:-missing}
    model_info:
      description: free hf tier
  - model_name: rainymodel/auto
    litellm_params:
      model: openrouter/meta/llama
      api_key: ${OPENROUTER_API_KEY}
    model_info:
      description: premium fallback
router_settings:
  num_retries: 5
  timeout: 90
  retry_after: 2
  allowed_fails: 4
  cooldown_time: 30
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "litellm_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("HF_TOKEN", "secret-token")
	t.Setenv("OPENROUTER_API_KEY", "or-key")
	path := writeTempConfig(t, sampleDoc)

	doc, err := Load(path)
	require.NoError(t, err)
	require.Len(t, doc.ModelList, 2)
	assert.Equal(t, "secret-token", doc.ModelList[0].LitellmParams["api_key"])
	assert.Equal(t, "or-key", doc.ModelList[1].LitellmParams["api_key"])
}

func TestLoad_DefaultExpandsWhenEnvUnset(t *testing.T) {
	path := writeTempConfig(t, sampleDoc)

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "missing", doc.ModelList[0].LitellmParams["api_key"])
}

func TestLoad_RouterSettingsOverrideDefaults(t *testing.T) {
	path := writeTempConfig(t, sampleDoc)

	doc, err := Load(path)
	require.NoError(t, err)
	rs := doc.RouterSettings()
	assert.Equal(t, 5, rs.NumRetries)
	assert.Equal(t, 4, rs.AllowedFails)
}

func TestRouterSettings_FallsBackToDefaults(t *testing.T) {
	doc := &Document{}
	rs := doc.RouterSettings()
	assert.Equal(t, defaultRouterSettings.NumRetries, rs.NumRetries)
	assert.Equal(t, defaultRouterSettings.CooldownS, rs.CooldownS)
}

func TestExpandString_NestedDefaultSyntax(t *testing.T) {
	assert.Equal(t, "fallback", expandString("${UNSET_VAR:-fallback}"))
	t.Setenv("SET_VAR", "value")
	assert.Equal(t, "value", expandString("${SET_VAR}"))
	assert.Equal(t, "prefix-value-suffix", expandString("prefix-${SET_VAR}-suffix"))
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
