package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, 200, cfg.MinChunkTokens)
	assert.Equal(t, 1000, cfg.TargetChunkTokens)
	assert.Equal(t, 1500, cfg.MaxChunkTokens)
	assert.Equal(t, 3000, cfg.CharsPerPage)
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout)
	assert.InDelta(t, 0.1, cfg.LLMTemperature, 0.001)
}

func TestLoad_YAMLFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"port: \"9999\"\ntarget_chunk_tokens: 800\nllm_model: test-model\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 800, cfg.TargetChunkTokens)
	assert.Equal(t, "test-model", cfg.LLMModel)
	assert.Equal(t, 1500, cfg.MaxChunkTokens) // untouched default
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm_model: from-file\n"), 0o644))
	t.Setenv("LLM_MODEL", "from-env")
	t.Setenv("MAX_CHUNK_TOKENS", "2000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLMModel)
	assert.Equal(t, 2000, cfg.MaxChunkTokens)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.APIKey = "secret"
	require.NoError(t, cfg.Validate())

	missing := cfg
	missing.APIKey = ""
	assert.Error(t, missing.Validate())

	bounds := cfg
	bounds.MinChunkTokens = 1200
	assert.Error(t, bounds.Validate())

	temp := cfg
	temp.LLMTemperature = 3.0
	assert.Error(t, temp.Validate())

	storage := cfg
	storage.StorageDir = ""
	assert.Error(t, storage.Validate())
}

func TestEnvHelpers_IgnoreMalformedValues(t *testing.T) {
	t.Setenv("MIN_CHUNK_TOKENS", "not-a-number")
	t.Setenv("LLM_TIMEOUT", "soon")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.MinChunkTokens)
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout)
}
