package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CHATDESK_API_URL", "CHATDESK_MOCK", "CHATDESK_TOKEN", "CHATDESK_FEATURE_BULK_UPLOAD",
		"CHATDESK_STORAGE_DRIVER", "CHATDESK_STORAGE_PATH", "CHATDESK_LOG_LEVEL",
		"CHATDESK_SERVER_ADDR", "CHATDESK_RESPONDER", "OPENAI_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := LoadFromPath(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.False(t, cfg.API.Mock)
	assert.False(t, cfg.Features.BulkUpload)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, filepath.Join(dir, "local.db"), cfg.Storage.Path)
	assert.Equal(t, filepath.Join(dir, "chatdesk.log"), cfg.Log.Path)
	assert.Equal(t, ResponderCanned, cfg.Server.Responder)
	assert.Equal(t, 20, cfg.Server.ChatPerMinute)
}

func TestLoadFromPath_FileThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[api]
base_url = "http://api.internal:9000"
timeout_secs = 5

[features]
bulk_upload = true

[storage]
driver = "bolt"
path = "/tmp/chatdesk.bolt"

[server]
tokens = ["alice", "bob"]
`), 0o600))

	t.Setenv("CHATDESK_MOCK", "true")
	t.Setenv("CHATDESK_LOG_LEVEL", "debug")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "http://api.internal:9000", cfg.API.BaseURL)
	assert.Equal(t, 5, cfg.API.TimeoutSecs)
	assert.True(t, cfg.API.Mock)
	assert.True(t, cfg.Features.BulkUpload)
	assert.Equal(t, "bolt", cfg.Storage.Driver)
	assert.Equal(t, "/tmp/chatdesk.bolt", cfg.Storage.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Server.Tokens)
	assert.Equal(t, "claude-3-5-haiku-latest", cfg.Server.AnthropicModel, "unset keys keep defaults")
}

func TestLoadFromPath_BadTOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[api\nbase_url = "), 0o600))

	_, err := LoadFromPath(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage.Path = "x"
	require.NoError(t, cfg.Validate())

	cfg.API.BaseURL = "localhost"
	cfg.Storage.Driver = "postgres"
	cfg.Server.Responder = ResponderOpenAI
	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidateErrors
	require.ErrorAs(t, err, &verrs)
	fields := make([]string, 0, len(verrs))
	for _, v := range verrs {
		fields = append(fields, v.Field)
	}
	assert.ElementsMatch(t, []string{"api.base_url", "storage.driver", "server.openai_key"}, fields)

	cfg.API.Mock = true
	cfg.Storage.Driver = "memory"
	cfg.Server.Responder = ResponderCanned
	assert.NoError(t, cfg.Validate(), "the base URL is unused in mock mode")
}

func TestApplyEnvOverrides_Bools(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	t.Setenv("CHATDESK_FEATURE_BULK_UPLOAD", "1")
	t.Setenv("CHATDESK_MOCK", "no")
	cfg.API.Mock = true
	cfg.ApplyEnvOverrides()

	assert.True(t, cfg.Features.BulkUpload)
	assert.False(t, cfg.API.Mock)
}
