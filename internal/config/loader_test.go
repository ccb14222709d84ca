package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quiver.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "absent.json"))

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Tools.MaxToolCalls)
	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.Logging.File)
	assert.NotEmpty(t, cfg.History.Path)
	assert.NotEmpty(t, cfg.Audit.Path)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `{
		"data_dir": "/tmp/quiver-test",
		"tools": {
			"max_tool_calls": 5,
			"api_mode": "responses",
			"definitions": [
				{"name": "websearch", "is_enabled": true},
				{"name": "subagent", "is_enabled": true, "is_exclusive": true}
			]
		},
		"ai": {
			"profiles": [
				{"id": "p1", "provider": "anthropic", "api_key": "key", "priority": 1}
			]
		},
		"backend": {"base_url": "https://backend.example.com", "timeout_seconds": 10}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Tools.MaxToolCalls)
	assert.Equal(t, "responses", cfg.Tools.APIMode)
	require.Len(t, cfg.Tools.Definitions, 2)
	assert.True(t, cfg.Tools.Definitions[1].IsExclusive)
	require.Len(t, cfg.AI.Profiles, 1)
	assert.Equal(t, "anthropic", cfg.AI.Profiles[0].Provider)
	assert.Equal(t, "https://backend.example.com", cfg.Backend.BaseURL)

	// Path defaults derive from the configured data dir.
	assert.Equal(t, filepath.Join("/tmp/quiver-test", "quiver.log"), cfg.Logging.File)
	assert.Equal(t, filepath.Join("/tmp/quiver-test", "history.db"), cfg.History.Path)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := writeConfigFile(t, `{"tools": `)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quiver.json")
	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Tools.MaxToolCalls = 7
	cfg.AI.Profiles = []AIProfile{{ID: "p1", Provider: "openai", APIKey: "key"}}

	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Tools.MaxToolCalls)
	require.Len(t, loaded.AI.Profiles, 1)
	assert.Equal(t, "p1", loaded.AI.Profiles[0].ID)
}

func TestGetConfigPath(t *testing.T) {
	loader := NewLoader("/etc/quiver/quiver.json")
	assert.Equal(t, "/etc/quiver/quiver.json", loader.GetConfigPath())

	// Empty path falls back under the home directory.
	fallback := NewLoader("").GetConfigPath()
	assert.Contains(t, fallback, filepath.Join(".quiver", "quiver.json"))
}
