package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.BaseURL)
	assert.Equal(t, DefaultSessionTimeoutSeconds, cfg.SessionTimeoutSeconds)
	assert.False(t, cfg.Configured(), "defaults should not be configured")
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := DefaultConfig()
	cfg.APIKey = "k-123"
	cfg.CompanyID = "acme"
	cfg.SyncCron = "*/5 * * * *"
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "k-123", loaded.APIKey)
	assert.Equal(t, "acme", loaded.CompanyID)
	assert.Equal(t, "*/5 * * * *", loaded.SyncCron)
	assert.True(t, loaded.Configured())
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := DefaultConfig()
	cfg.APIKey = "from-file"
	require.NoError(t, SaveConfig(path, cfg))

	t.Setenv("ECHOED_API_KEY", "from-env")
	t.Setenv("ECHOED_SESSION_TIMEOUT_SECONDS", "9")

	loaded, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", loaded.APIKey, "env should win over file")
	assert.Equal(t, 9, loaded.SessionTimeoutSeconds)
}

func TestLoadConfig_RejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
