package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"bot": {"token": "from-file", "transport": "session"},
		"probe": {"addr": ":9999"}
	}`), 0o600))
	t.Setenv("NUKEGUARD_TOKEN", "from-env")
	t.Setenv("NUKEGUARD_SUPER_ADMINS", "1, 2,3")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Bot.Token)
	assert.Equal(t, []uint64{1, 2, 3}, cfg.Bot.SuperAdmins)
	assert.Equal(t, ":9999", cfg.Probe.Addr)
}

func TestLoadMissingFileUsesDefaultsPlusEnv(t *testing.T) {
	t.Setenv("NUKEGUARD_TOKEN", "tok")
	t.Setenv("NUKEGUARD_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))

	require.NoError(t, err)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, TransportSession, cfg.Bot.Transport)
	assert.Equal(t, "nukeguard.db", cfg.Database.Path)
}

func TestLoadRejectsMissingToken(t *testing.T) {
	t.Setenv("NUKEGUARD_TOKEN", "")

	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadRejectsUnknownTransport(t *testing.T) {
	t.Setenv("NUKEGUARD_TOKEN", "tok")
	t.Setenv("NUKEGUARD_TRANSPORT", "carrier-pigeon")

	_, err := Load("")

	assert.Error(t, err)
}
