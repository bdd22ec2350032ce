package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  port: "9090"
chat:
  max_steps: 3
entitlements:
  types:
    regular:
      max_messages_per_day: 50
      available_models: ["chat-model"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Chat.MaxSteps)
	assert.Equal(t, 60*time.Second, cfg.Chat.MaxDuration)
	assert.Equal(t, "chat-model-reasoning", cfg.Chat.ReasoningModel)
	assert.Equal(t, 24*time.Hour, cfg.Entitlements.Window())
	assert.Equal(t, 10*time.Minute, cfg.Stream.Retention)
	assert.Equal(t, "none", cfg.Notify.Driver)
}

func TestEntitlementFor(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	regular := cfg.Entitlements.EntitlementFor("regular")
	assert.Equal(t, 50, regular.MaxMessagesPerDay)
	assert.Equal(t, []string{"chat-model"}, regular.AvailableModels)

	guest := cfg.Entitlements.EntitlementFor("guest")
	assert.Equal(t, 20, guest.MaxMessagesPerDay)

	unknown := cfg.Entitlements.EntitlementFor("robot")
	assert.Equal(t, guest, unknown)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CHAT_MAX_STEPS", "7")
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Chat.MaxSteps)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
