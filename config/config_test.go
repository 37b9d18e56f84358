package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "udp", cfg.SIP.Protocol)
	assert.Equal(t, 5060, cfg.SIP.Port)
	assert.Equal(t, ":8080", cfg.HTTP.ListenAddress)
	assert.Equal(t, "playbook.md", cfg.Playbook)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
sip:
  protocol: tcp
  port: 5080
playbook: /etc/vpb/support.md
log:
  level: debug
  phone_numbers: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tcp", cfg.SIP.Protocol)
	assert.Equal(t, 5080, cfg.SIP.Port)
	assert.Equal(t, "/etc/vpb/support.md", cfg.Playbook)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.PhoneNumbers)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "sip:\n  port: 5080\n")
	t.Setenv("VPB_SIP__PORT", "5090")
	t.Setenv("VPB_HTTP__LISTEN_ADDRESS", ":9000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5090, cfg.SIP.Port)
	assert.Equal(t, ":9000", cfg.HTTP.ListenAddress)
}

func TestAPIKeyEnvSubstitution(t *testing.T) {
	path := writeConfig(t, "llm:\n  api_key: ${VPB_TEST_SECRET}\n")
	t.Setenv("VPB_TEST_SECRET", "sk-test-123")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.LLM.APIKey)
}
