package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigParsesAgentAndDirs(t *testing.T) {
	path := writeConfig(t, `
agent:
  kind: code-assistant
  version: 1.2.3
  instance_id: host-1
store:
  base_url: http://localhost:8090
  token: secret
state_dir: /tmp/agentmem/state
sessions_dir: /tmp/agentmem/sessions
pointers_file: /tmp/agentmem/pointers.json
retrieve_threshold: 0.6
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "code-assistant", cfg.Agent.Kind)
	require.Equal(t, "host-1", cfg.Agent.InstanceID)
	require.Equal(t, "http://localhost:8090", cfg.Store.BaseURL)
	require.Equal(t, 0.6, cfg.Threshold)
}

func TestLoadConfigRejectsMissingAgentKind(t *testing.T) {
	path := writeConfig(t, `
agent:
  instance_id: host-1
state_dir: /tmp/agentmem/state
sessions_dir: /tmp/agentmem/sessions
`)

	_, err := loadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigRejectsMissingStateDir(t *testing.T) {
	path := writeConfig(t, `
agent:
  kind: code-assistant
  instance_id: host-1
sessions_dir: /tmp/agentmem/sessions
`)

	_, err := loadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
