package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaultsListenAddr(t *testing.T) {
	path := writeConfig(t, `
database_dsn: /tmp/agentmemd/store.db
import_dir: /tmp/agentmemd/imports
state_dir: /tmp/agentmemd/state
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":8090", cfg.ListenAddr)
	require.Equal(t, "/tmp/agentmemd/store.db", cfg.DatabaseDSN)
}

func TestLoadConfigRejectsMissingDatabaseDSN(t *testing.T) {
	path := writeConfig(t, `
import_dir: /tmp/agentmemd/imports
state_dir: /tmp/agentmemd/state
`)
	_, err := loadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigRejectsMissingStateDir(t *testing.T) {
	path := writeConfig(t, `
database_dsn: /tmp/agentmemd/store.db
import_dir: /tmp/agentmemd/imports
`)
	_, err := loadConfig(path)
	require.Error(t, err)
}

func TestBuildWiresRouterAndHealthReporter(t *testing.T) {
	dir := t.TempDir()
	cfg := config{
		ListenAddr:  ":0",
		DatabaseDSN: filepath.Join(dir, "store.db"),
		ImportDir:   filepath.Join(dir, "imports"),
		StateDir:    filepath.Join(dir, "state"),
	}
	require.NoError(t, os.MkdirAll(cfg.ImportDir, 0o755))

	srv, err := build(t.Context(), cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, srv.Handler)
}
