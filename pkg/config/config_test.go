package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, "bolt", cfg.Engine.Backend)
	assert.Equal(t, 4096, cfg.Core.DocumentMaxBatchCount)
	assert.Equal(t, int64(32<<20), cfg.Core.DocumentMaxRequestSize)
	assert.Equal(t, 1024, cfg.Core.MaxPrewriteCount)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.yaml")

	content := []byte(`
node:
  id: node-1
  data_dir: /var/lib/dingo
core:
  max_prewrite_count: 2048
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "node-1", cfg.Node.ID)
	assert.Equal(t, "/var/lib/dingo", cfg.Node.DataDir)
	assert.Equal(t, 2048, cfg.Core.MaxPrewriteCount)
	// untouched fields keep their defaults
	assert.Equal(t, "bolt", cfg.Engine.Backend)
	assert.Equal(t, 4096, cfg.Core.DocumentMaxBatchCount)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateRequiresNodeID(t *testing.T) {
	cfg := Defaults()
	assert.Error(t, cfg.Validate())

	cfg.Node.ID = "node-1"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := Defaults()
	cfg.Node.ID = "node-1"
	cfg.Engine.Backend = "rocksdb"

	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsNonPositivePrewriteCount(t *testing.T) {
	cfg := Defaults()
	cfg.Node.ID = "node-1"
	cfg.Core.MaxPrewriteCount = 0

	assert.Error(t, cfg.Validate())
}
