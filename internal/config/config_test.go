package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValidAndRootsAtCwd(t *testing.T) {
	cfg := Default()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, cwd, cfg.Project.Root)
	assert.Equal(t, "moderate", cfg.Store.CacheStrategy)
	assert.NoError(t, Validate(cfg))
}

func TestLoadWithoutConfigFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.kdl"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), cfg.Index.MaxFileSizeMB)
}

func TestLoadParsesKDLFile(t *testing.T) {
	dir := t.TempDir()
	projectDir := filepath.Join(dir, "proj")
	require.NoError(t, os.Mkdir(projectDir, 0o755))

	kdlPath := filepath.Join(dir, ".sentinel.kdl")
	require.NoError(t, os.WriteFile(kdlPath, []byte(`
project {
    root "proj"
    name "demo"
}
index {
    languages "go" "python"
    max_file_size_mb 20
    max_concurrent_files 4
    force true
}
store {
    database_path "idx.db"
    cache_strategy "aggressive"
}
`), 0o644))

	cfg, err := Load(kdlPath)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Project.Name)
	assert.Equal(t, projectDir, cfg.Project.Root)
	assert.Equal(t, []string{"go", "python"}, cfg.Index.Languages)
	assert.Equal(t, int64(20), cfg.Index.MaxFileSizeMB)
	assert.Equal(t, 4, cfg.Index.MaxConcurrentFiles)
	assert.True(t, cfg.Index.Force)
	assert.Equal(t, "aggressive", cfg.Store.CacheStrategy)
	assert.Equal(t, filepath.Join(projectDir, "idx.db"), cfg.Store.DatabasePath)
}

func TestEnvOverridesApplyOnLoad(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_FILES", "16")
	t.Setenv("CACHE_STRATEGY", "minimal")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Index.MaxConcurrentFiles)
	assert.Equal(t, "minimal", cfg.Store.CacheStrategy)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Project.Root = filepath.Join(t.TempDir(), "does-not-exist")
	assert.Error(t, Validate(cfg))

	cfg2 := Default()
	cfg2.Index.MaxFileSizeMB = 0
	assert.Error(t, Validate(cfg2))

	cfg3 := Default()
	cfg3.Store.CacheStrategy = "bogus"
	assert.Error(t, Validate(cfg3))
}

func TestParseSizeHandlesSuffixes(t *testing.T) {
	n, err := parseSize("10MB")
	require.NoError(t, err)
	assert.Equal(t, int64(10*1024*1024), n)

	n, err = parseSize("2GB")
	require.NoError(t, err)
	assert.Equal(t, int64(2*1024*1024*1024), n)

	n, err = parseSize("512")
	require.NoError(t, err)
	assert.Equal(t, int64(512), n)
}
