package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, StorageMemory, cfg.StorageMode)
	assert.Equal(t, []string{".py", ".js", ".ts", ".tsx"}, cfg.SupportedExtensions)
	assert.Equal(t, 2.0, cfg.RenameWindowSeconds)
	assert.Equal(t, 0.7, cfg.FileSimilarityThreshold)
	assert.Equal(t, 0.7, cfg.FunctionSimilarityThreshold)
	assert.Equal(t, 0.5, cfg.DynamicPollIntervalSeconds)
}

func TestValidate_RequiresWatchDir(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_RejectsSnapshotModeWithoutPath(t *testing.T) {
	cfg := Default()
	cfg.WatchDir = t.TempDir()
	cfg.StorageMode = StorageSnapshot
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_RejectsOutOfRangeThreshold(t *testing.T) {
	cfg := Default()
	cfg.WatchDir = t.TempDir()
	cfg.FileSimilarityThreshold = 1.5
	require.Error(t, cfg.Validate())
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	cfg := Default()
	cfg.WatchDir = t.TempDir()
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.kdl"))
	require.NoError(t, err)
	assert.Equal(t, Default().RenameWindowSeconds, cfg.RenameWindowSeconds)
}

func TestLoad_OverridesDefaultsFromKDL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".graphsyncd.kdl")
	kdl := `watch_dir "/tmp/project"
storage_mode "snapshot"
snapshot_path "/tmp/project/.graphsyncd.snapshot.json"
rename_window_seconds 1.5
file_similarity_threshold 0.8
supported_extensions ".py" ".ts"
`
	require.NoError(t, os.WriteFile(path, []byte(kdl), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/project", cfg.WatchDir)
	assert.Equal(t, StorageSnapshot, cfg.StorageMode)
	assert.Equal(t, 1.5, cfg.RenameWindowSeconds)
	assert.Equal(t, 0.8, cfg.FileSimilarityThreshold)
	assert.Equal(t, []string{".py", ".ts"}, cfg.SupportedExtensions)
}

func TestSupportsExtension(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.SupportsExtension(".py"))
	assert.False(t, cfg.SupportsExtension(".rb"))
}
