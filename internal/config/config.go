// Package config holds the typed configuration for graphsyncd and a
// loader for its ".graphsyncd.kdl" config file.
package config

import (
	"fmt"
	"os"

	graphsyncderrors "github.com/standardbeagle/graphsyncd/internal/errors"
)

// StorageMode selects whether the Graph Store persists to disk.
type StorageMode string

const (
	StorageMemory   StorageMode = "memory"
	StorageSnapshot StorageMode = "snapshot"
)

// Config is the full set of tunables named in spec.md §6.
type Config struct {
	WatchDir    string
	StorageMode StorageMode
	SnapshotPath string

	SupportedExtensions []string

	RenameWindowSeconds        float64
	FileSimilarityThreshold    float64
	FunctionSimilarityThreshold float64

	DynamicPollIntervalSeconds float64

	InstrumentationIncludePatterns []string
	InstrumentationExcludePatterns []string
}

// Default returns a Config populated with the defaults spec.md §6 names.
func Default() *Config {
	return &Config{
		StorageMode:                 StorageMemory,
		SnapshotPath:                "",
		SupportedExtensions:         []string{".py", ".js", ".ts", ".tsx"},
		RenameWindowSeconds:         2.0,
		FileSimilarityThreshold:     0.7,
		FunctionSimilarityThreshold: 0.7,
		DynamicPollIntervalSeconds:  0.5,
	}
}

// Validate checks the configuration and returns a *errors.ConfigError
// for the first problem found. Only startup-phase configuration errors
// are fatal (spec.md §7): callers should treat a non-nil return as fatal
// and refuse to start any background task.
func (c *Config) Validate() error {
	if c.WatchDir == "" {
		return graphsyncderrors.NewConfigError("watch_dir", "", fmt.Errorf("watch directory must be set"))
	}
	if info, err := os.Stat(c.WatchDir); err != nil || !info.IsDir() {
		return graphsyncderrors.NewConfigError("watch_dir", c.WatchDir, fmt.Errorf("not a directory: %w", err))
	}
	if c.StorageMode != StorageMemory && c.StorageMode != StorageSnapshot {
		return graphsyncderrors.NewConfigError("storage_mode", string(c.StorageMode), fmt.Errorf("must be %q or %q", StorageMemory, StorageSnapshot))
	}
	if c.StorageMode == StorageSnapshot && c.SnapshotPath == "" {
		return graphsyncderrors.NewConfigError("snapshot_path", "", fmt.Errorf("required when storage_mode is %q", StorageSnapshot))
	}
	if len(c.SupportedExtensions) == 0 {
		return graphsyncderrors.NewConfigError("supported_extensions", "", fmt.Errorf("must name at least one extension"))
	}
	if c.RenameWindowSeconds <= 0 {
		return graphsyncderrors.NewConfigError("rename_window_seconds", fmt.Sprintf("%v", c.RenameWindowSeconds), fmt.Errorf("must be positive"))
	}
	if err := validateThreshold("file_similarity_threshold", c.FileSimilarityThreshold); err != nil {
		return err
	}
	if err := validateThreshold("function_similarity_threshold", c.FunctionSimilarityThreshold); err != nil {
		return err
	}
	if c.DynamicPollIntervalSeconds <= 0 {
		return graphsyncderrors.NewConfigError("dynamic_poll_interval_seconds", fmt.Sprintf("%v", c.DynamicPollIntervalSeconds), fmt.Errorf("must be positive"))
	}
	return nil
}

func validateThreshold(field string, v float64) error {
	if v < 0 || v > 1 {
		return graphsyncderrors.NewConfigError(field, fmt.Sprintf("%v", v), fmt.Errorf("must be in [0,1]"))
	}
	return nil
}

// SupportsExtension reports whether ext (including the leading dot) is
// one of the configured supported extensions.
func (c *Config) SupportsExtension(ext string) bool {
	for _, e := range c.SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}
