// Package config loads the core's configuration from a .sentinel.kdl file,
// layering CLI flag and environment variable overrides on top, following the
// structure the teacher's internal/config package uses for .lci.kdl.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config is the fully resolved configuration for one indexing run.
type Config struct {
	Project Project
	Index   Index
	Store   Store
}

type Project struct {
	Root string
	Name string
}

type Index struct {
	Languages           []string // empty = all registered languages
	Include             []string
	Exclude             []string
	MaxFileSizeMB       int64
	MaxConcurrentFiles  int
	ParserFileTimeoutMS int
	Force               bool // full reindex instead of incremental
	RespectGitignore    bool
	FollowSymlinks      bool
}

type Store struct {
	DatabasePath  string
	CacheStrategy string // aggressive | moderate | minimal
}

// Default returns the configuration used when no .sentinel.kdl is present
// and no overrides are supplied, mirroring the teacher's parseKDL defaults.
func Default() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return &Config{
		Project: Project{Root: cwd},
		Index: Index{
			MaxFileSizeMB:       10,
			MaxConcurrentFiles:  8,
			ParserFileTimeoutMS: 30_000,
			RespectGitignore:    true,
			FollowSymlinks:      false,
		},
		Store: Store{
			DatabasePath:  ".sentinel/index.db",
			CacheStrategy: "moderate",
		},
	}
}

// Load reads configPath if it exists, merging it onto Default(). A missing
// file is not an error: the defaults (plus later overrides) are used.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := loadKDLInto(cfg, configPath); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", configPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Project.Root != "" {
		abs, err := filepath.Abs(cfg.Project.Root)
		if err == nil {
			cfg.Project.Root = filepath.Clean(abs)
		}
	}
	return cfg, nil
}

// applyEnvOverrides layers the environment variables spec §6 names onto an
// already-loaded config. CLI flags are applied afterward by the caller
// (cmd/sentinel-index), so they take final precedence.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Store.DatabasePath = v
	}
	if v := os.Getenv("PARSER_FILE_TIMEOUT"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Index.ParserFileTimeoutMS = ms
		}
	}
	if v := os.Getenv("MAX_CONCURRENT_FILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.MaxConcurrentFiles = n
		}
	}
	if v := os.Getenv("MAX_FILE_SIZE_MB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Index.MaxFileSizeMB = n
		}
	}
	if v := os.Getenv("CACHE_STRATEGY"); v != "" {
		switch v {
		case "aggressive", "moderate", "minimal":
			cfg.Store.CacheStrategy = v
		}
	}
}

// Validate checks the config for obviously invalid values before the
// orchestrator starts, following the teacher's validator.go convention of
// failing fast with a field-scoped error.
func Validate(cfg *Config) error {
	if cfg.Project.Root == "" {
		return fmt.Errorf("config: project.root must not be empty")
	}
	if info, err := os.Stat(cfg.Project.Root); err != nil || !info.IsDir() {
		return fmt.Errorf("config: project.root %q is not a directory", cfg.Project.Root)
	}
	if cfg.Index.MaxFileSizeMB <= 0 {
		return fmt.Errorf("config: index.max_file_size_mb must be positive, got %d", cfg.Index.MaxFileSizeMB)
	}
	if cfg.Index.MaxConcurrentFiles <= 0 {
		return fmt.Errorf("config: index.max_concurrent_files must be positive, got %d", cfg.Index.MaxConcurrentFiles)
	}
	switch cfg.Store.CacheStrategy {
	case "aggressive", "moderate", "minimal":
	default:
		return fmt.Errorf("config: store.cache_strategy %q is not one of aggressive|moderate|minimal", cfg.Store.CacheStrategy)
	}
	return nil
}

func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "GB"):
		mult = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		mult = 1024 * 1024
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		mult = 1024
		s = strings.TrimSuffix(s, "KB")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	return n * mult, nil
}
