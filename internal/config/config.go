// Package config loads the external game-descriptor input: the game
// key, declared archive paths, data/secondary/content
// directories and database-version tag the Layered Store needs to
// build itself, plus a handful of engine-level knobs (worker counts,
// cache path, watch mode).
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/packforge/depgraph/internal/types"
)

// Config is the on-disk configuration shape loaded from a `.packdeps.kdl`
// file. It resolves into a types.GameDescriptor plus engine settings.
type Config struct {
	Game        Game
	Performance Performance
	Cache       Cache
	// SchemaPath points at the JSON schema document
	// internal/schema.LoadDefinitionsFile reads. Relative to the
	// directory the config file was loaded from.
	SchemaPath string
}

// Game mirrors types.GameDescriptor in config-file form (plain strings,
// not yet validated/absolutized).
type Game struct {
	Key             string
	ArchivePaths    []string
	DataPath        string
	SecondaryPath   string
	ContentPath     string
	AssemblyKitPath string
	DatabaseVersion string
	ParentPackNames []string
}

// Performance controls the worker pools used for build-time decode and
// cache (de)serialization.
type Performance struct {
	ParallelFileWorkers int // 0 = auto-detect (NumCPU-1)
	BuildTimeoutSec     int
}

// Cache controls where the sharded on-disk cache lives and
// whether the loose-file layer is watched for live invalidation.
type Cache struct {
	Path      string
	WatchMode bool
}

// Default returns a Config with sane defaults and an empty Game section
// that callers must fill in (there is no sensible default game).
func Default() *Config {
	return &Config{
		Performance: Performance{
			ParallelFileWorkers: 0,
			BuildTimeoutSec:     120,
		},
		Cache: Cache{
			Path:      filepath.Join(".", ".packdeps-cache"),
			WatchMode: false,
		},
	}
}

// Load reads `.packdeps.kdl` from dir, falling back to defaults if the
// file does not exist. It never fails solely because the file is
// missing — only on a malformed file that does exist.
func Load(dir string) (*Config, error) {
	cfg, err := LoadKDL(dir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = Default()
	}
	return cfg, nil
}

// ToGameDescriptor resolves the config-file Game section into a
// validated types.GameDescriptor, making relative paths absolute with
// respect to baseDir (the directory the config file was loaded from).
func (c *Config) ToGameDescriptor(baseDir string) types.GameDescriptor {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}

	archives := make([]string, len(c.Game.ArchivePaths))
	for i, p := range c.Game.ArchivePaths {
		archives[i] = abs(p)
	}

	return types.GameDescriptor{
		Key:             c.Game.Key,
		ArchivePaths:    archives,
		DataPath:        abs(c.Game.DataPath),
		SecondaryPath:   abs(c.Game.SecondaryPath),
		ContentPath:     abs(c.Game.ContentPath),
		AssemblyKitPath: abs(c.Game.AssemblyKitPath),
		DatabaseVersion: c.Game.DatabaseVersion,
	}
}

// resolveWorkerCount applies the "0 = NumCPU-1, minimum 1" convention
// used throughout the engine's worker pools.
func resolveWorkerCount(configured int) int {
	if configured > 0 {
		return configured
	}
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// ParallelWorkers returns the resolved worker count for build-time
// decode fan-out.
func (c *Config) ParallelWorkers() int {
	return resolveWorkerCount(c.Performance.ParallelFileWorkers)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
