// Package types holds the core data model shared by every component of
// the pack dependency engine: paths, file entries, DB tables, schema
// field definitions, the localisation index, and the small descriptor
// structs the engine's external collaborators are expected to
// supply.
package types

import (
	"os"
	"time"
)

// GameDescriptor is the external input describing which game to build
// a layered store for: its declared archive paths and the three
// directories searched for parent-mod packs.
type GameDescriptor struct {
	Key             string
	ArchivePaths    []string
	DataPath        string
	SecondaryPath   string
	ContentPath     string
	AssemblyKitPath string
	DatabaseVersion string
}

// SearchDirs returns the three parent-pack search directories in
// lookup order: data, secondary, content.
func (g GameDescriptor) SearchDirs() []string {
	return []string{g.DataPath, g.SecondaryPath, g.ContentPath}
}

// Watermark is the cache freshness marker: a
// cache is stale if any declared archive's mtime exceeds BuildTimeSeconds
// or if EngineVersion no longer matches the running engine.
type Watermark struct {
	BuildTimeSeconds int64
	EngineVersion    string
}

// EngineVersion is stamped into every cache this build of the engine
// writes, and compared against on load.
const EngineVersion = "packdeps/1"

// Clock abstracts "now" and file mtimes so build/staleness logic is
// testable without touching the real filesystem clock.
type Clock interface {
	NowSeconds() int64
	MTime(path string) (time.Time, error)
}

// SystemClock is the production Clock backed by the OS.
type SystemClock struct{}

func (SystemClock) NowSeconds() int64 {
	return time.Now().Unix()
}

func (SystemClock) MTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
