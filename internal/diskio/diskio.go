// Package diskio implements the two store collaborators that only
// need plain filesystem access, not the pack binary codec: walking a
// loose vanilla-data directory into Files, and locating a named
// parent-mod pack across the data/secondary/content search order.
package diskio

import (
	"os"
	"path/filepath"

	"github.com/packforge/depgraph/internal/store"
	"github.com/packforge/depgraph/internal/vfile"
)

// Walker implements store.LooseWalker by reading every regular file
// under root fully into memory, matching the whole-file-into-memory
// convention internal/cachefile uses.
type Walker struct{}

// WalkLoose satisfies store.LooseWalker.
func (Walker) WalkLoose(root string) ([]*vfile.File, vfile.Source, error) {
	var files []*vfile.File
	err := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil // best-effort: one unreadable entry doesn't fail the walk
		}
		if info.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		raw, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		files = append(files, vfile.FromRawBytes(relPath, vfile.GuessFileType(relPath), raw))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return files, nil, nil
}

// Locator implements store.ParentPackLocator by searching the
// data/secondary/content directories in that order for a file named
// name, returning the first hit.
type Locator struct{}

// Locate satisfies store.ParentPackLocator.
func (Locator) Locate(name string, dataDir, secondaryDir, contentDir string) (string, bool) {
	for _, dir := range []string{dataDir, secondaryDir, contentDir} {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

var _ store.LooseWalker = Walker{}
var _ store.ParentPackLocator = Locator{}
