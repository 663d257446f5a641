// Package container implements the pack container: a path -> file
// mapping with a case-folded index, folder-prefix queries, and bulk
// extraction.
package container

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	engineerrors "github.com/packforge/depgraph/internal/errors"
	"github.com/packforge/depgraph/internal/types"
	"github.com/packforge/depgraph/internal/vfile"
	"github.com/packforge/depgraph/pkg/pathutil"
)

// Container holds file entries keyed by their path, plus a case-folded
// index kept consistent with every insert/remove/move.
type Container struct {
	mu sync.RWMutex

	files         map[string]*vfile.File
	foldedToCased map[string][]string
}

func New() *Container {
	return &Container{
		files:         make(map[string]*vfile.File),
		foldedToCased: make(map[string][]string),
	}
}

// Insert adds or replaces the file at f.Entry.Path.
func (c *Container) Insert(f *vfile.File) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(f)
}

func (c *Container) insertLocked(f *vfile.File) {
	path := f.Entry.Path
	if _, exists := c.files[path]; !exists {
		folded := pathutil.Fold(path)
		c.foldedToCased[folded] = appendUnique(c.foldedToCased[folded], path)
	}
	c.files[path] = f
}

// Remove deletes the file at path, dropping its cased variant from the
// folded index and removing the index entry entirely once its last
// variant is gone.
func (c *Container) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(path)
}

func (c *Container) removeLocked(path string) {
	if _, exists := c.files[path]; !exists {
		return
	}
	delete(c.files, path)
	folded := pathutil.Fold(path)
	remaining := removeOne(c.foldedToCased[folded], path)
	if len(remaining) == 0 {
		delete(c.foldedToCased, folded)
	} else {
		c.foldedToCased[folded] = remaining
	}
}

// Move renames src to dst, preserving the entry's decoded/cached state.
func (c *Container) Move(src, dst string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.files[src]
	if !ok {
		return engineerrors.New(engineerrors.ReasonPathNotFound, "container.Move", src)
	}
	c.removeLocked(src)
	f.Entry.Path = dst
	c.insertLocked(f)
	return nil
}

// File looks up a single path. When caseInsensitive is true and there
// is no exact hit, it consults the case-folded index and returns the
// first cased variant.
func (c *Container) File(path string, caseInsensitive bool) (*vfile.File, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if f, ok := c.files[path]; ok {
		return f, nil
	}
	if caseInsensitive {
		variants := c.foldedToCased[pathutil.Fold(path)]
		if len(variants) > 0 {
			if f, ok := c.files[variants[0]]; ok {
				return f, nil
			}
		}
	}
	return nil, engineerrors.New(engineerrors.ReasonPathNotFound, "container.File", path)
}

// FilesByPath resolves containerPath as either an exact file or a
// folder prefix, returning every matching file. Folder matching only
// matches on whole path segments: a case-insensitive match requires
// the case-folded prefix followed by "/" to be a prefix of the
// case-folded candidate.
func (c *Container) FilesByPath(containerPath string, caseInsensitive bool) []*vfile.File {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if f, ok := c.files[containerPath]; ok {
		return []*vfile.File{f}
	}

	var out []*vfile.File
	if caseInsensitive {
		foldedPrefix := pathutil.Fold(containerPath)
		for path, f := range c.files {
			folded := pathutil.Fold(path)
			if foldedPrefix == "" || strings.HasPrefix(folded, foldedPrefix+"/") {
				out = append(out, f)
			}
		}
	} else {
		for path, f := range c.files {
			if pathutil.HasFolderPrefix(path, containerPath) {
				out = append(out, f)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entry.Path < out[j].Entry.Path })
	return out
}

// FilesByType returns every file whose FileType is in types.
func (c *Container) FilesByType(wanted []types.FileType) []*vfile.File {
	want := make(map[types.FileType]bool, len(wanted))
	for _, t := range wanted {
		want[t] = true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*vfile.File
	for _, f := range c.files {
		if want[f.Entry.FileType] {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entry.Path < out[j].Entry.Path })
	return out
}

// Len returns the number of files currently held.
func (c *Container) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.files)
}

// TSVExporter attempts to render a decoded DB/Loc table as TSV bytes;
// the real implementation is injected by callers.
type TSVExporter func(t *types.Table) ([]byte, error)

// MetadataExtractor is invoked once, additionally, when Extract is
// called against the root path ("").
type MetadataExtractor func(c *Container) error

// ExtractResult records, per extracted path, whether TSV export
// succeeded or the extractor fell back to raw bytes.
type ExtractResult struct {
	Path            string
	UsedTSVFallback bool
}

// Extract writes path (a file or folder prefix) out to dest. When
// keepStructure is true, container paths are preserved as a directory
// tree under dest; otherwise every file is written flat into dest.
// With a non-nil exporter, DB/Loc files are tried as TSV first, falling
// back to their raw bytes on export failure.
func (c *Container) Extract(path, dest string, keepStructure bool, exporter TSVExporter, caseInsensitive bool, metaExtractor MetadataExtractor) ([]ExtractResult, error) {
	var files []*vfile.File
	if path == "" {
		c.mu.RLock()
		for _, f := range c.files {
			files = append(files, f)
		}
		c.mu.RUnlock()
		sort.Slice(files, func(i, j int) bool { return files[i].Entry.Path < files[j].Entry.Path })
		if metaExtractor != nil {
			if err := metaExtractor(c); err != nil {
				return nil, err
			}
		}
	} else {
		if f, err := c.File(path, caseInsensitive); err == nil {
			files = []*vfile.File{f}
		} else {
			files = c.FilesByPath(path, caseInsensitive)
		}
	}
	if len(files) == 0 {
		return nil, engineerrors.New(engineerrors.ReasonPathNotFound, "container.Extract", path)
	}

	results := make([]ExtractResult, 0, len(files))
	for _, f := range files {
		outPath := filepath.Join(dest, f.Entry.Path)
		if !keepStructure {
			outPath = filepath.Join(dest, pathutil.Base(f.Entry.Path))
		}
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return nil, err
		}

		data, usedFallback, err := extractOne(f, exporter)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return nil, err
		}
		results = append(results, ExtractResult{Path: f.Entry.Path, UsedTSVFallback: usedFallback})
	}
	return results, nil
}

func extractOne(f *vfile.File, exporter TSVExporter) (data []byte, usedFallback bool, err error) {
	isTable := f.Entry.FileType == types.FileTypeDB || f.Entry.FileType == types.FileTypeLoc
	if isTable && exporter != nil && f.Entry.State == types.StateDecoded {
		if table := f.Entry.AsTable(); table != nil {
			if tsv, exportErr := exporter(table); exportErr == nil {
				return tsv, false, nil
			}
		}
		return f.Entry.Cached, true, nil
	}
	return f.Entry.Cached, false, nil
}

func appendUnique(variants []string, v string) []string {
	for _, existing := range variants {
		if existing == v {
			return variants
		}
	}
	return append(variants, v)
}

func removeOne(variants []string, v string) []string {
	out := variants[:0:0]
	for _, existing := range variants {
		if existing != v {
			out = append(out, existing)
		}
	}
	return out
}
