// Package cachefile persists the dependency cache. The vanilla-packed
// and assembly-kit-only layers are the only ones stable enough to
// serialize, so they're snapshotted into three sibling files
// (.pak1/.pak2/.pak3) sized so three workers can deserialize them in
// parallel.
package cachefile

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/packforge/depgraph/internal/binformat"
	engineerrors "github.com/packforge/depgraph/internal/errors"
	"github.com/packforge/depgraph/internal/types"
)

// Snapshot is exactly the state that is expensive to recompute and
// stable between rebuilds.
type Snapshot struct {
	Watermark         types.Watermark
	VanillaFiles      map[string]*types.FileEntry
	VanillaTablesIdx  map[string][]string
	VanillaLocSet     map[string]bool
	VanillaFolders    map[string]bool
	VanillaCaseFolded map[string][]string
	AssKitOnlyTables  map[string][]string
}

func paths(base string) (pak1, pak2, pak3 string) {
	return base + ".pak1", base + ".pak2", base + ".pak3"
}

// Save writes the three shard files for base (e.g. "/mods/foo/.cache"
// produces foo/.cache.pak1 etc.), ensuring the parent directory
// exists first. Each file is written to a temp path in the same
// directory and renamed into place.
func Save(base string, s *Snapshot) error {
	dir := filepath.Dir(base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return engineerrors.Wrap(engineerrors.ReasonCacheUnreadable, "cachefile.Save", err)
	}

	pak1, pak2, pak3 := paths(base)

	vanillaPaths := make([]string, 0, len(s.VanillaFiles))
	for p := range s.VanillaFiles {
		vanillaPaths = append(vanillaPaths, p)
	}
	sort.Strings(vanillaPaths)

	// Paths are assigned to pak1/pak2 by path hash rather than a plain
	// midpoint split: membership then stays stable across rebuilds that
	// add or remove files instead of reshuffling every path into the
	// other shard whenever the total count changes.
	var firstHalf, secondHalf []string
	for _, p := range vanillaPaths {
		if xxhash.Sum64String(p)%2 == 0 {
			firstHalf = append(firstHalf, p)
		} else {
			secondHalf = append(secondHalf, p)
		}
	}

	if err := writeAtomic(pak1, func(w *binformat.Writer) {
		w.WriteI64(s.Watermark.BuildTimeSeconds)
		w.WriteString(s.Watermark.EngineVersion)
		w.WriteU32(uint32(len(firstHalf)))
		for _, p := range firstHalf {
			binformat.WriteFileEntry(w, p, s.VanillaFiles[p])
		}
	}); err != nil {
		return err
	}

	if err := writeAtomic(pak2, func(w *binformat.Writer) {
		w.WriteU32(uint32(len(secondHalf)))
		for _, p := range secondHalf {
			binformat.WriteFileEntry(w, p, s.VanillaFiles[p])
		}
	}); err != nil {
		return err
	}

	if err := writeAtomic(pak3, func(w *binformat.Writer) {
		binformat.WriteStringSlicePair(w, s.VanillaTablesIdx)
		binformat.WriteStringSet(w, boolSetKeys(s.VanillaLocSet))
		binformat.WriteStringSet(w, boolSetKeys(s.VanillaFolders))
		binformat.WriteStringSlicePair(w, s.VanillaCaseFolded)
		binformat.WriteStringSlicePair(w, s.AssKitOnlyTables)
	}); err != nil {
		return err
	}
	return nil
}

func writeAtomic(path string, encode func(w *binformat.Writer)) error {
	var buf bytes.Buffer
	w := binformat.NewWriter(&buf)
	encode(w)
	if err := w.Err(); err != nil {
		return engineerrors.Wrap(engineerrors.ReasonCacheUnreadable, "cachefile.Save", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return engineerrors.Wrap(engineerrors.ReasonCacheUnreadable, "cachefile.Save", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		os.Remove(tmp)
		return engineerrors.Wrap(engineerrors.ReasonCacheUnreadable, "cachefile.Save", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return engineerrors.Wrap(engineerrors.ReasonCacheUnreadable, "cachefile.Save", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return engineerrors.Wrap(engineerrors.ReasonCacheUnreadable, "cachefile.Save", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return engineerrors.Wrap(engineerrors.ReasonCacheUnreadable, "cachefile.Save", err)
	}
	return nil
}

// Load spawns one worker per shard, each reading its whole file into
// memory before deserializing from the in-memory buffer (direct
// stream deserialization is measurably slower), then waits for all
// three workers together through one errgroup. Any worker failing
// fails the whole load.
func Load(ctx context.Context, base string) (*Snapshot, error) {
	pak1, pak2, pak3 := paths(base)

	var watermark types.Watermark
	var firstHalf, secondHalf map[string]*types.FileEntry
	var tablesIdx map[string][]string
	var locSet, folders map[string]bool
	var caseFolded map[string][]string
	var assKit map[string][]string

	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		buf, err := readWhole(pak1)
		if err != nil {
			return err
		}
		r := binformat.NewReader(bytes.NewReader(buf))
		watermark.BuildTimeSeconds = r.ReadI64()
		watermark.EngineVersion = r.ReadString()
		n := r.ReadU32()
		firstHalf = make(map[string]*types.FileEntry, n)
		for i := uint32(0); i < n; i++ {
			p, e := binformat.ReadFileEntry(r)
			firstHalf[p] = e
		}
		if r.Err() != nil {
			return engineerrors.Wrap(engineerrors.ReasonCacheCorrupt, "cachefile.Load.pak1", r.Err())
		}
		return nil
	})

	g.Go(func() error {
		buf, err := readWhole(pak2)
		if err != nil {
			return err
		}
		r := binformat.NewReader(bytes.NewReader(buf))
		n := r.ReadU32()
		secondHalf = make(map[string]*types.FileEntry, n)
		for i := uint32(0); i < n; i++ {
			p, e := binformat.ReadFileEntry(r)
			secondHalf[p] = e
		}
		if r.Err() != nil {
			return engineerrors.Wrap(engineerrors.ReasonCacheCorrupt, "cachefile.Load.pak2", r.Err())
		}
		return nil
	})

	g.Go(func() error {
		buf, err := readWhole(pak3)
		if err != nil {
			return err
		}
		r := binformat.NewReader(bytes.NewReader(buf))
		tablesIdx = binformat.ReadStringSlicePair(r)
		locSet = boolSetFrom(binformat.ReadStringSet(r))
		folders = boolSetFrom(binformat.ReadStringSet(r))
		caseFolded = binformat.ReadStringSlicePair(r)
		assKit = binformat.ReadStringSlicePair(r)
		if r.Err() != nil {
			return engineerrors.Wrap(engineerrors.ReasonCacheCorrupt, "cachefile.Load.pak3", r.Err())
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	vanillaFiles := make(map[string]*types.FileEntry, len(firstHalf)+len(secondHalf))
	for p, e := range firstHalf {
		vanillaFiles[p] = e
	}
	for p, e := range secondHalf {
		vanillaFiles[p] = e
	}

	return &Snapshot{
		Watermark:         watermark,
		VanillaFiles:      vanillaFiles,
		VanillaTablesIdx:  tablesIdx,
		VanillaLocSet:     locSet,
		VanillaFolders:    folders,
		VanillaCaseFolded: caseFolded,
		AssKitOnlyTables:  assKit,
	}, nil
}

func readWhole(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, engineerrors.Wrap(engineerrors.ReasonCacheUnreadable, "cachefile.Load", err)
		}
		return nil, engineerrors.Wrap(engineerrors.ReasonCacheUnreadable, "cachefile.Load", err)
	}
	return data, nil
}

// Exists reports whether all three shard files for base are present.
func Exists(base string) bool {
	pak1, pak2, pak3 := paths(base)
	for _, p := range []string{pak1, pak2, pak3} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// NeedsUpdating implements the staleness check:
// the cache is stale if any declared archive's mtime exceeds the
// watermark's build time, or the running engine version differs from
// the one the cache was stamped with.
func NeedsUpdating(watermark types.Watermark, archiveMTimes []int64, currentEngineVersion string) bool {
	if watermark.EngineVersion != currentEngineVersion {
		return true
	}
	var maxMTime int64
	for _, m := range archiveMTimes {
		if m > maxMTime {
			maxMTime = m
		}
	}
	return maxMTime > watermark.BuildTimeSeconds
}

func boolSetKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func boolSetFrom(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[s] = true
	}
	return m
}
