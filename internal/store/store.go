package store

import (
	"context"
	"sort"

	"github.com/packforge/depgraph/internal/types"
	"github.com/packforge/depgraph/internal/vfile"
)

// ArchiveReader is the pack-file binary codec seam:
// it opens a declared game archive or a located parent pack and
// returns its file entries, a lazy-read Source for them, and the
// parent-pack names it declares as dependencies.
type ArchiveReader interface {
	ReadArchive(path string) (files []*vfile.File, src vfile.Source, parentDeps []string, err error)
}

// LooseWalker walks a loose on-disk directory and returns one File per
// regular file found, with paths relative to root.
type LooseWalker interface {
	WalkLoose(root string) ([]*vfile.File, vfile.Source, error)
}

// ParentPackLocator finds a declared parent-mod pack by file name,
// searching data/secondary/content directories in that order.
type ParentPackLocator interface {
	Locate(name string, dataDir, secondaryDir, contentDir string) (fullPath string, ok bool)
}

// Store holds the three recursion-bearing layers (vanilla-packed,
// vanilla-loose, parent-mod), the assembly-kit-only table layer, and
// the merged localisation index.
type Store struct {
	VanillaPacked *Layer
	VanillaLoose  *Layer
	ParentMod     *Layer
	AssKitOnly    *Layer // table-name index only meaningful here

	LocalisationIndex map[string]string
	Watermark         types.Watermark

	sources []vfile.Source // kept alive for lazy Load calls across all layers
}

// Empty returns a Store with every layer present but no files, so
// callers can issue queries before the first Rebuild/Load without
// special-casing "no store yet"; its zero Watermark always reads as
// stale.
func Empty() *Store {
	return newEmpty()
}

func newEmpty() *Store {
	return &Store{
		VanillaPacked:     newLayer(),
		VanillaLoose:      newLayer(),
		ParentMod:         newLayer(),
		AssKitOnly:        newLayer(),
		LocalisationIndex: make(map[string]string),
	}
}

// layersInQueryOrder returns (parent-mod, vanilla-packed, vanilla-loose)
// — the order single-file queries consult.
func (s *Store) layersInQueryOrder() []*Layer {
	return []*Layer{s.ParentMod, s.VanillaPacked, s.VanillaLoose}
}

// layersInMergeOrder returns (vanilla-loose, vanilla-packed, parent-mod)
// — the order DB merges and loc-index merges iterate.
func (s *Store) layersInMergeOrder() []*Layer {
	return []*Layer{s.VanillaLoose, s.VanillaPacked, s.ParentMod}
}

// File resolves a single path, consulting layers parent-mod ->
// vanilla-packed -> vanilla-loose (optionally skipping vanilla and/or
// parent per inclVanilla/inclParent) and returning the first hit.
func (s *Store) File(path string, inclVanilla, inclParent, caseInsensitive bool) (*vfile.File, bool) {
	for _, l := range s.layersInQueryOrder() {
		if l == s.ParentMod && !inclParent {
			continue
		}
		if (l == s.VanillaPacked || l == s.VanillaLoose) && !inclVanilla {
			continue
		}
		if f, ok := l.Files[path]; ok {
			return f, true
		}
	}
	if !caseInsensitive {
		return nil, false
	}
	for _, l := range s.layersInQueryOrder() {
		if l == s.ParentMod && !inclParent {
			continue
		}
		if (l == s.VanillaPacked || l == s.VanillaLoose) && !inclVanilla {
			continue
		}
		variants := l.CaseFolded[foldPath(path)]
		if len(variants) > 0 {
			if f, ok := l.Files[variants[0]]; ok {
				return f, true
			}
		}
	}
	return nil, false
}

// FilesByPath resolves an exact path or folder prefix against every
// layer that matches, returning all contributing files.
func (s *Store) FilesByPath(containerPath string, inclVanilla, inclParent, caseInsensitive bool) []*vfile.File {
	var out []*vfile.File
	for _, l := range s.layersInQueryOrder() {
		if l == s.ParentMod && !inclParent {
			continue
		}
		if (l == s.VanillaPacked || l == s.VanillaLoose) && !inclVanilla {
			continue
		}
		out = append(out, filesByPathInLayer(l, containerPath, caseInsensitive)...)
	}
	return out
}

// FilesByTypes returns every file across the consulted layers whose
// FileType is in wanted.
func (s *Store) FilesByTypes(wanted []types.FileType, inclVanilla, inclParent bool) []*vfile.File {
	want := make(map[types.FileType]bool, len(wanted))
	for _, t := range wanted {
		want[t] = true
	}
	var out []*vfile.File
	for _, l := range s.layersInQueryOrder() {
		if l == s.ParentMod && !inclParent {
			continue
		}
		if (l == s.VanillaPacked || l == s.VanillaLoose) && !inclVanilla {
			continue
		}
		for _, f := range l.Files {
			if want[f.Entry.FileType] {
				out = append(out, f)
			}
		}
	}
	return out
}

// MergeDBPaths returns the concatenation of vanilla-loose, then
// vanilla-packed, then parent-mod paths declared under tableName, each
// group sorted ascending. This is the game load order: later entries
// override earlier ones.
func (s *Store) MergeDBPaths(tableName string) []string {
	var out []string
	for _, l := range s.layersInMergeOrder() {
		paths := append([]string(nil), l.TablesByName[tableName]...)
		out = append(out, paths...)
	}
	return out
}

// MergeDBFiles resolves MergeDBPaths back to *vfile.File, pulled from
// whichever layer declared each path.
func (s *Store) MergeDBFiles(tableName string) []*vfile.File {
	var out []*vfile.File
	for _, l := range s.layersInMergeOrder() {
		for _, p := range l.TablesByName[tableName] {
			if f, ok := l.Files[p]; ok {
				out = append(out, f)
			}
		}
	}
	return out
}

// MergeDBFilesIncl is MergeDBFiles restricted to the requested layers,
// used by DBData's incl-vanilla/incl-parent flags.
func (s *Store) MergeDBFilesIncl(tableName string, inclVanilla, inclParent bool) []*vfile.File {
	var out []*vfile.File
	for _, l := range s.layersInMergeOrder() {
		if l == s.ParentMod && !inclParent {
			continue
		}
		if (l == s.VanillaPacked || l == s.VanillaLoose) && !inclVanilla {
			continue
		}
		for _, p := range l.TablesByName[tableName] {
			if f, ok := l.Files[p]; ok {
				out = append(out, f)
			}
		}
	}
	return out
}

// KnownDBTableNames returns every DB table name declared across all
// three recursion-bearing layers, used by callers that need to iterate
// "every DB table in the store".
func (s *Store) KnownDBTableNames() []string {
	seen := make(map[string]bool)
	for _, l := range s.layersInMergeOrder() {
		for name := range l.TablesByName {
			seen[name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func filesByPathInLayer(l *Layer, containerPath string, caseInsensitive bool) []*vfile.File {
	if f, ok := l.Files[containerPath]; ok {
		return []*vfile.File{f}
	}
	var out []*vfile.File
	if caseInsensitive {
		foldedPrefix := foldPath(containerPath)
		for path, f := range l.Files {
			folded := foldPath(path)
			if foldedPrefix == "" || hasPrefixSlash(folded, foldedPrefix) {
				out = append(out, f)
			}
		}
	} else {
		for path, f := range l.Files {
			if containerPath == "" || hasPrefixSlash(path, containerPath) {
				out = append(out, f)
			}
		}
	}
	return out
}

func hasPrefixSlash(candidate, prefix string) bool {
	if len(candidate) <= len(prefix) {
		return false
	}
	return candidate[:len(prefix)] == prefix && candidate[len(prefix)] == '/'
}

func foldPath(p string) string {
	out := make([]byte, len(p))
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// SetAssKitOnly replaces the assembly-kit-only layer's files and
// rebuilds its derived indices.
func (s *Store) SetAssKitOnly(files []*vfile.File) {
	s.AssKitOnly = newLayer()
	for _, f := range files {
		s.AssKitOnly.Files[f.Entry.Path] = f
	}
	s.AssKitOnly.rebuildIndices()
}

// DropAssKitOverlap removes from the assembly-kit-only layer every
// table the game's own layers already declare, leaving only the tables
// that genuinely exist nowhere but the assembly kit.
func (s *Store) DropAssKitOverlap() {
	for name, paths := range s.AssKitOnly.TablesByName {
		if len(s.VanillaPacked.TablesByName[name]) == 0 && len(s.VanillaLoose.TablesByName[name]) == 0 {
			continue
		}
		for _, p := range paths {
			delete(s.AssKitOnly.Files, p)
		}
	}
	s.AssKitOnly.rebuildIndices()
}

// DecodeAll decodes every DB and Loc file across all four layers using
// decoders, best-effort: decode failures are swallowed with the
// affected file skipped.
func (s *Store) DecodeAll(ctx context.Context, decoders vfile.Decoders) {
	for _, l := range []*Layer{s.VanillaPacked, s.VanillaLoose, s.ParentMod, s.AssKitOnly} {
		for _, f := range l.Files {
			if f.Entry.FileType != types.FileTypeDB && f.Entry.FileType != types.FileTypeLoc {
				continue
			}
			if f.Entry.State == types.StateOnDisk {
				// Not yet pulled into memory; DecodeAll does not
				// Load entries, so on-disk entries stay undecoded.
				continue
			}
			_ = f.Decode(decoders)
		}
	}
}

// RebuildLocalisationIndex flattens loc entries from all three
// recursion-bearing layers, iterated parent-last so parents overwrite
// vanilla.
func (s *Store) RebuildLocalisationIndex(locPairs func(f *vfile.File) map[string]string) {
	idx := make(map[string]string)
	for _, l := range s.layersInMergeOrder() {
		for _, p := range l.sortedPaths() {
			if !l.LocPaths[p] {
				continue
			}
			f := l.Files[p]
			for k, v := range locPairs(f) {
				idx[k] = v
			}
		}
	}
	s.LocalisationIndex = idx
}
