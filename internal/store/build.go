package store

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	engineerrors "github.com/packforge/depgraph/internal/errors"
	"github.com/packforge/depgraph/internal/types"
	"github.com/packforge/depgraph/internal/vfile"
)

// PackedSnapshot lets a caller hand Build an already-materialized
// vanilla-packed layer (restored from the sharded cache) instead
// of re-reading every declared archive. internal/cachefile's Snapshot
// is adapted into this shape by internal/depengine, keeping this
// package ignorant of the cache file format.
type PackedSnapshot struct {
	Files            map[string]*types.FileEntry
	TablesByName     map[string][]string
	LocPaths         map[string]bool
	Folders          map[string]bool
	CaseFolded       map[string][]string
	AssKitOnlyTables map[string][]string
}

// BuildOptions gathers the external collaborators and settings a
// single Build call needs.
type BuildOptions struct {
	Game            types.GameDescriptor
	ParentPackNames []string
	ArchiveReader   ArchiveReader
	LooseWalker     LooseWalker
	ParentLocator   ParentPackLocator
	Decoders        vfile.Decoders
	LocPairs        func(f *vfile.File) map[string]string
	Workers         int
	BuildTimeSecs   int64
	// Packed, when non-nil, short-circuits the archive reads entirely:
	// the vanilla-packed layer and ass-kit-only table index are
	// restored from a prior cache load rather than read from the
	// declared archives.
	Packed *PackedSnapshot
}

// Build assembles a Store from scratch. The cache freshness decision
// is the caller's responsibility: internal/depengine either loads a
// cache and passes it in as opts.Packed, or leaves it nil so the
// declared archives are read fresh. Build loads vanilla-packed
// archives, walks the vanilla-loose directory, recursively resolves
// parent-mod packs, and rebuilds every derived index.
func Build(ctx context.Context, opts BuildOptions) (*Store, error) {
	s := newEmpty()

	if opts.Packed != nil {
		for path, entry := range opts.Packed.Files {
			s.VanillaPacked.Files[path] = &vfile.File{Entry: entry}
		}
		s.VanillaPacked.TablesByName = opts.Packed.TablesByName
		s.VanillaPacked.LocPaths = opts.Packed.LocPaths
		s.VanillaPacked.Folders = opts.Packed.Folders
		s.VanillaPacked.CaseFolded = opts.Packed.CaseFolded
		s.AssKitOnly.TablesByName = opts.Packed.AssKitOnlyTables
	} else if opts.ArchiveReader != nil {
		for _, archivePath := range opts.Game.ArchivePaths {
			files, _, _, err := opts.ArchiveReader.ReadArchive(archivePath)
			if err != nil {
				return nil, engineerrors.Wrap(engineerrors.ReasonPathNotFound, "store.Build.vanillaPacked", err)
			}
			for _, f := range files {
				s.VanillaPacked.Files[f.Entry.Path] = f
			}
		}
	}

	if opts.Game.DataPath != "" && opts.LooseWalker != nil {
		files, _, err := opts.LooseWalker.WalkLoose(opts.Game.DataPath)
		if err != nil {
			return nil, engineerrors.Wrap(engineerrors.ReasonPathNotFound, "store.Build.vanillaLoose", err)
		}
		for _, f := range files {
			s.VanillaLoose.Files[f.Entry.Path] = f
		}
	}

	if opts.ParentLocator != nil && opts.ArchiveReader != nil {
		visited := make(map[string]bool)
		for _, name := range opts.ParentPackNames {
			if err := loadParentPack(s, opts, name, visited); err != nil {
				return nil, err
			}
		}
	}

	layersToReindex := []*Layer{s.VanillaLoose, s.ParentMod}
	if opts.Packed == nil {
		layersToReindex = append(layersToReindex, s.VanillaPacked)
	}
	for _, l := range layersToReindex {
		l.rebuildIndices()
	}

	if opts.Decoders.DB != nil || opts.Decoders.Loc != nil {
		if err := decodeInParallel(ctx, s, opts); err != nil {
			return nil, err
		}
	}

	if opts.LocPairs != nil {
		s.RebuildLocalisationIndex(opts.LocPairs)
	}

	s.Watermark = types.Watermark{
		BuildTimeSeconds: opts.BuildTimeSecs,
		EngineVersion:    types.EngineVersion,
	}
	return s, nil
}

// loadParentPack locates a declared parent pack by file name across
// data/secondary/content directories in order, recurses into its own
// declared dependencies first (so dependency files are overridden by
// the dependent, consistent with "append its files" last), and avoids
// cycles via visited.
func loadParentPack(s *Store, opts BuildOptions, name string, visited map[string]bool) error {
	if visited[name] {
		return nil
	}
	visited[name] = true

	fullPath, ok := opts.ParentLocator.Locate(name, opts.Game.DataPath, opts.Game.SecondaryPath, opts.Game.ContentPath)
	if !ok {
		return engineerrors.New(engineerrors.ReasonPathNotFound, "store.Build.parentMod", name)
	}

	files, _, deps, err := opts.ArchiveReader.ReadArchive(fullPath)
	if err != nil {
		return engineerrors.Wrap(engineerrors.ReasonPathNotFound, "store.Build.parentMod", err)
	}

	for _, dep := range deps {
		if err := loadParentPack(s, opts, dep, visited); err != nil {
			return err
		}
	}
	for _, f := range files {
		s.ParentMod.Files[f.Entry.Path] = f
	}
	return nil
}

// decodeInParallel decodes every DB/Loc file across all layers using a
// worker pool sized by opts.Workers.
func decodeInParallel(ctx context.Context, s *Store, opts BuildOptions) error {
	var targets []*vfile.File
	for _, l := range []*Layer{s.VanillaPacked, s.VanillaLoose, s.ParentMod} {
		for _, f := range l.Files {
			if f.Entry.FileType == types.FileTypeDB || f.Entry.FileType == types.FileTypeLoc {
				targets = append(targets, f)
			}
		}
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	g, _ := errgroup.WithContext(ctx)
	taskChan := make(chan *vfile.File, len(targets))
	for _, f := range targets {
		taskChan <- f
	}
	close(taskChan)

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for f := range taskChan {
				if f.Entry.State == types.StateOnDisk {
					continue // best-effort: lazily-located entries are decoded on demand later
				}
				if err := f.Decode(opts.Decoders); err != nil {
					// Best-effort: skip the file, don't fail the batch.
					continue
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("store.Build.decode: %w", err)
	}
	return nil
}
