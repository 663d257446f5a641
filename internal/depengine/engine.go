// Package depengine implements the dependency manager: the single
// stateful object that composes the layered store, the reference/
// lookup engine, the locale key resolver, cache persistence and
// automatic patch discovery behind one exported operation surface. It
// is the one place allowed to hold exclusive-access state across
// mutations.
package depengine

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/packforge/depgraph/internal/cachefile"
	"github.com/packforge/depgraph/internal/container"
	engineerrors "github.com/packforge/depgraph/internal/errors"
	"github.com/packforge/depgraph/internal/locale"
	"github.com/packforge/depgraph/internal/patchdiscovery"
	"github.com/packforge/depgraph/internal/refengine"
	"github.com/packforge/depgraph/internal/schema"
	"github.com/packforge/depgraph/internal/store"
	"github.com/packforge/depgraph/internal/types"
	"github.com/packforge/depgraph/internal/vfile"
)

// Engine is the dependency manager. All mutation (Rebuild, Load,
// GenerateDependenciesCache) takes the exclusive lock; queries take
// the shared lock and must not retain results past a later mutation.
type Engine struct {
	mu sync.RWMutex

	Store    *store.Store
	Schema   *schema.Set
	Decoders vfile.Decoders
	Clock    types.Clock
	Game     types.GameDescriptor

	refCache    map[refCacheKey]map[int]*types.TableReferences
	assKitCache map[refCacheKey]map[int]*types.TableReferences
}

type refCacheKey struct {
	table   string
	version int32
}

// New builds an Engine whose Store starts empty; queries are valid
// (and return nothing) until the first Rebuild or Load populates it.
func New(game types.GameDescriptor, schemaSet *schema.Set, decoders vfile.Decoders, clock types.Clock) *Engine {
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &Engine{
		Game:        game,
		Schema:      schemaSet,
		Decoders:    decoders,
		Clock:       clock,
		Store:       store.Empty(),
		refCache:    make(map[refCacheKey]map[int]*types.TableReferences),
		assKitCache: make(map[refCacheKey]map[int]*types.TableReferences),
	}
}

// RebuildOptions gathers the external collaborators a single Rebuild
// call needs.
type RebuildOptions struct {
	ParentPackNames []string
	ArchiveReader   store.ArchiveReader
	LooseWalker     store.LooseWalker
	ParentLocator   store.ParentPackLocator
	LocPairs        func(f *vfile.File) map[string]string
	Workers         int
	CachePath       string
}

// Rebuild runs the full store build. If CachePath names an existing,
// fresh cache, the vanilla-packed layer and ass-kit-only table index
// are restored from it instead of re-reading every declared archive.
func (e *Engine) Rebuild(ctx context.Context, opts RebuildOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	buildTime := e.Clock.NowSeconds()

	var packed *store.PackedSnapshot
	if opts.CachePath != "" && cachefile.Exists(opts.CachePath) {
		snap, err := cachefile.Load(ctx, opts.CachePath)
		if err == nil {
			mtimes := e.archiveMTimesLocked()
			if !cachefile.NeedsUpdating(snap.Watermark, mtimes, types.EngineVersion) {
				packed = &store.PackedSnapshot{
					Files:            snap.VanillaFiles,
					TablesByName:     snap.VanillaTablesIdx,
					LocPaths:         snap.VanillaLocSet,
					Folders:          snap.VanillaFolders,
					CaseFolded:       snap.VanillaCaseFolded,
					AssKitOnlyTables: snap.AssKitOnlyTables,
				}
			}
		}
	}

	st, err := store.Build(ctx, store.BuildOptions{
		Game:            e.Game,
		ParentPackNames: opts.ParentPackNames,
		ArchiveReader:   opts.ArchiveReader,
		LooseWalker:     opts.LooseWalker,
		ParentLocator:   opts.ParentLocator,
		Decoders:        e.Decoders,
		LocPairs:        opts.LocPairs,
		Workers:         opts.Workers,
		BuildTimeSecs:   buildTime,
		Packed:          packed,
	})
	if err != nil {
		return err
	}

	e.Store = st
	e.refCache = make(map[refCacheKey]map[int]*types.TableReferences)
	e.assKitCache = make(map[refCacheKey]map[int]*types.TableReferences)
	return nil
}

// archiveMTimesLocked reads the current mtime of every declared
// archive, used by both Rebuild's cache-freshness check and the
// public NeedsUpdating. Caller must hold e.mu.
func (e *Engine) archiveMTimesLocked() []int64 {
	out := make([]int64, 0, len(e.Game.ArchivePaths))
	for _, p := range e.Game.ArchivePaths {
		t, err := e.Clock.MTime(p)
		if err != nil {
			continue
		}
		out = append(out, t.Unix())
	}
	return out
}

// GenerateCacheOptions gathers the collaborators
// GenerateDependenciesCache needs beyond the Engine's own game
// descriptor: the archive reader for the vanilla-packed layer and a
// walker over the assembly kit's raw-table export directory.
type GenerateCacheOptions struct {
	ArchiveReader store.ArchiveReader
	AssKitWalker  store.LooseWalker
	// AssKitPath overrides the game descriptor's AssemblyKitPath when
	// non-empty.
	AssKitPath string
	// IgnoreGameFilesInAssKit drops every assembly-kit table the game's
	// own layers already declare, keeping only genuinely ass-kit-only
	// tables in the snapshot.
	IgnoreGameFilesInAssKit bool
	Workers                 int
}

// GenerateDependenciesCache is a from-scratch build of the two
// cache-stable layers: vanilla-packed from the declared archives,
// ass-kit-only from the assembly kit's raw-table exports. The result
// is installed as the Engine's Store and returned as the snapshot
// Save would persist.
func (e *Engine) GenerateDependenciesCache(ctx context.Context, opts GenerateCacheOptions) (*cachefile.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := store.Build(ctx, store.BuildOptions{
		Game:          e.Game,
		ArchiveReader: opts.ArchiveReader,
		Decoders:      e.Decoders,
		Workers:       opts.Workers,
		BuildTimeSecs: e.Clock.NowSeconds(),
	})
	if err != nil {
		return nil, err
	}

	assKitPath := opts.AssKitPath
	if assKitPath == "" {
		assKitPath = e.Game.AssemblyKitPath
	}
	if opts.AssKitWalker != nil && assKitPath != "" {
		files, _, err := opts.AssKitWalker.WalkLoose(assKitPath)
		if err != nil {
			return nil, err
		}
		tables := files[:0:0]
		for _, f := range files {
			if f.Entry.FileType != types.FileTypeDB {
				continue
			}
			if f.Entry.State == types.StateCached {
				_ = f.Decode(e.Decoders) // best-effort
			}
			tables = append(tables, f)
		}
		st.SetAssKitOnly(tables)
		if opts.IgnoreGameFilesInAssKit {
			st.DropAssKitOverlap()
		}
	}

	e.Store = st
	e.refCache = make(map[refCacheKey]map[int]*types.TableReferences)
	e.assKitCache = make(map[refCacheKey]map[int]*types.TableReferences)
	return e.snapshotLocked(), nil
}

// NeedsUpdating reports whether the currently loaded Store is stale
// against the declared archives' mtimes and the engine version.
func (e *Engine) NeedsUpdating() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cachefile.NeedsUpdating(e.Store.Watermark, e.archiveMTimesLocked(), types.EngineVersion)
}

// Save writes the sharded cache for the currently loaded Store's
// vanilla-packed layer and ass-kit-only table index.
func (e *Engine) Save(cachePath string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.Store.Watermark.EngineVersion == "" {
		return engineerrors.New(engineerrors.ReasonCacheUnreadable, "depengine.Save", "no store built or loaded yet")
	}
	return cachefile.Save(cachePath, e.snapshotLocked())
}

func (e *Engine) snapshotLocked() *cachefile.Snapshot {
	entries := make(map[string]*types.FileEntry, len(e.Store.VanillaPacked.Files))
	for path, f := range e.Store.VanillaPacked.Files {
		entries[path] = f.Entry
	}
	return &cachefile.Snapshot{
		Watermark:         e.Store.Watermark,
		VanillaFiles:      entries,
		VanillaTablesIdx:  e.Store.VanillaPacked.TablesByName,
		VanillaLocSet:     e.Store.VanillaPacked.LocPaths,
		VanillaFolders:    e.Store.VanillaPacked.Folders,
		VanillaCaseFolded: e.Store.VanillaPacked.CaseFolded,
		AssKitOnlyTables:  e.Store.AssKitOnly.TablesByName,
	}
}

// Load restores a Store purely from a cache, without reading
// vanilla-loose or parent-mod at all: only the vanilla-packed layer
// and ass-kit index are recoverable from disk this way. The
// localisation index is left empty until a full Rebuild runs, since
// it has to be recomputed from whichever loc files are actually
// present across every layer and is never persisted.
func (e *Engine) Load(ctx context.Context, cachePath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := cachefile.Load(ctx, cachePath)
	if err != nil {
		return err
	}
	st, err := store.Build(ctx, store.BuildOptions{
		Game: e.Game,
		Packed: &store.PackedSnapshot{
			Files:            snap.VanillaFiles,
			TablesByName:     snap.VanillaTablesIdx,
			LocPaths:         snap.VanillaLocSet,
			Folders:          snap.VanillaFolders,
			CaseFolded:       snap.VanillaCaseFolded,
			AssKitOnlyTables: snap.AssKitOnlyTables,
		},
	})
	if err != nil {
		return err
	}
	st.Watermark = snap.Watermark
	e.Store = st
	e.refCache = make(map[refCacheKey]map[int]*types.TableReferences)
	e.assKitCache = make(map[refCacheKey]map[int]*types.TableReferences)
	return nil
}

// File resolves a single container path against the store's layers.
func (e *Engine) File(path string, inclVanilla, inclParent, caseInsensitive bool) (*vfile.File, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Store.File(path, inclVanilla, inclParent, caseInsensitive)
}

func (e *Engine) FilesByPath(containerPath string, inclVanilla, inclParent, caseInsensitive bool) []*vfile.File {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Store.FilesByPath(containerPath, inclVanilla, inclParent, caseInsensitive)
}

func (e *Engine) FilesByTypes(wanted []types.FileType, inclVanilla, inclParent bool) []*vfile.File {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Store.FilesByTypes(wanted, inclVanilla, inclParent)
}

// LocData returns every loc file across the requested layers.
func (e *Engine) LocData(inclVanilla, inclParent bool) []*vfile.File {
	return e.FilesByTypes([]types.FileType{types.FileTypeLoc}, inclVanilla, inclParent)
}

// DBData returns the merged DB files for a table, in game load
// order.
func (e *Engine) DBData(tableFullName string, inclVanilla, inclParent bool) []*vfile.File {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Store.MergeDBFilesIncl(tableFullName, inclVanilla, inclParent)
}

// DBAndLocData returns the merged DB files for tableFullName
// alongside every loc file in scope.
func (e *Engine) DBAndLocData(tableFullName string, inclVanilla, inclParent bool) (db, loc []*vfile.File) {
	return e.DBData(tableFullName, inclVanilla, inclParent), e.LocData(inclVanilla, inclParent)
}

// DBDataDatacored returns pack's own db/<table> files, in
// container-path order, overriding (coming before, and deduping
// against) the merged vanilla+parent files for the same table.
func (e *Engine) DBDataDatacored(tableFullName string, pack *container.Container, inclVanilla, inclParent bool) []*vfile.File {
	e.mu.RLock()
	defer e.mu.RUnlock()

	merged := e.Store.MergeDBFilesIncl(tableFullName, inclVanilla, inclParent)
	mergedByPath := make(map[string]*vfile.File, len(merged))
	for _, f := range merged {
		mergedByPath[f.Entry.Path] = f
	}

	var out []*vfile.File
	seen := make(map[string]bool)
	if pack != nil {
		for _, f := range pack.FilesByPath("db/"+tableFullName, false) {
			if seen[f.Entry.Path] {
				continue
			}
			// A pack file byte-identical to the vanilla/parent entry it
			// would otherwise override isn't really overriding anything;
			// prefer the already-merged copy so callers see one
			// FileEntry per unchanged file instead of two that decode to
			// the same table.
			if vf, ok := mergedByPath[f.Entry.Path]; ok && sameContent(f, vf) {
				continue
			}
			seen[f.Entry.Path] = true
			out = append(out, f)
		}
	}
	for _, f := range merged {
		if !seen[f.Entry.Path] {
			seen[f.Entry.Path] = true
			out = append(out, f)
		}
	}
	return out
}

// sameContent reports whether a and b are known, by content hash, to
// carry identical bytes. Both sides must already be cached (State >=
// StateCached) with a FastHash computed; an on-disk-only entry is
// treated as different rather than forcing a load here.
func sameContent(a, b *vfile.File) bool {
	if a.Entry.State == types.StateOnDisk || b.Entry.State == types.StateOnDisk {
		return false
	}
	return a.Entry.FastHash == b.Entry.FastHash
}

// packTables decodes (best-effort) every file under db/<tableFullName>
// in pack into *types.Table, in container-path order.
func (e *Engine) packTables(pack *container.Container, tableFullName string) []*types.Table {
	if pack == nil {
		return nil
	}
	var out []*types.Table
	for _, f := range pack.FilesByPath("db/"+tableFullName, false) {
		if f.Entry.State != types.StateDecoded {
			_ = f.Decode(e.Decoders)
		}
		if t := f.Entry.AsTable(); t != nil {
			out = append(out, t)
		}
	}
	return out
}

func (e *Engine) storeTables(tableFullName string) []*types.Table {
	var out []*types.Table
	for _, f := range e.Store.MergeDBFiles(tableFullName) {
		if f.Entry.State != types.StateDecoded {
			continue // best-effort: decoding failures/skips never fail the batch
		}
		if t := f.Entry.AsTable(); t != nil {
			out = append(out, t)
		}
	}
	return out
}

// DBReferenceData computes column_index -> TableReferences for an
// editor query: the vanilla+modded half is cached per (table_name,
// definition.Version) and re-used; the local-pack half is always
// recomputed and layered on top, with hardcoded patch lookups last.
func (e *Engine) DBReferenceData(tableFullName string, def *types.TableDefinition, pack *container.Container, locOverlay map[string]string) map[int]*types.TableReferences {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := refCacheKey{table: tableFullName, version: def.Version}
	vanilla, ok := e.refCache[key]
	if !ok {
		vanilla = refengine.ComputeReferences(def, refengine.Target{Store: e.storeTables}, e.Schema, locOverlay, e.Store.LocalisationIndex)
		e.refCache[key] = vanilla
	}

	var local map[int]*types.TableReferences
	if pack != nil {
		lookup := func(name string) []*types.Table { return e.packTables(pack, name) }
		local = refengine.ComputeReferences(def, refengine.Target{Store: lookup}, e.Schema, locOverlay, e.Store.LocalisationIndex)
	}

	return refengine.Combine(vanilla, local, def)
}

// GenerateLocalDBReferences computes the local-pack-only contribution
// for each named table, meant to be layered by the caller on top of a
// previously cached DBReferenceData vanilla result.
func (e *Engine) GenerateLocalDBReferences(pack *container.Container, tableFullNames []string) map[string]map[int]*types.TableReferences {
	// Lock (not RLock): packTables decodes pack files on demand,
	// mutating vfile.File state outside the Container's own lock.
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]map[int]*types.TableReferences, len(tableFullNames))
	for _, name := range tableFullNames {
		def, err := e.Schema.DefinitionNewer(name, 0)
		if err != nil {
			continue
		}
		lookup := func(n string) []*types.Table { return e.packTables(pack, n) }
		out[name] = refengine.ComputeReferences(def, refengine.Target{Store: lookup}, e.Schema, nil, e.Store.LocalisationIndex)
	}
	return out
}

// GenerateLocalDefinitionReferences is like GenerateLocalDBReferences
// but for one caller-supplied definition rather than the schema's own
// copy.
func (e *Engine) GenerateLocalDefinitionReferences(pack *container.Container, tableFullName string, def *types.TableDefinition) map[int]*types.TableReferences {
	e.mu.Lock()
	defer e.mu.Unlock()
	lookup := func(n string) []*types.Table { return e.packTables(pack, n) }
	return refengine.ComputeReferences(def, refengine.Target{Store: lookup}, e.Schema, nil, e.Store.LocalisationIndex)
}

// AssKitReferenceData resolves def's references against the
// assembly-kit-only tables, cached the same way as the vanilla+modded
// half.
func (e *Engine) AssKitReferenceData(tableFullName string, def *types.TableDefinition) map[int]*types.TableReferences {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := refCacheKey{table: tableFullName, version: def.Version}
	if cached, ok := e.assKitCache[key]; ok {
		return cached
	}
	lookup := func(name string) *types.Table {
		paths := e.Store.AssKitOnly.TablesByName[name]
		if len(paths) == 0 {
			return nil
		}
		f, ok := e.Store.AssKitOnly.Files[paths[0]]
		if !ok || f.Entry.State != types.StateDecoded {
			return nil
		}
		return f.Entry.AsTable()
	}
	result := refengine.ResolveAssKit(def, lookup)
	e.assKitCache[key] = result
	return result
}

// KeyDeletesTableReferences builds the synthetic key-deletes table's
// reference data over every table known to the store.
func (e *Engine) KeyDeletesTableReferences() *types.TableReferences {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return refengine.KeyDeletesTableReferences(e.Store.KnownDBTableNames())
}

// LocKeySource reverse-resolves a loc key to the (table, field,
// key-parts) that produced it.
func (e *Engine) LocKeySource(key string) (*locale.SourceMatch, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	lookup := func(shortName string) (locale.TableRows, bool) {
		def, err := e.Schema.DefinitionNewer(shortName+"_tables", 0)
		if err != nil {
			return locale.TableRows{}, false
		}
		var rows []types.Row
		for _, t := range e.storeTables(shortName + "_tables") {
			rows = append(rows, t.Rows...)
		}
		return locale.TableRows{Definition: def, Rows: rows}, true
	}
	return locale.KeySource(key, lookup)
}

// BruteforceResult pairs the winning permutation (as a set of column
// indices) with a human-readable diagnostic when the bruteforce
// couldn't validate every row.
type BruteforceResult struct {
	TableName  string
	Order      []int
	Diagnostic *locale.Diagnostic
}

// BruteforceLocKeyOrder runs the locale key-order bruteforce over
// every DB table currently known to the store (plus localPack's own
// tables, when given), persisting a winning order back into the
// schema and collecting a diagnostic for any table that couldn't
// validate one.
func (e *Engine) BruteforceLocKeyOrder(candidateLocs []string, localPack *container.Container) []BruteforceResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := e.Store.KnownDBTableNames()
	if localPack != nil {
		seen := make(map[string]bool, len(names))
		for _, n := range names {
			seen[n] = true
		}
		for _, f := range localPack.FilesByType([]types.FileType{types.FileTypeDB}) {
			if f.Entry.State != types.StateDecoded {
				_ = f.Decode(e.Decoders)
			}
			t := f.Entry.AsTable()
			if t == nil || seen[t.TableName] {
				continue
			}
			seen[t.TableName] = true
			names = append(names, t.TableName)
		}
		sort.Strings(names)
	}

	var results []BruteforceResult
	for _, tableName := range names {
		def, err := e.Schema.DefinitionNewer(tableName, 0)
		if err != nil {
			continue
		}
		var rows []types.Row
		for _, t := range e.storeTables(tableName) {
			rows = append(rows, t.Rows...)
		}
		for _, t := range e.packTables(localPack, tableName) {
			rows = append(rows, t.Rows...)
		}
		order, ok, diag := locale.BruteforceOrder(locale.TableRows{Definition: def, Rows: rows}, e.Store.LocalisationIndex, candidateLocs)
		if ok {
			e.Schema.SetLocalisedKeyOrder(tableName, def.Version, order)
		}
		results = append(results, BruteforceResult{TableName: tableName, Order: order, Diagnostic: diag})
	}
	return results
}

// DBValuesFromTableNameAndColumnName returns every distinct string
// value of columnName across the merged (optionally pack-overridden)
// rows of tableFullName.
func (e *Engine) DBValuesFromTableNameAndColumnName(pack *container.Container, tableFullName, columnName string, inclVanilla, inclParent bool) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, row := range e.mergedRowsLocked(pack, tableFullName, columnName, inclVanilla, inclParent) {
		v := row.value
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// DBValuesByKeyFromTableNameAndColumnName is the value-keyed variant:
// instead of a flat distinct list, returns columnName's value keyed by
// the row's own key-column value(s) joined with "/".
func (e *Engine) DBValuesByKeyFromTableNameAndColumnName(pack *container.Container, tableFullName, columnName string, inclVanilla, inclParent bool) map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]string)
	for _, row := range e.mergedRowsLocked(pack, tableFullName, columnName, inclVanilla, inclParent) {
		out[row.key] = row.value
	}
	return out
}

type keyedValue struct {
	key   string
	value string
}

// mergedRowsLocked collects every row of tableFullName in scope (local
// pack first, then the merged store layers per inclVanilla/inclParent)
// and returns columnName's value alongside the row's own "/"-joined
// key-column value. Caller must already hold e.mu.
func (e *Engine) mergedRowsLocked(pack *container.Container, tableFullName, columnName string, inclVanilla, inclParent bool) []keyedValue {
	var tables []*types.Table
	tables = append(tables, e.packTables(pack, tableFullName)...)
	for _, f := range e.Store.MergeDBFilesIncl(tableFullName, inclVanilla, inclParent) {
		if f.Entry.State == types.StateDecoded {
			if t := f.Entry.AsTable(); t != nil {
				tables = append(tables, t)
			}
		}
	}

	var out []keyedValue
	for _, t := range tables {
		colIdx := t.Definition.FieldIndex(columnName)
		if colIdx < 0 {
			continue
		}
		keyIdx := t.Definition.KeyIndices()
		for _, row := range t.Rows {
			var keyParts []string
			for _, ki := range keyIdx {
				keyParts = append(keyParts, row.Get(ki).String())
			}
			out = append(out, keyedValue{key: strings.Join(keyParts, "/"), value: row.Get(colIdx).String()})
		}
	}
	return out
}

// UpdateDB swaps f's table definition for the newest one the schema
// carries, reporting the version delta and field-name delta. Rows are
// left untouched; cell-level migration across an arbitrary schema
// change is a caller concern.
func (e *Engine) UpdateDB(f *vfile.File) (oldVersion, newVersion int32, deletedFields, addedFields []string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	table := f.Entry.AsTable()
	if table == nil || table.Definition == nil {
		return 0, 0, nil, nil, engineerrors.New(engineerrors.ReasonNoTablesToCompare, "depengine.UpdateDB", f.Entry.Path)
	}
	oldDef := table.Definition
	newDef, err := e.Schema.DefinitionNewer(oldDef.TableName, 0)
	if err != nil {
		return 0, 0, nil, nil, err
	}
	if newDef.Version <= oldDef.Version {
		return 0, 0, nil, nil, engineerrors.New(engineerrors.ReasonNoDefinitionUpdate, "depengine.UpdateDB", oldDef.TableName)
	}

	oldFields := fieldNameSet(oldDef)
	newFields := fieldNameSet(newDef)
	for name := range oldFields {
		if !newFields[name] {
			deletedFields = append(deletedFields, name)
		}
	}
	for name := range newFields {
		if !oldFields[name] {
			addedFields = append(addedFields, name)
		}
	}
	sort.Strings(deletedFields)
	sort.Strings(addedFields)

	table.Definition = newDef
	return oldDef.Version, newDef.Version, deletedFields, addedFields, nil
}

func fieldNameSet(def *types.TableDefinition) map[string]bool {
	out := make(map[string]bool, len(def.Fields))
	for _, f := range def.Fields {
		out[f.Name] = true
	}
	return out
}

// IsDBOutdated reports whether a newer definition exists for f's
// table.
func (e *Engine) IsDBOutdated(f *vfile.File) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	table := f.Entry.AsTable()
	if table == nil || table.Definition == nil {
		return false
	}
	newest, err := e.Schema.DefinitionNewer(table.Definition.TableName, 0)
	if err != nil {
		return false
	}
	return newest.Version > table.Definition.Version
}

// DBVersion returns the newest known definition version for a table.
func (e *Engine) DBVersion(tableFullName string) (int32, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, err := e.Schema.DefinitionNewer(tableFullName, 0)
	if err != nil {
		return 0, false
	}
	return def.Version, true
}

// GenerateMissingLocData returns every loc-key a table row in pack
// would need (per its definition's LocalisedFields/LocalisedKeyOrder)
// that isn't present in the core localisation index.
func (e *Engine) GenerateMissingLocData(pack *container.Container) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var missing []string
	seen := make(map[string]bool)
	for _, f := range pack.FilesByType([]types.FileType{types.FileTypeDB}) {
		if f.Entry.State != types.StateDecoded {
			continue
		}
		table := f.Entry.AsTable()
		if table == nil || len(table.Definition.LocalisedFields) == 0 {
			continue
		}
		shortTable := strings.TrimSuffix(table.Definition.TableName, "_tables")
		for _, field := range table.Definition.LocalisedFields {
			for _, row := range table.Rows {
				var concat strings.Builder
				for _, pos := range table.Definition.LocalisedKeyOrder {
					concat.WriteString(row.Get(pos).String())
				}
				key := shortTable + "_" + field + "_" + concat.String()
				if _, ok := e.Store.LocalisationIndex[key]; ok {
					continue
				}
				if !seen[key] {
					seen[key] = true
					missing = append(missing, key)
				}
			}
		}
	}
	sort.Strings(missing)
	return missing
}

// DiscoverPatches scans String columns of every decoded DB table in
// the store plus pack for filename fragments, matching them against
// every vanilla file path.
func (e *Engine) DiscoverPatches(pack *container.Container, rules patchdiscovery.Rules) []patchdiscovery.ColumnPatch {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var vanillaPaths []string
	for p := range e.Store.VanillaPacked.Files {
		vanillaPaths = append(vanillaPaths, p)
	}
	for p := range e.Store.VanillaLoose.Files {
		vanillaPaths = append(vanillaPaths, p)
	}
	sort.Strings(vanillaPaths)

	var candidates []patchdiscovery.ColumnCandidate
	allTables := make([]*types.Table, 0)
	for _, name := range e.Store.KnownDBTableNames() {
		allTables = append(allTables, e.storeTables(name)...)
	}
	if pack != nil {
		for _, f := range pack.FilesByType([]types.FileType{types.FileTypeDB}) {
			if t := f.Entry.AsTable(); t != nil {
				allTables = append(allTables, t)
			}
		}
	}

	for _, t := range allTables {
		for ci, field := range t.Definition.Fields {
			if field.Type != types.FieldTypeString && field.Type != types.FieldTypeOptionalString {
				continue
			}
			var values []string
			for _, row := range t.Rows {
				values = append(values, row.Get(ci).String())
			}
			candidates = append(candidates, patchdiscovery.ColumnCandidate{
				TableName:  t.TableName,
				ColumnName: field.Name,
				Values:     values,
			})
		}
	}

	return patchdiscovery.Discover(candidates, vanillaPaths, rules)
}
