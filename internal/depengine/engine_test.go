package depengine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packforge/depgraph/internal/container"
	"github.com/packforge/depgraph/internal/schema"
	"github.com/packforge/depgraph/internal/store"
	"github.com/packforge/depgraph/internal/types"
	"github.com/packforge/depgraph/internal/vfile"
)

func def(name string, version int32, fields ...types.Field) *types.TableDefinition {
	return &types.TableDefinition{TableName: name, Version: version, Fields: fields}
}

func row(cells ...string) types.Row {
	r := make(types.Row, len(cells))
	for i, c := range cells {
		r[i] = types.StringCell(c)
	}
	return r
}

func decodedDBFile(path, origin string, d *types.TableDefinition, rows ...types.Row) *vfile.File {
	f, err := vfile.FromDecoded(path, types.FileTypeDB, &types.Table{TableName: d.TableName, Definition: d, Rows: rows})
	if err != nil {
		panic(err)
	}
	f.Entry.ContainerOrigin = origin
	return f
}

type fakeArchiveReader struct {
	byPath map[string][]*vfile.File
}

func (f *fakeArchiveReader) ReadArchive(path string) ([]*vfile.File, vfile.Source, []string, error) {
	return f.byPath[path], nil, nil, nil
}

type fixedClock struct {
	now int64
}

func (c fixedClock) NowSeconds() int64 { return c.now }

func (c fixedClock) MTime(path string) (time.Time, error) { return time.Unix(c.now, 0), nil }

func newTestEngine(t *testing.T, unitsDef, soldiersDef *types.TableDefinition, unitsRows, soldiersRows []types.Row) *Engine {
	t.Helper()
	archiveReader := &fakeArchiveReader{byPath: map[string][]*vfile.File{
		"data.pack": {
			decodedDBFile("db/units_tables/data__.tsv", "data.pack", unitsDef, unitsRows...),
			decodedDBFile("db/soldiers_tables/data__.tsv", "data.pack", soldiersDef, soldiersRows...),
		},
	}}

	e := New(types.GameDescriptor{ArchivePaths: []string{"data.pack"}}, schema.NewSet([]*types.TableDefinition{unitsDef, soldiersDef}), vfile.Decoders{}, fixedClock{now: 1700000000})
	require.NoError(t, e.Rebuild(context.Background(), RebuildOptions{ArchiveReader: archiveReader}))
	return e
}

func TestDBReferenceDataResolvesAndCachesVanilla(t *testing.T) {
	unitsDef := def("units_tables", 1,
		types.Field{Name: "id", IsKey: true},
		types.Field{Name: "name"},
	)
	soldiersDef := def("soldiers_tables", 1,
		types.Field{Name: "unit_ref", Reference: &types.Reference{Table: "units", Column: "id"}, Lookup: []string{"name"}},
	)
	e := newTestEngine(t, unitsDef, soldiersDef, []types.Row{row("a", "Archer")}, nil)

	refs := e.DBReferenceData("soldiers_tables", soldiersDef, nil, nil)
	require.Contains(t, refs, 0)
	assert.Equal(t, map[string]string{"a": "Archer"}, refs[0].Data)

	key := refCacheKey{table: "soldiers_tables", version: soldiersDef.Version}
	_, ok := e.refCache[key]
	require.True(t, ok)

	// Recomputing is stable: the cached vanilla half is reused, and the
	// combined result comes out identical.
	again := e.DBReferenceData("soldiers_tables", soldiersDef, nil, nil)
	assert.Equal(t, refs, again)
}

func TestDBReferenceDataLayersLocalPackOverVanilla(t *testing.T) {
	unitsDef := def("units_tables", 1,
		types.Field{Name: "id", IsKey: true},
		types.Field{Name: "name"},
	)
	soldiersDef := def("soldiers_tables", 1,
		types.Field{Name: "unit_ref", Reference: &types.Reference{Table: "units", Column: "id"}, Lookup: []string{"name"}},
	)
	e := newTestEngine(t, unitsDef, soldiersDef, []types.Row{row("a", "Archer")}, nil)

	pack := container.New()
	localUnits, err := vfile.FromDecoded("db/units_tables/mod.tsv", types.FileTypeDB, &types.Table{
		TableName: "units_tables", Definition: unitsDef, Rows: []types.Row{row("a", "Archer Reforged")},
	})
	require.NoError(t, err)
	pack.Insert(localUnits)

	refs := e.DBReferenceData("soldiers_tables", soldiersDef, pack, nil)
	assert.Equal(t, map[string]string{"a": "Archer Reforged"}, refs[0].Data)
}

func TestBruteforceLocKeyOrderPersistsWinningOrderAndLocKeySourceReversesIt(t *testing.T) {
	unitsDef := &types.TableDefinition{
		TableName:       "units_tables",
		Version:         1,
		Fields:          []types.Field{{Name: "culture", IsKey: true}, {Name: "key", IsKey: true}, {Name: "description"}},
		LocalisedFields: []string{"description"},
	}
	soldiersDef := def("soldiers_tables", 1, types.Field{Name: "id", IsKey: true})
	e := newTestEngine(t, unitsDef, soldiersDef, []types.Row{row("rome", "archer", "")}, nil)
	e.Store.LocalisationIndex["units_description_archerrome"] = "Archer"

	results := e.BruteforceLocKeyOrder(nil, nil)
	var unitsResult *BruteforceResult
	for i := range results {
		if results[i].TableName == "units_tables" {
			unitsResult = &results[i]
		}
	}
	require.NotNil(t, unitsResult)
	require.Nil(t, unitsResult.Diagnostic)
	assert.Equal(t, []int{1, 0}, unitsResult.Order)
	assert.Equal(t, []int{1, 0}, unitsDef.LocalisedKeyOrder)

	match, ok := e.LocKeySource("units_description_archerrome")
	require.True(t, ok)
	assert.Equal(t, "units", match.TableShortName)
	assert.Equal(t, "description", match.Field)
	assert.Equal(t, []string{"archer", "rome"}, match.KeyParts)
}

func TestUpdateDBReportsVersionAndFieldDelta(t *testing.T) {
	oldDef := def("units_tables", 1, types.Field{Name: "id", IsKey: true}, types.Field{Name: "legacy_flag"})
	newDef := def("units_tables", 2, types.Field{Name: "id", IsKey: true}, types.Field{Name: "upkeep_cost"})
	e := New(types.GameDescriptor{}, schema.NewSet([]*types.TableDefinition{oldDef, newDef}), vfile.Decoders{}, fixedClock{now: 1})
	e.Store = &store.Store{
		VanillaPacked:     &store.Layer{Files: map[string]*vfile.File{}},
		VanillaLoose:      &store.Layer{Files: map[string]*vfile.File{}},
		ParentMod:         &store.Layer{Files: map[string]*vfile.File{}},
		AssKitOnly:        &store.Layer{Files: map[string]*vfile.File{}},
		LocalisationIndex: map[string]string{},
	}

	f := decodedDBFile("db/units_tables/mod.tsv", "mod.pack", oldDef, row("a", "true"))

	oldV, newV, deleted, added, err := e.UpdateDB(f)
	require.NoError(t, err)
	assert.Equal(t, int32(1), oldV)
	assert.Equal(t, int32(2), newV)
	assert.Equal(t, []string{"legacy_flag"}, deleted)
	assert.Equal(t, []string{"upkeep_cost"}, added)
	assert.Same(t, newDef, f.Entry.AsTable().Definition)

	_, _, _, _, err = e.UpdateDB(f)
	assert.Error(t, err)
}

func TestSaveLoadRoundTripThroughEngine(t *testing.T) {
	unitsDef := def("units_tables", 1, types.Field{Name: "id", IsKey: true}, types.Field{Name: "name"})
	soldiersDef := def("soldiers_tables", 1, types.Field{Name: "x"})
	e := newTestEngine(t, unitsDef, soldiersDef, []types.Row{row("a", "Archer")}, nil)

	base := filepath.Join(t.TempDir(), "deps")
	require.NoError(t, e.Save(base))

	loaded := New(types.GameDescriptor{}, schema.NewSet([]*types.TableDefinition{unitsDef, soldiersDef}), vfile.Decoders{}, fixedClock{now: 1700000000})
	require.NoError(t, loaded.Load(context.Background(), base))

	files := loaded.DBData("units_tables", true, true)
	require.Len(t, files, 1)
	assert.Equal(t, "db/units_tables/data__.tsv", files[0].Entry.Path)
}

type fakeAssKitWalker struct {
	files []*vfile.File
}

func (w *fakeAssKitWalker) WalkLoose(root string) ([]*vfile.File, vfile.Source, error) {
	return w.files, nil, nil
}

func TestGenerateDependenciesCacheCollectsAssKitOnlyTables(t *testing.T) {
	unitsDef := def("units_tables", 1, types.Field{Name: "id", IsKey: true})
	akOnlyDef := def("ak_secret_tables", 1, types.Field{Name: "id", IsKey: true})

	archiveReader := &fakeArchiveReader{byPath: map[string][]*vfile.File{
		"data.pack": {decodedDBFile("db/units_tables/data__.tsv", "data.pack", unitsDef, row("a"))},
	}}
	akWalker := &fakeAssKitWalker{files: []*vfile.File{
		decodedDBFile("db/units_tables/export.tsv", "asskit", unitsDef, row("a"), row("b")),
		decodedDBFile("db/ak_secret_tables/export.tsv", "asskit", akOnlyDef, row("x")),
	}}

	e := New(types.GameDescriptor{ArchivePaths: []string{"data.pack"}, AssemblyKitPath: "ak"},
		schema.NewSet([]*types.TableDefinition{unitsDef, akOnlyDef}), vfile.Decoders{}, fixedClock{now: 1700000000})

	snap, err := e.GenerateDependenciesCache(context.Background(), GenerateCacheOptions{
		ArchiveReader:           archiveReader,
		AssKitWalker:            akWalker,
		IgnoreGameFilesInAssKit: true,
	})
	require.NoError(t, err)

	assert.Contains(t, snap.AssKitOnlyTables, "ak_secret_tables")
	assert.NotContains(t, snap.AssKitOnlyTables, "units_tables")
	assert.Contains(t, snap.VanillaTablesIdx, "units_tables")

	refs := e.AssKitReferenceData("any_tables", def("any_tables", 1,
		types.Field{Name: "secret_ref", Reference: &types.Reference{Table: "ak_secret", Column: "id"}}))
	require.Contains(t, refs, 0)
	assert.True(t, refs[0].ReferencedTableIsAssemblyKitOnly)
	assert.Equal(t, map[string]string{"x": ""}, refs[0].Data)
}

func TestNeedsUpdatingTrueBeforeAnyLoad(t *testing.T) {
	e := New(types.GameDescriptor{}, schema.NewSet(nil), vfile.Decoders{}, fixedClock{now: 1})
	assert.True(t, e.NeedsUpdating())
}
