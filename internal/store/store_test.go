package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packforge/depgraph/internal/types"
	"github.com/packforge/depgraph/internal/vfile"
)

func dbFile(path, origin string) *vfile.File {
	f := vfile.FromRawBytes(path, types.FileTypeDB, []byte("raw"))
	f.Entry.ContainerOrigin = origin
	return f
}

type fakeArchiveReader struct {
	byPath map[string]struct {
		files []*vfile.File
		deps  []string
	}
}

func (f *fakeArchiveReader) ReadArchive(path string) ([]*vfile.File, vfile.Source, []string, error) {
	entry := f.byPath[path]
	return entry.files, nil, entry.deps, nil
}

type fakeLooseWalker struct {
	files []*vfile.File
}

func (w *fakeLooseWalker) WalkLoose(root string) ([]*vfile.File, vfile.Source, error) {
	return w.files, nil, nil
}

type fakeLocator struct {
	paths map[string]string
}

func (l *fakeLocator) Locate(name, dataDir, secondaryDir, contentDir string) (string, bool) {
	p, ok := l.paths[name]
	return p, ok
}

func TestBuildMergesThreeLayers(t *testing.T) {
	archiveReader := &fakeArchiveReader{byPath: map[string]struct {
		files []*vfile.File
		deps  []string
	}{
		"data_1.pack": {files: []*vfile.File{dbFile("db/land_units_tables/data__.tsv", "data_1.pack")}},
		"mymod.pack":  {files: []*vfile.File{dbFile("db/land_units_tables/mymod.tsv", "mymod.pack")}},
	}}
	loose := &fakeLooseWalker{files: []*vfile.File{dbFile("db/land_units_tables/loose.tsv", "loose")}}
	locator := &fakeLocator{paths: map[string]string{"mymod.pack": "mymod.pack"}}

	s, err := Build(context.TODO(), BuildOptions{
		Game: types.GameDescriptor{
			ArchivePaths: []string{"data_1.pack"},
			DataPath:     "data",
		},
		ParentPackNames: []string{"mymod.pack"},
		ArchiveReader:   archiveReader,
		LooseWalker:     loose,
		ParentLocator:   locator,
		BuildTimeSecs:   1700000000,
	})
	require.NoError(t, err)

	merged := s.MergeDBPaths("land_units_tables")
	assert.Equal(t, []string{
		"db/land_units_tables/loose.tsv",
		"db/land_units_tables/data__.tsv",
		"db/land_units_tables/mymod.tsv",
	}, merged)
}

func TestFileQueryOrderPrefersParentThenVanillaPackedThenLoose(t *testing.T) {
	s := newEmpty()
	s.VanillaLoose.Files["x.tsv"] = dbFile("x.tsv", "loose")
	s.VanillaPacked.Files["x.tsv"] = dbFile("x.tsv", "data_1.pack")
	s.ParentMod.Files["x.tsv"] = dbFile("x.tsv", "mymod.pack")

	f, ok := s.File("x.tsv", true, true, false)
	require.True(t, ok)
	assert.Equal(t, "mymod.pack", f.Entry.ContainerOrigin)
}

func TestAncestorFoldersPopulated(t *testing.T) {
	l := newLayer()
	l.Files["db/units_tables/land_units.tsv"] = dbFile("db/units_tables/land_units.tsv", "x")
	l.rebuildIndices()

	assert.True(t, l.Folders["db"])
	assert.True(t, l.Folders["db/units_tables"])
}

func TestLocalisationIndexMergeParentOverridesVanilla(t *testing.T) {
	s := newEmpty()
	locFile := func(path, origin string) *vfile.File {
		f := vfile.FromRawBytes(path, types.FileTypeLoc, []byte("raw"))
		f.Entry.ContainerOrigin = origin
		return f
	}
	s.VanillaPacked.Files["text/db.loc"] = locFile("text/db.loc", "vanilla")
	s.ParentMod.Files["text/db2.loc"] = locFile("text/db2.loc", "mymod")
	for _, l := range []*Layer{s.VanillaPacked, s.ParentMod, s.VanillaLoose} {
		l.rebuildIndices()
	}

	s.RebuildLocalisationIndex(func(f *vfile.File) map[string]string {
		if f.Entry.ContainerOrigin == "vanilla" {
			return map[string]string{"land_units_onscreen_name_key": "Vanilla Name"}
		}
		return map[string]string{"land_units_onscreen_name_key": "Modded Name"}
	})

	assert.Equal(t, "Modded Name", s.LocalisationIndex["land_units_onscreen_name_key"])
}
