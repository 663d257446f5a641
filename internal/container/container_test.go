package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packforge/depgraph/internal/types"
	"github.com/packforge/depgraph/internal/vfile"
)

func newDBFile(path string) *vfile.File {
	return vfile.FromRawBytes(path, types.FileTypeDB, []byte("raw"))
}

func TestInsertAndExactFile(t *testing.T) {
	c := New()
	c.Insert(newDBFile("db/units_tables/land_units.tsv"))

	f, err := c.File("db/units_tables/land_units.tsv", false)
	require.NoError(t, err)
	assert.Equal(t, "db/units_tables/land_units.tsv", f.Entry.Path)
}

func TestFileCaseInsensitiveFallsBackToFoldedIndex(t *testing.T) {
	c := New()
	c.Insert(newDBFile("DB/Units_Tables/Land_Units.tsv"))

	_, err := c.File("db/units_tables/land_units.tsv", false)
	require.Error(t, err)

	f, err := c.File("db/units_tables/land_units.tsv", true)
	require.NoError(t, err)
	assert.Equal(t, "DB/Units_Tables/Land_Units.tsv", f.Entry.Path)
}

func TestFilesByPathFolderPrefixMatchesWholeSegmentsOnly(t *testing.T) {
	c := New()
	c.Insert(newDBFile("db/units_tables/land_units.tsv"))
	c.Insert(newDBFile("db/units_tables_extra/x.tsv"))

	got := c.FilesByPath("db/units_tables", false)
	require.Len(t, got, 1)
	assert.Equal(t, "db/units_tables/land_units.tsv", got[0].Entry.Path)
}

func TestFilesByPathCaseInsensitiveFolderPrefix(t *testing.T) {
	c := New()
	c.Insert(newDBFile("DB/Units_Tables/Land_Units.tsv"))

	got := c.FilesByPath("db/units_tables", true)
	require.Len(t, got, 1)
}

func TestRemoveDropsLastCasedVariantFromIndex(t *testing.T) {
	c := New()
	c.Insert(newDBFile("DB/Units_Tables/Land_Units.tsv"))
	c.Remove("DB/Units_Tables/Land_Units.tsv")

	_, err := c.File("db/units_tables/land_units.tsv", true)
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestMovePreservesEntry(t *testing.T) {
	c := New()
	c.Insert(newDBFile("db/units_tables/land_units.tsv"))
	require.NoError(t, c.Move("db/units_tables/land_units.tsv", "db/units_tables/land_units_renamed.tsv"))

	_, err := c.File("db/units_tables/land_units.tsv", false)
	require.Error(t, err)

	f, err := c.File("db/units_tables/land_units_renamed.tsv", false)
	require.NoError(t, err)
	assert.Equal(t, "db/units_tables/land_units_renamed.tsv", f.Entry.Path)
}

func TestFilesByType(t *testing.T) {
	c := New()
	c.Insert(newDBFile("db/units_tables/land_units.tsv"))
	c.Insert(vfile.FromRawBytes("ui/icons/unit.png", types.FileTypeImage, []byte("raw")))

	got := c.FilesByType([]types.FileType{types.FileTypeDB})
	require.Len(t, got, 1)
	assert.Equal(t, types.FileTypeDB, got[0].Entry.FileType)
}

func TestExtractFallsBackToRawBytesWhenExportFails(t *testing.T) {
	c := New()
	f := newDBFile("db/units_tables/land_units.tsv")
	require.NoError(t, f.Decode(vfile.Decoders{DB: func(path string, raw []byte) (*types.Table, error) {
		return &types.Table{TableName: "units_tables"}, nil
	}}))
	c.Insert(f)

	dest := t.TempDir()
	failingExporter := func(*types.Table) ([]byte, error) { return nil, assertErr }
	results, err := c.Extract("db/units_tables/land_units.tsv", dest, true, failingExporter, false, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].UsedTSVFallback)
}

var assertErr = errBoom{}

type errBoom struct{}

func (errBoom) Error() string { return "export failed" }
