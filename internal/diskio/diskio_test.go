package diskio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packforge/depgraph/internal/types"
)

func TestWalkLooseReadsFilesRelativeToRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "db", "units_tables"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "db", "units_tables", "data__.tsv"), []byte("a\tb\n"), 0644))

	files, src, err := Walker{}.WalkLoose(root)
	require.NoError(t, err)
	assert.Nil(t, src)
	require.Len(t, files, 1)
	assert.Equal(t, "db/units_tables/data__.tsv", files[0].Entry.Path)
	assert.Equal(t, types.FileTypeDB, files[0].Entry.FileType)
	assert.Equal(t, types.StateCached, files[0].Entry.State)
}

func TestLocatorSearchesDataSecondaryContentInOrder(t *testing.T) {
	dataDir := t.TempDir()
	secondaryDir := t.TempDir()
	contentDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(secondaryDir, "parent.pack"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(contentDir, "parent.pack"), []byte("y"), 0644))

	path, ok := Locator{}.Locate("parent.pack", dataDir, secondaryDir, contentDir)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(secondaryDir, "parent.pack"), path)
}

func TestLocatorMissingReturnsFalse(t *testing.T) {
	_, ok := Locator{}.Locate("nope.pack", t.TempDir(), "", "")
	assert.False(t, ok)
}
