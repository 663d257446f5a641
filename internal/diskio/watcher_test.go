package diskio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherSignalsOnFileWrite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping filesystem watch test in short mode")
	}

	dir := t.TempDir()

	w, err := NewWatcher()
	require.NoError(t, err)
	defer w.Close()
	w.debounce = 20 * time.Millisecond

	require.NoError(t, w.Watch(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new_data_table.tsv"), []byte("a\tb\n"), 0o644))

	select {
	case <-w.Changes():
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change signal after writing a file")
	}
}

func TestWatcherSkipsMissingRoots(t *testing.T) {
	w, err := NewWatcher()
	require.NoError(t, err)
	defer w.Close()

	assert.NoError(t, w.Watch("", filepath.Join(t.TempDir(), "does-not-exist")))
}
