package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKDLDefaults(t *testing.T) {
	cfg, err := parseKDL("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 120, cfg.Performance.BuildTimeoutSec)
	assert.Equal(t, 0, cfg.Performance.ParallelFileWorkers)
	assert.False(t, cfg.Cache.WatchMode)
}

func TestParseKDLGameSection(t *testing.T) {
	content := `
game "warhammer3" {
    archive "data_1.pack"
    archive "data_2.pack"
    data_path "./data"
    secondary_path "./secondary"
    content_path "./content"
    assembly_kit_path "./assembly_kit"
    database_version "wh3"
    parent_pack "mymod.pack"
}
performance {
    parallel_file_workers 4
    build_timeout_sec 60
}
cache {
    path "build/cache"
    watch_mode true
}
`
	cfg, err := parseKDL(content)
	require.NoError(t, err)

	assert.Equal(t, "warhammer3", cfg.Game.Key)
	assert.Equal(t, []string{"data_1.pack", "data_2.pack"}, cfg.Game.ArchivePaths)
	assert.Equal(t, "./data", cfg.Game.DataPath)
	assert.Equal(t, "./secondary", cfg.Game.SecondaryPath)
	assert.Equal(t, "./content", cfg.Game.ContentPath)
	assert.Equal(t, "./assembly_kit", cfg.Game.AssemblyKitPath)
	assert.Equal(t, "wh3", cfg.Game.DatabaseVersion)
	assert.Equal(t, []string{"mymod.pack"}, cfg.Game.ParentPackNames)
	assert.Equal(t, 4, cfg.Performance.ParallelFileWorkers)
	assert.Equal(t, 60, cfg.Performance.BuildTimeoutSec)
	assert.Equal(t, "build/cache", cfg.Cache.Path)
	assert.True(t, cfg.Cache.WatchMode)
}

func TestLoadKDLMissingFileReturnsNilNotError(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadKDL(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestParseKDLSchemaPath(t *testing.T) {
	cfg, err := parseKDL(`schema_path "schema.json"`)
	require.NoError(t, err)
	assert.Equal(t, "schema.json", cfg.SchemaPath)
}

func TestLoadKDLResolvesSchemaPathRelativeToDir(t *testing.T) {
	dir := t.TempDir()
	content := "schema_path \"schema.json\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".packdeps.kdl"), []byte(content), 0o644))

	cfg, err := LoadKDL(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, filepath.Join(dir, "schema.json"), cfg.SchemaPath)
}

func TestLoadKDLResolvesCachePathRelativeToDir(t *testing.T) {
	dir := t.TempDir()
	content := "cache {\n    path \"cache-out\"\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".packdeps.kdl"), []byte(content), 0o644))

	cfg, err := LoadKDL(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, filepath.Join(dir, "cache-out"), cfg.Cache.Path)
}

func TestToGameDescriptorAbsolutizesPaths(t *testing.T) {
	cfg := Default()
	cfg.Game.Key = "warhammer3"
	cfg.Game.ArchivePaths = []string{"data_1.pack"}
	cfg.Game.DataPath = "data"

	desc := cfg.ToGameDescriptor("/project")
	assert.Equal(t, "warhammer3", desc.Key)
	assert.Equal(t, []string{"/project/data_1.pack"}, desc.ArchivePaths)
	assert.Equal(t, "/project/data", desc.DataPath)
}
