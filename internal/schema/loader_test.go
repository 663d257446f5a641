package schema

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefinitionsFileParsesTableNameKeyedDocument(t *testing.T) {
	doc := `{
		"units_tables": [
			{
				"table_name": "units_tables",
				"version": 2,
				"fields": [
					{"name": "id", "type": "string", "is_key": true},
					{"name": "soldiers", "type": "int"}
				]
			}
		]
	}`
	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	set, err := LoadDefinitionsFile(context.Background(), path)
	require.NoError(t, err)

	def, err := set.DefinitionNewer("units_tables", 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), def.Version)
	assert.Equal(t, "soldiers", def.Fields[1].Name)
}

func TestLoadDefinitionsFileRejectsMalformedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"units_tables": [{"version": 1}]}`), 0644))

	_, err := LoadDefinitionsFile(context.Background(), path)
	assert.Error(t, err)
}

func TestLoadDefinitionsFileMissingPath(t *testing.T) {
	_, err := LoadDefinitionsFile(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
