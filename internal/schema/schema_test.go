package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engineerrors "github.com/packforge/depgraph/internal/errors"
	"github.com/packforge/depgraph/internal/types"
)

func TestDefinitionNewerPicksHighestQualifyingVersion(t *testing.T) {
	set := NewSet([]*types.TableDefinition{
		{TableName: "land_units_tables", Version: 1},
		{TableName: "land_units_tables", Version: 3},
		{TableName: "land_units_tables", Version: 2},
	})

	got, err := set.DefinitionNewer("land_units_tables", 0)
	require.NoError(t, err)
	assert.Equal(t, int32(3), got.Version)
}

func TestDefinitionNewerRespectsMinVersion(t *testing.T) {
	set := NewSet([]*types.TableDefinition{
		{TableName: "land_units_tables", Version: 1},
		{TableName: "land_units_tables", Version: 2},
	})

	got, err := set.DefinitionNewer("land_units_tables", 2)
	require.NoError(t, err)
	assert.Equal(t, int32(2), got.Version)
}

func TestDefinitionNewerMissing(t *testing.T) {
	set := NewSet(nil)
	_, err := set.DefinitionNewer("land_units_tables", 0)
	require.Error(t, err)
	ee, ok := err.(*engineerrors.EngineError)
	require.True(t, ok)
	assert.Equal(t, engineerrors.ReasonDefinitionMissing, ee.Reason)
}
