package locale

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packforge/depgraph/internal/types"
)

func row(cells ...string) types.Row {
	r := make(types.Row, len(cells))
	for i, c := range cells {
		r[i] = types.StringCell(c)
	}
	return r
}

// cities has key columns [region, city]; only that order produces a
// valid key for every row.
func TestBruteforceOrderTwoKeyColumns(t *testing.T) {
	def := &types.TableDefinition{
		TableName: "cities_tables",
		Fields: []types.Field{
			{Name: "region", IsKey: true},
			{Name: "city", IsKey: true},
		},
		LocalisedFields: []string{"name"},
	}
	rows := []types.Row{row("REG1", "CITY1"), row("REG2", "CITY2")}

	locIndex := map[string]string{
		"cities_name_REG1CITY1": "First City",
		"cities_name_REG2CITY2": "Second City",
	}

	order, ok, diag := BruteforceOrder(TableRows{Definition: def, Rows: rows}, locIndex, nil)
	require.Nil(t, diag)
	require.True(t, ok)
	assert.Equal(t, []int{0, 1}, order)
}

func TestBruteforceOrderRejectsIncompletePermutation(t *testing.T) {
	def := &types.TableDefinition{
		TableName: "cities_tables",
		Fields: []types.Field{
			{Name: "region", IsKey: true},
			{Name: "city", IsKey: true},
		},
		LocalisedFields: []string{"name"},
	}
	rows := []types.Row{row("REG1", "CITY1"), row("REG2", "CITY2")}

	// Only the first row's concatenation happens to match under the
	// wrong (city, region) order; the second row never does, so no
	// permutation should validate.
	locIndex := map[string]string{
		"cities_name_CITY1REG1": "First City",
	}

	order, ok, diag := BruteforceOrder(TableRows{Definition: def, Rows: rows}, locIndex, nil)
	assert.Nil(t, order)
	assert.False(t, ok)
	require.NotNil(t, diag)
	assert.Equal(t, "cities_tables", diag.TableName)
}

func TestBruteforceOrderSingleKeyColumn(t *testing.T) {
	def := &types.TableDefinition{
		TableName: "units_tables",
		Fields: []types.Field{
			{Name: "id", IsKey: true},
			{Name: "name"},
		},
		LocalisedFields: []string{"description"},
	}
	rows := []types.Row{row("a", "A")}
	locIndex := map[string]string{"units_description_a": "Description A"}

	order, ok, diag := BruteforceOrder(TableRows{Definition: def, Rows: rows}, locIndex, nil)
	require.Nil(t, diag)
	require.True(t, ok)
	assert.Equal(t, []int{0}, order)
}

func TestBruteforceOrderNoLocalisedCandidates(t *testing.T) {
	def := &types.TableDefinition{
		TableName: "units_tables",
		Fields:    []types.Field{{Name: "id", IsKey: true}},
	}
	order, ok, diag := BruteforceOrder(TableRows{Definition: def, Rows: nil}, nil, nil)
	assert.Nil(t, order)
	assert.True(t, ok)
	assert.Nil(t, diag)
}

func TestKeySourceReverseResolution(t *testing.T) {
	unitsDef := &types.TableDefinition{
		TableName:         "units_tables",
		LocalisedFields:   []string{"description"},
		LocalisedKeyOrder: []int{0},
		Fields:            []types.Field{{Name: "id", IsKey: true}, {Name: "name"}},
	}
	units := TableRows{Definition: unitsDef, Rows: []types.Row{row("a", "A"), row("b", "B")}}

	lookup := func(name string) (TableRows, bool) {
		if name == "units" {
			return units, true
		}
		return TableRows{}, false
	}

	match, ok := KeySource("units_description_a", lookup)
	require.True(t, ok)
	assert.Equal(t, "units", match.TableShortName)
	assert.Equal(t, "description", match.Field)
	assert.Equal(t, []string{"a"}, match.KeyParts)
}

func TestKeySourceLongestTableNameWins(t *testing.T) {
	landUnits := TableRows{
		Definition: &types.TableDefinition{
			TableName:         "land_units_tables",
			LocalisedFields:   []string{"name"},
			LocalisedKeyOrder: []int{0},
			Fields:            []types.Field{{Name: "id", IsKey: true}},
		},
		Rows: []types.Row{row("a")},
	}
	units := TableRows{
		Definition: &types.TableDefinition{
			TableName:         "units_tables",
			LocalisedFields:   []string{"name"},
			LocalisedKeyOrder: []int{0},
			Fields:            []types.Field{{Name: "id", IsKey: true}},
		},
		Rows: []types.Row{row("land_a")},
	}

	lookup := func(name string) (TableRows, bool) {
		switch name {
		case "land_units":
			return landUnits, true
		case "units":
			return units, true
		}
		return TableRows{}, false
	}

	match, ok := KeySource("land_units_name_a", lookup)
	require.True(t, ok)
	assert.Equal(t, "land_units", match.TableShortName)
}

func TestKeySourceNoMatch(t *testing.T) {
	lookup := func(name string) (TableRows, bool) { return TableRows{}, false }
	_, ok := KeySource("nonexistent_field_x", lookup)
	assert.False(t, ok)
}
