package refengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packforge/depgraph/internal/schema"
	"github.com/packforge/depgraph/internal/types"
)

func def(name string, version int32, fields ...types.Field) *types.TableDefinition {
	return &types.TableDefinition{TableName: name, Version: version, Fields: fields}
}

func tbl(name string, d *types.TableDefinition, rows ...types.Row) *types.Table {
	return &types.Table{TableName: name, Definition: d, Rows: rows}
}

func row(cells ...string) types.Row {
	r := make(types.Row, len(cells))
	for i, c := range cells {
		r[i] = types.StringCell(c)
	}
	return r
}

func oneTable(t *types.Table) TableLookup {
	return func(name string) []*types.Table {
		if name == t.TableName {
			return []*types.Table{t}
		}
		return nil
	}
}

func TestSingleLayerReference(t *testing.T) {
	unitsDef := def("units_tables", 1,
		types.Field{Name: "id", IsKey: true},
		types.Field{Name: "name"},
	)
	units := tbl("units_tables", unitsDef, row("a", "A"), row("b", "B"))

	referencingDef := def("soldiers_tables", 1,
		types.Field{Name: "unit_ref", Reference: &types.Reference{Table: "units", Column: "id"}, Lookup: []string{"name"}},
	)

	provider := schema.NewSet([]*types.TableDefinition{unitsDef, referencingDef})
	target := Target{Store: oneTable(units)}

	refs := ComputeReferences(referencingDef, target, provider, nil, nil)
	require.Contains(t, refs, 0)
	assert.Equal(t, map[string]string{"a": "A", "b": "B"}, refs[0].Data)
	assert.False(t, refs[0].ReferencedColumnIsLocalised)
	assert.Equal(t, "unit_ref", refs[0].FieldName)
}

func TestParentOverridesVanilla(t *testing.T) {
	unitsDef := def("units_tables", 1,
		types.Field{Name: "id", IsKey: true},
		types.Field{Name: "name"},
	)
	vanilla := tbl("units_tables", unitsDef, row("a", "A"), row("b", "B"))
	parent := tbl("units_tables", unitsDef, row("a", "A2"))

	referencingDef := def("soldiers_tables", 1,
		types.Field{Name: "unit_ref", Reference: &types.Reference{Table: "units", Column: "id"}, Lookup: []string{"name"}},
	)

	provider := schema.NewSet([]*types.TableDefinition{unitsDef, referencingDef})
	lookup := func(name string) []*types.Table {
		if name == "units_tables" {
			return []*types.Table{vanilla, parent}
		}
		return nil
	}
	target := Target{Store: lookup}

	refs := ComputeReferences(referencingDef, target, provider, nil, nil)
	assert.Equal(t, map[string]string{"a": "A2", "b": "B"}, refs[0].Data)
}

func TestLocalisedLookup(t *testing.T) {
	unitsDef := &types.TableDefinition{
		TableName:         "units_tables",
		Version:           1,
		Fields:            []types.Field{{Name: "id", IsKey: true}, {Name: "description"}},
		LocalisedFields:   []string{"description"},
		LocalisedKeyOrder: []int{0},
	}
	units := tbl("units_tables", unitsDef, row("a", ""))

	referencingDef := def("soldiers_tables", 1,
		types.Field{Name: "unit_ref", Reference: &types.Reference{Table: "units", Column: "id"}, Lookup: []string{"description"}},
	)

	provider := schema.NewSet([]*types.TableDefinition{unitsDef, referencingDef})
	target := Target{Store: oneTable(units)}
	coreLocIndex := map[string]string{"units_description_a": "Description A"}

	refs := ComputeReferences(referencingDef, target, provider, nil, coreLocIndex)
	assert.Equal(t, "Description A", refs[0].Data["a"])
	// ref_column here is "id", which isn't itself localised; only the
	// "description" lookup column is.
	assert.False(t, refs[0].ReferencedColumnIsLocalised)
}

func TestRecursiveSelfLookup(t *testing.T) {
	unitsDef := def("units_tables", 1,
		types.Field{Name: "id", IsKey: true, Lookup: []string{"faction"}},
		types.Field{Name: "name"},
		types.Field{Name: "faction"},
	)
	units := tbl("units_tables", unitsDef, row("a", "A", "F"))

	soldiersDef := def("soldiers_tables", 1,
		types.Field{Name: "unit_id", Reference: &types.Reference{Table: "units", Column: "id"}, Lookup: []string{"name"}},
	)

	provider := schema.NewSet([]*types.TableDefinition{unitsDef, soldiersDef})
	target := Target{Store: oneTable(units)}

	refs := ComputeReferences(soldiersDef, target, provider, nil, nil)
	assert.Equal(t, "A:F", refs[0].Data["a"])
}

func TestChainResolutionSeesRowsOnlyInLaterFiles(t *testing.T) {
	unitsDef := def("units_tables", 1,
		types.Field{Name: "id", IsKey: true},
		types.Field{Name: "name"},
	)
	vanilla := tbl("units_tables", unitsDef, row("a", "A"))
	parent := tbl("units_tables", unitsDef, row("b", "B2"))

	referencingDef := def("soldiers_tables", 1,
		types.Field{Name: "unit_ref", Reference: &types.Reference{Table: "units", Column: "id"}, Lookup: []string{"name"}},
	)

	provider := schema.NewSet([]*types.TableDefinition{unitsDef, referencingDef})
	lookup := func(name string) []*types.Table {
		if name == "units_tables" {
			return []*types.Table{vanilla, parent}
		}
		return nil
	}

	refs := ComputeReferences(referencingDef, Target{Store: lookup}, provider, nil, nil)
	assert.Equal(t, map[string]string{"a": "A", "b": "B2"}, refs[0].Data)
}

func TestFlattenChainsSkipsPlainFields(t *testing.T) {
	d := def("foo_tables", 1, types.Field{Name: "plain"})
	provider := schema.NewSet([]*types.TableDefinition{d})
	plans := FlattenChains(d, provider)
	assert.Empty(t, plans)
}
