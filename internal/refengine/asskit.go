package refengine

import (
	"strings"

	"github.com/packforge/depgraph/internal/types"
)

// AssKitLookup resolves a full table name to the assembly-kit-only
// table's decoded rows, when one exists for that name.
type AssKitLookup func(tableFullName string) *types.Table

// ResolveAssKit resolves every reference/self-lookup field of def
// against the assembly-kit-only tables: find the referenced column in
// the ass-kit table's definition, then for each row concatenate the
// declared lookup columns with single-space separators.
//
// As with ComputeReferences, the produced TableReferences.Data only
// ever holds found rows (keyed by the row's own ref_column value); a
// dangling reference is simply absent, never mapped to "".
func ResolveAssKit(def *types.TableDefinition, lookup AssKitLookup) map[int]*types.TableReferences {
	plans := make(map[int]*FieldPlan)
	for idx, f := range def.Fields {
		var refTable, refColumn string
		switch {
		case f.Reference != nil:
			refTable = f.Reference.Table + "_tables"
			refColumn = f.Reference.Column
		case f.IsKey && len(def.KeyIndices()) == 1 && len(f.Lookup) > 0:
			refTable = def.TableName
			refColumn = f.Name
		default:
			continue
		}
		plans[idx] = &FieldPlan{RefTable: refTable, RefColumn: refColumn}
	}

	out := make(map[int]*types.TableReferences, len(plans))
	for idx, plan := range plans {
		table := lookup(plan.RefTable)
		if table == nil {
			continue
		}
		keyIdx := table.Definition.FieldIndex(plan.RefColumn)
		if keyIdx < 0 {
			continue
		}

		lookupCols := def.Fields[idx].Lookup
		lookupIdx := make([]int, 0, len(lookupCols))
		for _, c := range lookupCols {
			if i := table.Definition.FieldIndex(c); i >= 0 {
				lookupIdx = append(lookupIdx, i)
			}
		}

		data := make(map[string]string)
		for _, row := range table.Rows {
			key := row.Get(keyIdx).String()
			parts := make([]string, 0, len(lookupIdx))
			for _, i := range lookupIdx {
				parts = append(parts, row.Get(i).String())
			}
			data[key] = strings.Join(parts, " ")
		}

		for k, v := range def.Fields[idx].Patches.HardcodedLookups {
			data[k] = v
		}

		out[idx] = &types.TableReferences{
			FieldName:                        def.Fields[idx].Name,
			ReferencedTableIsAssemblyKitOnly: true,
			Data:                             data,
		}
	}
	return out
}
