package refengine

import "github.com/packforge/depgraph/internal/types"

// Combine builds the editor-facing result for one table: a clone of
// vanilla (itself cached and re-used by the caller), extended by
// local results (local values override vanilla), with hardcoded patch
// lookups appended last.
func Combine(vanilla, local map[int]*types.TableReferences, def *types.TableDefinition) map[int]*types.TableReferences {
	out := make(map[int]*types.TableReferences, len(vanilla))
	for idx, v := range vanilla {
		out[idx] = cloneTableReferences(v)
	}
	for idx, l := range local {
		dst, ok := out[idx]
		if !ok {
			dst = cloneTableReferences(l)
			out[idx] = dst
			continue
		}
		for k, v := range l.Data {
			dst.Data[k] = v
		}
		dst.ReferencedColumnIsLocalised = dst.ReferencedColumnIsLocalised || l.ReferencedColumnIsLocalised
		dst.ReferencedTableIsAssemblyKitOnly = dst.ReferencedTableIsAssemblyKitOnly || l.ReferencedTableIsAssemblyKitOnly
	}
	if def != nil {
		for idx, f := range def.Fields {
			if len(f.Patches.HardcodedLookups) == 0 {
				continue
			}
			dst, ok := out[idx]
			if !ok {
				dst = &types.TableReferences{FieldName: f.Name, Data: make(map[string]string)}
				out[idx] = dst
			}
			for k, v := range f.Patches.HardcodedLookups {
				dst.Data[k] = v
			}
		}
	}
	return out
}

func cloneTableReferences(src *types.TableReferences) *types.TableReferences {
	data := make(map[string]string, len(src.Data))
	for k, v := range src.Data {
		data[k] = v
	}
	return &types.TableReferences{
		FieldName:                        src.FieldName,
		ReferencedTableIsAssemblyKitOnly: src.ReferencedTableIsAssemblyKitOnly,
		ReferencedColumnIsLocalised:      src.ReferencedColumnIsLocalised,
		Data:                             data,
	}
}
