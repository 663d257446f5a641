// Package refengine implements the reference/lookup engine:
// recursive lookup-chain flattening, per-column reference resolution
// against the vanilla+modded, local-pack, and assembly-kit targets,
// and the combined result editor queries consume.
package refengine

import (
	"strings"

	"github.com/packforge/depgraph/internal/schema"
	"github.com/packforge/depgraph/internal/types"
)

// Step is one hop of a lookup chain: match a row of Table by KeyColumn,
// then read LookupColumn's value.
type Step struct {
	Table        string
	KeyColumn    string
	LookupColumn string
}

// Chain is an ordered sequence of Steps, encoded as
// "table#column#lookup" steps joined with ":".
type Chain []Step

func (c Chain) String() string {
	parts := make([]string, len(c))
	for i, s := range c {
		parts[i] = s.Table + "#" + s.KeyColumn + "#" + s.LookupColumn
	}
	return strings.Join(parts, ":")
}

type visitKey struct {
	table, column, lookup string
}

// FieldPlan is the flattened result for one field: which table/column
// its value matches against, and the terminal chains whose resolved
// values get joined with ":" to produce the field's lookup string.
type FieldPlan struct {
	RefTable  string
	RefColumn string
	Chains    []Chain
}

// FlattenChains runs the recursive lookup-flattening preprocessing
// for every field of def that is either a
// declared reference or a self-lookup key field, returning the set of
// terminal chains each field resolves through. A field's resolved
// value is later computed as join(":", resolve(chain) for each chain
// in its set) — see ComputeReferences.
func FlattenChains(def *types.TableDefinition, provider schema.Provider) map[int]*FieldPlan {
	out := make(map[int]*FieldPlan)
	for idx := range def.Fields {
		if plan := flattenField(def, idx, provider); plan != nil {
			out[idx] = plan
		}
	}
	return out
}

func flattenField(def *types.TableDefinition, idx int, provider schema.Provider) *FieldPlan {
	f := def.Fields[idx]

	var refTable, refColumn string
	switch {
	case f.Reference != nil:
		refTable = f.Reference.Table + "_tables"
		refColumn = f.Reference.Column
	case f.IsKey && len(def.KeyIndices()) == 1 && len(f.Lookup) > 0:
		refTable = def.TableName
		refColumn = f.Name
	default:
		return nil
	}

	var chains []Chain
	seen := map[visitKey]bool{}

	var walk func(prefix Chain, table, keyCol, lookupCol string)
	walk = func(prefix Chain, table, keyCol, lookupCol string) {
		key := visitKey{table, keyCol, lookupCol}
		if seen[key] {
			return
		}
		seen[key] = true
		chain := append(append(Chain{}, prefix...), Step{Table: table, KeyColumn: keyCol, LookupColumn: lookupCol})
		chains = append(chains, chain)

		if provider == nil {
			return
		}
		targetDef, err := provider.DefinitionNewer(table, 0)
		if err != nil || targetDef == nil {
			return
		}
		fi := targetDef.FieldIndex(lookupCol)
		if fi < 0 {
			return
		}
		targetField := targetDef.Fields[fi]
		// Genuine multi-hop: the looked-up column is itself a
		// declared reference, so keep following it.
		if targetField.Reference != nil {
			nextTable := targetField.Reference.Table + "_tables"
			for _, nextLookup := range targetField.Lookup {
				walk(chain, nextTable, targetField.Reference.Column, nextLookup)
			}
		}
	}

	for _, lookupCol := range f.Lookup {
		walk(nil, refTable, refColumn, lookupCol)
	}

	// Self-lookup extension: when the column this field
	// points at is itself the table's sole key and declares its own
	// self-lookup, those lookups apply to any row resolved through
	// refColumn too, so they're appended as additional terminal chains
	// sharing the same (table, refColumn) match.
	if provider != nil {
		if targetDef, err := provider.DefinitionNewer(refTable, 0); err == nil && targetDef != nil {
			if fi := targetDef.FieldIndex(refColumn); fi >= 0 {
				targetField := targetDef.Fields[fi]
				if targetField.IsKey && len(targetDef.KeyIndices()) == 1 && len(targetField.Lookup) > 0 {
					for _, extra := range targetField.Lookup {
						walk(nil, refTable, refColumn, extra)
					}
				}
			}
		}
	}

	return &FieldPlan{RefTable: refTable, RefColumn: refColumn, Chains: chains}
}
