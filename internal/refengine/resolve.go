package refengine

import (
	"strings"
	"sync"

	"github.com/packforge/depgraph/internal/debug"
	"github.com/packforge/depgraph/internal/schema"
	"github.com/packforge/depgraph/internal/types"
)

// TableLookup resolves a full table name (e.g. "land_units_tables") to
// its collected, merge-ordered decoded tables. internal/depengine
// adapts internal/store's MergeDBFiles into this shape.
type TableLookup func(tableFullName string) []*types.Table

// Target bundles the two sources a reference resolves against: an
// optional local pack (consulted first) and the layered store's
// merged DB query.
type Target struct {
	LocalPack TableLookup
	Store     TableLookup
}

// tables collects files for tableFullName: local-pack files first (in
// their own insertion order), then the store's merged files, without
// duplicates.
func (t Target) tables(tableFullName string) []*types.Table {
	var out []*types.Table
	seen := make(map[*types.Table]bool)
	if t.LocalPack != nil {
		for _, tb := range t.LocalPack(tableFullName) {
			if !seen[tb] {
				seen[tb] = true
				out = append(out, tb)
			}
		}
	}
	if t.Store != nil {
		for _, tb := range t.Store(tableFullName) {
			if !seen[tb] {
				seen[tb] = true
				out = append(out, tb)
			}
		}
	}
	return out
}

// chainCache memoizes, per (step table name, key column, lookup
// column), the merged key_string -> value_string map built for one
// chain step, avoiding rescanning rows on repeated lookups. The cache
// lives for a single ComputeReferences call, where a table name always
// resolves to the same collected file list, so the name is a safe key.
type chainCache struct {
	mu sync.Mutex
	m  map[string]map[string]string
}

func newChainCache() *chainCache {
	return &chainCache{m: make(map[string]map[string]string)}
}

// keyValueMap merges every collected file of a step's table into one
// key -> value map, iterated in merge order so later files overwrite
// earlier ones and overrides win.
func (c *chainCache) keyValueMap(tableName string, tables []*types.Table, keyCol, valueCol string) map[string]string {
	cacheKey := tableName + "|" + keyCol + "|" + valueCol
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.m[cacheKey]; ok {
		return m
	}
	m := make(map[string]string)
	for _, table := range tables {
		keyIdx := table.Definition.FieldIndex(keyCol)
		valIdx := table.Definition.FieldIndex(valueCol)
		if keyIdx < 0 || valIdx < 0 {
			continue
		}
		for _, row := range table.Rows {
			m[row.Get(keyIdx).String()] = row.Get(valIdx).String()
		}
	}
	c.m[cacheKey] = m
	return m
}

// locKeyMap is keyValueMap's localised-terminal counterpart: the value
// is the constructed loc-key for the matching row rather than a cell,
// again merged last-wins across the collected files. Files whose
// definition doesn't declare the lookup column localised contribute
// nothing.
func (c *chainCache) locKeyMap(tableName string, tables []*types.Table, keyCol, lookupCol string) map[string]string {
	cacheKey := tableName + "|" + keyCol + "|" + lookupCol + "|loc"
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.m[cacheKey]; ok {
		return m
	}
	m := make(map[string]string)
	for _, table := range tables {
		if !isLocalisedField(table.Definition, lookupCol) {
			continue
		}
		keyIdx := table.Definition.FieldIndex(keyCol)
		if keyIdx < 0 {
			continue
		}
		for _, row := range table.Rows {
			m[row.Get(keyIdx).String()] = buildLocKey(table.Definition, row, lookupCol)
		}
	}
	c.m[cacheKey] = m
	return m
}

func anyLocalised(tables []*types.Table, field string) bool {
	for _, t := range tables {
		if isLocalisedField(t.Definition, field) {
			return true
		}
	}
	return false
}

// resolveChain walks chain starting from startKey, resolving each step
// against the merged view of every collected file of the step's table
// (later files overriding earlier ones, so a parent-mod row wins over
// vanilla). At the final step, a localised lookup column resolves
// through the loc overlay then the core localisation index, falling
// back to the loc-key itself if neither hits.
func resolveChain(chain Chain, startKey string, lookup TableLookup, cache *chainCache, locOverlay, coreLocIndex map[string]string) (string, bool) {
	currentKey := startKey
	for i, step := range chain {
		isLast := i == len(chain)-1
		tables := lookup(step.Table)
		if isLast && anyLocalised(tables, step.LookupColumn) {
			locKey, ok := cache.locKeyMap(step.Table, tables, step.KeyColumn, step.LookupColumn)[currentKey]
			if !ok {
				return "", false
			}
			if v, ok := locOverlay[locKey]; ok {
				currentKey = v
			} else if v, ok := coreLocIndex[locKey]; ok {
				currentKey = v
			} else {
				currentKey = locKey
			}
			continue
		}

		v, ok := cache.keyValueMap(step.Table, tables, step.KeyColumn, step.LookupColumn)[currentKey]
		if !ok {
			return "", false
		}
		currentKey = v
	}
	return currentKey, true
}

func isLocalisedField(def *types.TableDefinition, field string) bool {
	for _, f := range def.LocalisedFields {
		if f == field {
			return true
		}
	}
	return false
}

// buildLocKey constructs "<short_table>_<field>_<concat(keys)>" using
// def's LocalisedKeyOrder to select and order the row's key columns.
func buildLocKey(def *types.TableDefinition, row types.Row, field string) string {
	shortTable := strings.TrimSuffix(def.TableName, "_tables")
	var b strings.Builder
	b.WriteString(shortTable)
	b.WriteByte('_')
	b.WriteString(field)
	b.WriteByte('_')
	for _, pos := range def.LocalisedKeyOrder {
		b.WriteString(row.Get(pos).String())
	}
	return b.String()
}

// ComputeReferences computes column_index -> TableReferences for every
// reference/self-lookup field of def against target. Hardcoded patch
// lookups are merged in last, overriding computed values.
func ComputeReferences(def *types.TableDefinition, target Target, provider schema.Provider, locOverlay, coreLocIndex map[string]string) map[int]*types.TableReferences {
	plans := FlattenChains(def, provider)
	cache := newChainCache()
	out := make(map[int]*types.TableReferences, len(plans))

	for idx, plan := range plans {
		data := make(map[string]string)
		collected := target.tables(plan.RefTable)
		for _, table := range collected {
			keyIdx := table.Definition.FieldIndex(plan.RefColumn)
			if keyIdx < 0 {
				continue
			}
			for _, row := range table.Rows {
				key := row.Get(keyIdx).String()
				parts := make([]string, 0, len(plan.Chains))
				for _, chain := range plan.Chains {
					if v, ok := resolveChain(chain, key, target.tables, cache, locOverlay, coreLocIndex); ok {
						parts = append(parts, v)
					}
				}
				data[key] = strings.Join(parts, ":")
			}
		}

		for k, v := range def.Fields[idx].Patches.HardcodedLookups {
			data[k] = v
		}

		refTableDef, _ := provider.DefinitionNewer(plan.RefTable, 0)
		localised := refTableDef != nil && isLocalisedField(refTableDef, plan.RefColumn)

		out[idx] = &types.TableReferences{
			FieldName:                        def.Fields[idx].Name,
			ReferencedColumnIsLocalised:      localised,
			ReferencedTableIsAssemblyKitOnly: false,
			Data:                             data,
		}
		debug.LogRef("%s column %q: %d keys resolved against %s\n", def.TableName, def.Fields[idx].Name, len(data), plan.RefTable)
	}
	return out
}

// KeyDeletesTableReferences builds the synthetic key-deletes table's
// single-column reference data: every known table name stripped of
// its "_tables" suffix, mapped to an empty lookup.
func KeyDeletesTableReferences(knownTableNames []string) *types.TableReferences {
	data := make(map[string]string, len(knownTableNames))
	for _, name := range knownTableNames {
		data[strings.TrimSuffix(name, "_tables")] = ""
	}
	return &types.TableReferences{FieldName: "key", Data: data}
}
