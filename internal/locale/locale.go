// Package locale implements the locale key resolver: for each
// DB table, bruteforce the ordering of its key columns that reproduces
// the loc-keys actually found in the Localisation Index, and resolve a
// loc-key back to the (table, field, key-parts) that produced it.
package locale

import (
	"sort"
	"strings"

	"github.com/packforge/depgraph/internal/debug"
	"github.com/packforge/depgraph/internal/types"
)

// TableRows is the minimal view BruteforceOrder needs of a table's
// decoded data: its definition and every collected row, already
// merged across layers by the caller.
type TableRows struct {
	Definition *types.TableDefinition
	Rows       []types.Row
}

// Diagnostic records a non-fatal outcome from bruteforcing one table's
// key order: either the table has no key columns to order, or no
// candidate order validated for every row.
type Diagnostic struct {
	TableName string
	Message   string
}

// BruteforceOrder searches for the key-column ordering that reproduces
// the loc-keys recorded for one table. extraCandidates supplies field
// names discovered out-of-band (schema enrichment, column names that
// happen to prefix loc-keys) to merge into the candidate set.
//
// Returns the winning permutation of key-field indices (into
// t.Definition.Fields), or ok=false with a Diagnostic if no full-row-
// valid permutation exists. If the table has no localised-field
// candidates at all, returns (nil, true, nil) so the caller clears
// any previously stored order.
func BruteforceOrder(t TableRows, locIndex map[string]string, extraCandidates []string) ([]int, bool, *Diagnostic) {
	def := t.Definition
	shortTable := strings.TrimSuffix(def.TableName, "_tables")

	candidates := candidateFields(def, extraCandidates)
	var valid []string
	for _, f := range candidates {
		prefix := shortTable + "_" + f + "_"
		if anyKeyHasPrefix(locIndex, prefix) {
			valid = append(valid, f)
		}
	}
	if len(valid) == 0 {
		return nil, true, nil
	}

	keyIdx := def.KeyIndices()
	if len(keyIdx) == 1 {
		return []int{keyIdx[0]}, true, nil
	}
	if len(keyIdx) == 0 {
		return nil, false, &Diagnostic{TableName: def.TableName, Message: "no key columns to order"}
	}

	perms := permutations(keyIdx)
	for _, perm := range perms {
		if orderValidForAllRows(shortTable, valid, perm, t.Rows, locIndex) {
			return perm, true, nil
		}
	}
	return nil, false, &Diagnostic{
		TableName: def.TableName,
		Message:   "no key-column permutation produced valid loc-keys for every row",
	}
}

// candidateFields gathers the three candidate sources, deduplicated,
// preserving def.LocalisedFields' order first.
func candidateFields(def *types.TableDefinition, extra []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(f string) {
		if f != "" && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	for _, f := range def.LocalisedFields {
		add(f)
	}
	for _, f := range extra {
		add(f)
	}
	for _, f := range def.Fields {
		add(f.Name)
	}
	return out
}

func anyKeyHasPrefix(m map[string]string, prefix string) bool {
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// orderValidForAllRows checks that, for every localised field and
// every row, the constructed loc-key exists in locIndex. Checking
// every row catches false positives where the first row's
// concatenation happens to match by luck.
func orderValidForAllRows(shortTable string, fields []string, perm []int, rows []types.Row, locIndex map[string]string) bool {
	for _, row := range rows {
		var concat strings.Builder
		for _, pos := range perm {
			concat.WriteString(row.Get(pos).String())
		}
		suffix := concat.String()
		for _, f := range fields {
			key := shortTable + "_" + f + "_" + suffix
			if _, ok := locIndex[key]; !ok {
				return false
			}
		}
	}
	return true
}

func permutations(items []int) [][]int {
	if len(items) == 0 {
		return [][]int{{}}
	}
	var out [][]int
	used := make([]bool, len(items))
	cur := make([]int, 0, len(items))
	var rec func()
	rec = func() {
		if len(cur) == len(items) {
			perm := make([]int, len(cur))
			copy(perm, cur)
			out = append(out, perm)
			return
		}
		for i, v := range items {
			if used[i] {
				continue
			}
			used[i] = true
			cur = append(cur, v)
			rec()
			cur = cur[:len(cur)-1]
			used[i] = false
		}
	}
	rec()
	return out
}

// SourceMatch is the result of resolving a loc-key back to the table
// field and row key-parts that produced it.
type SourceMatch struct {
	TableShortName string
	Field          string
	KeyParts       []string
}

// TableLookup resolves a short table name (without "_tables") to its
// definition and merged rows, or ok=false if that table doesn't exist.
type TableLookup func(shortTableName string) (TableRows, bool)

// KeySource reverse-resolves a loc-key: split k at underscores from
// right to left so the longest candidate table name is tried first,
// and for the first table whose localised fields and rows reproduce k
// exactly, return the match. First match wins; when a shorter table
// name (or another field) also reproduces k, that second match is
// written to the debug log and the first one is kept.
func KeySource(k string, lookup TableLookup) (*SourceMatch, bool) {
	parts := strings.Split(k, "_")
	var first *SourceMatch
	for i := len(parts) - 1; i >= 1; i-- {
		candidateTable := strings.Join(parts[:i], "_")
		tr, ok := lookup(candidateTable)
		if !ok {
			continue
		}
		for _, field := range tr.Definition.LocalisedFields {
			prefix := candidateTable + "_" + field + "_"
			if !strings.HasPrefix(k, prefix) {
				continue
			}
			suffix := k[len(prefix):]
			if parts, ok := matchRowKeyParts(tr, suffix); ok {
				if first != nil {
					debug.Printf("locale: loc key %q also matches %s.%s; keeping %s.%s\n", k, candidateTable, field, first.TableShortName, first.Field)
					return first, true
				}
				first = &SourceMatch{TableShortName: candidateTable, Field: field, KeyParts: parts}
			}
		}
	}
	return first, first != nil
}

// matchRowKeyParts scans every row of tr, building the same
// concatenated key string via tr.Definition.LocalisedKeyOrder, and
// returns the individual key-part values of the first row whose
// concatenation equals suffix.
func matchRowKeyParts(tr TableRows, suffix string) ([]string, bool) {
	order := tr.Definition.LocalisedKeyOrder
	for _, row := range tr.Rows {
		var concat strings.Builder
		parts := make([]string, 0, len(order))
		for _, pos := range order {
			v := row.Get(pos).String()
			concat.WriteString(v)
			parts = append(parts, v)
		}
		if concat.String() == suffix {
			return parts, true
		}
	}
	return nil, false
}

// SortedTableNames is a small helper depengine uses to iterate tables
// in a deterministic order while bruteforcing every table in a store.
func SortedTableNames(names map[string]bool) []string {
	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
