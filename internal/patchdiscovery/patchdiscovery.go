// Package patchdiscovery implements automatic patch discovery:
// scanning every String-typed DB column for values that look like
// file-path fragments, matching them against vanilla file paths, and
// emitting filename-reconstruction patches a table definition can
// apply later. A column qualifies by a value's file extension or by
// its name matching a hint word, either as a substring or, for near
// misses, by Jaro-Winkler similarity scoring.
package patchdiscovery

import (
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/packforge/depgraph/internal/types"
)

// candidateExtensions are the file extensions treated as filename
// fragments worth chasing.
var candidateExtensions = []string{".png", ".tga", ".ca_vp8"}

// columnNameHints are substrings of a column name that mark it as
// likely holding a filename fragment even without a matching
// extension in its data.
var columnNameHints = []string{"icon", "image", "video"}

// fuzzyColumnNameThreshold is the Jaro-Winkler similarity a column
// name must clear against a hint word to count as a fuzzy hit,
// catching near-miss names (e.g. "icon_path") that substring matching
// alone would also catch, and typos of the hint word itself ("iocn",
// 0.925) that substring matching would miss. The whole lower-cased
// name is scored, so a typo inside a longer name ("ICNpath", 0.781)
// does not clear it.
const fuzzyColumnNameThreshold = 0.85

// DenyRule suppresses a (table, column) pair from consideration
// entirely, keeping known false positives data-driven rather than
// hardcoded.
type DenyRule struct {
	Table  string
	Column string
	Reason string
}

// Rules bundles the deny list a caller supplies for one
// discovery run.
type Rules struct {
	Deny []DenyRule
}

func (r Rules) denied(table, column string) bool {
	for _, d := range r.Deny {
		if d.Table == table && d.Column == column {
			return true
		}
	}
	return false
}

// ColumnCandidate is one (table, column) pair discovery considers,
// paired with the string values collected from every row.
type ColumnCandidate struct {
	TableName  string
	ColumnName string
	Values     []string
}

// isCandidateColumn reports whether a column is worth scanning: either
// one of its values ends in a candidate extension, or its name matches
// a hint word exactly, by substring, or fuzzily.
func isCandidateColumn(name string, values []string) bool {
	lower := strings.ToLower(name)
	for _, hint := range columnNameHints {
		if strings.Contains(lower, hint) {
			return true
		}
		if score, err := edlib.StringsSimilarity(lower, hint, edlib.JaroWinkler); err == nil && score >= fuzzyColumnNameThreshold {
			return true
		}
	}
	for _, v := range values {
		for _, ext := range candidateExtensions {
			if strings.HasSuffix(strings.ToLower(v), ext) {
				return true
			}
		}
	}
	return false
}

// ColumnPatch is the emitted result for one table column: the set of
// distinct path templates discovered across its values.
type ColumnPatch struct {
	TableName  string
	ColumnName string
	Templates  []string
}

// AsFieldPatches renders p as the types.FieldPatches a schema
// definition's Patches slot expects.
func (p ColumnPatch) AsFieldPatches() types.FieldPatches {
	return types.FieldPatches{
		FilenameRelativePath: strings.Join(p.Templates, ";"),
	}
}

// Discover runs discovery end to end: for each candidate column, for
// each distinct non-empty value, find vanilla paths containing it and
// convert each match into a template by replacing the last occurrence
// of the value with "%". Columns denied by rules are skipped outright.
func Discover(candidates []ColumnCandidate, vanillaPaths []string, rules Rules) []ColumnPatch {
	var out []ColumnPatch
	for _, c := range candidates {
		if rules.denied(c.TableName, c.ColumnName) {
			continue
		}
		if !isCandidateColumn(c.ColumnName, c.Values) {
			continue
		}

		seen := make(map[string]bool)
		var templates []string
		for _, v := range dedupNonEmpty(c.Values) {
			for _, tmpl := range templatesForValue(v, vanillaPaths) {
				if !seen[tmpl] {
					seen[tmpl] = true
					templates = append(templates, tmpl)
				}
			}
		}
		if len(templates) == 0 {
			continue
		}
		sort.Strings(templates)
		out = append(out, ColumnPatch{TableName: c.TableName, ColumnName: c.ColumnName, Templates: templates})
	}
	return out
}

// templatesForValue finds every vanilla path containing v and replaces
// v's last occurrence in each with "%".
func templatesForValue(v string, vanillaPaths []string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range vanillaPaths {
		idx := strings.LastIndex(p, v)
		if idx < 0 {
			continue
		}
		out = append(out, p[:idx]+"%"+p[idx+len(v):])
	}
	return out
}

func dedupNonEmpty(values []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
