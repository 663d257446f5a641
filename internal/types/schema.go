package types

import (
	"encoding/json"
	"fmt"
)

// FieldType is the declared scalar type of a table column, as carried
// by the external schema input.
type FieldType uint8

const (
	FieldTypeString FieldType = iota
	FieldTypeOptionalString
	FieldTypeBool
	FieldTypeInt
	FieldTypeFloat
)

func (t FieldType) String() string {
	switch t {
	case FieldTypeString:
		return "string"
	case FieldTypeOptionalString:
		return "optional_string"
	case FieldTypeBool:
		return "bool"
	case FieldTypeInt:
		return "int"
	case FieldTypeFloat:
		return "float"
	default:
		return "unknown"
	}
}

// ParseFieldType is String's inverse, used when decoding a schema
// document's "type" string back into a FieldType.
func ParseFieldType(s string) (FieldType, error) {
	switch s {
	case "string":
		return FieldTypeString, nil
	case "optional_string":
		return FieldTypeOptionalString, nil
	case "bool":
		return FieldTypeBool, nil
	case "int":
		return FieldTypeInt, nil
	case "float":
		return FieldTypeFloat, nil
	default:
		return 0, fmt.Errorf("types: unknown field type %q", s)
	}
}

// MarshalJSON renders a FieldType as its schema-document string form
// rather than its underlying integer.
func (t FieldType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON is MarshalJSON's inverse.
func (t *FieldType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseFieldType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Reference is a declared ref: field -> (table, column) pointer, the
// raw input to reference resolution.
type Reference struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// FieldPatches carries the two kinds of schema corrections callers can
// layer on top of a declared Field without forking the whole
// definition: hand-fixed lookup values for rows the
// automatic join can't reach, and filename-reconstruction hints used by
// patch discovery.
type FieldPatches struct {
	// HardcodedLookups maps a referencing row's key value directly to a
	// display string, overriding whatever the join would have produced.
	HardcodedLookups map[string]string `json:"hardcoded_lookups,omitempty"`

	// FilenameRelativePath, when non-empty, is a semicolon-separated
	// list of path templates ("ui/icons/%.png") patch discovery tries
	// against this field's values when guessing filename fragments.
	FilenameRelativePath string `json:"filename_relative_path,omitempty"`
}

// Field is one column of a TableDefinition.
type Field struct {
	Name      string     `json:"name"`
	Type      FieldType  `json:"type"`
	IsKey     bool       `json:"is_key,omitempty"`
	Default   string     `json:"default,omitempty"`
	Reference *Reference `json:"reference,omitempty"`
	// Lookup names columns on the referenced table (or, for a
	// self-lookup, this table) whose values are joined together to
	// produce the referencing row's display string.
	Lookup []string `json:"lookup,omitempty"`
	// IsFilename marks a plain string field (no Reference) that patch
	// discovery should still scan for file-path fragments.
	IsFilename bool         `json:"is_filename,omitempty"`
	Patches    FieldPatches `json:"patches,omitempty"`
}

// TableDefinition is one versioned schema for a table name. Multiple
// TableDefinitions for the same table name may coexist (old save
// formats); DefinitionNewer picks the one whose Version is
// compatible with the data actually decoded.
type TableDefinition struct {
	TableName string  `json:"table_name"`
	Version   int32   `json:"version"`
	Fields    []Field `json:"fields"`
	// LocalisedFields lists the names of Fields whose actual values live
	// in a loc table keyed by the row's key columns, not inline.
	LocalisedFields []string `json:"localised_fields,omitempty"`
	// LocalisedKeyOrder is the permutation of this definition's key
	// field indices (into Fields) that, joined with "_", reproduces the
	// loc-key prefix recorded in the loc table. Populated either from
	// the schema input directly or by BruteforceLocKeyOrder.
	LocalisedKeyOrder []int `json:"localised_key_order,omitempty"`
}

// FieldIndex returns the index of the field named name in d.Fields, or
// -1 if there is no such field.
func (d *TableDefinition) FieldIndex(name string) int {
	for i, f := range d.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// KeyIndices returns the indices of every field marked IsKey, in
// declaration order.
func (d *TableDefinition) KeyIndices() []int {
	var idx []int
	for i, f := range d.Fields {
		if f.IsKey {
			idx = append(idx, i)
		}
	}
	return idx
}

// Table is a fully-decoded DB or Loc table: a schema plus the rows
// decoded against it.
type Table struct {
	TableName  string
	Definition *TableDefinition
	Rows       []Row
	// GUID is the optional table GUID some DB formats carry; empty when
	// the source format doesn't have one.
	GUID string
}

// TableReferences is the computed result of resolving one referencing
// field across every row of a table: for each referencing row's key
// value, the joined display string produced by following its Reference
// (and any further Lookup chain) to the referenced table.
type TableReferences struct {
	FieldName                        string
	ReferencedTableIsAssemblyKitOnly bool
	ReferencedColumnIsLocalised      bool
	// Data maps a referenced row's key value (the value a referencing
	// row holds in this field) to the resolved display string. Keys come
	// from the rows actually found in the referenced table, so a
	// dangling reference is absent from the map; a key present with an
	// empty string has a matching row whose lookups resolved to nothing.
	Data map[string]string
}
