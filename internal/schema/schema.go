// Package schema holds the externally supplied schema input:
// per-table-name definition sets, the
// "pick the newest compatible definition" selector, and JSON-Schema
// validation of the raw schema document before it's trusted.
package schema

import (
	"context"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"

	engineerrors "github.com/packforge/depgraph/internal/errors"
	"github.com/packforge/depgraph/internal/types"
)

// Provider answers "what definitions exist for this table name" and
// "which one applies now", the two things every other component needs
// from the schema input.
type Provider interface {
	Definitions(tableName string) []*types.TableDefinition
	DefinitionNewer(tableName string, minVersion int32) (*types.TableDefinition, error)
}

// Set is the in-memory Provider: every known TableDefinition, grouped
// by table name.
type Set struct {
	byTable map[string][]*types.TableDefinition
}

// NewSet builds a Set from a flat list of definitions, grouping by
// TableName.
func NewSet(defs []*types.TableDefinition) *Set {
	s := &Set{byTable: make(map[string][]*types.TableDefinition)}
	for _, d := range defs {
		s.byTable[d.TableName] = append(s.byTable[d.TableName], d)
	}
	for _, defs := range s.byTable {
		sort.Slice(defs, func(i, j int) bool { return defs[i].Version < defs[j].Version })
	}
	return s
}

func (s *Set) Definitions(tableName string) []*types.TableDefinition {
	return s.byTable[tableName]
}

// DefinitionNewer returns the definition for tableName with the
// highest Version that is >= minVersion, or definition-missing if
// none qualifies.
func (s *Set) DefinitionNewer(tableName string, minVersion int32) (*types.TableDefinition, error) {
	defs := s.byTable[tableName]
	var best *types.TableDefinition
	for _, d := range defs {
		if d.Version < minVersion {
			continue
		}
		if best == nil || d.Version > best.Version {
			best = d
		}
	}
	if best == nil {
		return nil, engineerrors.New(engineerrors.ReasonDefinitionMissing, "schema.DefinitionNewer", tableName)
	}
	return best, nil
}

// SetLocalisedKeyOrder persists a bruteforced key order (or clears
// it, when order is nil) onto the definition for tableName/version.
func (s *Set) SetLocalisedKeyOrder(tableName string, version int32, order []int) bool {
	for _, d := range s.byTable[tableName] {
		if d.Version == version {
			d.LocalisedKeyOrder = order
			return true
		}
	}
	return false
}

// docSchema is the JSON Schema every raw schema document handed to
// ValidateDocument must satisfy: a map of table name to a list of
// versioned field definitions, mirroring types.TableDefinition's shape
// one level up (as JSON, ahead of being decoded into Go structs).
var docSchema = &jsonschema.Schema{
	Type: "object",
	AdditionalProperties: &jsonschema.Schema{
		Type: "array",
		Items: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"table_name": {Type: "string"},
				"version":    {Type: "integer"},
				"fields": {
					Type: "array",
					Items: &jsonschema.Schema{
						Type: "object",
						Properties: map[string]*jsonschema.Schema{
							"name":   {Type: "string"},
							"type":   {Type: "string"},
							"is_key": {Type: "boolean"},
						},
						Required: []string{"name", "type"},
					},
				},
			},
			Required: []string{"table_name", "version", "fields"},
		},
	},
}

// ValidateDocument checks a decoded-to-`any` raw schema document
// against docSchema before it's trusted as input.
func ValidateDocument(ctx context.Context, doc any) error {
	resolved, err := docSchema.Resolve(nil)
	if err != nil {
		return engineerrors.Wrap(engineerrors.ReasonDecodeFailed, "schema.ValidateDocument", err)
	}
	if err := resolved.Validate(doc); err != nil {
		return engineerrors.Wrap(engineerrors.ReasonDecodeFailed, "schema.ValidateDocument", err)
	}
	return nil
}
