package schema

import (
	"context"
	"encoding/json"
	"os"

	engineerrors "github.com/packforge/depgraph/internal/errors"
	"github.com/packforge/depgraph/internal/types"
)

// LoadDefinitionsFile reads the schema document at path — a JSON object
// mapping table name to a list of versioned field definitions — and
// returns a populated Set. The document is validated against
// docSchema before being trusted.
func LoadDefinitionsFile(ctx context.Context, path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, engineerrors.Wrap(engineerrors.ReasonPathNotFound, "schema.LoadDefinitionsFile", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, engineerrors.Wrap(engineerrors.ReasonDecodeFailed, "schema.LoadDefinitionsFile", err)
	}
	if err := ValidateDocument(ctx, doc); err != nil {
		return nil, err
	}

	var byTable map[string][]*types.TableDefinition
	if err := json.Unmarshal(raw, &byTable); err != nil {
		return nil, engineerrors.Wrap(engineerrors.ReasonDecodeFailed, "schema.LoadDefinitionsFile", err)
	}

	var defs []*types.TableDefinition
	for _, versions := range byTable {
		defs = append(defs, versions...)
	}
	return NewSet(defs), nil
}
