package patchdiscovery

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	engineerrors "github.com/packforge/depgraph/internal/errors"
)

// Report is the sidecar discovery results are written to, so a mod
// author can review (and hand-edit) suggested filename patches before
// they're folded back into the schema as FieldPatches.
type Report struct {
	Patches []ReportEntry `toml:"patch"`
}

type ReportEntry struct {
	Table     string   `toml:"table"`
	Column    string   `toml:"column"`
	Templates []string `toml:"templates"`
}

// ToReport converts Discover's output into a Report.
func ToReport(patches []ColumnPatch) Report {
	r := Report{Patches: make([]ReportEntry, 0, len(patches))}
	for _, p := range patches {
		r.Patches = append(r.Patches, ReportEntry{Table: p.TableName, Column: p.ColumnName, Templates: p.Templates})
	}
	return r
}

// WriteReport serializes r as TOML to path.
func WriteReport(path string, r Report) error {
	data, err := toml.Marshal(r)
	if err != nil {
		return engineerrors.Wrap(engineerrors.ReasonDecodeFailed, "patchdiscovery.WriteReport", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return engineerrors.Wrap(engineerrors.ReasonCacheUnreadable, "patchdiscovery.WriteReport", err)
	}
	return nil
}

// ReadReport loads a previously written Report, e.g. after a mod
// author hand-edited it to drop false positives.
func ReadReport(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, engineerrors.Wrap(engineerrors.ReasonCacheUnreadable, "patchdiscovery.ReadReport", err)
	}
	var r Report
	if err := toml.Unmarshal(data, &r); err != nil {
		return Report{}, engineerrors.Wrap(engineerrors.ReasonDecodeFailed, "patchdiscovery.ReadReport", err)
	}
	return r, nil
}
