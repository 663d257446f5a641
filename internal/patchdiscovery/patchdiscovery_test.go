package patchdiscovery

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverFindsTemplateByExtension(t *testing.T) {
	candidates := []ColumnCandidate{
		{TableName: "units_tables", ColumnName: "ui_icon", Values: []string{"unit_icon_a.png", "unit_icon_b.png"}},
	}
	vanillaPaths := []string{
		"ui/icons/land_units/unit_icon_a.png",
		"ui/icons/land_units/unit_icon_b.png",
		"ui/icons/other.png",
	}

	patches := Discover(candidates, vanillaPaths, Rules{})
	require.Len(t, patches, 1)
	assert.Equal(t, "units_tables", patches[0].TableName)
	assert.Equal(t, "ui_icon", patches[0].ColumnName)
	assert.ElementsMatch(t, []string{
		"ui/icons/land_units/%",
	}, patches[0].Templates)
}

func TestDiscoverSkipsDeniedColumns(t *testing.T) {
	candidates := []ColumnCandidate{
		{TableName: "units_tables", ColumnName: "ui_icon", Values: []string{"unit_icon_a.png"}},
	}
	vanillaPaths := []string{"ui/icons/unit_icon_a.png"}

	rules := Rules{Deny: []DenyRule{{Table: "units_tables", Column: "ui_icon", Reason: "known false positive"}}}
	patches := Discover(candidates, vanillaPaths, rules)
	assert.Empty(t, patches)
}

func TestDiscoverIgnoresNonCandidateColumns(t *testing.T) {
	candidates := []ColumnCandidate{
		{TableName: "units_tables", ColumnName: "display_name", Values: []string{"Spearmen"}},
	}
	patches := Discover(candidates, []string{"ui/icons/spearmen.png"}, Rules{})
	assert.Empty(t, patches)
}

func TestDiscoverColumnNameHintWithoutExtensionMatch(t *testing.T) {
	candidates := []ColumnCandidate{
		{TableName: "units_tables", ColumnName: "video_on_kill", Values: []string{"unit_death"}},
	}
	vanillaPaths := []string{"movies/unit_death.ca_vp8"}
	patches := Discover(candidates, vanillaPaths, Rules{})
	require.Len(t, patches, 1)
	assert.Equal(t, []string{"movies/%.ca_vp8"}, patches[0].Templates)
}

func TestReportRoundTrip(t *testing.T) {
	patches := []ColumnPatch{
		{TableName: "units_tables", ColumnName: "ui_icon", Templates: []string{"ui/icons/%"}},
	}
	report := ToReport(patches)

	path := filepath.Join(t.TempDir(), "patches.toml")
	require.NoError(t, WriteReport(path, report))

	loaded, err := ReadReport(path)
	require.NoError(t, err)
	require.Len(t, loaded.Patches, 1)
	assert.Equal(t, "units_tables", loaded.Patches[0].Table)
	assert.Equal(t, []string{"ui/icons/%"}, loaded.Patches[0].Templates)
}
