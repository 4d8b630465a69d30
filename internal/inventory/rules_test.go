package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRules_DefaultsToOverlayWithNoRulesFile(t *testing.T) {
	modPath := t.TempDir()
	rules := LoadRules(modPath, "mod-a", "")
	assert.Equal(t, ModeOverlay, rules.DefaultMode)
	assert.Empty(t, rules.Paths)
}

func TestLoadRules_InternalRulesFileOverridesDefault(t *testing.T) {
	modPath := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(modPath, internalRulesFile), []byte(`{"default_mode":"magic"}`), 0o644))

	rules := LoadRules(modPath, "mod-a", "")
	assert.Equal(t, ModeMagic, rules.DefaultMode)
}

func TestLoadRules_MalformedInternalFileFallsBackToDefault(t *testing.T) {
	modPath := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(modPath, internalRulesFile), []byte(`not json`), 0o644))

	rules := LoadRules(modPath, "mod-a", "")
	assert.Equal(t, ModeOverlay, rules.DefaultMode)
}

func TestLoadRules_UserRulesOverrideDefaultModeAndMergePaths(t *testing.T) {
	modPath := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(modPath, internalRulesFile),
		[]byte(`{"default_mode":"overlay","paths":{"system/bin/a":"magic"}}`), 0o644))

	userDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "mod-a.json"),
		[]byte(`{"default_mode":"ignore","paths":{"system/bin/b":"overlay"}}`), 0o644))

	rules := LoadRules(modPath, "mod-a", userDir)
	assert.Equal(t, ModeIgnore, rules.DefaultMode)
	assert.Equal(t, ModeMagic, rules.Paths["system/bin/a"])
	assert.Equal(t, ModeOverlay, rules.Paths["system/bin/b"])
}

func TestLoadRules_MissingUserRulesFileIsIgnored(t *testing.T) {
	modPath := t.TempDir()
	userDir := t.TempDir()
	rules := LoadRules(modPath, "mod-a", userDir)
	assert.Equal(t, ModeOverlay, rules.DefaultMode)
}

func TestModeFor_PathOverrideWinsOverDefault(t *testing.T) {
	rules := ModuleRules{DefaultMode: ModeOverlay, Paths: map[string]MountMode{"a/b": ModeMagic}}
	assert.Equal(t, ModeMagic, rules.ModeFor("a/b"))
	assert.Equal(t, ModeOverlay, rules.ModeFor("a/c"))
}

func TestSaveUserRules_RoundTrip(t *testing.T) {
	userDir := filepath.Join(t.TempDir(), "rules")
	rules := ModuleRules{DefaultMode: ModeMagic, Paths: map[string]MountMode{"x": ModeIgnore}}

	require.NoError(t, SaveUserRules(userDir, "mod-b", rules))

	loaded := LoadRules(t.TempDir(), "mod-b", userDir)
	assert.Equal(t, ModeMagic, loaded.DefaultMode)
	assert.Equal(t, ModeIgnore, loaded.Paths["x"])
}
