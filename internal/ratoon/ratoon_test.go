package ratoon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rootgraft/graftd/internal/config"
	"github.com/rootgraft/graftd/internal/granary"
	"github.com/rootgraft/graftd/internal/inventory"
)

func newGuard(t *testing.T) (*Guard, string) {
	t.Helper()
	dir := t.TempDir()
	counterFile := filepath.Join(dir, "counter")
	configFile := filepath.Join(dir, "config.toml")
	silos := granary.New(filepath.Join(dir, "granary"))
	moduleDir := filepath.Join(dir, "modules")
	require.NoError(t, os.MkdirAll(moduleDir, 0o755))
	return New(counterFile, silos, configFile, moduleDir), dir
}

func TestEngage_BelowThresholdDoesNotRollback(t *testing.T) {
	guard, _ := newGuard(t)

	for i := 0; i < Threshold-1; i++ {
		rolledBack, err := guard.Engage()
		require.NoError(t, err)
		assert.False(t, rolledBack)
	}
}

func TestEngage_AtThresholdRestoresFromSilo(t *testing.T) {
	guard, dir := newGuard(t)

	cfg := config.Default()
	cfg.ModuleDir = "/restored/modules"
	_, err := guard.Granary.Create(*cfg, "auto", "test", 1)
	require.NoError(t, err)

	for i := 0; i < Threshold-1; i++ {
		_, err := guard.Engage()
		require.NoError(t, err)
	}
	rolledBack, err := guard.Engage()
	require.NoError(t, err)
	assert.True(t, rolledBack)

	restored, err := config.Load(guard.ConfigFile)
	require.NoError(t, err)
	assert.Equal(t, "/restored/modules", restored.ModuleDir)

	_, statErr := os.Stat(filepath.Join(dir, "counter"))
	assert.True(t, os.IsNotExist(statErr), "counter should be reset after successful rollback")
}

func TestEngage_AtThresholdWithNoSiloDisablesAllModules(t *testing.T) {
	guard, _ := newGuard(t)

	modA := filepath.Join(guard.ModuleDir, "mod-a")
	modB := filepath.Join(guard.ModuleDir, "mod-b")
	require.NoError(t, os.MkdirAll(modA, 0o755))
	require.NoError(t, os.MkdirAll(modB, 0o755))

	for i := 0; i < Threshold-1; i++ {
		_, err := guard.Engage()
		require.NoError(t, err)
	}
	rolledBack, err := guard.Engage()
	require.NoError(t, err)
	assert.True(t, rolledBack)

	_, err = os.Stat(filepath.Join(modA, inventory.DisableFile))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(modB, inventory.DisableFile))
	assert.NoError(t, err)
}

func TestDisengage_RemovesCounterFile(t *testing.T) {
	guard, dir := newGuard(t)
	_, err := guard.Engage()
	require.NoError(t, err)

	counterFile := filepath.Join(dir, "counter")
	_, err = os.Stat(counterFile)
	require.NoError(t, err)

	guard.Disengage()
	_, err = os.Stat(counterFile)
	assert.True(t, os.IsNotExist(err))
}

func TestDisengage_MissingCounterFileIsNoop(t *testing.T) {
	guard, _ := newGuard(t)
	guard.Disengage()
}
