package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkModule(t *testing.T, moduleDir, id string, markers ...string) {
	t.Helper()
	dir := filepath.Join(moduleDir, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, m := range markers {
		require.NoError(t, os.WriteFile(filepath.Join(dir, m), []byte(""), 0o644))
	}
}

func TestScan_ExcludesDisabledRemovedSkipped(t *testing.T) {
	moduleDir := t.TempDir()
	mkModule(t, moduleDir, "enabled-mod")
	mkModule(t, moduleDir, "disabled-mod", DisableFile)
	mkModule(t, moduleDir, "removed-mod", RemoveFile)
	mkModule(t, moduleDir, "skip-mod", SkipMountFile)

	modules, err := Scan(moduleDir, "")
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, "enabled-mod", modules[0].ID)
}

func TestScan_ExcludesReservedNames(t *testing.T) {
	moduleDir := t.TempDir()
	mkModule(t, moduleDir, "meta-hybrid")
	mkModule(t, moduleDir, "lost+found")
	mkModule(t, moduleDir, "real-mod")

	modules, err := Scan(moduleDir, "")
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, "real-mod", modules[0].ID)
}

func TestScan_SortedDescendingByID(t *testing.T) {
	moduleDir := t.TempDir()
	mkModule(t, moduleDir, "10-alpha")
	mkModule(t, moduleDir, "30-gamma")
	mkModule(t, moduleDir, "20-beta")

	modules, err := Scan(moduleDir, "")
	require.NoError(t, err)
	require.Len(t, modules, 3)
	assert.Equal(t, []string{"30-gamma", "20-beta", "10-alpha"}, []string{modules[0].ID, modules[1].ID, modules[2].ID})
}

func TestScan_MissingModuleDirIsNotAnError(t *testing.T) {
	modules, err := Scan(filepath.Join(t.TempDir(), "nonexistent"), "")
	require.NoError(t, err)
	assert.Nil(t, modules)
}
