package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateOwnDescription_MissingModulePropIsNoop(t *testing.T) {
	moduleDir := t.TempDir()
	err := UpdateOwnDescription(moduleDir, "graftd", RuntimeState{})
	assert.NoError(t, err)
}

func TestUpdateOwnDescription_ReplacesExistingLine(t *testing.T) {
	moduleDir := t.TempDir()
	propDir := filepath.Join(moduleDir, "graftd")
	require.NoError(t, os.MkdirAll(propDir, 0o755))
	propPath := filepath.Join(propDir, "module.prop")
	original := "id=graftd\nname=graftd\nversion=v1\ndescription=placeholder\nauthor=rootgraft\n"
	require.NoError(t, os.WriteFile(propPath, []byte(original), 0o644))

	s := RuntimeState{StorageMode: "tmpfs", OverlayModules: []string{"a", "b"}, MagicModules: []string{"c"}}
	require.NoError(t, UpdateOwnDescription(moduleDir, "graftd", s))

	data, err := os.ReadFile(propPath)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "description=storage=tmpfs overlay=2 magic=1")
	assert.Contains(t, content, "id=graftd")
	assert.Contains(t, content, "author=rootgraft")
	assert.NotContains(t, content, "placeholder")
}

func TestUpdateOwnDescription_AppendsWhenNoExistingLine(t *testing.T) {
	moduleDir := t.TempDir()
	propDir := filepath.Join(moduleDir, "graftd")
	require.NoError(t, os.MkdirAll(propDir, 0o755))
	propPath := filepath.Join(propDir, "module.prop")
	require.NoError(t, os.WriteFile(propPath, []byte("id=graftd\n"), 0o644))

	require.NoError(t, UpdateOwnDescription(moduleDir, "graftd", RuntimeState{StorageMode: "ext4"}))

	data, err := os.ReadFile(propPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "description=storage=ext4 overlay=0 magic=0")
}
