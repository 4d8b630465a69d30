package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProp_ParsesKnownFields(t *testing.T) {
	modPath := t.TempDir()
	content := "id=mod-a\nname=My Module\nversion=v1.2\nversionCode=12\nauthor=someone\ndescription=does things\n"
	require.NoError(t, os.WriteFile(filepath.Join(modPath, "module.prop"), []byte(content), 0o644))

	prop := LoadProp(modPath)
	assert.Equal(t, "My Module", prop.Name)
	assert.Equal(t, "v1.2", prop.Version)
	assert.Equal(t, "someone", prop.Author)
	assert.Equal(t, "does things", prop.Description)
}

func TestLoadProp_MissingFileIsZeroValue(t *testing.T) {
	prop := LoadProp(t.TempDir())
	assert.Equal(t, Prop{}, prop)
}

func TestLoadProp_IgnoresMalformedLines(t *testing.T) {
	modPath := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(modPath, "module.prop"), []byte("not a valid line\nname=ok\n"), 0o644))

	prop := LoadProp(modPath)
	assert.Equal(t, "ok", prop.Name)
}
