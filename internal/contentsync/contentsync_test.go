package contentsync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rootgraft/graftd/internal/inventory"
)

func TestSync_CopiesFilesDirsAndSymlinks(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "system", "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "system", "bin", "sh"), []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.Symlink("sh", filepath.Join(src, "system", "bin", "sh-link")))

	root := t.TempDir()
	module := inventory.Module{ID: "test-mod", SourcePath: src}
	require.NoError(t, Sync(root, module))

	dest := filepath.Join(root, "test-mod")
	data, err := os.ReadFile(filepath.Join(dest, "system", "bin", "sh"))
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\n", string(data))

	target, err := os.Readlink(filepath.Join(dest, "system", "bin", "sh-link"))
	require.NoError(t, err)
	assert.Equal(t, "sh", target)
}

func TestSync_PreservesFileMode(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "exe"), []byte("x"), 0o755))

	root := t.TempDir()
	module := inventory.Module{ID: "mod", SourcePath: src}
	require.NoError(t, Sync(root, module))

	info, err := os.Stat(filepath.Join(root, "mod", "exe"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestSync_MissingSourceErrors(t *testing.T) {
	root := t.TempDir()
	module := inventory.Module{ID: "mod", SourcePath: filepath.Join(t.TempDir(), "nonexistent")}
	assert.Error(t, Sync(root, module))
}
