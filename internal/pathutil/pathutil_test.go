package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureJoin_StaysWithinRoot(t *testing.T) {
	root := t.TempDir()
	p, err := SecureJoin(root, "a/b/c")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a/b/c"), p)
}

func TestSecureJoin_EscapeAttemptIsContained(t *testing.T) {
	root := t.TempDir()
	p, err := SecureJoin(root, "../../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, filepathHasPrefix(p, root), "resolved path %s must stay under root %s", p, root)
}

func filepathHasPrefix(path, prefix string) bool {
	rel, err := filepath.Rel(prefix, path)
	return err == nil && rel != ".." && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[:2] == ".."
}

func TestEnsureDir_CreatesNested(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "a", "b", "c")
	require.NoError(t, EnsureDir(target, 0o755))
	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestIsMounted_RootIsAlwaysMounted(t *testing.T) {
	assert.True(t, IsMounted("/"))
}

func TestIsMounted_RandomPathIsNotMounted(t *testing.T) {
	assert.False(t, IsMounted(filepath.Join(t.TempDir(), "not-a-mountpoint")))
}

func TestChildMountsUnder_NoChildrenForFreshTempDir(t *testing.T) {
	children, err := ChildMountsUnder(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, children)
}
