package magic

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestBuildFromDir_ClassifiesRegularSymlinkDirectory(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "subdir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "subdir", "file.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "regular"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink("regular", filepath.Join(base, "link")))

	root := NewRoot("/")
	require.NoError(t, root.BuildFromDir(base))

	require.Contains(t, root.Children, "regular")
	assert.Equal(t, RegularFile, root.Children["regular"].FileType)

	require.Contains(t, root.Children, "link")
	assert.Equal(t, Symlink, root.Children["link"].FileType)

	require.Contains(t, root.Children, "subdir")
	sub := root.Children["subdir"]
	assert.Equal(t, Directory, sub.FileType)
	require.Contains(t, sub.Children, "file.txt")
}

func TestBuildFromDir_ReplaceMarkerFile(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "sub", replaceMarkerFile), []byte(""), 0o644))

	root := NewRoot("/")
	require.NoError(t, root.BuildFromDir(base))
	assert.True(t, root.Children["sub"].Replace)
}

func TestIsWhiteout_CharDeviceWithZeroRdev(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "whiteout")
	if err := unix.Mknod(path, unix.S_IFCHR|0o600, 0); err != nil {
		t.Skipf("mknod unavailable in this environment: %v", err)
	}
	info, err := os.Lstat(path)
	require.NoError(t, err)
	assert.True(t, isWhiteout(info))
}

func TestMerge_HighPriorityWinsLeafConflict(t *testing.T) {
	high := newNode("bin", RegularFile)
	high.ModulePath = "/modules/20-high/system/bin"
	low := newNode("bin", RegularFile)
	low.ModulePath = "/modules/10-low/system/bin"

	Merge(high, low)
	assert.Equal(t, "/modules/20-high/system/bin", high.ModulePath)
}

func TestMerge_AdoptsLowWhenHighHasNoModule(t *testing.T) {
	high := newNode("bin", Directory)
	low := newNode("bin", RegularFile)
	low.ModulePath = "/modules/10-low/system/bin"

	Merge(high, low)
	assert.Equal(t, "/modules/10-low/system/bin", high.ModulePath)
	assert.Equal(t, RegularFile, high.FileType)
}

func TestMerge_ChildrenMergeRecursively(t *testing.T) {
	high := NewRoot("/")
	highChild := newNode("etc", Directory)
	highChild.ModulePath = "/modules/20-high/system/etc"
	highGrandchild := newNode("a.conf", RegularFile)
	highGrandchild.ModulePath = "/modules/20-high/system/etc/a.conf"
	highChild.Children["a.conf"] = highGrandchild
	high.Children["etc"] = highChild

	low := NewRoot("/")
	lowChild := newNode("etc", Directory)
	lowChild.ModulePath = "/modules/10-low/system/etc"
	lowGrandchild := newNode("b.conf", RegularFile)
	lowGrandchild.ModulePath = "/modules/10-low/system/etc/b.conf"
	lowChild.Children["b.conf"] = lowGrandchild
	low.Children["etc"] = lowChild

	Merge(high, low)

	etc := high.Children["etc"]
	require.NotNil(t, etc)
	assert.Equal(t, "/modules/20-high/system/etc", etc.ModulePath)
	assert.Contains(t, etc.Children, "a.conf")
	assert.Contains(t, etc.Children, "b.conf")
}

func TestSortedChildNames(t *testing.T) {
	root := NewRoot("/")
	root.Children["zeta"] = newNode("zeta", RegularFile)
	root.Children["alpha"] = newNode("alpha", RegularFile)
	root.Children["mid"] = newNode("mid", RegularFile)

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, root.SortedChildNames())
}
