// Package magic implements the magic-mount engine. It builds a tagged
// Node tree from one or more modules' files, merges trees in
// inventory-priority order, and recursively projects the merged tree
// onto a tmpfs skeleton laid over the live root.
package magic

import (
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/rootgraft/graftd/internal/pathutil"
)

// FileType is a Node's tag.
type FileType int

const (
	RegularFile FileType = iota
	Symlink
	Directory
	Whiteout
)

const replaceMarkerFile = ".replace"

// Node is one merged filesystem entry in the magic-mount tree.
type Node struct {
	Name       string
	FileType   FileType
	ModulePath string // empty means "no module owns this entry"
	Replace    bool
	Skip       bool
	Children   map[string]*Node
}

func newNode(name string, fileType FileType) *Node {
	return &Node{Name: name, FileType: fileType, Children: map[string]*Node{}}
}

// NewRoot constructs an empty directory node, the starting point for
// both the per-partition and whole-tree roots collect_module_files
// builds in the original.
func NewRoot(name string) *Node {
	return newNode(name, Directory)
}

func (n *Node) hasModule() bool { return n.ModulePath != "" }

// BuildFromDir walks srcDir (an on-disk module partition directory,
// e.g. <module>/system) and populates n's children, recursing into
// subdirectories. Character devices with rdev==0 become Whiteout
// nodes; a directory carrying the replace marker (file .replace or
// xattr trusted.overlay.opaque=y) is flagged Replace.
func (n *Node) BuildFromDir(srcDir string) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.Name() == replaceMarkerFile {
			n.Replace = true
		}

		if _, err := pathutil.SecureJoin(srcDir, e.Name()); err != nil {
			continue
		}
		// Lstat the entry itself: SecureJoin resolves a trailing
		// symlink, which would hide the Symlink node type.
		childPath := filepath.Join(srcDir, e.Name())

		info, err := os.Lstat(childPath)
		if err != nil {
			continue
		}

		child := n.Children[e.Name()]
		if child == nil {
			child = newNode(e.Name(), classify(info))
			n.Children[e.Name()] = child
		}
		child.ModulePath = childPath

		switch {
		case isWhiteout(info):
			child.FileType = Whiteout
		case info.Mode()&os.ModeSymlink != 0:
			child.FileType = Symlink
		case info.IsDir():
			child.FileType = Directory
			if opaqueDir(childPath) {
				child.Replace = true
			}
			if err := child.BuildFromDir(childPath); err != nil {
				return err
			}
		default:
			child.FileType = RegularFile
		}
	}
	return nil
}

func classify(info os.FileInfo) FileType {
	switch {
	case isWhiteout(info):
		return Whiteout
	case info.Mode()&os.ModeSymlink != 0:
		return Symlink
	case info.IsDir():
		return Directory
	default:
		return RegularFile
	}
}

// isWhiteout recognizes the overlayfs whiteout encoding: a character
// device node with rdev == 0.
func isWhiteout(info os.FileInfo) bool {
	if info.Mode()&os.ModeCharDevice == 0 {
		return false
	}
	sys, ok := info.Sys().(*syscall.Stat_t)
	return ok && sys.Rdev == 0
}

// opaqueDir reports whether path carries the overlayfs opaque-directory
// xattr, an alternate replace-marker alongside the .replace file.
func opaqueDir(path string) bool {
	buf := make([]byte, 1)
	n, err := unix.Getxattr(path, "trusted.overlay.opaque", buf)
	return err == nil && n == 1 && buf[0] == 'y'
}

// Merge folds low into high in place: the
// higher-priority node (already built so far) keeps its own
// module_path/replace/type if it has one; otherwise it adopts low's.
// Children are merged recursively, higher priority winning leaf
// conflicts.
func Merge(high, low *Node) {
	if !high.hasModule() {
		high.ModulePath = low.ModulePath
		high.FileType = low.FileType
		high.Replace = low.Replace
	}
	for name, lowChild := range low.Children {
		if highChild, ok := high.Children[name]; ok {
			Merge(highChild, lowChild)
		} else {
			high.Children[name] = lowChild
		}
	}
}

// SortedChildNames returns n's child names in deterministic order, for
// the recursive mount walk.
func (n *Node) SortedChildNames() []string {
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Path joins root and segments into one filesystem path.
func Path(root string, segments ...string) string {
	return filepath.Join(append([]string{root}, segments...)...)
}
