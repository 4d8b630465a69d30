package magic

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/rootgraft/graftd/internal/capability"
	"github.com/rootgraft/graftd/internal/pathutil"
	"github.com/rootgraft/graftd/internal/seedlog"
)

var log = seedlog.Context("[MAGIC]")

// Engine drives the recursive tmpfs-skeleton mount walk. DisableUmount
// mirrors the overlay engine's flag: when false, each module-file bind
// mount, each skeleton self-bind and each tmpfs moved into place gets
// hinted to the capability driver as safe to later detach. The bind
// mounts that mirror live files into a skeleton are not hinted.
type Engine struct {
	MountSource   string
	DisableUmount bool
}

func New(mountSource string, disableUmount bool) *Engine {
	return &Engine{MountSource: mountSource, DisableUmount: disableUmount}
}

// Mount projects tree onto the live root inside a private tmpfs
// scratch mount at runDir/workdir, which is detached once the walk
// completes.
func (e *Engine) Mount(tree *Node, runDir string) error {
	workdir := filepath.Join(runDir, "workdir")
	if err := pathutil.EnsureDir(workdir, 0o755); err != nil {
		return fmt.Errorf("create magic workdir: %w", err)
	}

	if err := unix.Mount(e.MountSource, workdir, "tmpfs", 0, ""); err != nil {
		return fmt.Errorf("mount tmp: %w", err)
	}
	if err := unix.Mount("", workdir, "", unix.MS_PRIVATE, ""); err != nil {
		log.Warningf("make tmp private: %v", err)
	}

	walker := &walker{engine: e}
	err := walker.walk(tree, "/", workdir, false)

	if unmountErr := unix.Unmount(workdir, unix.MNT_DETACH); unmountErr != nil {
		log.Errorf("failed to unmount tmp: %v", unmountErr)
	}
	_ = os.Remove(workdir)

	return err
}

// walker carries the engine through the recursive descent; the
// has_tmpfs state is passed down as a walk parameter, not stored here.
type walker struct {
	engine *Engine
}

func (w *walker) walk(node *Node, path, workPath string, parentHasTmpfs bool) error {
	nodePath := filepath.Join(path, node.Name)
	nodeWork := filepath.Join(workPath, node.Name)

	switch node.FileType {
	case RegularFile:
		return w.handleRegularFile(node, nodePath, nodeWork, parentHasTmpfs)
	case Symlink:
		return w.handleSymlink(node, nodeWork)
	case Directory:
		return w.handleDirectory(node, nodePath, nodeWork, parentHasTmpfs)
	case Whiteout:
		log.Debugf("file %s is removed", nodePath)
		return nil
	default:
		return nil
	}
}

func (w *walker) handleRegularFile(node *Node, nodePath, nodeWork string, hasTmpfs bool) error {
	if !node.hasModule() {
		return fmt.Errorf("cannot mount root file %s", nodePath)
	}

	target := nodePath
	if hasTmpfs {
		f, err := os.Create(nodeWork)
		if err != nil {
			return err
		}
		f.Close()
		target = nodeWork
	}

	log.Debugf("mount module file %s -> %s", node.ModulePath, target)
	if err := w.bindMount(node.ModulePath, target); err != nil {
		return fmt.Errorf("mount module file %s -> %s: %w", node.ModulePath, target, err)
	}
	if err := unix.Mount("", target, "", unix.MS_REMOUNT|unix.MS_BIND|unix.MS_RDONLY, ""); err != nil {
		log.Warningf("make file %s ro: %v", target, err)
	}
	return nil
}

func (w *walker) handleSymlink(node *Node, nodeWork string) error {
	if !node.hasModule() {
		return fmt.Errorf("cannot mount root symlink %s", nodeWork)
	}
	return cloneSymlink(node.ModulePath, nodeWork)
}

func (w *walker) handleDirectory(node *Node, nodePath, nodeWork string, parentHasTmpfs bool) error {
	createTmpfs := !parentHasTmpfs && node.Replace && node.hasModule()

	if !parentHasTmpfs && !createTmpfs {
		createTmpfs = checkTmpfs(node, nodePath)
	}

	hasTmpfs := parentHasTmpfs || createTmpfs

	if hasTmpfs {
		if err := createTmpfsSkeleton(node, nodePath, nodeWork); err != nil {
			return err
		}
	}

	if createTmpfs {
		log.Debugf("creating tmpfs for %s at %s", nodePath, nodeWork)
		if err := w.bindMount(nodeWork, nodeWork); err != nil {
			return fmt.Errorf("bind self %s: %w", nodeWork, err)
		}
	}

	if _, err := os.Lstat(nodePath); err == nil && !node.Replace {
		entries, readErr := os.ReadDir(nodePath)
		if readErr != nil {
			return readErr
		}
		for _, entry := range entries {
			name := entry.Name()
			child, handled := node.Children[name]
			var err error
			switch {
			case handled:
				delete(node.Children, name)
				if child.Skip {
					continue
				}
				err = w.walk(child, nodePath, nodeWork, hasTmpfs)
			case hasTmpfs:
				err = mountMirror(nodePath, nodeWork, name)
			}
			if err != nil {
				if hasTmpfs {
					return fmt.Errorf("mount child %s/%s: %w", nodePath, name, err)
				}
				log.Errorf("mount child %s/%s failed: %v", nodePath, name, err)
			}
		}
	}

	if node.Replace && !node.hasModule() {
		return fmt.Errorf("dir %s is declared as replaced but it is root", nodePath)
	}

	for _, name := range node.SortedChildNames() {
		child := node.Children[name]
		if child.Skip {
			continue
		}
		if err := w.walk(child, nodePath, nodeWork, hasTmpfs); err != nil {
			if hasTmpfs {
				return fmt.Errorf("mount child %s/%s: %w", nodePath, name, err)
			}
			log.Errorf("mount child %s/%s failed: %v", nodePath, name, err)
		}
	}

	if createTmpfs {
		return w.moveTmpfs(nodePath, nodeWork)
	}
	return nil
}

func (w *walker) moveTmpfs(nodePath, nodeWork string) error {
	log.Debugf("moving tmpfs %s -> %s", nodeWork, nodePath)
	if err := unix.Mount("", nodeWork, "", unix.MS_REMOUNT|unix.MS_BIND|unix.MS_RDONLY, ""); err != nil {
		log.Warningf("make dir %s ro: %v", nodePath, err)
	}
	if err := unix.Mount(nodeWork, nodePath, "", unix.MS_MOVE, ""); err != nil {
		return fmt.Errorf("move self %s -> %s: %w", nodeWork, nodePath, err)
	}
	if err := unix.Mount("", nodePath, "", unix.MS_PRIVATE, ""); err != nil {
		log.Warningf("make dir %s private: %v", nodePath, err)
	}
	if !w.engine.DisableUmount {
		if err := capability.HintUnmountable(nodePath); err != nil {
			log.Debugf("unmount hint for %s: %v", nodePath, err)
		}
	}
	return nil
}

func (w *walker) bindMount(src, dst string) error {
	if err := unix.Mount(src, dst, "", unix.MS_BIND, ""); err != nil {
		return err
	}
	if !w.engine.DisableUmount {
		if err := capability.HintUnmountable(dst); err != nil {
			log.Debugf("unmount hint for %s: %v", dst, err)
		}
	}
	return nil
}

// checkTmpfs scans node's children to decide whether a tmpfs skeleton
// must be created at this level before any of them can be projected:
// a child that is a Symlink always forces it (symlinks can't be
// bind-mounted in place over a differing live entry), a Whiteout
// forces it only if the live entry it must mask actually exists, and
// any other node forces it if the live entry's type doesn't match
// what the node needs, or no live entry exists at all. A child that
// would force tmpfs but has no module_path of its own can't be
// resolved without one; it's marked Skip instead, with the reason
// logged.
func checkTmpfs(node *Node, nodePath string) bool {
	needTmpfs := false
	for name, child := range node.Children {
		realPath := filepath.Join(nodePath, name)

		var need bool
		switch child.FileType {
		case Symlink:
			need = true
		case Whiteout:
			_, err := os.Lstat(realPath)
			need = err == nil
		default:
			info, err := os.Lstat(realPath)
			if err != nil {
				need = true
			} else {
				liveType := classify(info)
				need = liveType != child.FileType || liveType == Symlink
			}
		}

		if need {
			if !child.hasModule() {
				log.Errorf("cannot create tmpfs on %s, ignore: %s", nodePath, name)
				child.Skip = true
				continue
			}
			needTmpfs = true
		}
	}
	return needTmpfs
}

func createTmpfsSkeleton(node *Node, nodePath, nodeWork string) error {
	log.Debugf("creating tmpfs skeleton for %s at %s", nodePath, nodeWork)
	_ = os.MkdirAll(nodeWork, 0o755)

	var refInfo os.FileInfo
	var refPath string
	if info, err := os.Stat(nodePath); err == nil {
		refInfo, refPath = info, nodePath
	} else if node.hasModule() {
		info, err := os.Stat(node.ModulePath)
		if err != nil {
			return fmt.Errorf("stat %s: %w", node.ModulePath, err)
		}
		refInfo, refPath = info, node.ModulePath
	} else {
		return fmt.Errorf("cannot mount root dir %s", nodePath)
	}

	stat, ok := refInfo.Sys().(*syscall.Stat_t)
	if ok {
		_ = os.Chmod(nodeWork, refInfo.Mode().Perm())
		_ = os.Chown(nodeWork, int(stat.Uid), int(stat.Gid))
	}
	if err := pathutil.CopyContext(refPath, nodeWork); err != nil {
		log.Debugf("copy selinux context for %s: %v", nodeWork, err)
	}
	return nil
}

func mountMirror(path, workPath, name string) error {
	src := filepath.Join(path, name)
	dst := filepath.Join(workPath, name)

	info, err := os.Lstat(src)
	if err != nil {
		return err
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		log.Debugf("create mirror symlink %s -> %s", src, dst)
		return cloneSymlink(src, dst)
	case info.IsDir():
		log.Debugf("mount mirror dir %s -> %s", src, dst)
		if err := os.Mkdir(dst, 0o755); err != nil {
			return err
		}
		if stat, ok := info.Sys().(*syscall.Stat_t); ok {
			_ = os.Chmod(dst, info.Mode().Perm())
			_ = os.Chown(dst, int(stat.Uid), int(stat.Gid))
		}
		if err := pathutil.CopyContext(src, dst); err != nil {
			log.Debugf("copy selinux context %s -> %s: %v", src, dst, err)
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := mountMirror(src, dst, e.Name()); err != nil {
				return err
			}
		}
		return nil
	default:
		log.Debugf("mount mirror file %s -> %s", src, dst)
		f, err := os.Create(dst)
		if err != nil {
			return err
		}
		f.Close()
		return unix.Mount(src, dst, "", unix.MS_BIND, "")
	}
}

func cloneSymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return err
	}
	if err := os.Symlink(target, dst); err != nil {
		return err
	}
	return pathutil.CopyContext(src, dst)
}
