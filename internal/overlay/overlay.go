// Package overlay mounts an OverlayFS union of a partition's module
// layers over its live root, trying the new fsopen/fsconfig/fsmount/
// move_mount API before falling back to the legacy mount(2)
// string-option form, and staging the mount in chunks when the
// combined lowerdir string would exceed the kernel's mount-data page
// limit.
package overlay

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/rootgraft/graftd/internal/capability"
	"github.com/rootgraft/graftd/internal/seedlog"
)

var log = seedlog.Context("[OVERLAY]")

// pageLimit is the lowerdir string length past which a direct mount
// attempt is assumed to have failed due to the kernel's mount option
// page-size ceiling, triggering staged mounting.
const pageLimit = 4000

// safeChunkSize bounds each staged batch's combined lowerdir length.
const safeChunkSize = 3500

const stagingSubdir = "overlay-staging"

// Engine mounts partition overlays for one boot. MountSource names the
// overlay's `source=` tag, purely cosmetic and shown in /proc/mounts;
// RunDir is where staged mount scratch directories live.
type Engine struct {
	MountSource   string
	RunDir        string
	DisableUmount bool
}

// New builds an Engine from boot configuration.
func New(mountSource, runDir string, disableUmount bool) *Engine {
	return &Engine{MountSource: mountSource, RunDir: runDir, DisableUmount: disableUmount}
}

// stagedMountGuard tracks staged intermediate mounts so a failure
// partway through unwinds them in reverse order.
type stagedMountGuard struct {
	mounts    []string
	committed bool
}

func (g *stagedMountGuard) release() {
	if g.committed {
		return
	}
	for i := len(g.mounts) - 1; i >= 0; i-- {
		path := g.mounts[i]
		_ = unix.Unmount(path, unix.MNT_DETACH)
		_ = os.Remove(path)
	}
}

// MountUnion overlays lowerDirs (highest precedence first) plus lowest
// (the partition's own live content, lowest precedence) onto dest.
func (e *Engine) MountUnion(lowerDirs []string, lowest, dest string) error {
	lowerdirConfig := strings.Join(append(append([]string{}, lowerDirs...), lowest), ":")

	err := e.doMount(lowerdirConfig, dest)
	if err == nil {
		return nil
	}

	if len(lowerdirConfig) >= pageLimit {
		log.Infof("direct overlay mount of %s failed (%v), possibly length limit, trying staged mount", dest, err)
		return e.mountStaged(lowerDirs, lowest, dest)
	}
	return err
}

func (e *Engine) mountStaged(lowerDirs []string, lowest, dest string) error {
	var batches [][]string
	var current []string
	currentLen := 0
	for _, dir := range lowerDirs {
		if currentLen+len(dir)+1 > safeChunkSize {
			batches = append(batches, current)
			current = nil
			currentLen = 0
		}
		current = append(current, dir)
		currentLen += len(dir) + 1
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}

	stagingRoot := filepath.Join(e.RunDir, stagingSubdir)
	if err := os.MkdirAll(stagingRoot, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}

	guard := &stagedMountGuard{}
	defer guard.release()

	currentBase := lowest
	for i := len(batches) - 1; i >= 0; i-- {
		batch := batches[i]
		isLastLayer := i == 0

		var target string
		if isLastLayer {
			target = dest
		} else {
			target = filepath.Join(stagingRoot, "stage_"+strconv.Itoa(len(batches))+"_"+strconv.Itoa(i))
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create stage dir %s: %w", target, err)
			}
		}

		lowerdirStr := strings.Join(append(append([]string{}, batch...), currentBase), ":")
		if err := e.doMount(lowerdirStr, target); err != nil {
			return fmt.Errorf("staged overlay batch %d: %w", i, err)
		}

		if !isLastLayer {
			guard.mounts = append(guard.mounts, target)
			currentBase = target
		}
	}

	guard.committed = true
	return nil
}

// doMount performs one overlay mount, new-API first, legacy mount(2)
// as fallback.
func (e *Engine) doMount(lowerdirConfig, dest string) error {
	features := overlayFeatures()

	err := e.mountNewAPI(lowerdirConfig, features, dest)
	if err != nil {
		legacyErr := e.mountLegacy(lowerdirConfig, features, dest)
		if legacyErr != nil {
			return fmt.Errorf("legacy mount failed (fsopen also failed: %v): %w", err, legacyErr)
		}
	}

	if !e.DisableUmount {
		if hintErr := capability.HintUnmountable(dest); hintErr != nil {
			log.Debugf("unmount hint for %s: %v", dest, hintErr)
		}
	}
	return nil
}

func (e *Engine) mountNewAPI(lowerdirConfig, features, dest string) error {
	fsfd, err := unix.Fsopen("overlay", unix.FSOPEN_CLOEXEC)
	if err != nil {
		return fmt.Errorf("fsopen: %w", err)
	}
	defer unix.Close(fsfd)

	if err := unix.FsconfigSetString(fsfd, "lowerdir", lowerdirConfig); err != nil {
		return fmt.Errorf("fsconfig lowerdir: %w", err)
	}
	if strings.Contains(features, "redirect_dir") {
		_ = unix.FsconfigSetString(fsfd, "redirect_dir", "on")
	}
	if strings.Contains(features, "metacopy") {
		_ = unix.FsconfigSetString(fsfd, "metacopy", "on")
	}
	if err := unix.FsconfigSetString(fsfd, "source", e.MountSource); err != nil {
		return fmt.Errorf("fsconfig source: %w", err)
	}
	if err := unix.FsconfigCreate(fsfd); err != nil {
		return fmt.Errorf("fsconfig create: %w", err)
	}

	mountfd, err := unix.Fsmount(fsfd, unix.FSMOUNT_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("fsmount: %w", err)
	}
	defer unix.Close(mountfd)

	if err := unix.MoveMount(mountfd, "", unix.AT_FDCWD, dest, unix.MOVE_MOUNT_F_EMPTY_PATH); err != nil {
		return fmt.Errorf("move_mount: %w", err)
	}
	return nil
}

func (e *Engine) mountLegacy(lowerdirConfig, features, dest string) error {
	data := "lowerdir=" + lowerdirConfig + features
	return unix.Mount(e.MountSource, dest, "overlay", 0, data)
}

// overlayFeatures probes for redirect_dir/metacopy kernel module
// parameters, appending the matching mount option fragments.
func overlayFeatures() string {
	var features string
	if _, err := os.Stat("/sys/module/overlay/parameters/redirect_dir"); err == nil {
		features += ",redirect_dir=on"
	}
	if _, err := os.Stat("/sys/module/overlay/parameters/metacopy"); err == nil {
		if !strings.Contains(features, "redirect_dir") {
			features += ",redirect_dir=on"
		}
		features += ",metacopy=on"
	}
	return features
}

// BindMount recursively bind-mounts from onto to via open_tree+move_mount.
func (e *Engine) BindMount(from, to string) error {
	tree, err := unix.OpenTree(unix.AT_FDCWD, from, unix.OPEN_TREE_CLOEXEC|unix.OPEN_TREE_CLONE|unix.AT_RECURSIVE)
	if err != nil {
		return fmt.Errorf("open_tree %s: %w", from, err)
	}
	defer unix.Close(tree)

	if err := unix.MoveMount(tree, "", unix.AT_FDCWD, to, unix.MOVE_MOUNT_F_EMPTY_PATH); err != nil {
		return fmt.Errorf("move_mount %s -> %s: %w", from, to, err)
	}

	if !e.DisableUmount {
		if hintErr := capability.HintUnmountable(to); hintErr != nil {
			log.Debugf("unmount hint for %s: %v", to, hintErr)
		}
	}
	return nil
}
