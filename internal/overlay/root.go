package overlay

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MountRoot overlays moduleRoots onto targetRoot, then walks
// childMounts (mountpoints strictly under targetRoot collected by the
// caller before this call shadows them) and restores each one either
// as a straight bind mount of its original content, or as its own
// sub-overlay if a module touches it.
//
// The "root-stash trick": targetRoot's original content is opened as
// an fd before the overlay mount replaces it, then addressed via
// /proc/self/fd/<n> for everything mounted afterward, since the
// directory entry itself no longer reaches the pre-overlay tree once
// the union is in place.
func (e *Engine) MountRoot(targetRoot string, moduleRoots, childMounts []string) error {
	rootFile, err := os.Open(targetRoot)
	if err != nil {
		return fmt.Errorf("open target root %s: %w", targetRoot, err)
	}
	defer rootFile.Close()

	stockRoot := fmt.Sprintf("/proc/self/fd/%d", rootFile.Fd())

	if err := e.MountUnion(moduleRoots, stockRoot, targetRoot); err != nil {
		return fmt.Errorf("mount overlayfs for root %s: %w", targetRoot, err)
	}

	for _, mountPoint := range childMounts {
		relative := strings.TrimPrefix(mountPoint, targetRoot)
		stockRootRelative := stockRoot + relative

		if _, err := os.Stat(stockRootRelative); err != nil {
			continue
		}

		if err := e.mountChild(mountPoint, relative, moduleRoots, stockRootRelative); err != nil {
			log.Warningf("failed to restore child mount %s: %v", mountPoint, err)
		}
	}
	return nil
}

// mountChild restores one pre-existing child mountpoint after its
// parent root has been overlaid: a straight bind mount if no module
// touches that relative path, otherwise its own overlay of whichever
// module layers do.
func (e *Engine) mountChild(mountPoint, relative string, moduleRoots []string, stockRoot string) error {
	trimmed := strings.TrimPrefix(relative, "/")

	hasModification := false
	for _, lower := range moduleRoots {
		if _, err := os.Stat(filepath.Join(lower, trimmed)); err == nil {
			hasModification = true
			break
		}
	}

	if !hasModification {
		return e.BindMount(stockRoot, mountPoint)
	}

	fi, err := os.Stat(stockRoot)
	if err != nil || !fi.IsDir() {
		return nil
	}

	var lowerDirs []string
	for _, lower := range moduleRoots {
		path := filepath.Join(lower, trimmed)
		pfi, err := os.Stat(path)
		switch {
		case err != nil:
			continue
		case pfi.IsDir():
			lowerDirs = append(lowerDirs, path)
		default:
			// A module replaces this path with a non-directory entry;
			// leave the child mount alone rather than guess.
			return nil
		}
	}
	if len(lowerDirs) == 0 {
		return nil
	}

	if err := e.MountUnion(lowerDirs, stockRoot, mountPoint); err != nil {
		log.Warningf("failed to overlay child %s: %v, falling back to bind mount", mountPoint, err)
		return e.BindMount(stockRoot, mountPoint)
	}
	return nil
}
