// Package contentsync populates the working area with each enabled
// module's payload, preserving mode, ownership and SELinux labels. A
// straightforward recursive copy: each entry is copied as itself (a
// symlink is recreated, never followed), and an entry that
// pathutil.SecureJoin cannot resolve inside its directory is skipped.
package contentsync

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/rootgraft/graftd/internal/inventory"
	"github.com/rootgraft/graftd/internal/pathutil"
	"github.com/rootgraft/graftd/internal/seedlog"
)

var log = seedlog.Context("[SYNC]")

// Sync copies module.SourcePath into <root>/<module.ID>, recursively,
// preserving mode/owner/selinux context per entry. Ignore-mode modules
// are skipped by the caller before Sync is invoked.
func Sync(root string, module inventory.Module) error {
	dest := filepath.Join(root, module.ID)
	if err := copyTree(module.SourcePath, dest); err != nil {
		return fmt.Errorf("sync module %s: %w", module.ID, err)
	}
	return nil
}

func copyTree(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return copySymlink(src, dst, info)
	case info.IsDir():
		return copyDir(src, dst, info)
	default:
		return copyFile(src, dst, info)
	}
}

func copyDir(src, dst string, info os.FileInfo) error {
	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return err
	}
	if err := applyMetadata(dst, info); err != nil {
		log.Warningf("preserve metadata on %s: %v", dst, err)
	}
	if err := pathutil.CopyContext(src, dst); err != nil {
		log.Debugf("copy selinux context %s -> %s: %v", src, dst, err)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		rel := e.Name()
		if _, err := pathutil.SecureJoin(src, rel); err != nil {
			log.Warningf("skip unsafe path %s/%s: %v", src, rel, err)
			continue
		}
		// Copy the entry itself: SecureJoin resolves a trailing symlink,
		// and a symlink must be recreated, not replaced by its target.
		srcChild := filepath.Join(src, rel)
		if err := copyTree(srcChild, filepath.Join(dst, rel)); err != nil {
			return fmt.Errorf("%s: %w", rel, err)
		}
	}
	return nil
}

func copyFile(src, dst string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	if err := applyMetadata(dst, info); err != nil {
		log.Warningf("preserve metadata on %s: %v", dst, err)
	}
	if err := pathutil.CopyContext(src, dst); err != nil {
		log.Debugf("copy selinux context %s -> %s: %v", src, dst, err)
	}
	return nil
}

func copySymlink(src, dst string, info os.FileInfo) error {
	target, err := os.Readlink(src)
	if err != nil {
		return err
	}
	if err := os.Symlink(target, dst); err != nil {
		return err
	}
	return pathutil.CopyContext(src, dst)
}

func applyMetadata(path string, info os.FileInfo) error {
	if err := os.Chmod(path, info.Mode().Perm()); err != nil {
		return err
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if err := os.Chown(path, int(stat.Uid), int(stat.Gid)); err != nil {
			return err
		}
	}
	return nil
}
