// Package storage chooses a tmpfs working area if xattrs are
// supported, else falls back to an ext4 loop image, with a
// repair-and-retry path.
package storage

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/rootgraft/graftd/internal/pathutil"
	"github.com/rootgraft/graftd/internal/seedlog"
	"github.com/rootgraft/graftd/internal/storage/loopdev"
)

var log = seedlog.Context("[STORAGE]")

// Error taxonomy for storage setup failures.
var (
	ErrUnsupportedTmpfs             = errors.New("tmpfs mount does not support xattrs")
	ErrImageMissingAndCreateFailed  = errors.New("ext4 image missing and could not be created")
	ErrImageCorruptAndUnrecoverable = errors.New("ext4 image corrupt and unrecoverable")
)

const imageSizeBytes = 2 << 30 // 2 GiB

// Mode is the storage backend chosen for this boot.
type Mode string

const (
	ModeTmpfs Mode = "tmpfs"
	ModeExt4  Mode = "ext4"
)

// Handle describes the mounted working area.
type Handle struct {
	MountPoint string
	Mode       Mode
	loop       *loopdev.Device
}

// Setup mounts the working area at mountPoint, trying tmpfs first
// (unless forceExt4) and falling back to an ext4 loop image at
// imagePath.
func Setup(mountPoint, imagePath string, forceExt4 bool, mountSource string) (*Handle, error) {
	if pathutil.IsMounted(mountPoint) {
		_ = unix.Unmount(mountPoint, unix.MNT_DETACH)
	}
	if err := pathutil.EnsureDir(mountPoint, 0o755); err != nil {
		return nil, fmt.Errorf("create mount point: %w", err)
	}

	if !forceExt4 {
		if ok := tryTmpfs(mountPoint, mountSource); ok {
			return &Handle{MountPoint: mountPoint, Mode: ModeTmpfs}, nil
		}
		log.Warningf("tmpfs unavailable or lacks xattr support, falling back to ext4")
	}

	return setupExt4(mountPoint, imagePath)
}

func tryTmpfs(mountPoint, mountSource string) bool {
	if err := unix.Mount(mountSource, mountPoint, "tmpfs", 0, ""); err != nil {
		log.Debugf("tmpfs mount failed: %v", err)
		return false
	}
	if !xattrSupported(mountPoint) {
		_ = unix.Unmount(mountPoint, unix.MNT_DETACH)
		return false
	}
	return true
}

// xattrSupported probes xattr support by setting a user xattr on a
// throwaway probe file.
func xattrSupported(mountPoint string) bool {
	probe := filepath.Join(mountPoint, ".graftd_xattr_probe")
	f, err := os.Create(probe)
	if err != nil {
		return false
	}
	f.Close()
	defer os.Remove(probe)

	err = unix.Setxattr(probe, "user.graftd.probe", []byte("1"), 0)
	return err == nil
}

func setupExt4(mountPoint, imagePath string) (*Handle, error) {
	if _, err := os.Stat(imagePath); os.IsNotExist(err) {
		if err := createImage(imagePath); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrImageMissingAndCreateFailed, err)
		}
	}

	dev, err := mountExt4Image(imagePath, mountPoint)
	if err != nil {
		log.Warningf("initial ext4 mount failed (%v), attempting repair", err)
		if repairErr := repairImage(imagePath); repairErr != nil {
			return nil, fmt.Errorf("%w: repair failed: %v", ErrImageCorruptAndUnrecoverable, repairErr)
		}
		dev, err = mountExt4Image(imagePath, mountPoint)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrImageCorruptAndUnrecoverable, err)
		}
	}

	return &Handle{MountPoint: mountPoint, Mode: ModeExt4, loop: dev}, nil
}

func createImage(path string) error {
	if err := pathutil.EnsureDir(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image file: %w", err)
	}
	if err := f.Truncate(imageSizeBytes); err != nil {
		f.Close()
		return fmt.Errorf("truncate image file: %w", err)
	}
	f.Close()

	cmd := exec.Command("mkfs.ext4", "-O", "^has_journal", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("mkfs.ext4: %w: %s", err, out)
	}
	return nil
}

func mountExt4Image(imagePath, mountPoint string) (*loopdev.Device, error) {
	dev, err := loopdev.Attach(imagePath)
	if err != nil {
		return nil, fmt.Errorf("attach loop device: %w", err)
	}
	if err := unix.Mount(dev.Path(), mountPoint, "ext4", 0, ""); err != nil {
		dev.Detach()
		return nil, fmt.Errorf("mount %s at %s: %w", dev.Path(), mountPoint, err)
	}
	return dev, nil
}

func repairImage(path string) error {
	cmd := exec.Command("e2fsck", "-y", "-f", path)
	out, err := cmd.CombinedOutput()
	// e2fsck exit codes 0 and 1 both indicate a usable (possibly
	// repaired) filesystem; 2+ means reboot required or unrecoverable.
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() <= 1 {
		return nil
	}
	return fmt.Errorf("e2fsck: %w: %s", err, out)
}

// Usage reports the storage status for the `storage` CLI subcommand.
func Usage(mountPoint string) (total, used uint64, percent uint8) {
	var stat unix.Statfs_t
	if err := unix.Statfs(mountPoint, &stat); err != nil {
		return 0, 0, 0
	}
	total = uint64(stat.Blocks) * uint64(stat.Bsize)
	free := uint64(stat.Bfree) * uint64(stat.Bsize)
	used = total - free
	if total > 0 {
		percent = uint8(used * 100 / total)
	}
	return
}

// Teardown unmounts and detaches the working area, used on boot
// failure cleanup paths; a successful boot leaves the working area
// mounted, owned by the process rather than torn down.
func (h *Handle) Teardown() error {
	if err := unix.Unmount(h.MountPoint, unix.MNT_DETACH); err != nil {
		return fmt.Errorf("unmount %s: %w", h.MountPoint, err)
	}
	if h.loop != nil {
		return h.loop.Detach()
	}
	return nil
}
