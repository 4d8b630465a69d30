// Package capability wraps two KernelSU driver effects the mount
// engines need as boolean capability calls: hinting a mountpoint as
// safe to detach later (umount-hint), and "stealth" nuking a sysfs
// node. Both are a best-effort ioctl/write against a device node,
// with a silent downgrade if that device isn't present.
package capability

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	umountHintDevice = "/dev/ksu_try_umount"
	sysfsNukeDevice  = "/dev/ksu_nuke"

	umountHintIoctl = 0x40004b12
)

var (
	unmountableOnce sync.Once
	unmountableFd   = -1
)

// ErrUnavailable signals that the underlying driver node isn't
// present, so the call is a silent downgrade rather than a hard
// failure.
var ErrUnavailable = fmt.Errorf("capability device unavailable")

func openUnmountable() {
	fd, err := unix.Open(umountHintDevice, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		unmountableFd = -1
		return
	}
	unmountableFd = fd
}

// HintUnmountable tells the kernel driver to schedule path for later
// namespace detachment. Best-effort: any failure, including the driver
// node not existing, is reported but never escalated past a warning by
// the caller.
func HintUnmountable(path string) error {
	unmountableOnce.Do(openUnmountable)
	if unmountableFd < 0 {
		return ErrUnavailable
	}

	type addTryUmount struct {
		Arg   uint64
		Flags uint32
		Mode  uint8
		_     [3]byte
	}

	pathBytes, err := unix.BytePtrFromString(path)
	if err != nil {
		return fmt.Errorf("encode path: %w", err)
	}
	req := addTryUmount{
		Arg:   uint64(uintptr(unsafe.Pointer(pathBytes))),
		Flags: 2,
		Mode:  1,
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(unmountableFd), umountHintIoctl, uintptr(unsafe.Pointer(&req)))
	if errno != 0 {
		return fmt.Errorf("ioctl add_try_umount: %w", errno)
	}
	return nil
}

// NukeSysfs asks the driver to remove a sysfs node so its presence
// cannot be probed by an unrooted process. Best-effort, silent downgrade
// if the device node is absent.
func NukeSysfs(path string) error {
	if _, err := os.Stat(sysfsNukeDevice); err != nil {
		return ErrUnavailable
	}
	fd, err := unix.Open(sysfsNukeDevice, unix.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return ErrUnavailable
	}
	defer unix.Close(fd)

	if _, err := unix.Write(fd, []byte(path)); err != nil {
		return fmt.Errorf("write nuke request: %w", err)
	}
	return nil
}
