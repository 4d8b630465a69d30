// Package loopdev attaches a regular file to a Linux loop block device
// via the LOOP_SET_FD/LOOP_SET_STATUS64 ioctls. The storage selector
// uses this to mount its ext4 working-area image without shelling out
// to losetup.
package loopdev

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"
)

// Loop device ioctl commands.
const (
	cmdSetFd       = 0x4C00
	cmdClrFd       = 0x4C01
	cmdSetStatus64 = 0x4C04
	cmdGetStatus64 = 0x4C05
)

const maxLoopDevices = 256

// Info64 mirrors struct loop_info64 from <linux/loop.h>.
type Info64 struct {
	Device         uint64
	Inode          uint64
	Rdevice        uint64
	Offset         uint64
	SizeLimit      uint64
	Number         uint32
	EncryptType    uint32
	EncryptKeySize uint32
	Flags          uint32
	FileName       [64]byte
	CryptName      [64]byte
	EncryptKey     [32]byte
	Init           [2]uint64
}

// Device is an attached loop device; Detach releases it (the AUTOCLEAR
// flag is not set, so it stays attached until Detach is called).
type Device struct {
	fd     int
	Number int
}

// Attach finds a free /dev/loopN, associates imagePath with it, and
// returns the attached Device. No shared-loop-device search: graftd's
// image is single-owner per boot.
func Attach(imagePath string) (*Device, error) {
	image, err := os.OpenFile(imagePath, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", imagePath, err)
	}
	defer image.Close()

	for n := 0; n < maxLoopDevices; n++ {
		path := fmt.Sprintf("/dev/loop%d", n)
		loopFd, err := openOrCreate(path, n)
		if err != nil {
			continue
		}

		if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(loopFd), cmdSetFd, image.Fd()); errno != 0 {
			syscall.Close(loopFd)
			continue
		}

		var info Info64
		copy(info.FileName[:], imagePath)
		if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(loopFd), cmdSetStatus64, uintptr(unsafe.Pointer(&info))); errno != 0 {
			syscall.Syscall(syscall.SYS_IOCTL, uintptr(loopFd), cmdClrFd, 0)
			if errno == syscall.EAGAIN || errno == syscall.EBUSY {
				syscall.Close(loopFd)
				continue
			}
			syscall.Close(loopFd)
			return nil, fmt.Errorf("set loop status on %s: %w", path, errno)
		}

		return &Device{fd: loopFd, Number: n}, nil
	}
	return nil, fmt.Errorf("no free loop device found (0-%d)", maxLoopDevices-1)
}

func openOrCreate(path string, n int) (int, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		dev := int((7 << 8) | (n & 0xff) | ((n & 0xfff00) << 12))
		if err := syscall.Mknod(path, syscall.S_IFBLK|0o660, dev); err != nil && err != syscall.EEXIST {
			return -1, fmt.Errorf("mknod %s: %w", path, err)
		}
	}
	return syscall.Open(path, os.O_RDWR, 0o600)
}

// Path returns the device node path of the attached loop device.
func (d *Device) Path() string {
	return fmt.Sprintf("/dev/loop%d", d.Number)
}

// Detach clears the loop device association and closes the handle.
func (d *Device) Detach() error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(d.fd), cmdClrFd, 0)
	closeErr := syscall.Close(d.fd)
	if errno != 0 {
		return fmt.Errorf("clear loop fd: %w", errno)
	}
	return closeErr
}
