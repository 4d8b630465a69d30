package pathutil

import (
	"fmt"

	"github.com/opencontainers/selinux/go-selinux"
	"golang.org/x/sys/unix"
)

const selinuxXattr = "security.selinux"

// SELinuxEnabled reports whether the running kernel has SELinux
// enforcement active.
func SELinuxEnabled() bool {
	return selinux.GetEnabled()
}

// GetContext reads the raw SELinux context xattr of path without
// following a trailing symlink: whiteout/symlink nodes must have their
// own label read, not the target's.
func GetContext(path string) (string, error) {
	buf := make([]byte, 256)
	n, err := unix.Lgetxattr(path, selinuxXattr, buf)
	if err != nil {
		if err == unix.ENODATA || err == unix.ENOTSUP {
			return "", nil
		}
		return "", fmt.Errorf("lgetxattr %s: %w", path, err)
	}
	return string(buf[:n]), nil
}

// SetContext writes the raw SELinux context xattr of path without
// following a trailing symlink.
func SetContext(path, context string) error {
	if context == "" {
		return nil
	}
	if err := unix.Lsetxattr(path, selinuxXattr, []byte(context), 0); err != nil {
		return fmt.Errorf("lsetxattr %s: %w", path, err)
	}
	return nil
}

// CopyContext copies the SELinux context from src to dst, best-effort:
// a missing context or an unsupported filesystem is not an error, since
// plenty of targets (tmpfs without SELinux labeling mounted) lack one.
func CopyContext(src, dst string) error {
	ctx, err := GetContext(src)
	if err != nil {
		return err
	}
	if ctx == "" {
		return nil
	}
	return SetContext(dst, ctx)
}
