package overlay

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// layerKind identifies which overlay role a path is being checked for.
type layerKind uint8

const (
	lowerLayer layerKind = 1 << iota
	upperLayer
)

type incompatibleFsEntry struct {
	name  string
	kinds layerKind
}

// Superblock magic numbers for filesystems overlayfs can't safely
// layer onto.
const (
	magicNFS    = 0x6969
	magicFuse   = 0x65735546
	magicEcrypt = 0xF15F
)

var incompatibleFilesystems = map[int64]incompatibleFsEntry{
	magicNFS:    {name: "NFS", kinds: upperLayer},
	magicFuse:   {name: "FUSE", kinds: upperLayer},
	magicEcrypt: {name: "ECRYPT", kinds: lowerLayer | upperLayer},
}

// ErrIncompatibleFilesystem reports a layer path living on a
// filesystem overlayfs cannot use in the requested role.
type ErrIncompatibleFilesystem struct {
	Path string
	Name string
	Kind layerKind
}

func (e *ErrIncompatibleFilesystem) Error() string {
	role := "lower"
	if e.Kind == upperLayer {
		role = "upper"
	}
	return fmt.Sprintf("%s is on a %s filesystem, incompatible as overlay %s directory", e.Path, e.Name, role)
}

func checkLayerFs(path string, kind layerKind) error {
	var stfs unix.Statfs_t
	if err := unix.Statfs(path, &stfs); err != nil {
		return fmt.Errorf("statfs %s: %w", path, err)
	}
	entry, ok := incompatibleFilesystems[int64(stfs.Type)]
	if !ok || entry.kinds&kind == 0 {
		return nil
	}
	return &ErrIncompatibleFilesystem{Path: path, Name: entry.name, Kind: kind}
}

// CheckLower reports whether path's filesystem can serve as an overlay
// lowerdir.
func CheckLower(path string) error { return checkLayerFs(path, lowerLayer) }

// CheckUpper reports whether path's filesystem can serve as an overlay
// upperdir.
func CheckUpper(path string) error { return checkLayerFs(path, upperLayer) }

// IsIncompatible reports whether err came from CheckLower/CheckUpper
// finding an unsupported backing filesystem.
func IsIncompatible(err error) bool {
	var fsErr *ErrIncompatibleFilesystem
	return errors.As(err, &fsErr)
}
