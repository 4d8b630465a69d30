// Package pathutil collects safe-path and SELinux/xattr primitives:
// secure joins so a module-relative path can never escape its module
// root, mount-table lookups for the storage selector and overlay
// child-mount restoration, and SELinux context copy for the
// magic-mount engine.
package pathutil

import (
	"fmt"
	"os"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// SecureJoin joins root and rel the way filepath-securejoin does:
// resolving symlinks within root so the result can never land outside
// root, even if rel contains ".." or rel's ancestors are symlinks
// pointing outside. Used by the content synchronizer and the
// magic-mount tree builder on each entry of a module directory walk.
func SecureJoin(root, rel string) (string, error) {
	p, err := securejoin.SecureJoin(root, rel)
	if err != nil {
		return "", fmt.Errorf("secure join %s + %s: %w", root, rel, err)
	}
	return p, nil
}

// EnsureDir creates dir (and parents) if missing.
func EnsureDir(dir string, mode os.FileMode) error {
	if err := os.MkdirAll(dir, mode); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}
