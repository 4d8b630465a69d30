package pathutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MountTable is a parsed snapshot of /proc/self/mountinfo.
type MountTable []MountEntry

// MountEntry is the subset of a mountinfo line graftd needs: the
// mountpoint path. Device ids and superblock options aren't tracked,
// since no caller needs them.
type MountEntry struct {
	MountPoint string
}

// ReadMountTable parses /proc/self/mountinfo, used to detect
// mountpoints the mount engines must work around.
func ReadMountTable() (MountTable, error) {
	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return nil, fmt.Errorf("open mountinfo: %w", err)
	}
	defer f.Close()

	var table MountTable
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// mountinfo format: ID parent major:minor root mountpoint options ...
		if len(fields) < 5 {
			continue
		}
		table = append(table, MountEntry{MountPoint: fields[4]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan mountinfo: %w", err)
	}
	return table, nil
}

// IsMounted reports whether path is itself a mountpoint.
func IsMounted(path string) bool {
	table, err := ReadMountTable()
	if err != nil {
		return false
	}
	clean := filepath.Clean(path)
	for _, e := range table {
		if e.MountPoint == clean {
			return true
		}
	}
	return false
}

// ChildMountsUnder returns every mountpoint that is a strict descendant
// of root, used by the overlay engine's child-mount restoration.
func ChildMountsUnder(root string) ([]string, error) {
	table, err := ReadMountTable()
	if err != nil {
		return nil, err
	}
	root = filepath.Clean(root)
	prefix := root
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var children []string
	for _, e := range table {
		if e.MountPoint != root && strings.HasPrefix(e.MountPoint, prefix) {
			children = append(children, e.MountPoint)
		}
	}
	return children, nil
}
