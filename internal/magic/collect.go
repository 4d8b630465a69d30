package magic

import (
	"os"
	"path/filepath"
)

// builtinPartitions lists the partitions that live under a module's
// root alongside system, and get elevated onto the mount tree's real
// root rather than nested under the "system" node, provided the
// matching live partition exists (and, for the first three,
// /system/<p> is itself a symlink onto it, the AOSP "system-as-root"
// convention).
var builtinPartitions = []struct {
	name           string
	requireSymlink bool
}{
	{"vendor", true},
	{"system_ext", true},
	{"product", true},
	{"odm", false},
}

// CollectTree builds the merged magic-mount tree for modulePaths
// (highest priority first, i.e. inventory order) plus extraPartitions
// beyond the builtin four. Returns nil if no module contributed any
// content, the "nothing to mount" case.
func CollectTree(modulePaths []string, extraPartitions []string) *Node {
	finalRoot := NewRoot("")
	finalSystem := NewRoot("system")

	for _, modPath := range modulePaths {
		root, system := processModule(modPath, extraPartitions)
		Merge(finalRoot, root)
		Merge(finalSystem, system)
	}

	if len(finalRoot.Children) == 0 && len(finalSystem.Children) == 0 {
		return nil
	}

	for _, bp := range builtinPartitions {
		elevatePartition(finalRoot, finalSystem, bp.name, bp.requireSymlink)
	}
	for _, part := range extraPartitions {
		if isBuiltin(part) || part == "system" {
			continue
		}
		elevatePartition(finalRoot, finalSystem, part, false)
	}

	finalRoot.Children["system"] = finalSystem
	return finalRoot
}

func isBuiltin(partition string) bool {
	for _, bp := range builtinPartitions {
		if bp.name == partition {
			return true
		}
	}
	return false
}

// elevatePartition moves <system>/<partition> from the "system" subtree
// onto the tree's real root, when the live root actually has that
// partition as its own top-level directory: the AOSP system-as-root
// layout symlinks /system/vendor -> /vendor etc., so a module's
// vendor/ tree has to land at /vendor, not /system/vendor.
func elevatePartition(root, system *Node, partition string, requireSymlink bool) bool {
	node, ok := system.Children[partition]
	if !ok {
		return false
	}

	rootPath := filepath.Join("/", partition)
	rootInfo, err := os.Stat(rootPath)
	if err != nil || !rootInfo.IsDir() {
		return false
	}

	if requireSymlink {
		systemPath := filepath.Join("/system", partition)
		fi, err := os.Lstat(systemPath)
		if err != nil || fi.Mode()&os.ModeSymlink == 0 {
			return false
		}
	}

	delete(system.Children, partition)
	root.Children[partition] = node
	return true
}

// processModule builds one module's contribution: a root-level tree
// (for extra partitions reachable directly under the module's
// directory) and a "system" tree (for <module>/system, with the
// builtin partitions placed under it for CollectTree to elevate).
func processModule(modPath string, extraPartitions []string) (*Node, *Node) {
	root := NewRoot("")
	system := NewRoot("system")

	modSystem := filepath.Join(modPath, "system")
	if fi, err := os.Stat(modSystem); err == nil && fi.IsDir() {
		_ = system.BuildFromDir(modSystem)
	}

	for _, bp := range builtinPartitions {
		modPart := filepath.Join(modPath, bp.name)
		fi, err := os.Stat(modPart)
		if err != nil || !fi.IsDir() {
			continue
		}
		node := system.Children[bp.name]
		if node == nil {
			node = NewRoot(bp.name)
			system.Children[bp.name] = node
		} else if node.FileType == Symlink {
			node.FileType = Directory
			node.ModulePath = ""
		}
		_ = node.BuildFromDir(modPart)
	}

	for _, part := range extraPartitions {
		if isBuiltin(part) || part == "system" {
			continue
		}
		modPart := filepath.Join(modPath, part)
		fi, err := os.Stat(modPart)
		if err != nil || !fi.IsDir() {
			continue
		}
		node := root.Children[part]
		if node == nil {
			node = NewRoot(part)
			root.Children[part] = node
		}
		_ = node.BuildFromDir(modPart)
	}

	return root, system
}
