// Package plan decides per module whether it participates via overlay
// or magic mount, and builds the per-partition layer lists an
// OverlayFS engine will consume.
package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/samber/lo"

	"github.com/rootgraft/graftd/internal/inventory"
	"github.com/rootgraft/graftd/internal/seedlog"
)

var log = seedlog.Context("[PLANNER]")

// BuiltinPartitions are the five partitions always in scope;
// Config.Partitions appends to this set.
var BuiltinPartitions = []string{"system", "vendor", "product", "system_ext", "odm"}

// OverlayOperation is one partition's overlay mount instruction;
// LowerDirs is ordered highest-precedence first.
type OverlayOperation struct {
	PartitionName string
	Target        string
	LowerDirs     []string
}

// MountPlan is the planner's output.
type MountPlan struct {
	OverlayOps       []OverlayOperation
	MagicModulePaths []string
	OverlayModuleIDs []string
	MagicModuleIDs   []string
}

// IsEmpty reports whether the plan is degenerate: no overlay or magic
// operations at all.
func (p MountPlan) IsEmpty() bool {
	return len(p.OverlayOps) == 0 && len(p.MagicModulePaths) == 0
}

// Generate builds a MountPlan from the given inventory. workingRoot is
// the synchronized content root (the storage mount point), where
// overlay-mode modules' payload lives; magic-mode modules are examined
// at their live on-disk source instead.
func Generate(modules []inventory.Module, extraPartitions []string, workingRoot string) MountPlan {
	targetPartitions := lo.Uniq(append(append([]string{}, BuiltinPartitions...), extraPartitions...))

	partitionLayers := map[string][]string{}
	var magicPaths []string
	var overlayIDs, magicIDs []string

	for _, m := range modules {
		switch m.Rules.DefaultMode {
		case inventory.ModeIgnore:
			continue
		case inventory.ModeMagic:
			if hasMeaningfulContent(m.SourcePath, targetPartitions) {
				magicPaths = append(magicPaths, m.SourcePath)
				magicIDs = append(magicIDs, m.ID)
			}
		default:
			contentPath := filepath.Join(workingRoot, m.ID)
			if _, err := os.Stat(contentPath); err != nil {
				log.Debugf("module %s content missing in storage, skipping", m.ID)
				continue
			}

			participates := false
			for _, part := range targetPartitions {
				partPath := filepath.Join(contentPath, part)
				if isNonEmptyDir(partPath) {
					partitionLayers[part] = append(partitionLayers[part], partPath)
					participates = true
				}
			}
			if participates {
				overlayIDs = append(overlayIDs, m.ID)
			}
		}
	}

	var ops []OverlayOperation
	for part, layers := range partitionLayers {
		initial := "/" + part
		resolved, err := filepath.EvalSymlinks(initial)
		if err != nil {
			log.Warningf("failed to resolve path %s: %v, skipping", initial, err)
			continue
		}
		fi, err := os.Stat(resolved)
		if err != nil || !fi.IsDir() {
			log.Warningf("target %s is not a directory, skipping", resolved)
			continue
		}
		ops = append(ops, OverlayOperation{
			PartitionName: part,
			Target:        resolved,
			LowerDirs:     layers,
		})
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].PartitionName < ops[j].PartitionName })

	sort.Strings(overlayIDs)
	sort.Strings(magicIDs)

	return MountPlan{
		OverlayOps:       ops,
		MagicModulePaths: magicPaths,
		OverlayModuleIDs: overlayIDs,
		MagicModuleIDs:   magicIDs,
	}
}

func isNonEmptyDir(path string) bool {
	fi, err := os.Stat(path)
	if err != nil || !fi.IsDir() {
		return false
	}
	entries, err := os.ReadDir(path)
	return err == nil && len(entries) > 0
}

func hasMeaningfulContent(base string, partitions []string) bool {
	for _, part := range partitions {
		if isNonEmptyDir(filepath.Join(base, part)) {
			return true
		}
	}
	return false
}

// Render draws the human-readable plan tree printed by a verbose
// --dry-run boot.
func (p MountPlan) Render() string {
	if p.IsEmpty() {
		return "Empty plan. Standby mode.\n"
	}
	out := ""
	if len(p.OverlayOps) > 0 {
		out += "[OverlayFS Fusion Sequence]\n"
		for i, op := range p.OverlayOps {
			lastOp := i == len(p.OverlayOps)-1 && len(p.MagicModulePaths) == 0
			branch := "├──"
			prefix := "│   "
			if lastOp {
				branch = "╰──"
				prefix = "    "
			}
			out += fmt.Sprintf("%s [Target: %s] %s\n", branch, op.PartitionName, op.Target)
			for j, layer := range op.LowerDirs {
				subBranch := "├──"
				if j == len(op.LowerDirs)-1 {
					subBranch = "╰──"
				}
				out += fmt.Sprintf("%s%s [Layer] %s\n", prefix, subBranch, filepath.Base(filepath.Dir(layer)))
			}
		}
	}
	if len(p.MagicModulePaths) > 0 {
		out += "[Magic Mount Fallback]\n"
		for i, path := range p.MagicModulePaths {
			branch := "├──"
			if i == len(p.MagicModulePaths)-1 {
				branch = "╰──"
			}
			out += fmt.Sprintf("%s [Bind] %s\n", branch, filepath.Base(path))
		}
	}
	return out
}
