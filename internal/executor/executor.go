// Package executor drives the overlay engine over the planner's
// OverlayOperations, then the magic engine over the planner's magic
// module set plus any overlay layer that failed to mount (reclassified,
// deduplicated), and produces the final per-module id lists.
package executor

import (
	"path/filepath"
	"sort"

	"github.com/rootgraft/graftd/internal/magic"
	"github.com/rootgraft/graftd/internal/overlay"
	"github.com/rootgraft/graftd/internal/pathutil"
	"github.com/rootgraft/graftd/internal/plan"
	"github.com/rootgraft/graftd/internal/seedlog"
)

var log = seedlog.Context("[EXECUTOR]")

// Result summarizes what one boot's mount pass actually did.
type Result struct {
	OverlayModuleIDs []string
	MagicModuleIDs   []string
	ActivePartitions []string
}

// Executor drives one boot's mount pass.
type Executor struct {
	Overlay         *overlay.Engine
	Magic           *magic.Engine
	RunDir          string
	ExtraPartitions []string
}

func New(overlayEngine *overlay.Engine, magicEngine *magic.Engine, runDir string, extraPartitions []string) *Executor {
	return &Executor{Overlay: overlayEngine, Magic: magicEngine, RunDir: runDir, ExtraPartitions: extraPartitions}
}

// Run executes p: overlay first, then magic, folding in any overlay
// failures. A partition whose overlay mount errors has its module
// layers reclassified into the magic queue.
func (e *Executor) Run(p plan.MountPlan) Result {
	magicPaths := append([]string{}, p.MagicModulePaths...)
	magicIDSet := map[string]bool{}
	for _, id := range p.MagicModuleIDs {
		magicIDSet[id] = true
	}
	overlayIDSet := map[string]bool{}
	for _, id := range p.OverlayModuleIDs {
		overlayIDSet[id] = true
	}

	var activePartitions []string

	for _, op := range p.OverlayOps {
		if err := e.mountOverlayOperation(op); err != nil {
			log.Warningf("overlay mount failed for %s: %v, reclassifying layers as magic", op.Target, err)
			for _, layer := range op.LowerDirs {
				modulePath := filepath.Dir(layer)
				moduleID := filepath.Base(modulePath)
				if overlayIDSet[moduleID] {
					delete(overlayIDSet, moduleID)
					if !magicIDSet[moduleID] {
						magicIDSet[moduleID] = true
						magicPaths = append(magicPaths, modulePath)
					}
				}
			}
			continue
		}
		activePartitions = append(activePartitions, op.PartitionName)
	}

	if len(magicPaths) > 0 {
		tree := magic.CollectTree(magicPaths, e.ExtraPartitions)
		if tree != nil {
			if err := e.Magic.Mount(tree, e.RunDir); err != nil {
				log.Errorf("magic mount pass failed: %v", err)
			}
		} else {
			log.Infof("no modules to mount, skipping")
		}
	}

	return Result{
		OverlayModuleIDs: sortedKeys(overlayIDSet),
		MagicModuleIDs:   sortedKeys(magicIDSet),
		ActivePartitions: activePartitions,
	}
}

func (e *Executor) mountOverlayOperation(op plan.OverlayOperation) error {
	childMounts, err := pathutil.ChildMountsUnder(op.Target)
	if err != nil {
		log.Debugf("could not enumerate child mounts under %s: %v", op.Target, err)
	}
	return e.Overlay.MountRoot(op.Target, op.LowerDirs, childMounts)
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
