package plan

import (
	"os"
	"path/filepath"

	"github.com/rootgraft/graftd/internal/diag"
)

// AnalyzeConflicts walks each overlay operation's layers pairwise and
// reports any relative file path contended by more than one module.
// Contention itself is not an error: the highest-precedence (first)
// layer wins at mount time; this only surfaces it for diagnostics.
func (p MountPlan) AnalyzeConflicts() []diag.Conflict {
	var conflicts []diag.Conflict
	for _, op := range p.OverlayOps {
		seen := map[string][]string{}
		for _, layer := range op.LowerDirs {
			moduleID := filepath.Base(filepath.Dir(layer))
			_ = filepath.WalkDir(layer, func(path string, d os.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return nil
				}
				rel, relErr := filepath.Rel(layer, path)
				if relErr != nil {
					return nil
				}
				seen[rel] = append(seen[rel], moduleID)
				return nil
			})
		}
		for rel, modules := range seen {
			if len(modules) > 1 {
				conflicts = append(conflicts, diag.Conflict{
					Partition:         op.PartitionName,
					RelativePath:      rel,
					ContendingModules: modules,
				})
			}
		}
	}
	return conflicts
}
