package plan

import (
	"fmt"

	"github.com/rootgraft/graftd/internal/diag"
)

// Diagnostics produces the diag.Entry list for the `diagnostics` CLI
// subcommand: a degenerate plan is informational, and each lowerdir
// conflict the planner detects surfaces as a warning. Overlay
// semantics already resolve conflicts by layer order, so none of
// these rise to Critical on their own.
func (p MountPlan) Diagnostics() []diag.Entry {
	var entries []diag.Entry
	if p.IsEmpty() {
		entries = append(entries, diag.Entry{
			Level:   diag.Info,
			Context: "[PLAN]",
			Message: "plan is degenerate: no overlay or magic operations",
		})
	}
	for _, c := range p.AnalyzeConflicts() {
		entries = append(entries, diag.Entry{
			Level:   diag.Warning,
			Context: "[PLAN]",
			Message: fmt.Sprintf("partition %s: %s contended by %v (resolved by layer order)", c.Partition, c.RelativePath, c.ContendingModules),
		})
	}
	return entries
}
