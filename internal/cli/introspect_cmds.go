package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rootgraft/graftd/internal/config"
	"github.com/rootgraft/graftd/internal/diag"
	"github.com/rootgraft/graftd/internal/inventory"
	"github.com/rootgraft/graftd/internal/plan"
	"github.com/rootgraft/graftd/internal/state"
	"github.com/rootgraft/graftd/internal/storage"
)

// storageReport is the `storage` subcommand's JSON shape.
type storageReport struct {
	Type         string `json:"type"`
	MountPoint   string `json:"mount_point"`
	UsagePercent uint8  `json:"usage_percent"`
	TotalSize    uint64 `json:"total_size"`
	UsedSize     uint64 `json:"used_size"`
}

func newStorageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "storage",
		Short: "Report working-area storage backend status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			handle, err := storageSetup(cfg)
			if err != nil {
				return err
			}
			total, used, percent := storage.Usage(handle.MountPoint)
			report := storageReport{
				Type:         string(handle.Mode),
				MountPoint:   handle.MountPoint,
				UsagePercent: percent,
				TotalSize:    total,
				UsedSize:     used,
			}
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

// moduleReport is one entry of the `modules` subcommand's JSON array.
type moduleReport struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Version     string                `json:"version"`
	Author      string                `json:"author"`
	Description string                `json:"description"`
	Mode        inventory.MountMode   `json:"mode"`
	IsMounted   bool                  `json:"is_mounted"`
	Rules       inventory.ModuleRules `json:"rules"`
}

func newModulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List the currently enabled modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			modules, err := inventory.Scan(cfg.ModuleDir, userRulesDir(cfg))
			if err != nil {
				return err
			}
			runtimeState, _ := state.Load(runtimeStateFile)
			mounted := map[string]bool{}
			for _, id := range runtimeState.OverlayModules {
				mounted[id] = true
			}
			for _, id := range runtimeState.MagicModules {
				mounted[id] = true
			}

			reports := make([]moduleReport, 0, len(modules))
			for _, m := range modules {
				prop := inventory.LoadProp(m.SourcePath)
				reports = append(reports, moduleReport{
					ID:          m.ID,
					Name:        prop.Name,
					Version:     prop.Version,
					Author:      prop.Author,
					Description: prop.Description,
					Mode:        m.Rules.DefaultMode,
					IsMounted:   mounted[m.ID],
					Rules:       m.Rules,
				})
			}
			data, err := json.MarshalIndent(reports, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

// dryPlan loads inventory, syncs working-area content and runs the
// planner, without executing any mount. Shared by `conflicts` and
// `diagnostics`.
func dryPlan(cfg *config.Config) (plan.MountPlan, error) {
	handle, err := storageSetup(cfg)
	if err != nil {
		return plan.MountPlan{}, fmt.Errorf("storage setup: %w", err)
	}
	modules, err := inventory.Scan(cfg.ModuleDir, userRulesDir(cfg))
	if err != nil {
		return plan.MountPlan{}, fmt.Errorf("inventory scan: %w", err)
	}
	syncModules(handle.MountPoint, modules)
	return plan.Generate(modules, cfg.Partitions, handle.MountPoint), nil
}

func newConflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "Dry-plan and report lowerdir conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			mountPlan, err := dryPlan(cfg)
			if err != nil {
				return err
			}
			conflicts := mountPlan.AnalyzeConflicts()
			if cfg.Verbose {
				for _, c := range conflicts {
					fmt.Fprintln(os.Stderr, color.YellowString("conflict: %s/%s <- %v", c.Partition, c.RelativePath, c.ContendingModules))
				}
			}
			data, err := json.MarshalIndent(conflicts, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func newDiagnosticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnostics",
		Short: "Dry-plan and report diagnostic findings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			mountPlan, err := dryPlan(cfg)
			if err != nil {
				return err
			}
			entries := mountPlan.Diagnostics()
			if cfg.Verbose {
				for _, e := range entries {
					fmt.Fprintln(os.Stderr, colorForLevel(e.Level)(fmt.Sprintf("%s %s: %s", e.Level, e.Context, e.Message)))
				}
			}
			data, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			if diag.AnyCritical(entries) {
				exitCode = 1
			}
			return nil
		},
	}
}

func colorForLevel(l diag.Level) func(string, ...interface{}) string {
	switch l {
	case diag.Critical:
		return color.RedString
	case diag.Warning:
		return color.YellowString
	default:
		return color.CyanString
	}
}
