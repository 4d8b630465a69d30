// Package cli implements graftd's command surface: a bare invocation
// runs the boot mount sequence; otherwise one of the named subcommands
// produces machine-readable introspection output.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rootgraft/graftd/internal/config"
	"github.com/rootgraft/graftd/internal/executor"
	"github.com/rootgraft/graftd/internal/granary"
	"github.com/rootgraft/graftd/internal/inventory"
	"github.com/rootgraft/graftd/internal/magic"
	"github.com/rootgraft/graftd/internal/overlay"
	"github.com/rootgraft/graftd/internal/plan"
	"github.com/rootgraft/graftd/internal/ratoon"
	"github.com/rootgraft/graftd/internal/seedlog"
	"github.com/rootgraft/graftd/internal/state"
)

var log = seedlog.Context("[CLI]")

// SelfModuleID is the module id graftd installs itself under, used by
// the module.prop self-update after each boot.
const SelfModuleID = "graftd"

const (
	granarySubdir     = "granary"
	rulesSubdir       = "rules"
	ratoonCounterFile = "/data/adb/graftd/ratoon_counter"
	runtimeStateFile  = "/data/adb/graftd/state.json"
)

var overrides config.CLIOverrides

// Execute builds and runs the root command.
func Execute() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		return 1
	}
	return exitCode
}

// exitCode lets subcommands signal a non-zero but non-error exit: the
// diagnostics subcommand still prints its report to stdout when it
// finds a Critical entry, but exits 1.
var exitCode int

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "graftd",
		Short:         "Boot-time root-modification mount orchestrator",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			return runBoot(cfg)
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFile, "config file path")
	root.PersistentFlags().StringVarP(&overrides.ModuleDir, "moduledir", "m", "", "module directory override")
	root.PersistentFlags().StringVarP(&overrides.TempDir, "tempdir", "t", "", "working-area mount point override")
	root.PersistentFlags().StringVarP(&overrides.MountSource, "mountsource", "s", "", "overlay mount source tag override")
	root.PersistentFlags().BoolVarP(&overrides.Verbose, "verbose", "v", false, "verbose logging")
	root.PersistentFlags().StringSliceVarP(&cliPartitions, "partitions", "p", nil, "extra partitions beyond the builtin set")
	root.PersistentFlags().BoolVar(&overrides.DryRun, "dry-run", false, "plan only, do not mount")

	root.AddCommand(
		newGenConfigCmd(),
		newShowConfigCmd(),
		newSaveConfigCmd(),
		newSaveRulesCmd(),
		newStorageCmd(),
		newModulesCmd(),
		newConflictsCmd(),
		newDiagnosticsCmd(),
	)
	return root
}

var cliPartitions []string

func loadConfig() *config.Config {
	cfg := config.LoadOrDefault(configPath)
	overrides.Partitions = cliPartitions
	cfg.ApplyCLI(overrides)
	cfg.ApplyEnvOverrides()
	if cfg.Verbose {
		seedlog.SetLevel(seedlog.VerboseLevel)
	}
	return cfg
}

func userRulesDir(_ *config.Config) string {
	return filepath.Join(filepath.Dir(configPath), rulesSubdir)
}

func granaryDir(_ *config.Config) string {
	return filepath.Join(filepath.Dir(configPath), granarySubdir)
}

// runBoot performs the full mount sequence: ratoon engage, storage
// setup, inventory scan, content sync, plan, execute, state persist,
// ratoon disengage.
func runBoot(cfg *config.Config) error {
	bootID := uuid.New().String()
	seedlog.SetBootID(bootID)
	log.Infof("boot sequence starting, boot_id=%s", bootID)

	silos := granary.New(granaryDir(cfg))
	guard := ratoon.New(ratoonCounterFile, silos, configPath, cfg.ModuleDir)

	if !cfg.DryRun {
		if _, err := guard.Engage(); err != nil {
			log.Errorf("ratoon engage failed: %v", err)
		}
	}

	storageHandle, err := storageSetup(cfg)
	if err != nil {
		return fmt.Errorf("storage setup: %w", err)
	}

	modules, err := inventory.Scan(cfg.ModuleDir, userRulesDir(cfg))
	if err != nil {
		return fmt.Errorf("inventory scan: %w", err)
	}

	syncModules(storageHandle.MountPoint, modules)

	mountPlan := plan.Generate(modules, cfg.Partitions, storageHandle.MountPoint)

	if cfg.DryRun {
		if cfg.Verbose {
			fmt.Print(mountPlan.Render())
		}
		return nil
	}

	overlayEngine := overlay.New(cfg.MountSource, storageHandle.MountPoint, cfg.DisableUmount)
	magicEngine := magic.New(cfg.MountSource, cfg.DisableUmount)
	exec := executor.New(overlayEngine, magicEngine, storageHandle.MountPoint, cfg.Partitions)
	result := exec.Run(mountPlan)

	runtimeState := state.RuntimeState{
		Timestamp:      time.Now().Unix(),
		PID:            os.Getpid(),
		BootID:         bootID,
		StorageMode:    string(storageHandle.Mode),
		MountPoint:     storageHandle.MountPoint,
		OverlayModules: result.OverlayModuleIDs,
		MagicModules:   result.MagicModuleIDs,
		NukeActive:     cfg.EnableNuke,
		ActiveMounts:   result.ActivePartitions,
	}
	if err := state.Save(runtimeStateFile, runtimeState); err != nil {
		log.Errorf("failed to persist runtime state: %v", err)
	}
	if err := state.UpdateOwnDescription(cfg.ModuleDir, SelfModuleID, runtimeState); err != nil {
		log.Debugf("module.prop self-update skipped: %v", err)
	}

	guard.Disengage()
	log.Infof("boot sequence complete: %d overlay module(s), %d magic module(s)", len(result.OverlayModuleIDs), len(result.MagicModuleIDs))
	return nil
}
