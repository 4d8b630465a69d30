// Package ratoon maintains a persistent boot counter that, once it
// crosses a threshold of consecutive boots without a clean disengage,
// rolls the active configuration back to the newest granary silo, or
// disables every module as a last resort if no silo can be restored.
package ratoon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rootgraft/graftd/internal/granary"
	"github.com/rootgraft/graftd/internal/inventory"
	"github.com/rootgraft/graftd/internal/seedlog"
)

var log = seedlog.Context("[RATOON]")

// Threshold is the consecutive-boot count that triggers rollback.
const Threshold = 3

// Guard tracks the boot counter at counterFile and can trigger a
// Granary-backed rollback.
type Guard struct {
	CounterFile string
	Granary     *granary.Store
	ConfigFile  string
	ModuleDir   string
}

func New(counterFile string, silos *granary.Store, configFile, moduleDir string) *Guard {
	return &Guard{CounterFile: counterFile, Granary: silos, ConfigFile: configFile, ModuleDir: moduleDir}
}

// Engage increments the boot counter and, if it has reached Threshold,
// attempts rollback from the newest silo, falling back to disabling
// every module if no silo exists or the restore itself fails. Returns
// true if a rollback (of either kind) occurred this boot.
func (g *Guard) Engage() (rolledBack bool, err error) {
	count := g.readCount() + 1
	if writeErr := os.WriteFile(g.CounterFile, []byte(strconv.Itoa(count)), 0o644); writeErr != nil {
		log.Warningf("failed to persist boot counter: %v", writeErr)
	}
	log.Infof("boot counter at %d", count)

	if count < Threshold {
		return false, nil
	}

	log.Errorf("bootloop detected (%d consecutive boots), executing emergency rollback", count)
	if _, restoreErr := g.Granary.RestoreLatest(g.ConfigFile); restoreErr != nil {
		log.Errorf("rollback failed: %v, disabling all modules as last resort", restoreErr)
		if disableErr := g.disableAllModules(); disableErr != nil {
			return false, fmt.Errorf("disable all modules: %w", disableErr)
		}
		return true, nil
	}

	log.Infof("rollback successful, resetting counter")
	_ = os.Remove(g.CounterFile)
	return true, nil
}

// Disengage clears the boot counter; called after a boot reaches a
// point the process considers "survived".
func (g *Guard) Disengage() {
	if _, err := os.Stat(g.CounterFile); err != nil {
		return
	}
	if err := os.Remove(g.CounterFile); err != nil {
		log.Warningf("failed to reset boot counter: %v", err)
		return
	}
	log.Debugf("boot counter reset, boot successful")
}

func (g *Guard) readCount() int {
	data, err := os.ReadFile(g.CounterFile)
	if err != nil {
		return 0
	}
	count, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return count
}

// disableAllModules writes a `disable` marker into every module
// directory that doesn't already have one, the degraded-mode fallback
// for when rollback itself fails.
func (g *Guard) disableAllModules() error {
	entries, err := os.ReadDir(g.ModuleDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		marker := filepath.Join(g.ModuleDir, e.Name(), inventory.DisableFile)
		if _, statErr := os.Stat(marker); statErr == nil {
			continue
		}
		f, createErr := os.Create(marker)
		if createErr != nil {
			return createErr
		}
		f.Close()
		log.Infof("disabled module %s", e.Name())
	}
	return nil
}
