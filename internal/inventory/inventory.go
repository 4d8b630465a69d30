// Package inventory enumerates enabled module directories and loads
// each module's ModuleRules, using samber/lo's functional helpers for
// the filter/sort pipeline instead of hand-rolled loops.
package inventory

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/samber/lo"

	"github.com/rootgraft/graftd/internal/seedlog"
)

var log = seedlog.Context("[INVENTORY]")

const (
	DisableFile   = "disable"
	RemoveFile    = "remove"
	SkipMountFile = "skipmount"
)

var excludedNames = map[string]bool{
	"meta-hybrid": true,
	"lost+found":  true,
	".git":        true,
}

// Module is one enabled module directory, immutable for the boot.
type Module struct {
	ID         string
	SourcePath string
	Rules      ModuleRules
}

// Scan enumerates moduleDir's immediate subdirectories, applying the
// enablement predicate, and returns them sorted descending by id for
// deterministic layer ordering.
func Scan(moduleDir, userRulesDir string) ([]Module, error) {
	entries, err := os.ReadDir(moduleDir)
	if err != nil {
		if os.IsNotExist(err) {
			// A missing module directory is treated as "no modules".
			return nil, nil
		}
		return nil, err
	}

	dirs := lo.Filter(entries, func(e os.DirEntry, _ int) bool {
		return e.IsDir() && isEnabled(moduleDir, e.Name())
	})

	modules := lo.Map(dirs, func(e os.DirEntry, _ int) Module {
		id := e.Name()
		path := filepath.Join(moduleDir, id)
		return Module{
			ID:         id,
			SourcePath: path,
			Rules:      LoadRules(path, id, userRulesDir),
		}
	})

	sort.Slice(modules, func(i, j int) bool { return modules[i].ID > modules[j].ID })
	return modules, nil
}

func isEnabled(moduleDir, name string) bool {
	if excludedNames[name] {
		return false
	}
	path := filepath.Join(moduleDir, name)
	for _, marker := range []string{DisableFile, RemoveFile, SkipMountFile} {
		if _, err := os.Stat(filepath.Join(path, marker)); err == nil {
			return false
		}
	}
	return true
}
