package cli

import (
	"github.com/rootgraft/graftd/internal/config"
	"github.com/rootgraft/graftd/internal/contentsync"
	"github.com/rootgraft/graftd/internal/inventory"
	"github.com/rootgraft/graftd/internal/storage"
)

func storageSetup(cfg *config.Config) (*storage.Handle, error) {
	return storage.Setup(cfg.MountPoint(), cfg.ImageFile, cfg.ForceExt4, cfg.MountSource)
}

// syncModules populates the working area for every non-ignore module,
// so that plan.Generate (used both by the real boot path and by the
// read-only introspection subcommands) sees accurate content. This
// runs even under --dry-run: it only touches scratch storage, never
// the live root.
func syncModules(mountPoint string, modules []inventory.Module) {
	for _, m := range modules {
		if m.Rules.DefaultMode == inventory.ModeIgnore {
			continue
		}
		if err := contentsync.Sync(mountPoint, m); err != nil {
			log.Warningf("sync module %s failed: %v", m.ID, err)
		}
	}
}
