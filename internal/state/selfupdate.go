package state

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// UpdateOwnDescription rewrites the description= line of the daemon's
// own module.prop (graftd installs itself as a module) to summarize
// the just-completed boot. Best effort: a missing/malformed
// module.prop is not an error, since the daemon may be running
// outside a module-managed install.
func UpdateOwnDescription(moduleDir, ownModuleID string, s RuntimeState) error {
	propPath := filepath.Join(moduleDir, ownModuleID, "module.prop")
	data, err := os.ReadFile(propPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read module.prop: %w", err)
	}

	description := fmt.Sprintf("storage=%s overlay=%d magic=%d", s.StorageMode, len(s.OverlayModules), len(s.MagicModules))

	var out strings.Builder
	replaced := false
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "description=") {
			out.WriteString("description=" + description + "\n")
			replaced = true
			continue
		}
		out.WriteString(line + "\n")
	}
	if !replaced {
		out.WriteString("description=" + description + "\n")
	}

	return os.WriteFile(propPath, []byte(out.String()), 0o644)
}
