package inventory

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// MountMode is a module's or a per-path override's mount strategy.
type MountMode string

const (
	ModeOverlay MountMode = "overlay"
	ModeMagic   MountMode = "magic"
	ModeIgnore  MountMode = "ignore"
)

const internalRulesFile = "module_rules.json"

// ModuleRules is a default_mode plus a relative-path override map,
// composed from the module's own rules file layered under any user
// rules file (user wins).
type ModuleRules struct {
	DefaultMode MountMode            `json:"default_mode"`
	Paths       map[string]MountMode `json:"paths"`
}

// ModeFor resolves the effective mode for a relative in-module path.
func (r ModuleRules) ModeFor(relative string) MountMode {
	if m, ok := r.Paths[relative]; ok {
		return m
	}
	return r.DefaultMode
}

// LoadRules composes a module's rules: an optional in-module rules
// file (defaults on parse failure, no error surfaced), then an
// optional user rules file at <userRulesDir>/<id>.json whose
// default_mode replaces and whose paths entries merge in, overwriting
// same keys.
func LoadRules(modulePath, moduleID, userRulesDir string) ModuleRules {
	rules := ModuleRules{DefaultMode: ModeOverlay, Paths: map[string]MountMode{}}

	if data, err := os.ReadFile(filepath.Join(modulePath, internalRulesFile)); err == nil {
		var internal ModuleRules
		if json.Unmarshal(data, &internal) == nil {
			rules = internal
			if rules.Paths == nil {
				rules.Paths = map[string]MountMode{}
			}
			if rules.DefaultMode == "" {
				rules.DefaultMode = ModeOverlay
			}
		}
	}

	if userRulesDir == "" {
		return rules
	}

	userPath := filepath.Join(userRulesDir, moduleID+".json")
	data, err := os.ReadFile(userPath)
	if err != nil {
		return rules
	}
	var user ModuleRules
	if json.Unmarshal(data, &user) != nil {
		return rules
	}
	if user.DefaultMode != "" {
		rules.DefaultMode = user.DefaultMode
	}
	for k, v := range user.Paths {
		rules.Paths[k] = v
	}
	return rules
}

// SaveUserRules persists a per-module user rules override, used by the
// `save-rules` CLI subcommand.
func SaveUserRules(userRulesDir, moduleID string, rules ModuleRules) error {
	if err := os.MkdirAll(userRulesDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(userRulesDir, moduleID+".json"), data, 0o644)
}
