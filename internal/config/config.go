// Package config implements graftd's Config value: load/save from a
// TOML file on disk, plus CLI-flag and environment overrides that
// merge onto it. TOML encoding is via pelletier/go-toml/v2.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	DefaultModuleDir   = "/data/adb/modules"
	DefaultConfigFile  = "/data/adb/graftd/config.toml"
	DefaultMountSource = "GRAFT"
	DefaultTempDir     = "/debug_ramdisk/workdir"
	defaultImageFile   = "/data/adb/graftd/modules.img"

	denylistEnforceFile = "/data/adb/zygisksu/denylist_enforce"
)

// MountPoint returns the configured working-area mount point, falling
// back to DefaultTempDir when unset.
func (c *Config) MountPoint() string {
	if c.TempDir != "" {
		return c.TempDir
	}
	return DefaultTempDir
}

// PartitionList decodes from either a TOML array of strings or a single
// comma-separated string, and always re-encodes as an array.
type PartitionList []string

func (p *PartitionList) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case []interface{}:
		out := make(PartitionList, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		*p = out
	case string:
		*p = splitPartitions(v)
	default:
		*p = nil
	}
	return nil
}

func splitPartitions(s string) PartitionList {
	var out PartitionList
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Config is graftd's persisted + CLI-merged configuration.
type Config struct {
	ModuleDir              string        `toml:"moduledir" json:"moduledir"`
	TempDir                string        `toml:"tempdir,omitempty" json:"tempdir,omitempty"`
	MountSource            string        `toml:"mountsource" json:"mountsource"`
	Verbose                bool          `toml:"verbose" json:"verbose"`
	Partitions             PartitionList `toml:"partitions" json:"partitions"`
	ForceExt4              bool          `toml:"force_ext4" json:"force_ext4"`
	EnableNuke             bool          `toml:"enable_nuke" json:"enable_nuke"`
	DisableUmount          bool          `toml:"disable_umount" json:"disable_umount"`
	AllowUmountCoexistence bool          `toml:"allow_umount_coexistence" json:"allow_umount_coexistence"`
	DryRun                 bool          `toml:"dry_run" json:"dry_run"`

	// ImageFile locates the ext4 loop image the storage selector falls
	// back to. It is not user-configurable, so it is not serialized to
	// TOML, but is surfaced in show-config. It starts at
	// defaultImageFile and is re-derived from TempDir only when a CLI
	// override sets TempDir; a tempdir from the config file leaves it
	// unchanged.
	ImageFile string `toml:"-" json:"image_file"`
}

// Default returns the Config with every field at its documented default.
func Default() *Config {
	return &Config{
		ModuleDir:   DefaultModuleDir,
		MountSource: DefaultMountSource,
		ImageFile:   defaultImageFile,
	}
}

// Load reads and parses the TOML config file at path. Unknown top-level
// keys are accepted: go-toml/v2 ignores them, keeping only the struct's
// known fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.resolveImageFile()
	return cfg, nil
}

// LoadOrDefault loads path, falling back to Default() when the file
// cannot be read or parsed. The load error is not returned, so a
// malformed config file is silently replaced by the defaults.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		cfg = Default()
		cfg.resolveImageFile()
	}
	return cfg
}

func (c *Config) resolveImageFile() {
	if c.ImageFile != "" {
		return
	}
	base := c.TempDir
	if base == "" {
		base = filepath.Dir(DefaultConfigFile)
	}
	c.ImageFile = filepath.Join(base, "modules.img")
}

// Save serializes c as TOML to path, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// CLIOverrides carries the root command's global flags that overlay
// onto a loaded Config; a zero value of each field means "not set".
type CLIOverrides struct {
	ModuleDir   string
	TempDir     string
	MountSource string
	Verbose     bool
	Partitions  []string
	DryRun      bool
}

// ApplyCLI merges non-empty CLI overrides onto c, in place.
func (c *Config) ApplyCLI(o CLIOverrides) {
	if o.ModuleDir != "" {
		c.ModuleDir = o.ModuleDir
	}
	if o.TempDir != "" {
		c.TempDir = o.TempDir
		c.ImageFile = ""
		c.resolveImageFile()
	}
	if o.MountSource != "" {
		c.MountSource = o.MountSource
	}
	if o.Verbose {
		c.Verbose = true
	}
	if len(o.Partitions) > 0 {
		c.Partitions = PartitionList(o.Partitions)
	}
	if o.DryRun {
		c.DryRun = true
	}
}

// ApplyEnvOverrides couples graftd to zygisksu's denylist_enforce
// toggle: if the file is present and its content isn't "0", force
// DisableUmount unless AllowUmountCoexistence is also set.
func (c *Config) ApplyEnvOverrides() {
	data, err := os.ReadFile(denylistEnforceFile)
	if err != nil {
		return
	}
	if strings.TrimSpace(string(data)) == "0" {
		return
	}
	if !c.AllowUmountCoexistence {
		c.DisableUmount = true
	}
}
