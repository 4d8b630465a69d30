package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionListUnmarshalTOML(t *testing.T) {
	cases := []struct {
		name string
		toml string
		want PartitionList
	}{
		{"array", "partitions = [\"vendor\", \"odm\"]\n", PartitionList{"vendor", "odm"}},
		{"comma_string", "partitions = \"a, b,,c\"\n", PartitionList{"a", "b", "c"}},
		{"empty_string", "partitions = \"\"\n", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(tc.toml), 0o644))
			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.Partitions)
		})
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg := LoadOrDefault("/nonexistent/path/config.toml")
	assert.Equal(t, DefaultModuleDir, cfg.ModuleDir)
	assert.Equal(t, DefaultMountSource, cfg.MountSource)
	assert.NotEmpty(t, cfg.ImageFile)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := Default()
	cfg.Verbose = true
	cfg.Partitions = PartitionList{"vendor", "product"}
	cfg.EnableNuke = true
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.Verbose)
	assert.True(t, loaded.EnableNuke)
	assert.Equal(t, PartitionList{"vendor", "product"}, loaded.Partitions)
}

func TestApplyCLIOverrides(t *testing.T) {
	cfg := Default()
	cfg.ApplyCLI(CLIOverrides{
		ModuleDir:  "/custom/modules",
		Partitions: []string{"vendor"},
		DryRun:     true,
	})
	assert.Equal(t, "/custom/modules", cfg.ModuleDir)
	assert.Equal(t, PartitionList{"vendor"}, cfg.Partitions)
	assert.True(t, cfg.DryRun)
}

func TestApplyEnvOverridesNoFile(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.False(t, cfg.DisableUmount)
}

func TestMountPointDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultTempDir, cfg.MountPoint())
	cfg.TempDir = "/mnt/working"
	assert.Equal(t, "/mnt/working", cfg.MountPoint())
}
