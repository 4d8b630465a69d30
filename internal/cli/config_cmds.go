package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rootgraft/graftd/internal/config"
	"github.com/rootgraft/graftd/internal/inventory"
)

func newGenConfigCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "gen-config",
		Short: "Write the default configuration to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				return fmt.Errorf("gen-config: -o is required")
			}
			return config.Default().Save(outPath)
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output path for the generated config")
	return cmd
}

func newShowConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show-config",
		Short: "Dump the effective configuration as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func newSaveConfigCmd() *cobra.Command {
	var payload string
	cmd := &cobra.Command{
		Use:   "save-config",
		Short: "Hex-decode a JSON config payload and persist it",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := hex.DecodeString(payload)
			if err != nil {
				return fmt.Errorf("save-config: invalid hex payload: %w", err)
			}
			var cfg config.Config
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return fmt.Errorf("save-config: invalid config json: %w", err)
			}
			if err := cfg.Save(configPath); err != nil {
				return err
			}
			fmt.Println("config saved")
			return nil
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "hex-encoded JSON config")
	return cmd
}

func newSaveRulesCmd() *cobra.Command {
	var moduleID, payload string
	cmd := &cobra.Command{
		Use:   "save-rules",
		Short: "Hex-decode a JSON rules payload and persist it for one module",
		RunE: func(cmd *cobra.Command, args []string) error {
			if moduleID == "" {
				return fmt.Errorf("save-rules: --module is required")
			}
			raw, err := hex.DecodeString(payload)
			if err != nil {
				return fmt.Errorf("save-rules: invalid hex payload: %w", err)
			}
			var rules inventory.ModuleRules
			if err := json.Unmarshal(raw, &rules); err != nil {
				return fmt.Errorf("save-rules: invalid rules json: %w", err)
			}
			cfg := loadConfig()
			if err := inventory.SaveUserRules(userRulesDir(cfg), moduleID, rules); err != nil {
				return err
			}
			fmt.Println("rules saved")
			return nil
		},
	}
	cmd.Flags().StringVar(&moduleID, "module", "", "module id")
	cmd.Flags().StringVar(&payload, "payload", "", "hex-encoded JSON rules")
	return cmd
}
