package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inferno-serve/inferno/engineconfig"
)

var configValidatePath string

// configCmd validates a replica YAML configuration without starting an
// engine, so a misconfigured replica is caught before it ever takes
// traffic (SPEC_FULL.md "Config loading and validation").
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate a replica YAML config",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := engineconfig.Load(configValidatePath)
		if err != nil {
			return err
		}
		fmt.Printf("ok: model_id=%s kv_cache.variant=%s scheduler.policy=%s pipeline.backend=%s\n",
			cfg.ModelID, cfg.KVCache.Variant, cfg.Scheduler.Policy, cfg.Pipeline.Backend)
		return nil
	},
}

func init() {
	configCmd.Flags().StringVar(&configValidatePath, "config", "engineconfig/defaults.yaml", "Path to replica YAML config")
}
