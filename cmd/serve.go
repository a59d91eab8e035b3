package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inferno-serve/inferno/engine"
	"github.com/inferno-serve/inferno/engineconfig"
)

var serveConfigPath string

// serveCmd starts the Engine control loop (spec.md §4.7) against a
// Pipeline and runs it until the process receives SIGINT/SIGTERM.
//
// Only the mock pipeline backend (engine/pipeline.Mock) ships with this
// binary: a real forward pass is an external collaborator referenced by
// interface only (spec.md §1 "Out of scope"). A binary embedding a real
// model backend registers it under PipelineConfig.Backend and builds its
// own pipeline.Pipeline instead of calling this command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine loop against the mock pipeline until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := engineconfig.Load(serveConfigPath)
		if err != nil {
			return err
		}

		store, prefix, policy, ecfg, err := cfg.Build()
		if err != nil {
			return err
		}

		pipe, err := buildMockPipeline(cfg.Pipeline)
		if err != nil {
			return err
		}

		metrics := engine.NewMetrics()
		for _, c := range metrics.Collectors() {
			if err := prometheus.Register(c); err != nil {
				return err
			}
		}

		eng := engine.NewEngine(ecfg, store, prefix, policy, pipe, metrics, newTokenIDDetokenizer)
		if err := registerDraftPipelines(eng, cfg.Pipeline); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logrus.Infof("inferno: serving model %q (kv=%s, scheduler=%s)", cfg.ModelID, cfg.KVCache.Variant, cfg.Scheduler.Policy)
		err = eng.Run(ctx)
		if err == context.Canceled {
			logrus.Info("inferno: shutdown requested, draining")
			return nil
		}
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "engineconfig/defaults.yaml", "Path to replica YAML config")
}
