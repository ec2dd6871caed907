package main

import (
	"context"
	"fmt"
	"os"

	"github.com/harunnryd/coachviz/internal/config"
	"github.com/harunnryd/coachviz/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "coachviz",
	Short: "Coaching image generator",
	Long: `coachviz generates coaching illustrations from templates, falling back
across Gemini, Vertex AI and OpenRouter, and builds four-image reference grids
that keep a template's visual style consistent.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger.Setup(cfg.Log.Level)
		cmd.SetContext(logger.EnsureTraceID(cmd.Context()))
		return nil
	},
}

func Execute() {
	signals := NewSignalHandler(context.Background())
	signals.Start()

	err := rootCmd.ExecuteContext(signals.Context())
	signals.Stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.coachviz/config.yaml)")
	rootCmd.PersistentFlags().String("log.level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
}
