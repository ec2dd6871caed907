package main

import (
	"fmt"
	"os"

	"github.com/harunnryd/coachviz/internal/config"
	apperrors "github.com/harunnryd/coachviz/internal/errors"
	"github.com/harunnryd/coachviz/internal/fallback"
	"github.com/harunnryd/coachviz/internal/formatter"
	"github.com/harunnryd/coachviz/internal/health"
	"github.com/harunnryd/coachviz/internal/provider"

	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Inspect image providers",
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured providers in fallback order",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := outputFormatter(cmd)
		if err != nil {
			return err
		}
		rows := formatter.NewProviderRows(fallback.Enabled(cfg.Providers.Registry), cfg.Providers.Default, os.Getenv)
		rows = append(rows, formatter.NewProviderRows(disabled(cfg.Providers.Registry), cfg.Providers.Default, os.Getenv)...)

		out, err := f.FormatProviders(rows)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

var providersHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show provider readiness",
	Long: `Show whether each provider has the credentials it needs. Results are
cached for health.ttl; --refresh NAME re-checks one provider immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := outputFormatter(cmd)
		if err != nil {
			return err
		}
		refresh, _ := cmd.Flags().GetString("refresh")

		tracker, closeTracker, err := newHealthTracker(cfg)
		if err != nil {
			return err
		}
		defer closeTracker()

		ctx := cmd.Context()
		var records []health.ProviderHealth
		if refresh != "" {
			h, err := tracker.Refresh(ctx, refresh)
			if err != nil {
				return err
			}
			records = []health.ProviderHealth{h}
		} else {
			records = tracker.CheckAll(ctx)
		}

		out, err := f.FormatHealth(formatter.NewHealthRows(records))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)

		if best, ok := tracker.SelectBest(ctx); ok && refresh == "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Best available provider: %s (%s)\n", best.Name, best.Model)
		}
		return nil
	},
}

var providersModelsCmd = &cobra.Command{
	Use:   "models [provider]",
	Short: "List the models a provider offers",
	Long:  `List models from an OpenAI-compatible /models endpoint. Only openrouter exposes one.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := outputFormatter(cmd)
		if err != nil {
			return err
		}

		name := config.ProviderOpenRouter
		if len(args) == 1 {
			name = args[0]
		}
		pc, ok := cfg.Provider(name)
		if !ok {
			return apperrors.NotFound(fmt.Sprintf("provider %s", name))
		}

		models, err := provider.ListModels(cmd.Context(), pc, nil)
		if err != nil {
			return err
		}

		out, err := f.FormatModels(models)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func disabled(providers []config.ProviderConfig) []config.ProviderConfig {
	var out []config.ProviderConfig
	for _, p := range providers {
		if !p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	addOutputFlag(providersListCmd)
	addOutputFlag(providersHealthCmd)
	addOutputFlag(providersModelsCmd)
	providersHealthCmd.Flags().String("refresh", "", "re-check this provider, bypassing the cache")

	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(providersHealthCmd)
	providersCmd.AddCommand(providersModelsCmd)
	rootCmd.AddCommand(providersCmd)
}
