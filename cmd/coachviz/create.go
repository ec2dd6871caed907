package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/harunnryd/coachviz/internal/config"
	apperrors "github.com/harunnryd/coachviz/internal/errors"
	"github.com/harunnryd/coachviz/internal/executor"
	"github.com/harunnryd/coachviz/internal/fallback"

	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create [prompt]",
	Short: "Generate an image, falling back across providers",
	Long: `Generate one coaching image. The primary provider is --provider, or the
configured default; when it fails and auto-fallback is on, the remaining
enabled providers are tried in priority order.

Without --template the active template is used, and its active reference
grid is sent as the style guide unless --style-grid is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, _ := cmd.Flags().GetString("prompt")
		if prompt == "" {
			prompt = strings.Join(args, " ")
		}
		providerName, _ := cmd.Flags().GetString("provider")
		model, _ := cmd.Flags().GetString("model")
		templateID, _ := cmd.Flags().GetString("template")
		imageType, _ := cmd.Flags().GetString("type")
		output, _ := cmd.Flags().GetString("output")
		styleGrid, _ := cmd.Flags().GetString("style-grid")
		noFallback, _ := cmd.Flags().GetBool("no-fallback")
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx := cmd.Context()
		templateID, styleGrid, err := resolveTemplate(ctx, templateID, styleGrid)
		if err != nil {
			return err
		}

		timings, err := cfg.Timings()
		if err != nil {
			return err
		}
		subprocess, err := executor.NewSubprocessExecutor(cfg.Generation.ExecutorCommand, timings.AttemptTimeout)
		if err != nil {
			return err
		}

		tracker, closeTracker, err := newHealthTracker(cfg)
		if err != nil {
			return err
		}
		defer closeTracker()

		orchestrator := fallback.New(&envExecutor{next: subprocess, env: childConfigEnv(cfg)}, tracker, fallback.Options{
			Providers:       cfg.Providers.Registry,
			DefaultProvider: cfg.Providers.Default,
			AutoFallback:    cfg.Providers.AutoFallback && !noFallback,
			OutputDir:       cfg.Generation.OutputDir,
		})

		result := orchestrator.Generate(ctx, fallback.Request{
			Prompt:        prompt,
			TemplateID:    templateID,
			Provider:      providerName,
			Model:         model,
			OutputPath:    output,
			StyleGridPath: styleGrid,
			Type:          imageType,
		})

		if asJSON {
			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
		} else {
			printGenerationResult(cmd.OutOrStdout(), result)
		}
		return result.Err()
	},
}

// resolveTemplate falls back to the active template and its active reference.
func resolveTemplate(ctx context.Context, templateID, styleGrid string) (string, string, error) {
	store := newTemplateStore()
	if templateID == "" {
		active, err := store.Active(ctx)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			return "", styleGrid, nil
		case err != nil:
			return "", "", err
		}
		templateID = active.ID
	} else if _, err := store.Get(ctx, templateID); err != nil {
		return "", "", err
	}

	if styleGrid == "" {
		ref, err := store.ActiveReference(ctx, templateID)
		if err != nil {
			return "", "", err
		}
		if ref != "" {
			if _, statErr := os.Stat(ref); statErr == nil {
				styleGrid = ref
			}
		}
	}
	return templateID, styleGrid, nil
}

// envExecutor hands the child process the parent's config file and the
// resolved settings it cannot read from flags.
type envExecutor struct {
	next executor.Executor
	env  []string
}

func (e *envExecutor) Execute(ctx context.Context, req executor.Request) (executor.Result, error) {
	req.Env = append(append([]string{}, e.env...), req.Env...)
	return e.next.Execute(ctx, req)
}

func childConfigEnv(c *config.Config) []string {
	vars := map[string]string{
		"TEMPLATES__ROOT":           c.Templates.Root,
		"LOG__LEVEL":                c.Log.Level,
		"GENERATION__IMAGE_TIMEOUT": c.Generation.ImageTimeout,
		"GENERATION__MAX_ATTEMPTS":  strconv.Itoa(c.Generation.MaxAttempts),
		"GENERATION__BASE_DELAY":    c.Generation.BaseDelay,
		"GENERATION__ASPECT_RATIO":  c.Generation.AspectRatio,
	}
	env := make([]string, 0, len(vars)+1)
	if c.File != "" {
		env = append(env, config.EnvConfigFile+"="+c.File)
	}
	for key, value := range vars {
		if value != "" {
			env = append(env, config.EnvPrefix+key+"="+value)
		}
	}
	return env
}

func printGenerationResult(w io.Writer, result fallback.Result) {
	for i, a := range result.Attempts {
		status := "ok"
		if !a.Success {
			status = string(a.Kind)
		}
		fmt.Fprintf(w, "  %d. %-10s %-40s %s (%s)\n", i+1, a.Provider, a.Model, status, a.Duration.Round(time.Millisecond))
	}
	if !result.Success {
		return
	}
	fmt.Fprintf(w, "✓ Saved %s (%d KB) via %s", result.OutputPath, result.Size/1024, result.Provider)
	if result.FallbackUsed {
		fmt.Fprint(w, " after fallback")
	}
	fmt.Fprintln(w)
}

func init() {
	createCmd.Flags().String("prompt", "", "image prompt (or pass it as arguments)")
	createCmd.Flags().String("provider", "", "primary provider; defaults to providers.default")
	createCmd.Flags().String("model", "", "model override for the primary provider")
	createCmd.Flags().StringP("template", "t", "", "template id (topic/style); defaults to the active template")
	createCmd.Flags().String("type", executor.DefaultImageType, "image type, e.g. image, diagram, infographic")
	createCmd.Flags().String("output", "", "output image path (default: generation.output_dir/<id>.png)")
	createCmd.Flags().String("style-grid", "", "reference grid used as the style guide")
	createCmd.Flags().Bool("no-fallback", false, "only try the primary provider")
	createCmd.Flags().Bool("json", false, "print the result as JSON")
	rootCmd.AddCommand(createCmd)
}
