package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/harunnryd/coachviz/internal/config"
	apperrors "github.com/harunnryd/coachviz/internal/errors"
	"github.com/harunnryd/coachviz/internal/grid"
	"github.com/harunnryd/coachviz/internal/imagegen"
	"github.com/harunnryd/coachviz/internal/reference"
	"github.com/harunnryd/coachviz/internal/template"

	"github.com/spf13/cobra"
)

var gridCmd = &cobra.Command{
	Use:   "grid [template]",
	Short: "Generate a four-image reference grid for a template",
	Long: `Generate four scene variations with Gemini and composite them into a 2x2
reference grid under the template's references directory. The grid becomes the
template's active reference unless --no-activate is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store := newTemplateStore()

		var tmpl *template.Template
		var err error
		if len(args) == 1 {
			tmpl, err = store.Get(ctx, args[0])
		} else {
			tmpl, err = store.Active(ctx)
		}
		if err != nil {
			return err
		}

		description, _ := cmd.Flags().GetString("description")
		audience, _ := cmd.Flags().GetString("audience")
		preferences, _ := cmd.Flags().GetString("preferences")
		rawResolution, _ := cmd.Flags().GetString("resolution")
		referencePath, _ := cmd.Flags().GetString("reference")
		noActivate, _ := cmd.Flags().GetBool("no-activate")
		asJSON, _ := cmd.Flags().GetBool("json")

		resolution, err := grid.ParseResolution(rawResolution)
		if err != nil {
			return apperrors.InvalidInput(err.Error())
		}

		opts := reference.Options{
			Description:       firstSet(description, tmpl.Description, tmpl.Name),
			Audience:          firstSet(audience, tmpl.Audience),
			VisualPreferences: firstSet(preferences, tmpl.VisualPreferences),
			Resolution:        resolution,
		}
		if opts.DomainKnowledge, err = store.DomainKnowledge(ctx, tmpl.ID); err != nil {
			return err
		}
		if referencePath != "" {
			if opts.ReferenceImage, err = reference.EncodeReference(referencePath); err != nil {
				return err
			}
		}

		outputDir, err := store.ReferenceDir(ctx, tmpl.ID)
		if err != nil {
			return err
		}

		pipeline, err := newReferencePipeline(cfg)
		if err != nil {
			return err
		}

		baseName := "grid-" + time.Now().Format("20060102-150405")
		result := pipeline.GenerateReferenceGrid(ctx, outputDir, baseName, opts)

		if result.Success && !noActivate {
			if err := store.SetActiveReference(ctx, tmpl.ID, result.GridPath); err != nil {
				return err
			}
		}

		if asJSON {
			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
		} else {
			printGridResult(cmd.OutOrStdout(), tmpl.ID, result, !noActivate)
		}

		if !result.Success {
			return fmt.Errorf("%s: %w", result.Error, gridFailure(result))
		}
		return nil
	},
}

// newReferencePipeline binds the pipeline to the gemini registry entry.
// Reference grids need Gemini's image-size control, so no other provider is
// used here.
func newReferencePipeline(c *config.Config) (*reference.Pipeline, error) {
	timings, err := c.Timings()
	if err != nil {
		return nil, err
	}

	pc, ok := c.Provider(config.ProviderGemini)
	if !ok {
		pc = config.ProviderConfig{Name: config.ProviderGemini}
	}

	gen := imagegen.New(imagegen.Options{
		Model:       firstSet(pc.Model, config.DefaultModel(config.ProviderGemini)),
		BaseURL:     pc.BaseURL,
		MaxAttempts: c.Generation.MaxAttempts,
		BaseDelay:   timings.BaseDelay,
		CallTimeout: timings.ImageTimeout,
	})

	return reference.NewPipeline(gen, reference.Config{
		APIKey:      pc.APIKey,
		AspectRatio: c.Generation.AspectRatio,
		Pacing:      timings.Pacing,
	}), nil
}

func gridFailure(result reference.Result) error {
	if result.Kind == apperrors.KindCanceled {
		return context.Canceled
	}
	return result.Kind.Sentinel()
}

func printGridResult(w io.Writer, templateID string, result reference.Result, activate bool) {
	for _, msg := range result.Errors {
		fmt.Fprintf(w, "  ✗ %s\n", msg)
	}
	if !result.Success {
		return
	}

	fmt.Fprintf(w, "✓ Grid %s (%d KB, %s) with %d/%d images\n",
		result.GridPath, result.GridSizeKB, result.Resolution, result.GeneratedCount, result.GeneratedCount+result.FailedCount)
	if result.Padded {
		fmt.Fprintln(w, "  Missing tiles were filled with the first image.")
	}
	if result.UniqueCount > 0 && result.UniqueCount < result.GeneratedCount {
		fmt.Fprintf(w, "  Only %d of %d images are distinct.\n", result.UniqueCount, result.GeneratedCount)
	}
	if result.Degraded {
		fmt.Fprintln(w, "  Images could not be composited; the first image was saved as the grid.")
	}
	if activate {
		fmt.Fprintf(w, "  Active reference for %s updated.\n", templateID)
	}
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func init() {
	gridCmd.Flags().String("description", "", "subject of the grid (default: template description)")
	gridCmd.Flags().String("audience", "", "target audience (default: template audience)")
	gridCmd.Flags().String("preferences", "", "visual preferences (default: template preferences)")
	gridCmd.Flags().String("resolution", string(grid.Resolution2K), "grid resolution (2K or 4K)")
	gridCmd.Flags().String("reference", "", "existing image whose style the grid should follow")
	gridCmd.Flags().Bool("no-activate", false, "do not make the grid the template's active reference")
	gridCmd.Flags().Bool("json", false, "print the result as JSON")
	rootCmd.AddCommand(gridCmd)
}
