package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/harunnryd/coachviz/internal/errors"
	"github.com/harunnryd/coachviz/internal/executor"
	"github.com/harunnryd/coachviz/internal/imagegen"
	"github.com/harunnryd/coachviz/internal/provider"
	"github.com/harunnryd/coachviz/internal/template"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
)

// generateCmd is the single-provider attempt the fallback executor spawns.
// It exits non-zero with the error on stderr when the provider fails.
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one image with a single provider",
	Long: `Generate one image with exactly one provider and write it to --output.
This is the attempt runner used by 'coachviz create'; it does not fall back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		providerName, _ := cmd.Flags().GetString("provider")
		model, _ := cmd.Flags().GetString("model")
		templateID, _ := cmd.Flags().GetString("template")
		imageType, _ := cmd.Flags().GetString("type")
		prompt, _ := cmd.Flags().GetString("prompt")
		output, _ := cmd.Flags().GetString("output")
		styleGrid, _ := cmd.Flags().GetString("style-grid")

		if strings.TrimSpace(prompt) == "" {
			return apperrors.InvalidInput("--prompt is required")
		}
		if strings.TrimSpace(output) == "" {
			return apperrors.InvalidInput("--output is required")
		}

		pc, ok := cfg.Provider(providerName)
		if !ok {
			return apperrors.Configuration(fmt.Sprintf("provider %q is not configured", providerName))
		}
		pc = pc.WithModel(model)

		timings, err := cfg.Timings()
		if err != nil {
			return err
		}
		p, err := provider.New(pc, provider.Options{
			MaxAttempts: cfg.Generation.MaxAttempts,
			BaseDelay:   timings.BaseDelay,
			CallTimeout: timings.ImageTimeout,
		})
		if err != nil {
			return err
		}

		req := imagegen.Request{
			Prompt:      withImageType(prompt, imageType),
			AspectRatio: cfg.Generation.AspectRatio,
		}

		ctx := cmd.Context()
		if templateID != "" {
			store := newTemplateStore()
			tmpl, err := store.Get(ctx, templateID)
			if err != nil {
				return err
			}
			guide, err := store.StyleGuide(ctx, templateID)
			if err != nil {
				return err
			}
			knowledge, err := store.DomainKnowledge(ctx, templateID)
			if err != nil {
				return err
			}
			req.Prompt = template.BuildPrompt(tmpl, guide, req.Prompt)
			req.SystemInstruction = knowledge
			if tmpl.AspectRatio != "" {
				req.AspectRatio = tmpl.AspectRatio
			}
		}

		if styleGrid != "" {
			data, err := os.ReadFile(styleGrid)
			if err != nil {
				return apperrors.InvalidInput(fmt.Sprintf("read style grid %s: %v", styleGrid, err))
			}
			req.Reference = data
			req.ReferenceMIME = http.DetectContentType(data)
		}

		slog.Info("Generating image", "provider", p.Name(), "model", p.Model(), "template", templateID, "style_grid", styleGrid != "")

		img, err := p.Generate(ctx, req)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		if err := atomic.WriteFile(output, bytes.NewReader(img.Data)); err != nil {
			return fmt.Errorf("write %s: %w", output, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d KB) via %s/%s in %d attempt(s)\n",
			output, len(img.Data)/1024, p.Name(), p.Model(), img.Attempts)
		return nil
	},
}

// withImageType asks for a specific rendering when the type is not a plain
// image.
func withImageType(prompt, imageType string) string {
	prompt = strings.TrimSpace(prompt)
	imageType = strings.ToLower(strings.TrimSpace(imageType))
	if imageType == "" || imageType == executor.DefaultImageType {
		return prompt
	}
	return fmt.Sprintf("Render this as a %s.\n\n%s", imageType, prompt)
}

func init() {
	generateCmd.Flags().String("provider", "", "provider to use (gemini, vertexai, openrouter)")
	generateCmd.Flags().String("model", "", "model override")
	generateCmd.Flags().String("template", "", "template id (topic/style)")
	generateCmd.Flags().String("type", executor.DefaultImageType, "image type, e.g. image, diagram, infographic")
	generateCmd.Flags().String("prompt", "", "image prompt")
	generateCmd.Flags().String("output", "", "output image path")
	generateCmd.Flags().String("style-grid", "", "reference grid used as the style guide")
	_ = generateCmd.MarkFlagRequired("provider")
	rootCmd.AddCommand(generateCmd)
}
