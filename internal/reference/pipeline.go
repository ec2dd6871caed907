// Package reference produces the four-image reference grid for a template.
package reference

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/harunnryd/coachviz/internal/errors"
	"github.com/harunnryd/coachviz/internal/grid"
	"github.com/harunnryd/coachviz/internal/imagegen"
	"github.com/harunnryd/coachviz/internal/logger"

	"github.com/natefinch/atomic"
	"github.com/oklog/ulid/v2"
)

const DefaultPacing = 1500 * time.Millisecond

// ImageGenerator is the single-image collaborator.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req imagegen.Request) (*imagegen.Image, error)
}

// Options describe the grid to generate.
type Options struct {
	Description       string
	Audience          string
	VisualPreferences string
	Resolution        grid.Resolution
	// ReferenceImage is base64, optionally as a data URL.
	ReferenceImage  string
	DomainKnowledge string
}

// Result reports a reference grid run. Success is true whenever a grid was
// written, even if some images failed. Errors holds one entry per failure.
type Result struct {
	Success         bool            `json:"success"`
	GridPath        string          `json:"grid_path,omitempty"`
	IndividualPaths []string        `json:"individual_paths"`
	GridSizeKB      int             `json:"grid_size_kb"`
	GeneratedCount  int             `json:"generated_count"`
	FailedCount     int             `json:"failed_count"`
	Resolution      grid.Resolution `json:"resolution"`
	Errors          []string        `json:"errors,omitempty"`
	Padded          bool            `json:"padded"`
	Degraded        bool            `json:"degraded"`
	UniqueCount     int             `json:"unique_count"`
	Kind            apperrors.Kind  `json:"kind,omitempty"`
	Error           string          `json:"error,omitempty"`
}

type Config struct {
	APIKey      string
	AspectRatio string
	Pacing      time.Duration
	Sleep       imagegen.SleepFunc
}

// Pipeline drives four sequential generations and composites the results.
type Pipeline struct {
	gen         ImageGenerator
	apiKey      string
	aspectRatio string
	pacing      time.Duration
	sleep       imagegen.SleepFunc
}

func NewPipeline(gen ImageGenerator, cfg Config) *Pipeline {
	p := &Pipeline{
		gen:         gen,
		apiKey:      cfg.APIKey,
		aspectRatio: cfg.AspectRatio,
		pacing:      cfg.Pacing,
		sleep:       cfg.Sleep,
	}
	if p.pacing <= 0 {
		p.pacing = DefaultPacing
	}
	if p.aspectRatio == "" {
		p.aspectRatio = imagegen.DefaultAspectRatio
	}
	if p.sleep == nil {
		p.sleep = imagegen.Sleep
	}
	return p
}

// GenerateReferenceGrid writes {outputDir}/{baseName}-{1..4}.png for each
// image that succeeds and {outputDir}/{baseName}.png for the grid.
func (p *Pipeline) GenerateReferenceGrid(ctx context.Context, outputDir, baseName string, opts Options) Result {
	res := opts.Resolution
	if res == "" {
		res = grid.Resolution2K
	}
	result := Result{Resolution: res, IndividualPaths: []string{}}

	if strings.TrimSpace(p.apiKey) == "" {
		return fail(result, apperrors.Configuration("no Gemini API key configured for reference generation"))
	}
	if strings.TrimSpace(baseName) == "" {
		return fail(result, apperrors.InvalidInput("base name is required"))
	}

	reference, mime, err := decodeReference(opts.ReferenceImage)
	if err != nil {
		return fail(result, err)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fail(result, apperrors.Wrap(err, "create output directory"))
	}

	ctx = logger.WithRunID(ctx, ulid.Make().String())
	runID := logger.GetRunID(ctx)
	slog.Info("Generating reference grid", "dir", outputDir, "base", baseName, "audience", normalizeAudience(opts.Audience), "resolution", res, "run_id", runID)

	var images [][]byte
	for i, variation := range Variations {
		index := i + 1
		if i > 0 {
			if err := p.sleep(ctx, p.pacing); err != nil {
				for skipped := index; skipped <= len(Variations); skipped++ {
					result.Errors = append(result.Errors, fmt.Sprintf("Image %d: not attempted: %v", skipped, err))
					result.FailedCount++
				}
				break
			}
		}

		img, err := p.gen.GenerateImage(ctx, imagegen.Request{
			Prompt:            BuildPrompt(variation, opts),
			APIKey:            p.apiKey,
			Reference:         reference,
			ReferenceMIME:     mime,
			SystemInstruction: strings.TrimSpace(opts.DomainKnowledge),
			AspectRatio:       p.aspectRatio,
			ImageSize:         res.String(),
		})
		if err != nil {
			slog.Warn("Reference image failed", "index", index, "error", err, "run_id", runID)
			result.Errors = append(result.Errors, fmt.Sprintf("Image %d: %v", index, err))
			result.FailedCount++
			continue
		}

		path := filepath.Join(outputDir, fmt.Sprintf("%s-%d.png", baseName, index))
		if err := atomic.WriteFile(path, bytes.NewReader(img.Data)); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Image %d: write %s: %v", index, path, err))
			result.FailedCount++
			continue
		}

		slog.Debug("Reference image saved", "index", index, "path", path, "run_id", runID)
		images = append(images, img.Data)
		result.IndividualPaths = append(result.IndividualPaths, path)
		result.GeneratedCount++
	}

	// a cancelled run keeps the images already written but never composites
	if err := ctx.Err(); err != nil && result.GeneratedCount < len(Variations) {
		slog.Warn("Reference grid cancelled", "generated", result.GeneratedCount, "failed", result.FailedCount, "run_id", runID)
		result.Kind = apperrors.KindCanceled
		result.Error = fmt.Sprintf("reference grid cancelled after %d of %d images: %v", result.GeneratedCount, len(Variations), err)
		return result
	}

	if result.GeneratedCount == 0 {
		msg := "no reference images were generated"
		if len(result.Errors) > 0 {
			msg += ": " + strings.Join(result.Errors, "; ")
		}
		result.Kind = apperrors.KindTotalGeneration
		result.Error = msg
		return result
	}

	composite, err := grid.Compose(images, res)
	if err != nil {
		return fail(result, apperrors.Wrap(err, "compose grid"))
	}

	gridPath := filepath.Join(outputDir, baseName+".png")
	if err := atomic.WriteFile(gridPath, bytes.NewReader(composite.Data)); err != nil {
		return fail(result, apperrors.Wrap(err, "write grid"))
	}

	result.Success = true
	result.GridPath = gridPath
	result.GridSizeKB = int(math.Round(float64(len(composite.Data)) / 1024))
	result.Padded = composite.Padded
	result.Degraded = composite.Degraded
	result.UniqueCount = composite.Unique
	if composite.Unique < len(images) {
		slog.Warn("Reference images contain duplicates", "unique", composite.Unique, "generated", len(images), "run_id", runID)
	}
	if result.FailedCount > 0 {
		result.Kind = apperrors.KindPartialGeneration
	}

	slog.Info("Reference grid written", "path", gridPath, "size_kb", result.GridSizeKB,
		"generated", result.GeneratedCount, "failed", result.FailedCount, "degraded", result.Degraded, "run_id", runID)
	return result
}

func fail(result Result, err error) Result {
	result.Success = false
	result.Kind = apperrors.KindOf(err)
	result.Error = err.Error()
	return result
}

// decodeReference accepts raw base64 or a data URL.
func decodeReference(encoded string) ([]byte, string, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, "", nil
	}

	mime := ""
	if strings.HasPrefix(encoded, "data:") {
		header, payload, ok := strings.Cut(encoded, ",")
		if !ok {
			return nil, "", apperrors.InvalidInput("reference image data URL has no payload")
		}
		mime = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		encoded = payload
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", apperrors.WrapWithCategory(err, "decode reference image", apperrors.ErrInvalidInput)
	}
	return data, mime, nil
}

// EncodeReference reads an image file as base64 for Options.ReferenceImage.
func EncodeReference(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperrors.Wrap(err, "read reference image")
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
