// Package imagegen issues single image-generation calls against the Gemini
// API (or Vertex AI) with bounded retries.
package imagegen

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/harunnryd/coachviz/internal/errors"
	"github.com/harunnryd/coachviz/internal/logger"

	"google.golang.org/genai"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
	DefaultCallTimeout = 2 * time.Minute

	DefaultAspectRatio = "1:1"
	DefaultImageSize   = "2K"

	referenceInstruction = "Use the attached reference image as the visual style guide. " +
		"Match its color palette, line weights, rendering style and level of detail. " +
		"Do not copy its subject matter; apply the style to the scene described next."
)

// Request is one image generation call.
type Request struct {
	Prompt            string
	APIKey            string
	Reference         []byte
	ReferenceMIME     string
	SystemInstruction string
	AspectRatio       string
	ImageSize         string
}

// Image is a generated image payload.
type Image struct {
	Data     []byte
	MIMEType string
	Attempts int
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Options struct {
	Model       string
	Backend     genai.Backend
	Project     string
	Location    string
	BaseURL     string
	HTTPClient  *http.Client
	MaxAttempts int
	BaseDelay   time.Duration
	CallTimeout time.Duration
	Sleep       SleepFunc
}

// Generator calls generateContent with an image-only response modality.
type Generator struct {
	model       string
	backend     genai.Backend
	project     string
	location    string
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	callTimeout time.Duration
	sleep       SleepFunc
}

func New(opts Options) *Generator {
	g := &Generator{
		model:       opts.Model,
		backend:     opts.Backend,
		project:     opts.Project,
		location:    opts.Location,
		baseURL:     opts.BaseURL,
		httpClient:  opts.HTTPClient,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		callTimeout: opts.CallTimeout,
		sleep:       opts.Sleep,
	}
	if g.backend == genai.BackendUnspecified {
		g.backend = genai.BackendGeminiAPI
	}
	if g.maxAttempts <= 0 {
		g.maxAttempts = DefaultMaxAttempts
	}
	if g.baseDelay <= 0 {
		g.baseDelay = DefaultBaseDelay
	}
	if g.callTimeout <= 0 {
		g.callTimeout = DefaultCallTimeout
	}
	if g.sleep == nil {
		g.sleep = Sleep
	}
	return g
}

func (g *Generator) Model() string {
	return g.model
}

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff returns the wait after the given failed attempt (1-based).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(1<<(attempt-1))
}

// GenerateImage returns the image bytes from the first candidate's first part.
// API and network failures are retried with exponential backoff; a response
// without image data fails immediately with a content error.
func (g *Generator) GenerateImage(ctx context.Context, req Request) (*Image, error) {
	if req.Prompt == "" {
		return nil, apperrors.InvalidInput("prompt is required")
	}
	if g.backend == genai.BackendGeminiAPI && req.APIKey == "" {
		return nil, apperrors.Configuration("gemini api key is not set")
	}

	client, err := g.client(ctx, req.APIKey)
	if err != nil {
		return nil, apperrors.WrapWithCategory(err, "create genai client", apperrors.ErrConfiguration)
	}

	contents := []*genai.Content{genai.NewContentFromParts(buildParts(req), genai.RoleUser)}
	cfg := buildConfig(req)
	traceID := logger.GetTraceID(ctx)

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(err, "image generation cancelled")
		}

		data, mime, err := g.call(ctx, client, contents, cfg)
		if err == nil {
			slog.Debug("Image generated", "model", g.model, "attempt", attempt, "bytes", len(data), "trace_id", traceID)
			return &Image{Data: data, MIMEType: mime, Attempts: attempt}, nil
		}
		if !apperrors.IsRetryable(err) {
			return nil, err
		}

		lastErr = err
		if attempt == g.maxAttempts {
			break
		}

		delay := Backoff(g.baseDelay, attempt)
		slog.Warn("Image generation attempt failed, retrying", "model", g.model, "attempt", attempt, "delay", delay, "error", err, "trace_id", traceID)
		if err := g.sleep(ctx, delay); err != nil {
			return nil, apperrors.Wrap(err, "image generation cancelled during backoff")
		}
	}

	return nil, fmt.Errorf("image generation failed after %d attempts: %w", g.maxAttempts, lastErr)
}

func (g *Generator) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	cc := &genai.ClientConfig{
		Backend:    g.backend,
		HTTPClient: g.httpClient,
	}
	if g.backend == genai.BackendVertexAI {
		cc.Project = g.project
		cc.Location = g.location
	} else {
		cc.APIKey = apiKey
	}
	if g.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	return genai.NewClient(ctx, cc)
}

func (g *Generator) call(ctx context.Context, client *genai.Client, contents []*genai.Content, cfg *genai.GenerateContentConfig) ([]byte, string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	resp, err := client.Models.GenerateContent(callCtx, g.model, contents, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", apperrors.Wrap(ctx.Err(), "image generation cancelled")
		}
		return nil, "", apperrors.WrapWithCategory(err, "generate content", apperrors.ErrTransientProvider)
	}

	blob := firstInlineData(resp)
	if blob == nil || len(blob.Data) == 0 {
		return nil, "", apperrors.Content(describeEmpty(resp))
	}
	return blob.Data, blob.MIMEType, nil
}

func buildParts(req Request) []*genai.Part {
	parts := make([]*genai.Part, 0, 3)
	if len(req.Reference) > 0 {
		mime := req.ReferenceMIME
		if mime == "" {
			mime = http.DetectContentType(req.Reference)
		}
		parts = append(parts,
			genai.NewPartFromText(referenceInstruction),
			genai.NewPartFromBytes(req.Reference, mime),
		)
	}
	return append(parts, genai.NewPartFromText(req.Prompt))
}

func buildConfig(req Request) *genai.GenerateContentConfig {
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = DefaultAspectRatio
	}
	size := req.ImageSize
	if size == "" {
		size = DefaultImageSize
	}

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
		ImageConfig: &genai.ImageConfig{
			AspectRatio: aspect,
			ImageSize:   size,
		},
		SafetySettings: SafetySettings(),
	}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	return cfg
}

// SafetySettings relaxes the four standard harm categories. Coaching imagery
// (athletes, contact, equipment) otherwise trips false positives.
func SafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHateSpeech,
		genai.HarmCategoryDangerousContent,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryHarassment,
	}
	out := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		out = append(out, &genai.SafetySetting{Category: c, Threshold: genai.HarmBlockThresholdBlockNone})
	}
	return out
}

func firstInlineData(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 || content.Parts[0] == nil {
		return nil
	}
	return content.Parts[0].InlineData
}

func describeEmpty(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return fmt.Sprintf("no image data in response (prompt blocked: %s)", resp.PromptFeedback.BlockReason)
		}
		return "no image data in response (no candidates)"
	}
	if reason := resp.Candidates[0].FinishReason; reason != "" {
		return fmt.Sprintf("no image data in response (finish reason: %s)", reason)
	}
	return "no image data in response"
}
