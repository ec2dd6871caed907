// Package fallback runs a generation request across providers in priority
// order until one succeeds.
package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harunnryd/coachviz/internal/config"
	apperrors "github.com/harunnryd/coachviz/internal/errors"
	"github.com/harunnryd/coachviz/internal/executor"
	"github.com/harunnryd/coachviz/internal/health"
	"github.com/harunnryd/coachviz/internal/logger"

	"github.com/oklog/ulid/v2"
)

const exhaustedPrefix = "all providers failed: "

// maxOutputInError bounds how much child output is kept per attempt.
const maxOutputInError = 2000

// Request is one generation request.
type Request struct {
	Prompt        string
	TemplateID    string
	Provider      string
	Model         string
	OutputPath    string
	StyleGridPath string
	Type          string
}

// Attempt records one provider in the chain.
type Attempt struct {
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	Success  bool           `json:"success"`
	Kind     apperrors.Kind `json:"kind,omitempty"`
	Error    string         `json:"error,omitempty"`
	ExitCode int            `json:"exit_code"`
	Duration time.Duration  `json:"duration"`
}

// Result is the outcome of Generate. Error is empty on success.
type Result struct {
	Success      bool           `json:"success"`
	OutputPath   string         `json:"output_path,omitempty"`
	Size         int64          `json:"size"`
	Provider     string         `json:"provider,omitempty"`
	Model        string         `json:"model,omitempty"`
	Error        string         `json:"error,omitempty"`
	Kind         apperrors.Kind `json:"kind,omitempty"`
	FallbackUsed bool           `json:"fallback_used"`
	Attempts     []Attempt      `json:"attempts"`
}

// Err returns the failure as an error carrying its kind sentinel.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	if r.Kind == apperrors.KindCanceled {
		return fmt.Errorf("%s: %w", r.Error, context.Canceled)
	}
	return fmt.Errorf("%s: %w", r.Error, r.Kind.Sentinel())
}

// HealthChecker is the subset of health.Tracker the orchestrator needs.
type HealthChecker interface {
	Check(ctx context.Context, p config.ProviderConfig) health.ProviderHealth
}

type Options struct {
	Providers       []config.ProviderConfig
	DefaultProvider string
	AutoFallback    bool
	OutputDir       string
	Getenv          func(string) string
}

// Orchestrator walks a fallback chain one provider at a time.
type Orchestrator struct {
	exec            executor.Executor
	health          HealthChecker
	providers       []config.ProviderConfig
	defaultProvider string
	autoFallback    bool
	outputDir       string
	getenv          func(string) string
}

func New(exec executor.Executor, checker HealthChecker, opts Options) *Orchestrator {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if checker == nil {
		checker = health.NewTracker(health.NewMemoryCache(), opts.Providers, health.WithGetenv(getenv))
	}
	return &Orchestrator{
		exec:            exec,
		health:          checker,
		providers:       opts.Providers,
		defaultProvider: opts.DefaultProvider,
		autoFallback:    opts.AutoFallback,
		outputDir:       opts.OutputDir,
		getenv:          getenv,
	}
}

// Chain returns the chain Generate would walk for req.
func (o *Orchestrator) Chain(req Request) (Chain, error) {
	return BuildChain(o.providers, o.defaultProvider, req.Provider, req.Model)
}

// Generate tries the primary provider, then each fallback when auto-fallback
// is on. Nothing is executed when no enabled provider has credentials.
func (o *Orchestrator) Generate(ctx context.Context, req Request) Result {
	result := Result{Attempts: []Attempt{}}

	if strings.TrimSpace(req.Prompt) == "" {
		return failed(result, apperrors.KindInvalidInput, "prompt is required")
	}

	chain, err := o.Chain(req)
	if err != nil {
		return failed(result, apperrors.KindOf(err), err.Error())
	}
	if !o.anyCredentials(chain) {
		return failed(result, apperrors.KindConfiguration, "no credentials configured for any enabled provider")
	}

	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(o.outputDir, ulid.Make().String()+".png")
	}
	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return failed(result, apperrors.KindInternal, fmt.Sprintf("create output directory: %v", err))
		}
	}

	candidates := []config.ProviderConfig{chain.Primary}
	if o.autoFallback {
		candidates = chain.All()
	}

	traceID := logger.GetTraceID(ctx)
	var last Attempt
	for i, p := range candidates {
		if err := ctx.Err(); err != nil {
			result.Kind = apperrors.KindCanceled
			result.Error = "generation cancelled: " + err.Error()
			return result
		}
		if i > 0 {
			slog.Info("Falling back to next provider", "from", last.Provider, "to", p.Name, "reason", last.Error, "trace_id", traceID)
		}

		attempt := o.attempt(ctx, p, req, outputPath)
		result.Attempts = append(result.Attempts, attempt)

		if attempt.Success {
			result.Success = true
			result.OutputPath = outputPath
			result.Size = fileSize(outputPath)
			result.Provider = p.Name
			result.Model = p.Model
			result.FallbackUsed = i > 0
			slog.Info("Generation completed", "provider", p.Name, "model", p.Model, "fallback_used", result.FallbackUsed, "trace_id", traceID)
			return result
		}

		last = attempt
		if attempt.Kind == apperrors.KindCanceled {
			result.Kind = apperrors.KindCanceled
			result.Error = "generation cancelled: " + attempt.Error
			return result
		}
	}

	result.Kind = apperrors.KindAllProvidersExhausted
	result.Error = exhaustedPrefix + last.Error
	slog.Error("All providers failed", "attempts", len(result.Attempts), "last_error", last.Error, "trace_id", traceID)
	return result
}

func (o *Orchestrator) attempt(ctx context.Context, p config.ProviderConfig, req Request, outputPath string) Attempt {
	a := Attempt{Provider: p.Name, Model: p.Model, ExitCode: -1}

	h := o.health.Check(ctx, p)
	if !h.Healthy {
		err := apperrors.Unhealthy(fmt.Sprintf("provider %s skipped (%s)", p.Name, h.Error))
		a.Kind = apperrors.KindOf(err)
		a.Error = err.Error()
		slog.Warn("Skipping unhealthy provider", "provider", p.Name, "reason", h.Error)
		return a
	}

	res, err := o.exec.Execute(ctx, executor.Request{
		Provider:  p.Name,
		Model:     p.Model,
		Template:  req.TemplateID,
		Type:      req.Type,
		Prompt:    req.Prompt,
		Output:    outputPath,
		StyleGrid: req.StyleGridPath,
		Env:       p.CredentialEnv(),
	})
	a.ExitCode = res.ExitCode
	a.Duration = res.Duration

	switch {
	case err != nil:
		a.Kind = apperrors.KindOf(err)
		a.Error = err.Error()
		if res.Output != "" {
			a.Error += ": " + truncate(res.Output)
		}
	case !res.Success():
		a.Kind = apperrors.Classify(res.Output)
		a.Error = fmt.Sprintf("%s exited with code %d", p.Name, res.ExitCode)
		if res.Output != "" {
			a.Error += ": " + truncate(res.Output)
		}
	default:
		a.Success = true
		return a
	}

	slog.Warn("Provider attempt failed", "provider", p.Name, "model", p.Model, "kind", a.Kind, "error", a.Error)
	return a
}

func (o *Orchestrator) anyCredentials(chain Chain) bool {
	for _, p := range chain.All() {
		if ok, _ := health.Validate(p, o.getenv); ok {
			return true
		}
	}
	return false
}

func failed(result Result, kind apperrors.Kind, msg string) Result {
	result.Kind = kind
	result.Error = msg
	return result
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		slog.Warn("Generated file not found", "path", path, "error", err)
		return 0
	}
	return info.Size()
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxOutputInError {
		return s
	}
	return s[len(s)-maxOutputInError:]
}
