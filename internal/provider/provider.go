// Package provider binds a configured backend to an image generation call.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/harunnryd/coachviz/internal/config"
	apperrors "github.com/harunnryd/coachviz/internal/errors"
	"github.com/harunnryd/coachviz/internal/imagegen"
)

// Provider generates one image. Request credentials are filled from the
// provider configuration.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req imagegen.Request) (*imagegen.Image, error)
}

// Options tune the transport and retry policy shared by all providers.
type Options struct {
	HTTPClient  *http.Client
	MaxAttempts int
	BaseDelay   time.Duration
	CallTimeout time.Duration
	Sleep       imagegen.SleepFunc
}

// New creates the provider for cfg.
func New(cfg config.ProviderConfig, opts Options) (Provider, error) {
	switch cfg.Name {
	case config.ProviderGemini:
		if cfg.APIKey == "" {
			return nil, apperrors.Configuration(config.EnvGeminiAPIKey + " is not set")
		}
		return NewGemini(cfg, opts), nil

	case config.ProviderVertexAI:
		if cfg.Project == "" {
			return nil, apperrors.Configuration(config.EnvGoogleCloudProject + " is not set")
		}
		return NewVertexAI(cfg, opts), nil

	case config.ProviderOpenRouter:
		if cfg.APIKey == "" {
			return nil, apperrors.Configuration(config.EnvOpenRouterAPIKey + " is not set")
		}
		return NewOpenRouter(cfg, opts), nil

	default:
		return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported provider %q", cfg.Name))
	}
}

func generatorOptions(cfg config.ProviderConfig, opts Options) imagegen.Options {
	return imagegen.Options{
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		HTTPClient:  opts.HTTPClient,
		MaxAttempts: opts.MaxAttempts,
		BaseDelay:   opts.BaseDelay,
		CallTimeout: opts.CallTimeout,
		Sleep:       opts.Sleep,
	}
}
