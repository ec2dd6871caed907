// Package health tracks whether configured providers are ready to use.
// Readiness is a configuration check only; no provider is contacted.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/harunnryd/coachviz/internal/config"
	apperrors "github.com/harunnryd/coachviz/internal/errors"
)

const DefaultTTL = 5 * time.Minute

// ProviderHealth is the readiness of one provider at LastChecked.
type ProviderHealth struct {
	Provider    string    `json:"provider"`
	Healthy     bool      `json:"healthy"`
	LastChecked time.Time `json:"last_checked"`
	Error       string    `json:"error,omitempty"`
}

type Option func(*Tracker)

func WithTTL(ttl time.Duration) Option {
	return func(t *Tracker) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithGetenv replaces os.Getenv for the vertexai project lookup.
func WithGetenv(getenv func(string) string) Option {
	return func(t *Tracker) {
		if getenv != nil {
			t.getenv = getenv
		}
	}
}

// Tracker owns a health cache for a provider registry.
type Tracker struct {
	cache     Cache
	providers []config.ProviderConfig
	ttl       time.Duration
	now       func() time.Time
	getenv    func(string) string
}

func NewTracker(cache Cache, providers []config.ProviderConfig, opts ...Option) *Tracker {
	if cache == nil {
		cache = NewMemoryCache()
	}
	t := &Tracker{
		cache:     cache,
		providers: providers,
		ttl:       DefaultTTL,
		now:       time.Now,
		getenv:    os.Getenv,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Check returns the cached record for p while it is younger than the TTL and
// recomputes it otherwise.
func (t *Tracker) Check(ctx context.Context, p config.ProviderConfig) ProviderHealth {
	cached, ok, err := t.cache.Get(ctx, p.Name)
	if err != nil {
		slog.Warn("Health cache read failed", "provider", p.Name, "error", err)
	}
	if ok && t.fresh(cached) {
		return cached
	}
	return t.store(ctx, p)
}

// Refresh drops the cached record for name and recomputes it from the registry.
func (t *Tracker) Refresh(ctx context.Context, name string) (ProviderHealth, error) {
	p, ok := t.lookup(name)
	if !ok {
		return ProviderHealth{}, apperrors.NotFound(fmt.Sprintf("provider %q is not configured", name))
	}
	if err := t.cache.Delete(ctx, p.Name); err != nil {
		slog.Warn("Health cache evict failed", "provider", p.Name, "error", err)
	}
	return t.store(ctx, p), nil
}

// CheckAll checks every registered provider in registry order.
func (t *Tracker) CheckAll(ctx context.Context) []ProviderHealth {
	out := make([]ProviderHealth, 0, len(t.providers))
	for _, p := range t.providers {
		out = append(out, t.Check(ctx, p))
	}
	return out
}

// SelectBest returns the enabled, healthy provider with the lowest priority.
// Ties go to the provider registered first.
func (t *Tracker) SelectBest(ctx context.Context) (config.ProviderConfig, bool) {
	var best config.ProviderConfig
	found := false
	for _, p := range t.providers {
		if !p.Enabled {
			continue
		}
		if found && p.Priority >= best.Priority {
			continue
		}
		if !t.Check(ctx, p).Healthy {
			continue
		}
		best, found = p, true
	}
	return best, found
}

func (t *Tracker) fresh(h ProviderHealth) bool {
	return t.now().Sub(h.LastChecked) < t.ttl
}

func (t *Tracker) store(ctx context.Context, p config.ProviderConfig) ProviderHealth {
	h := t.evaluate(p)
	if err := t.cache.Set(ctx, h, t.ttl); err != nil {
		slog.Warn("Health cache write failed", "provider", p.Name, "error", err)
	}
	slog.Debug("Provider health computed", "provider", p.Name, "healthy", h.Healthy, "reason", h.Error)
	return h
}

func (t *Tracker) evaluate(p config.ProviderConfig) ProviderHealth {
	healthy, reason := Validate(p, t.getenv)
	return ProviderHealth{
		Provider:    p.Name,
		Healthy:     healthy,
		LastChecked: t.now(),
		Error:       reason,
	}
}

func (t *Tracker) lookup(name string) (config.ProviderConfig, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range t.providers {
		if p.Name == name {
			return p, true
		}
	}
	return config.ProviderConfig{}, false
}

// Validate reports whether p carries what it needs to make a call. vertexai
// needs a project, from the provider or GOOGLE_CLOUD_PROJECT; every other
// provider needs an API key.
func Validate(p config.ProviderConfig, getenv func(string) string) (bool, string) {
	if p.Name == config.ProviderVertexAI {
		if strings.TrimSpace(p.Project) != "" || strings.TrimSpace(getenv(config.EnvGoogleCloudProject)) != "" {
			return true, ""
		}
		return false, "no Google Cloud project configured (set project or " + config.EnvGoogleCloudProject + ")"
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return false, "no API key configured"
	}
	return true, ""
}
