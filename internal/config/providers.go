package config

import (
	"sort"
	"strings"
)

const (
	ProviderGemini     = "gemini"
	ProviderVertexAI   = "vertexai"
	ProviderOpenRouter = "openrouter"

	EnvGeminiAPIKey        = "GEMINI_API_KEY"
	EnvOpenRouterAPIKey    = "OPENROUTER_API_KEY"
	EnvGoogleCloudProject  = "GOOGLE_CLOUD_PROJECT"
	EnvGoogleCloudLocation = "GOOGLE_CLOUD_LOCATION"
	EnvImageModel          = "IMAGE_GEN_MODEL"

	DefaultGeminiModel     = "gemini-3-pro-image-preview"
	DefaultVertexAIModel   = "gemini-3-pro-image-preview"
	DefaultOpenRouterModel = "google/gemini-3-pro-image-preview"
	DefaultVertexLocation  = "us-central1"
	DefaultGeminiBaseURL   = ""
	DefaultOpenRouterURL   = "https://openrouter.ai/api/v1"
)

// ProviderConfig is one image-generation backend.
type ProviderConfig struct {
	Name     string `koanf:"name" yaml:"name"`
	APIKey   string `koanf:"api_key" yaml:"api_key"`
	Model    string `koanf:"model" yaml:"model"`
	Project  string `koanf:"project" yaml:"project,omitempty"`
	Location string `koanf:"location" yaml:"location,omitempty"`
	BaseURL  string `koanf:"base_url" yaml:"base_url,omitempty"`
	Priority int    `koanf:"priority" yaml:"priority"`
	Enabled  bool   `koanf:"enabled" yaml:"enabled"`
}

// WithModel returns a copy using model when it is non-empty.
func (p ProviderConfig) WithModel(model string) ProviderConfig {
	if m := strings.TrimSpace(model); m != "" {
		p.Model = m
	}
	return p
}

// CredentialEnv returns the environment a provider subprocess needs.
func (p ProviderConfig) CredentialEnv() []string {
	switch p.Name {
	case ProviderGemini:
		return nonEmptyEnv(EnvGeminiAPIKey, p.APIKey)
	case ProviderOpenRouter:
		return nonEmptyEnv(EnvOpenRouterAPIKey, p.APIKey)
	case ProviderVertexAI:
		env := nonEmptyEnv(EnvGoogleCloudProject, p.Project)
		return append(env, nonEmptyEnv(EnvGoogleCloudLocation, p.Location)...)
	default:
		return nil
	}
}

func nonEmptyEnv(key, value string) []string {
	if value == "" {
		return nil
	}
	return []string{key + "=" + value}
}

func KnownProviders() []string {
	return []string{ProviderGemini, ProviderVertexAI, ProviderOpenRouter}
}

func IsKnownProvider(name string) bool {
	for _, known := range KnownProviders() {
		if name == known {
			return true
		}
	}
	return false
}

// DefaultPriority orders providers that do not declare a priority.
func DefaultPriority(name string) int {
	switch name {
	case ProviderGemini:
		return 1
	case ProviderVertexAI:
		return 2
	case ProviderOpenRouter:
		return 3
	default:
		return 100
	}
}

func DefaultModel(name string) string {
	switch name {
	case ProviderGemini:
		return DefaultGeminiModel
	case ProviderVertexAI:
		return DefaultVertexAIModel
	case ProviderOpenRouter:
		return DefaultOpenRouterModel
	default:
		return ""
	}
}

// DiscoverEnvProviders builds the environment layer: one provider per
// credential variable that is set. IMAGE_GEN_MODEL replaces the default
// model of every discovered provider.
func DiscoverEnvProviders(getenv func(string) string) []ProviderConfig {
	model := strings.TrimSpace(getenv(EnvImageModel))
	modelFor := func(name string) string {
		if model != "" {
			return model
		}
		return DefaultModel(name)
	}

	var out []ProviderConfig
	if key := strings.TrimSpace(getenv(EnvGeminiAPIKey)); key != "" {
		out = append(out, ProviderConfig{
			Name:     ProviderGemini,
			APIKey:   key,
			Model:    modelFor(ProviderGemini),
			Priority: DefaultPriority(ProviderGemini),
			Enabled:  true,
		})
	}
	if project := strings.TrimSpace(getenv(EnvGoogleCloudProject)); project != "" {
		location := strings.TrimSpace(getenv(EnvGoogleCloudLocation))
		if location == "" {
			location = DefaultVertexLocation
		}
		out = append(out, ProviderConfig{
			Name:     ProviderVertexAI,
			Model:    modelFor(ProviderVertexAI),
			Project:  project,
			Location: location,
			Priority: DefaultPriority(ProviderVertexAI),
			Enabled:  true,
		})
	}
	if key := strings.TrimSpace(getenv(EnvOpenRouterAPIKey)); key != "" {
		out = append(out, ProviderConfig{
			Name:     ProviderOpenRouter,
			APIKey:   key,
			Model:    modelFor(ProviderOpenRouter),
			BaseURL:  DefaultOpenRouterURL,
			Priority: DefaultPriority(ProviderOpenRouter),
			Enabled:  true,
		})
	}
	return out
}

// MergeProviders layers the environment over the file registry. A value set in
// the file always wins; the environment only fills empty credential, project,
// location, model and base URL fields, and contributes providers the file
// does not mention. File order is kept, env-only providers follow sorted by
// priority. Any provider still without a model gets its default.
func MergeProviders(fileProviders, envProviders []ProviderConfig) []ProviderConfig {
	byName := make(map[string]ProviderConfig, len(envProviders))
	for _, p := range envProviders {
		byName[p.Name] = p
	}

	merged := make([]ProviderConfig, 0, len(fileProviders)+len(envProviders))
	seen := make(map[string]struct{}, len(fileProviders))
	for _, p := range fileProviders {
		if e, ok := byName[p.Name]; ok {
			p.APIKey = firstNonEmpty(p.APIKey, e.APIKey)
			p.Project = firstNonEmpty(p.Project, e.Project)
			p.Location = firstNonEmpty(p.Location, e.Location)
			p.Model = firstNonEmpty(p.Model, e.Model)
			p.BaseURL = firstNonEmpty(p.BaseURL, e.BaseURL)
		}
		seen[p.Name] = struct{}{}
		merged = append(merged, p)
	}

	var extra []ProviderConfig
	for _, p := range envProviders {
		if _, ok := seen[p.Name]; !ok {
			extra = append(extra, p)
		}
	}
	sort.SliceStable(extra, func(i, j int) bool { return extra[i].Priority < extra[j].Priority })
	merged = append(merged, extra...)

	for i := range merged {
		merged[i].Model = firstNonEmpty(merged[i].Model, DefaultModel(merged[i].Name))
		if merged[i].Name == ProviderVertexAI {
			merged[i].Location = firstNonEmpty(merged[i].Location, DefaultVertexLocation)
		}
		if merged[i].Name == ProviderOpenRouter {
			merged[i].BaseURL = firstNonEmpty(merged[i].BaseURL, DefaultOpenRouterURL)
		}
	}
	return merged
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
