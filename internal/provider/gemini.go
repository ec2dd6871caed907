package provider

import (
	"context"

	"github.com/harunnryd/coachviz/internal/config"
	"github.com/harunnryd/coachviz/internal/imagegen"

	"google.golang.org/genai"
)

// Gemini calls the Gemini API with an API key.
type Gemini struct {
	apiKey string
	gen    *imagegen.Generator
}

func NewGemini(cfg config.ProviderConfig, opts Options) *Gemini {
	gopts := generatorOptions(cfg, opts)
	gopts.Backend = genai.BackendGeminiAPI
	return &Gemini{apiKey: cfg.APIKey, gen: imagegen.New(gopts)}
}

func (g *Gemini) Name() string  { return config.ProviderGemini }
func (g *Gemini) Model() string { return g.gen.Model() }

func (g *Gemini) Generate(ctx context.Context, req imagegen.Request) (*imagegen.Image, error) {
	if req.APIKey == "" {
		req.APIKey = g.apiKey
	}
	return g.gen.GenerateImage(ctx, req)
}

// VertexAI calls Gemini models through Vertex AI using application default
// credentials.
type VertexAI struct {
	gen *imagegen.Generator
}

func NewVertexAI(cfg config.ProviderConfig, opts Options) *VertexAI {
	gopts := generatorOptions(cfg, opts)
	gopts.Backend = genai.BackendVertexAI
	gopts.Project = cfg.Project
	gopts.Location = cfg.Location
	if gopts.Location == "" {
		gopts.Location = config.DefaultVertexLocation
	}
	return &VertexAI{gen: imagegen.New(gopts)}
}

func (v *VertexAI) Name() string  { return config.ProviderVertexAI }
func (v *VertexAI) Model() string { return v.gen.Model() }

func (v *VertexAI) Generate(ctx context.Context, req imagegen.Request) (*imagegen.Image, error) {
	req.APIKey = ""
	return v.gen.GenerateImage(ctx, req)
}
