package provider

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/harunnryd/coachviz/internal/config"
	apperrors "github.com/harunnryd/coachviz/internal/errors"

	"github.com/sashabaranov/go-openai"
)

// ModelInfo is one entry of a provider's model catalogue.
type ModelInfo struct {
	ID      string `json:"id" yaml:"id"`
	OwnedBy string `json:"owned_by,omitempty" yaml:"owned_by,omitempty"`
	Created int64  `json:"created,omitempty" yaml:"created,omitempty"`
}

// ListModels queries the OpenAI-compatible /models endpoint of cfg. Only
// OpenRouter exposes one.
func ListModels(ctx context.Context, cfg config.ProviderConfig, httpClient *http.Client) ([]ModelInfo, error) {
	if cfg.Name != config.ProviderOpenRouter {
		return nil, apperrors.InvalidInput(fmt.Sprintf("model listing is not supported for %s", cfg.Name))
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	if clientCfg.BaseURL == "" {
		clientCfg.BaseURL = config.DefaultOpenRouterURL
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}

	list, err := openai.NewClientWithConfig(clientCfg).ListModels(ctx)
	if err != nil {
		return nil, apperrors.WrapWithCategory(err, "list models", apperrors.ErrTransientProvider)
	}

	out := make([]ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		out = append(out, ModelInfo{ID: m.ID, OwnedBy: m.OwnedBy, Created: m.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
