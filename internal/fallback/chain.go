package fallback

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harunnryd/coachviz/internal/config"
	apperrors "github.com/harunnryd/coachviz/internal/errors"
)

// Chain is the ordered set of providers for one request.
type Chain struct {
	Primary   config.ProviderConfig
	Fallbacks []config.ProviderConfig
}

// All returns the primary followed by the fallbacks.
func (c Chain) All() []config.ProviderConfig {
	return append([]config.ProviderConfig{c.Primary}, c.Fallbacks...)
}

// Enabled returns the enabled providers ordered by priority. Equal priorities
// keep registry order.
func Enabled(providers []config.ProviderConfig) []config.ProviderConfig {
	out := make([]config.ProviderConfig, 0, len(providers))
	for _, p := range providers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// BuildChain picks the primary provider and orders the rest as fallbacks.
// An explicit provider wins over defaultName; a missing or disabled default
// falls back to the highest-priority enabled provider. A model override
// applies to the primary only.
func BuildChain(providers []config.ProviderConfig, defaultName, explicit, model string) (Chain, error) {
	enabled := Enabled(providers)
	if len(enabled) == 0 {
		return Chain{}, apperrors.Configuration("no enabled providers configured")
	}

	primary := -1
	if name := normalize(explicit); name != "" {
		primary = indexOf(enabled, name)
		if primary < 0 {
			return Chain{}, apperrors.Configuration(fmt.Sprintf("provider %q is not configured or is disabled", name))
		}
	} else if name := normalize(defaultName); name != "" {
		primary = indexOf(enabled, name)
	}
	if primary < 0 {
		primary = 0
	}

	chain := Chain{Primary: enabled[primary].WithModel(model)}
	for i, p := range enabled {
		if i != primary {
			chain.Fallbacks = append(chain.Fallbacks, p)
		}
	}
	return chain, nil
}

func indexOf(providers []config.ProviderConfig, name string) int {
	for i, p := range providers {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
