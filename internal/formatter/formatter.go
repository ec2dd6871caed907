// Package formatter renders CLI output as a table, JSON or YAML.
package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/harunnryd/coachviz/internal/config"
	"github.com/harunnryd/coachviz/internal/health"
	"github.com/harunnryd/coachviz/internal/provider"
	"github.com/harunnryd/coachviz/internal/template"
)

type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

// ProviderRow is the listing view of a registry entry. Credentials are
// reported as configured or not, never echoed.
type ProviderRow struct {
	Name        string `json:"name" yaml:"name"`
	Model       string `json:"model" yaml:"model"`
	Priority    int    `json:"priority" yaml:"priority"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Default     bool   `json:"default" yaml:"default"`
	Credentials bool   `json:"credentials" yaml:"credentials"`
}

// HealthRow mirrors health.ProviderHealth with YAML field names.
type HealthRow struct {
	Provider    string    `json:"provider" yaml:"provider"`
	Healthy     bool      `json:"healthy" yaml:"healthy"`
	LastChecked time.Time `json:"last_checked" yaml:"last_checked"`
	Error       string    `json:"error,omitempty" yaml:"error,omitempty"`
}

func NewProviderRows(providers []config.ProviderConfig, defaultName string, getenv func(string) string) []ProviderRow {
	rows := make([]ProviderRow, 0, len(providers))
	for _, p := range providers {
		ok, _ := health.Validate(p, getenv)
		rows = append(rows, ProviderRow{
			Name:        p.Name,
			Model:       p.Model,
			Priority:    p.Priority,
			Enabled:     p.Enabled,
			Default:     strings.EqualFold(p.Name, defaultName),
			Credentials: ok,
		})
	}
	return rows
}

func NewHealthRows(records []health.ProviderHealth) []HealthRow {
	rows := make([]HealthRow, 0, len(records))
	for _, h := range records {
		rows = append(rows, HealthRow(h))
	}
	return rows
}

type Formatter interface {
	FormatTemplates([]*template.Template) (string, error)
	FormatTemplate(*template.Template) (string, error)
	FormatProviders([]ProviderRow) (string, error)
	FormatHealth([]HealthRow) (string, error)
	FormatModels([]provider.ModelInfo) (string, error)
}

func New(format OutputFormat) (Formatter, error) {
	switch format {
	case OutputFormatTable:
		return NewTableFormatter(), nil
	case OutputFormatJSON:
		return NewJSONFormatter(), nil
	case OutputFormatYAML:
		return NewYAMLFormatter(), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, json, yaml)", format)
	}
}

func ParseOutputFormat(s string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	switch format {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return format, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (supported: table, json, yaml)", s)
	}
}
