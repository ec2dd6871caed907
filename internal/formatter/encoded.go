package formatter

import (
	"encoding/json"
	"strings"

	"github.com/harunnryd/coachviz/internal/provider"
	"github.com/harunnryd/coachviz/internal/template"

	"gopkg.in/yaml.v3"
)

type encodeFunc func(any) (string, error)

// encodedFormatter emits the values as-is through a marshaller.
type encodedFormatter struct {
	encode encodeFunc
}

func NewJSONFormatter() Formatter {
	return &encodedFormatter{encode: func(v any) (string, error) {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	}}
}

func NewYAMLFormatter() Formatter {
	return &encodedFormatter{encode: func(v any) (string, error) {
		data, err := yaml.Marshal(v)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}}
}

func (f *encodedFormatter) FormatTemplates(templates []*template.Template) (string, error) {
	if templates == nil {
		templates = []*template.Template{}
	}
	return f.encode(templates)
}

func (f *encodedFormatter) FormatTemplate(tmpl *template.Template) (string, error) {
	if tmpl == nil {
		return "null", nil
	}
	return f.encode(tmpl)
}

func (f *encodedFormatter) FormatProviders(rows []ProviderRow) (string, error) {
	if rows == nil {
		rows = []ProviderRow{}
	}
	return f.encode(rows)
}

func (f *encodedFormatter) FormatHealth(rows []HealthRow) (string, error) {
	if rows == nil {
		rows = []HealthRow{}
	}
	return f.encode(rows)
}

func (f *encodedFormatter) FormatModels(models []provider.ModelInfo) (string, error) {
	if models == nil {
		models = []provider.ModelInfo{}
	}
	return f.encode(models)
}
