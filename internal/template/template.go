// Package template manages the on-disk template tree:
//
//	{root}/{topic}/{style}/template.yaml
//	{root}/{topic}/{style}/style-guide.md
//	{root}/{topic}/{style}/domain-knowledge.md
//	{root}/{topic}/{style}/references/
//	{root}/{topic}/{style}/active-reference
//	{root}/.active
package template

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/harunnryd/coachviz/internal/errors"
)

const (
	MetadataFile        = "template.yaml"
	StyleGuideFile      = "style-guide.md"
	DomainKnowledgeFile = "domain-knowledge.md"
	ReferencesDir       = "references"
	ActiveReferenceFile = "active-reference"
	ActiveFile          = ".active"
	LockFile            = ".lock"
)

var segmentPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ID names a template as topic/style.
type ID struct {
	Topic string
	Style string
}

// ParseID accepts "topic/style". Segments are lower-cased and must be
// letters, digits, dashes or underscores.
func ParseID(s string) (ID, error) {
	topic, style, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "/")
	if !ok || strings.Contains(style, "/") {
		return ID{}, apperrors.InvalidInput(fmt.Sprintf("template id %q must be topic/style", s))
	}
	if !segmentPattern.MatchString(topic) || !segmentPattern.MatchString(style) {
		return ID{}, apperrors.InvalidInput(fmt.Sprintf("template id %q may only contain a-z, 0-9, - and _", s))
	}
	return ID{Topic: topic, Style: style}, nil
}

func (id ID) String() string {
	return id.Topic + "/" + id.Style
}

// Template is the metadata stored in template.yaml.
type Template struct {
	ID                string    `yaml:"-" json:"id"`
	Topic             string    `yaml:"topic" json:"topic"`
	Style             string    `yaml:"style" json:"style"`
	Name              string    `yaml:"name" json:"name"`
	Description       string    `yaml:"description,omitempty" json:"description,omitempty"`
	Audience          string    `yaml:"audience,omitempty" json:"audience,omitempty"`
	VisualPreferences string    `yaml:"visual_preferences,omitempty" json:"visual_preferences,omitempty"`
	AspectRatio       string    `yaml:"aspect_ratio,omitempty" json:"aspect_ratio,omitempty"`
	Tags              []string  `yaml:"tags,omitempty" json:"tags,omitempty"`
	CreatedAt         time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt         time.Time `yaml:"updated_at" json:"updated_at"`

	// Dir is the template directory; set on load.
	Dir string `yaml:"-" json:"dir"`
	// Active is set by List for the template recorded in .active.
	Active bool `yaml:"-" json:"active"`
}

// CreateInput holds the fields of a new template.
type CreateInput struct {
	ID                string
	Name              string
	Description       string
	Audience          string
	VisualPreferences string
	AspectRatio       string
	Tags              []string
	StyleGuide        string
	DomainKnowledge   string
}

// BuildPrompt prefixes the user prompt with the template's style guide and
// audience so single generations stay on-style.
func BuildPrompt(tmpl *Template, styleGuide, prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if tmpl == nil {
		return prompt
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Create a %s coaching image in the %q style.", tmpl.Topic, tmpl.Style)
	if tmpl.Audience != "" {
		fmt.Fprintf(&b, " Target audience: %s.", tmpl.Audience)
	}
	if tmpl.VisualPreferences != "" {
		fmt.Fprintf(&b, " Visual preferences: %s.", tmpl.VisualPreferences)
	}
	if guide := strings.TrimSpace(styleGuide); guide != "" {
		b.WriteString("\n\nStyle guide:\n")
		b.WriteString(guide)
	}
	b.WriteString("\n\nImage request:\n")
	b.WriteString(prompt)
	return b.String()
}

func defaultStyleGuide(tmpl *Template) string {
	return fmt.Sprintf(`# %s

Visual style guide for %s coaching images.

- Palette: high contrast, court colours true to the sport
- Rendering: clean illustration, no text in the image
- Framing: technique first, minimal background clutter
`, tmpl.Name, tmpl.Topic)
}
