package reference

import (
	"fmt"
	"strings"
)

const DefaultAudience = "competitive"

const preamble = "Create a professional sports-coaching reference illustration. " +
	"It is one of four images that together define a consistent visual style for a coaching template."

// Variations are the four scenes of a reference grid, in grid order.
var Variations = []string{
	"Demonstration close-up: a single player performing the key technique, framed from the waist up so grip, racket face and body position are clearly visible.",
	"Elevated court layout: a three-quarter elevated view of the full court showing lines, net and player positions for the drill.",
	"Two-player rally: dynamic mid-rally action between two players, capturing footwork, spacing and shot preparation.",
	"Overhead drill setup: a top-down diagram-like view of the drill setup with cones, targets and movement paths.",
}

var audienceStyles = map[string]string{
	"beginner":     "friendly and approachable, bright colours, simplified shapes, large clear body positions",
	"intermediate": "clean and instructive, balanced colours, moderate detail that highlights technique checkpoints",
	"competitive":  "dynamic and athletic, strong contrast, realistic proportions and match-intensity energy",
	"elite":        "high-performance broadcast quality, precise biomechanics, cinematic lighting and fine detail",
	"junior":       "playful and energetic, vivid colours, young athletes, safe and encouraging atmosphere",
	"senior":       "calm and clear, comfortable pacing, high legibility, emphasis on control over power",
	"coach":        "analytical whiteboard style, annotated structure, neutral palette focused on teaching points",
}

var requirements = []string{
	"No text, letters, numbers or watermarks anywhere in the image.",
	"Sport-accurate equipment, court markings and proportions.",
	"High contrast between players, court and background.",
	"A clear focus on the technique being taught.",
}

// Audiences lists the supported audience categories.
func Audiences() []string {
	return []string{"beginner", "intermediate", "competitive", "elite", "junior", "senior", "coach"}
}

// AudienceStyle returns the visual style for audience, defaulting to the
// competitive style for unknown or empty values.
func AudienceStyle(audience string) string {
	if style, ok := audienceStyles[normalizeAudience(audience)]; ok {
		return style
	}
	return audienceStyles[DefaultAudience]
}

func normalizeAudience(audience string) string {
	a := strings.ToLower(strings.TrimSpace(audience))
	if _, ok := audienceStyles[a]; ok {
		return a
	}
	return DefaultAudience
}

// BuildPrompt assembles the prompt for one variation.
func BuildPrompt(variation string, opts Options) string {
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\nScene: ")
	b.WriteString(variation)

	fmt.Fprintf(&b, "\n\nTarget audience: %s", normalizeAudience(opts.Audience))
	fmt.Fprintf(&b, "\nVisual style: %s", AudienceStyle(opts.Audience))

	if d := strings.TrimSpace(opts.Description); d != "" {
		fmt.Fprintf(&b, "\nStyle description: %s", d)
	}
	if p := strings.TrimSpace(opts.VisualPreferences); p != "" {
		fmt.Fprintf(&b, "\nVisual preferences: %s", p)
	}

	b.WriteString("\n\nRequirements:")
	for _, r := range requirements {
		b.WriteString("\n- ")
		b.WriteString(r)
	}
	return b.String()
}
