package config

import (
	"fmt"
	"strings"
	"time"
)

// DurationOrDefault parses a duration string and falls back to defaultValue when empty.
func DurationOrDefault(value string, defaultValue string) (time.Duration, error) {
	candidate := strings.TrimSpace(value)
	if candidate == "" {
		candidate = strings.TrimSpace(defaultValue)
	}
	if candidate == "" {
		return 0, fmt.Errorf("duration value is empty")
	}

	d, err := time.ParseDuration(candidate)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", candidate, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q is negative", candidate)
	}
	return d, nil
}

// Timings are the parsed generation and health durations.
type Timings struct {
	AttemptTimeout time.Duration
	ImageTimeout   time.Duration
	BaseDelay      time.Duration
	Pacing         time.Duration
	HealthTTL      time.Duration
}

func (c *Config) Timings() (Timings, error) {
	var t Timings
	var err error

	if t.AttemptTimeout, err = DurationOrDefault(c.Generation.AttemptTimeout, DefaultGenerationAttemptTimeout); err != nil {
		return Timings{}, fmt.Errorf("generation.attempt_timeout: %w", err)
	}
	if t.ImageTimeout, err = DurationOrDefault(c.Generation.ImageTimeout, DefaultGenerationImageTimeout); err != nil {
		return Timings{}, fmt.Errorf("generation.image_timeout: %w", err)
	}
	if t.BaseDelay, err = DurationOrDefault(c.Generation.BaseDelay, DefaultGenerationBaseDelay); err != nil {
		return Timings{}, fmt.Errorf("generation.base_delay: %w", err)
	}
	if t.Pacing, err = DurationOrDefault(c.Generation.Pacing, DefaultGenerationPacing); err != nil {
		return Timings{}, fmt.Errorf("generation.pacing: %w", err)
	}
	if t.HealthTTL, err = DurationOrDefault(c.Health.TTL, DefaultHealthTTL); err != nil {
		return Timings{}, fmt.Errorf("health.ttl: %w", err)
	}
	return t, nil
}
