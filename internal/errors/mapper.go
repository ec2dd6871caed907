package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// KindOf returns the category of err by walking its wrap chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// a deadline on a single provider call is transient, a cancelled chain is not
		if errors.Is(err, ErrTransientProvider) {
			return KindTransientProvider
		}
		return KindCanceled
	}

	for _, ks := range kindSentinels {
		if errors.Is(err, ks.sentinel) {
			return ks.kind
		}
	}
	return KindInternal
}

// Classify maps free-form failure output (for example the stderr of a provider
// subprocess) to a category.
func Classify(output string) Kind {
	text := strings.ToLower(output)

	switch {
	case strings.Contains(text, "no image data"), strings.Contains(text, "no image in response"), strings.Contains(text, "content error"):
		return KindContent

	case strings.Contains(text, "api key"), strings.Contains(text, "credential"), strings.Contains(text, "configuration error"):
		return KindConfiguration

	case strings.Contains(text, "rate limit"), strings.Contains(text, "quota"), strings.Contains(text, "too many requests"),
		strings.Contains(text, "timeout"), strings.Contains(text, "deadline exceeded"),
		strings.Contains(text, "network"), strings.Contains(text, "connection"), strings.Contains(text, "unavailable"):
		return KindTransientProvider

	case strings.Contains(text, "invalid input"), strings.Contains(text, "bad request"):
		return KindInvalidInput

	case strings.Contains(text, "not found"), strings.Contains(text, "does not exist"):
		return KindNotFound

	default:
		return KindInternal
	}
}

// IsRetryable reports whether a single provider call may be attempted again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransientProvider)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w", message, err)
}

// WrapWithCategory tags err with category while keeping err in the chain.
func WrapWithCategory(err error, message string, category error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w: %w", message, category, err)
}

// Configuration wraps message as a configuration error
func Configuration(message string) error {
	return fmt.Errorf("%s: %w", message, ErrConfiguration)
}

// Transient wraps message as a transient provider error
func Transient(message string) error {
	return fmt.Errorf("%s: %w", message, ErrTransientProvider)
}

// Content wraps message as a content error
func Content(message string) error {
	return fmt.Errorf("%s: %w", message, ErrContent)
}

// Unhealthy wraps message as a provider-unhealthy error
func Unhealthy(message string) error {
	return fmt.Errorf("%s: %w", message, ErrProviderUnhealthy)
}

// NotFound wraps message as not found
func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

// InvalidInput wraps message as invalid input
func InvalidInput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidInput)
}
