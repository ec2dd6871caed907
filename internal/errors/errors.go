package errors

import (
	"errors"
)

// Sentinel errors for the generation taxonomy
var (
	// ErrConfiguration - no usable credentials or provider configuration (fail fast, nothing is sent upstream)
	ErrConfiguration = errors.New("configuration error")

	// ErrTransientProvider - HTTP non-2xx or network failure during one provider call (retried with backoff)
	ErrTransientProvider = errors.New("transient provider error")

	// ErrContent - provider answered but without the expected image payload (not retried)
	ErrContent = errors.New("content error")

	// ErrProviderUnhealthy - provider failed its readiness check and was skipped
	ErrProviderUnhealthy = errors.New("provider unhealthy")

	// ErrPartialGeneration - some reference images failed; the grid is still produced
	ErrPartialGeneration = errors.New("partial generation failure")

	// ErrTotalGeneration - no reference image succeeded; nothing is composited
	ErrTotalGeneration = errors.New("total generation failure")

	// ErrAllProvidersExhausted - every provider in the chain failed
	ErrAllProvidersExhausted = errors.New("all providers exhausted")

	// ErrInvalidInput - caller supplied an unusable value
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound - template, provider or file does not exist
	ErrNotFound = errors.New("not found")

	// ErrInternal - anything else
	ErrInternal = errors.New("internal error")
)

// Kind names an error category. Result values carry it next to their message.
type Kind string

const (
	KindNone                  Kind = ""
	KindConfiguration         Kind = "configuration"
	KindTransientProvider     Kind = "transient_provider"
	KindContent               Kind = "content"
	KindProviderUnhealthy     Kind = "provider_unhealthy"
	KindPartialGeneration     Kind = "partial_generation"
	KindTotalGeneration       Kind = "total_generation"
	KindAllProvidersExhausted Kind = "all_providers_exhausted"
	KindInvalidInput          Kind = "invalid_input"
	KindNotFound              Kind = "not_found"
	KindCanceled              Kind = "canceled"
	KindInternal              Kind = "internal"
)

var kindSentinels = []struct {
	kind     Kind
	sentinel error
}{
	{KindConfiguration, ErrConfiguration},
	{KindTransientProvider, ErrTransientProvider},
	{KindContent, ErrContent},
	{KindProviderUnhealthy, ErrProviderUnhealthy},
	{KindPartialGeneration, ErrPartialGeneration},
	{KindTotalGeneration, ErrTotalGeneration},
	{KindAllProvidersExhausted, ErrAllProvidersExhausted},
	{KindInvalidInput, ErrInvalidInput},
	{KindNotFound, ErrNotFound},
	{KindInternal, ErrInternal},
}

// Sentinel returns the sentinel error for a kind, or ErrInternal.
func (k Kind) Sentinel() error {
	for _, ks := range kindSentinels {
		if ks.kind == k {
			return ks.sentinel
		}
	}
	return ErrInternal
}

func (k Kind) String() string {
	return string(k)
}
