package entity

import "errors"

var (
	// ErrStoreUnavailable wraps cache connectivity/write failures. These are
	// propagated to the caller, never silently swallowed.
	ErrStoreUnavailable = errors.New("asset store unavailable")

	// ErrUnsupportedCategory marks a provider asked to serve a category it
	// never registered for. Programmer error: returned, not retried.
	ErrUnsupportedCategory = errors.New("category not supported by provider")

	// ErrAssetNotFound is returned by query surfaces for unknown ids.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrProviderNotFound marks a configured provider name with no
	// registered constructor.
	ErrProviderNotFound = errors.New("provider not registered")
)
