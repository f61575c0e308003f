package domain

import "errors"

var (
	// ErrNoEvidence is returned when a search produced no usable catalog record
	ErrNoEvidence = errors.New("no catalog evidence found")

	// ErrNoTokens is returned by a text token extractor that found no text
	ErrNoTokens = errors.New("no text tokens found")

	// ErrLowConfidence is returned when the best candidate is below a match threshold
	ErrLowConfidence = errors.New("match confidence below threshold")

	// ErrProviderMalformedResponse is returned when a suggestion provider reply cannot be decoded
	ErrProviderMalformedResponse = errors.New("malformed provider response")

	// ErrTransport is returned when an external service is unreachable or answers non-2xx
	ErrTransport = errors.New("external service request failed")

	// ErrDecode is returned when a catalog response body cannot be decoded
	ErrDecode = errors.New("failed to decode response")

	// ErrValidation is returned when caller input is rejected before any external call
	ErrValidation = errors.New("invalid request")

	// ErrCancelled is returned when the caller cancelled an in-flight resolution
	ErrCancelled = errors.New("operation cancelled")

	// ErrRateLimited is returned when rate limit is exceeded
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")
)
