package loader

import (
	"fmt"

	"slideshow/internal/cache"
)

// SourceReadError reports a missing, unreadable or oversized source
type SourceReadError struct {
	Key cache.RequestKey
	Err error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Key.SourceID, e.Err)
}

func (e *SourceReadError) Unwrap() error {
	return e.Err
}

// DecodeError reports a payload that could not be decoded or resampled
type DecodeError struct {
	Key  cache.RequestKey
	Tier cache.QualityTier
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s (%s): %v", e.Key, e.Tier, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
