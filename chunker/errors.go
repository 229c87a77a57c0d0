package chunker

import "errors"

// Common chunker configuration errors.
var (
	// ErrInvalidChunkSize indicates target or min chunk size is invalid (<=0).
	ErrInvalidChunkSize = errors.New("chunk size must be positive")

	// ErrChunkSizeExceedsMax indicates max is missing or smaller than target.
	ErrChunkSizeExceedsMax = errors.New("max chunk size must be >= target")

	// ErrInvalidOverlap indicates base overlap is invalid (<0).
	ErrInvalidOverlap = errors.New("overlap must be non-negative")

	// ErrOverlapTooLarge indicates base overlap is >= target chunk size.
	ErrOverlapTooLarge = errors.New("overlap must be less than target chunk size")
)
