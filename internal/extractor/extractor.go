// Package extractor turns decoded images into fixed-length visual embeddings.
// The concrete model is pluggable; the real implementation runs an ONNX image
// model, and MockExtractor provides a deterministic stand-in for tests.
package extractor

import (
	"context"
	"errors"
)

var (
	// ErrModelUnavailable is returned when the embedding model is not loaded
	// or failed to initialize. The condition may be transient; a later call
	// retries initialization.
	ErrModelUnavailable = errors.New("extractor: model unavailable")

	// ErrTimeout is returned when extraction exceeds its deadline.
	ErrTimeout = errors.New("extractor: extraction timed out")
)

// Extractor produces visual embeddings for image payloads. Extract must be
// deterministic for identical input under a fixed model and must never
// substitute a fallback vector on failure.
type Extractor interface {
	Extract(ctx context.Context, imageBytes []byte) ([]float32, error)
	Dimensions() int
	Close() error
}
