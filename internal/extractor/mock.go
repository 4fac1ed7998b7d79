package extractor

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/lustra/kirameki/internal/imaging"
	"github.com/lustra/kirameki/pkg/utils"
)

// MockExtractor is a deterministic extractor for tests and model-less
// deployments. It derives a fixed-dimension unit vector from the image hash,
// so identical bytes always map to the same embedding. It still enforces the
// format allow-list and decodes the payload, exercising the full path.
type MockExtractor struct {
	dimensions int
}

// NewMockExtractor returns an extractor producing deterministic embeddings
// of the given dimensionality.
func NewMockExtractor(dimensions int) *MockExtractor {
	if dimensions <= 0 {
		dimensions = 128
	}
	return &MockExtractor{dimensions: dimensions}
}

// Extract returns a deterministic embedding derived from the payload hash.
func (e *MockExtractor) Extract(ctx context.Context, imageBytes []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mime, err := imaging.Validate(imageBytes, 0)
	if err != nil {
		return nil, err
	}
	if _, err := imaging.Decode(imageBytes, mime); err != nil {
		return nil, err
	}

	h := fnv.New64a()
	_, _ = h.Write(imageBytes)
	seed := h.Sum64()

	emb := make([]float32, e.dimensions)
	for i := range emb {
		emb[i] = float32(math.Sin(float64(seed%104729)*float64(i+1))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *MockExtractor) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockExtractor.
func (e *MockExtractor) Close() error {
	return nil
}
