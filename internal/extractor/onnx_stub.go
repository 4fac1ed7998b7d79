//go:build !cgo
// +build !cgo

package extractor

import (
	"context"
	"fmt"
)

// ONNXExtractor stub type when built without CGO (see onnx.go for the real
// implementation).
type ONNXExtractor struct {
	dimensions int
}

// NewONNXExtractor returns an extractor whose Extract always reports the
// model as unavailable when built without CGO.
func NewONNXExtractor(_ string, dimensions, _, _ int) *ONNXExtractor {
	return &ONNXExtractor{dimensions: dimensions}
}

// Extract always fails: ONNX requires CGO and the onnxruntime library.
func (e *ONNXExtractor) Extract(_ context.Context, _ []byte) ([]float32, error) {
	return nil, fmt.Errorf("%w: built without CGO; build with CGO_ENABLED=1 and onnxruntime", ErrModelUnavailable)
}

// Dimensions returns the configured embedding dimension.
func (e *ONNXExtractor) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for the stub.
func (e *ONNXExtractor) Close() error {
	return nil
}
