//go:build cgo
// +build cgo

// ONNX-based feature extraction (requires CGO and the onnxruntime library).
package extractor

import (
	"context"
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/sync/singleflight"

	"github.com/lustra/kirameki/internal/imaging"
	"github.com/lustra/kirameki/pkg/utils"
)

// ONNXExtractor runs an ONNX image model to produce embeddings. The model
// session is initialized lazily on the first Extract call: concurrent first
// calls share a single initialization attempt, and a failed attempt is
// retried on a later call instead of poisoning the process.
type ONNXExtractor struct {
	modelPath  string
	dimensions int
	inputSize  int
	cache      *Cache

	initGroup singleflight.Group
	// mu guards the session fields and serializes Run, which reuses the
	// pre-allocated input/output tensors.
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewONNXExtractor creates an ONNX extractor. The model is not loaded here;
// the first Extract call initializes it.
func NewONNXExtractor(modelPath string, dimensions, inputSize, cacheSize int) *ONNXExtractor {
	if inputSize <= 0 {
		inputSize = 224
	}
	return &ONNXExtractor{
		modelPath:  modelPath,
		dimensions: dimensions,
		inputSize:  inputSize,
		cache:      NewCache(cacheSize),
	}
}

// ensureSession initializes the model session once. Concurrent callers wait
// for the in-flight attempt and share its outcome.
func (e *ONNXExtractor) ensureSession() error {
	e.mu.Lock()
	ready := e.session != nil
	e.mu.Unlock()
	if ready {
		return nil
	}
	_, err, _ := e.initGroup.Do("init", func() (interface{}, error) {
		return nil, e.initialize()
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return nil
}

func (e *ONNXExtractor) initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		return nil
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	inputData := make([]float32, 3*e.inputSize*e.inputSize)
	inputTensor, err := ort.NewTensor(ort.NewShape(1, 3, int64(e.inputSize), int64(e.inputSize)), inputData)
	if err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputData := make([]float32, e.dimensions)
	outputTensor, err := ort.NewTensor(ort.NewShape(1, int64(e.dimensions)), outputData)
	if err != nil {
		inputTensor.Destroy()
		return fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		e.modelPath,
		[]string{"images"},
		[]string{"embedding"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return fmt.Errorf("failed to create ONNX session: %w", err)
	}

	e.session = session
	e.inputTensor = inputTensor
	e.outputTensor = outputTensor
	return nil
}

// Extract decodes and resizes the image, runs inference, and returns the
// L2-normalized embedding. Results are cached by content hash.
func (e *ONNXExtractor) Extract(ctx context.Context, imageBytes []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := CacheKey(imageBytes)
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	mime, err := imaging.Validate(imageBytes, 0)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(imageBytes, mime)
	if err != nil {
		return nil, err
	}
	rgba := imaging.Resize(img, e.inputSize, e.inputSize)

	if err := e.ensureSession(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	fillTensor(e.inputTensor.GetData(), rgba, e.inputSize)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	embedding := make([]float32, e.dimensions)
	copy(embedding, e.outputTensor.GetData()[:e.dimensions])
	utils.NormalizeL2(embedding)
	e.cache.Set(key, embedding)
	return embedding, nil
}

// fillTensor writes the image into dst in NCHW layout with [0,1] channel values.
func fillTensor(dst []float32, img *image.RGBA, size int) {
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := img.PixOffset(x, y)
			j := y*size + x
			dst[j] = float32(img.Pix[i]) / 255.0
			dst[plane+j] = float32(img.Pix[i+1]) / 255.0
			dst[2*plane+j] = float32(img.Pix[i+2]) / 255.0
		}
	}
}

// Dimensions returns the embedding dimension.
func (e *ONNXExtractor) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and tensors. A closed extractor reinitializes
// on the next Extract call.
func (e *ONNXExtractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.inputTensor != nil {
		_ = e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		_ = e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	return err
}
