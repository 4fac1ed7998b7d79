package extractor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/lustra/kirameki/internal/imaging"
)

func encodeTestPNG(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: seed, G: uint8(x * 60), B: uint8(y * 60), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestMockExtractor_Deterministic(t *testing.T) {
	e := NewMockExtractor(128)
	ctx := context.Background()
	data := encodeTestPNG(t, 10)

	a, err := e.Extract(ctx, data)
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Extract(ctx, data)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 128 {
		t.Fatalf("len=%d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding differs at %d for identical input", i)
		}
	}
}

func TestMockExtractor_DistinctInputs(t *testing.T) {
	e := NewMockExtractor(64)
	ctx := context.Background()

	a, _ := e.Extract(ctx, encodeTestPNG(t, 1))
	b, _ := e.Extract(ctx, encodeTestPNG(t, 200))
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different images produced identical embeddings")
	}
}

func TestMockExtractor_UnitNorm(t *testing.T) {
	e := NewMockExtractor(32)
	emb, err := e.Extract(context.Background(), encodeTestPNG(t, 42))
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for _, v := range emb {
		sum += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(sum)-1) > 1e-5 {
		t.Errorf("norm=%v, want 1", math.Sqrt(sum))
	}
}

func TestMockExtractor_RejectsNonImage(t *testing.T) {
	e := NewMockExtractor(16)
	_, err := e.Extract(context.Background(), []byte("not an image at all"))
	if !errors.Is(err, imaging.ErrUnsupportedFormat) {
		t.Errorf("err=%v, want ErrUnsupportedFormat", err)
	}
}

func TestMockExtractor_Cancellation(t *testing.T) {
	e := NewMockExtractor(16)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Extract(ctx, encodeTestPNG(t, 1)); err == nil {
		t.Error("expected context error")
	}
}
