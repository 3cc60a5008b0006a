package imaging

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHistogramEmbedder_Shape(t *testing.T) {
	e := NewHistogramEmbedder()
	if e.Dimensions() != 88 {
		t.Fatalf("Dimensions: got %d, want 88", e.Dimensions())
	}

	vec, err := e.Embed(context.Background(), createPatternImage(100, 80))
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != HistogramDimensions {
		t.Fatalf("length: got %d, want %d", len(vec), HistogramDimensions)
	}

	var sum float64
	for _, v := range vec {
		if v < 0 {
			t.Fatalf("negative component %f", v)
		}
		sum += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(sum)-1) > 1e-5 {
		t.Errorf("norm: got %f, want 1", math.Sqrt(sum))
	}
}

func TestHistogramEmbedder_Deterministic(t *testing.T) {
	e := NewHistogramEmbedder()
	img := createPatternImage(120, 90)

	a, err := e.Embed(context.Background(), img)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	b, err := e.Embed(context.Background(), img)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("component %d differs: %f vs %f", i, a[i], b[i])
		}
	}
	if s := cosine(a, b); math.Abs(s-1) > 1e-6 {
		t.Errorf("self similarity: got %f, want 1", s)
	}
}

func TestHistogramEmbedder_Discriminates(t *testing.T) {
	e := NewHistogramEmbedder()
	ctx := context.Background()

	red, _ := e.Embed(ctx, createInMemoryImage(64, 64, color.RGBA{200, 30, 30, 255}))
	redder, _ := e.Embed(ctx, createInMemoryImage(64, 64, color.RGBA{205, 28, 32, 255}))
	blue, _ := e.Embed(ctx, createInMemoryImage(64, 64, color.RGBA{20, 40, 220, 255}))

	same := cosine(red, redder)
	diff := cosine(red, blue)
	if same <= diff {
		t.Errorf("similar reds (%f) should score above red vs blue (%f)", same, diff)
	}
	if same < 0.95 {
		t.Errorf("near-identical colours: got %f, want >= 0.95", same)
	}
}

func TestHistogramEmbedder_SizeInvariant(t *testing.T) {
	e := NewHistogramEmbedder()
	ctx := context.Background()

	small, _ := e.Embed(ctx, createPatternImage(64, 64))
	large, _ := e.Embed(ctx, createPatternImage(640, 640))
	if s := cosine(small, large); s < 0.98 {
		t.Errorf("rescaled image similarity: got %f, want >= 0.98", s)
	}
}

func TestHistogramEmbedder_Errors(t *testing.T) {
	e := NewHistogramEmbedder()

	transparent := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	if _, err := e.Embed(context.Background(), transparent); !errors.Is(err, ErrBlankImage) {
		t.Errorf("transparent image: got %v, want ErrBlankImage", err)
	}

	if _, err := e.Embed(context.Background(), image.NewRGBA(image.Rect(0, 0, 0, 0))); !errors.Is(err, ErrBlankImage) {
		t.Errorf("empty image: got %v, want ErrBlankImage", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Embed(ctx, createPatternImage(10, 10)); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context: got %v, want context.Canceled", err)
	}
}
