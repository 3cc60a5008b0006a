package imaging

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	embedSide       = 64
	labBins         = 4
	layoutGrid      = 4
	orientationBins = 8

	colourDims = labBins * labBins * labBins
	layoutDims = layoutGrid * layoutGrid

	// HistogramDimensions is the length of every HistogramEmbedder vector.
	HistogramDimensions = colourDims + layoutDims + orientationBins

	// abRange is the Lab a/b span mapped onto bins; outliers land in the end bins.
	abRange = 0.6

	// minGradient drops near-flat pixels from the orientation histogram.
	minGradient = 0.05

	// layoutWeight keeps the 16 layout means from swamping the colour block.
	layoutWeight = 0.25
)

// ErrBlankImage is returned when an image has no opaque pixels to describe.
var ErrBlankImage = errors.New("image has no visible pixels")

// HistogramEmbedder computes a deterministic appearance embedding from colour,
// coarse layout and edge orientation. It implements models.EmbeddingBackend.
type HistogramEmbedder struct{}

// NewHistogramEmbedder returns a ready embedder. It needs no model weights.
func NewHistogramEmbedder() *HistogramEmbedder {
	return &HistogramEmbedder{}
}

// Dimensions returns HistogramDimensions.
func (e *HistogramEmbedder) Dimensions() int {
	return HistogramDimensions
}

// Embed returns the L2-normalised embedding of img.
//
// Pixels with alpha below 50% are ignored. An image with no remaining pixels
// yields ErrBlankImage rather than a zero vector.
func (e *HistogramEmbedder) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrBlankImage
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	small := imaging.Resize(img, embedSide, embedSide, imaging.Box)

	vec := make([]float64, HistogramDimensions)
	colour := vec[:colourDims]
	layout := vec[colourDims : colourDims+layoutDims]
	orient := vec[colourDims+layoutDims:]

	var visible int
	var cellCounts [layoutDims]int
	for y := 0; y < embedSide; y++ {
		for x := 0; x < embedSide; x++ {
			px := small.NRGBAAt(x, y)
			if px.A < 128 {
				continue
			}
			c, _ := colorful.MakeColor(color.NRGBA{R: px.R, G: px.G, B: px.B, A: 255})
			l, a, b := c.Lab()

			idx := labBin(l, 0, 1)*labBins*labBins + labBin(a, -abRange, abRange)*labBins + labBin(b, -abRange, abRange)
			colour[idx]++

			cell := (y*layoutGrid/embedSide)*layoutGrid + x*layoutGrid/embedSide
			layout[cell] += l
			cellCounts[cell]++
			visible++
		}
	}
	if visible == 0 {
		return nil, ErrBlankImage
	}

	for i := range colour {
		colour[i] /= float64(visible)
	}
	for i := range layout {
		if cellCounts[i] > 0 {
			layout[i] = layout[i] / float64(cellCounts[i]) * layoutWeight
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	field := Gradients(small, true)
	var total float64
	for y := 0; y < field.Height; y++ {
		for x := 0; x < field.Width; x++ {
			m := field.Magnitude[y][x]
			if m < minGradient {
				continue
			}
			// Orientation is unsigned: a light-to-dark edge and its reverse share a bin.
			theta := field.Direction[y][x]
			if theta < 0 {
				theta += math.Pi
			}
			bin := int(theta / math.Pi * orientationBins)
			if bin >= orientationBins {
				bin = orientationBins - 1
			}
			orient[bin] += m
			total += m
		}
	}
	if total > 0 {
		for i := range orient {
			orient[i] /= total
		}
	}

	return normalise(vec), nil
}

// labBin maps v in [lo, hi] onto one of labBins buckets.
func labBin(v, lo, hi float64) int {
	return clamp(int((v-lo)/(hi-lo)*labBins), 0, labBins-1)
}

// normalise scales vec to unit length and narrows it to float32.
func normalise(vec []float64) []float32 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)

	out := make([]float32, len(vec))
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}
