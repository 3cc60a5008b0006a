package imaging

import (
	"image"
	"math"
)

// GradientField holds per-pixel Sobel gradients of an image's luminance.
//
// Rows are indexed [y][x] relative to the image's top-left corner.
type GradientField struct {
	Width  int
	Height int

	// Magnitude is sqrt(Gx² + Gy²) on luminance normalised to 0-1.
	Magnitude [][]float64

	// Direction is atan2(Gy, Gx) in radians (-π to π).
	Direction [][]float64
}

// Gradients computes the Sobel gradient field of img.
//
// When blur is true a 5x5 Gaussian is applied first, which suppresses sensor
// noise in photographs at the cost of softening thin strokes.
func Gradients(img image.Image, blur bool) *GradientField {
	gray := Luminance(img)
	height := len(gray)
	width := 0
	if height > 0 {
		width = len(gray[0])
	}
	if blur {
		gray = gaussianBlur(gray, width, height)
	}

	sobelX := [3][3]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}
	sobelY := [3][3]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}

	field := &GradientField{
		Width:     width,
		Height:    height,
		Magnitude: make([][]float64, height),
		Direction: make([][]float64, height),
	}

	for y := 0; y < height; y++ {
		field.Magnitude[y] = make([]float64, width)
		field.Direction[y] = make([]float64, width)
		for x := 0; x < width; x++ {
			var gx, gy float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					v := gray[clamp(y+ky, 0, height-1)][clamp(x+kx, 0, width-1)]
					gx += v * sobelX[ky+1][kx+1]
					gy += v * sobelY[ky+1][kx+1]
				}
			}
			field.Magnitude[y][x] = math.Sqrt(gx*gx + gy*gy)
			field.Direction[y][x] = math.Atan2(gy, gx)
		}
	}
	return field
}

// Luminance converts img to a [y][x] grid of ITU-R BT.601 luma values in 0-1.
func Luminance(img image.Image) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, height)
	for y := 0; y < height; y++ {
		gray[y] = make([]float64, width)
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			gray[y][x] = (0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)) / 255.0
		}
	}
	return gray
}

// gaussianBlur applies a 5x5 Gaussian blur (sigma ≈ 1.4, kernel sum 273).
// Border pixels use clamped (replicated) edge values.
func gaussianBlur(img [][]float64, width, height int) [][]float64 {
	kernel := [5][5]float64{
		{1, 4, 7, 4, 1},
		{4, 16, 26, 16, 4},
		{7, 26, 41, 26, 7},
		{4, 16, 26, 16, 4},
		{1, 4, 7, 4, 1},
	}

	result := make([][]float64, height)
	for y := 0; y < height; y++ {
		result[y] = make([]float64, width)
		for x := 0; x < width; x++ {
			var sum float64
			for ky := -2; ky <= 2; ky++ {
				for kx := -2; kx <= 2; kx++ {
					sum += img[clamp(y+ky, 0, height-1)][clamp(x+kx, 0, width-1)] * kernel[ky+2][kx+2]
				}
			}
			result[y][x] = sum / 273.0
		}
	}
	return result
}

// clamp constrains val to [lo, hi].
func clamp(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
