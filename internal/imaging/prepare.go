package imaging

import (
	"bytes"
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
)

// ocrMinWidth is the width small images are upscaled towards before OCR.
// Tesseract recognises glyphs poorly below roughly 20px cap height.
const ocrMinWidth = 1000

// Fit downsizes img so that neither side exceeds maxSide, preserving aspect
// ratio. Images already within bounds, or a non-positive maxSide, return img
// unchanged.
func Fit(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	if maxSide <= 0 || (b.Dx() <= maxSide && b.Dy() <= maxSide) {
		return img
	}
	return imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
}

// PrepareForOCR returns a grayscale, contrast-boosted, sharpened copy of img.
//
// Narrow images are upscaled by an integer factor of at most 3 first, which
// helps Tesseract with small captions photographed from a distance.
func PrepareForOCR(img image.Image) image.Image {
	b := img.Bounds()
	if w := b.Dx(); w > 0 && w < ocrMinWidth {
		factor := ocrMinWidth / w
		if factor > 3 {
			factor = 3
		}
		if factor > 1 {
			img = imaging.Resize(img, w*factor, 0, imaging.CatmullRom)
		}
	}

	var out image.Image = effect.Grayscale(img)
	out = adjust.Contrast(out, 0.3)
	out = effect.Sharpen(out)
	return out
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJPEG encodes img as JPEG at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
