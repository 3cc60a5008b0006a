package ocr

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/ironsheep/lens-match/internal/imaging"
	"github.com/ironsheep/lens-match/internal/models"
	"github.com/otiai10/gosseract/v2"
)

// DefaultLanguage is used when Options.Languages is empty.
const DefaultLanguage = "eng"

// ErrClosed is returned by RecognizeText after Close.
var ErrClosed = fmt.Errorf("ocr recognizer: %w", models.ErrClosed)

// Options configures a Recognizer.
type Options struct {
	// Languages are Tesseract language codes, e.g. "eng". Defaults to DefaultLanguage.
	Languages []string

	// TessdataPrefix overrides the directory Tesseract loads traineddata from.
	TessdataPrefix string

	// Preprocess converts frames to sharpened grayscale before recognition.
	Preprocess bool
}

// Recognizer extracts text from images with a reusable Tesseract handle.
// It implements models.TextBackend.
type Recognizer struct {
	mu         sync.Mutex
	client     *gosseract.Client
	preprocess bool
	closed     bool
}

// New creates a Recognizer and verifies that Tesseract can run with the
// requested languages.
//
// Returns:
//   - *Recognizer: A ready recognizer. The caller must Close it.
//   - error: Non-nil if the language or tessdata cannot be loaded.
func New(opts Options) (*Recognizer, error) {
	langs := opts.Languages
	if len(langs) == 0 {
		langs = []string{DefaultLanguage}
	}

	client := gosseract.NewClient()
	if opts.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(opts.TessdataPrefix); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(langs...); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set language: %w", err)
	}

	r := &Recognizer{client: client, preprocess: opts.Preprocess}
	if err := r.probe(); err != nil {
		client.Close()
		return nil, err
	}
	return r, nil
}

// probe forces Tesseract initialisation on a blank page.
func (r *Recognizer) probe() error {
	blank := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range blank.Pix {
		blank.Pix[i] = uint8(color.White.Y >> 8)
	}
	data, err := imaging.EncodePNG(blank)
	if err != nil {
		return err
	}
	if err := r.client.SetImageFromBytes(data); err != nil {
		return fmt.Errorf("failed to initialise tesseract: %w", err)
	}
	if _, err := r.client.Text(); err != nil {
		return fmt.Errorf("failed to initialise tesseract: %w", err)
	}
	return nil
}

// RecognizeText returns the text Tesseract reads in img, trimmed of
// surrounding whitespace. An image with no text yields "" and no error.
func (r *Recognizer) RecognizeText(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	src := img
	if r.preprocess {
		src = imaging.PrepareForOCR(img)
	}
	data, err := imaging.EncodePNG(src)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := r.client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}
	text, err := r.client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Close releases the Tesseract handle. It is safe to call more than once.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}

// Info describes OCR availability on this host.
type Info struct {
	Available bool     `json:"available"`
	Version   string   `json:"version,omitempty"`
	Languages []string `json:"languages"`
	Error     string   `json:"error,omitempty"`
	Backend   string   `json:"backend"`
}

// Probe reports whether a Recognizer could be created with opts.
func Probe(opts Options) Info {
	info := Info{Backend: "gosseract", Languages: opts.Languages}
	if len(info.Languages) == 0 {
		info.Languages = []string{DefaultLanguage}
	}

	r, err := New(opts)
	if err != nil {
		info.Error = err.Error()
		return info
	}
	defer r.Close()

	info.Available = true
	info.Version = r.client.Version()
	return info
}
