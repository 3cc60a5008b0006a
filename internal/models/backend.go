package models

import (
	"context"
	"errors"
	"image"
	"sync"
)

// Modality identifies one kind of classification output.
type Modality string

const (
	ModalityText      Modality = "text"
	ModalityLabel     Modality = "label"
	ModalityEmbedding Modality = "embedding"
)

// Modalities lists every modality in a fixed order.
var Modalities = []Modality{ModalityText, ModalityLabel, ModalityEmbedding}

// ErrDisabled is returned by loaders for modalities configured as "none".
var ErrDisabled = errors.New("backend disabled")

// ErrClosed is wrapped by backends called after Close.
var ErrClosed = errors.New("backend closed")

// Label is one classifier output.
type Label struct {
	Name       string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// TextBackend recognises text in an image.
type TextBackend interface {
	RecognizeText(ctx context.Context, img image.Image) (string, error)
}

// LabelBackend classifies the content of an image.
type LabelBackend interface {
	Classify(ctx context.Context, img image.Image) ([]Label, error)
}

// EmbeddingBackend maps an image to a fixed-length feature vector.
type EmbeddingBackend interface {
	Embed(ctx context.Context, img image.Image) ([]float32, error)
	// Dimensions is the length of every vector returned by Embed.
	Dimensions() int
}

// serialTextBackend guards a backend that must not be called concurrently.
type serialTextBackend struct {
	mu   sync.Mutex
	next TextBackend
}

func (s *serialTextBackend) RecognizeText(ctx context.Context, img image.Image) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.RecognizeText(ctx, img)
}

func (s *serialTextBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return closeIfCloser(s.next)
}

type serialLabelBackend struct {
	mu   sync.Mutex
	next LabelBackend
}

func (s *serialLabelBackend) Classify(ctx context.Context, img image.Image) ([]Label, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.Classify(ctx, img)
}

func (s *serialLabelBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return closeIfCloser(s.next)
}

type serialEmbeddingBackend struct {
	mu   sync.Mutex
	next EmbeddingBackend
}

func (s *serialEmbeddingBackend) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.Embed(ctx, img)
}

func (s *serialEmbeddingBackend) Dimensions() int {
	return s.next.Dimensions()
}

func (s *serialEmbeddingBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return closeIfCloser(s.next)
}

func closeIfCloser(v any) error {
	if c, ok := v.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
