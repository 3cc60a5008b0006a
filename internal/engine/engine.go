package engine

import (
	"context"
	"image"
	"io"
	"log/slog"

	"github.com/ironsheep/lens-match/internal/imaging"
	"github.com/ironsheep/lens-match/internal/models"
	"github.com/ironsheep/lens-match/internal/rules"
	"golang.org/x/sync/errgroup"
)

// TextExtractor returns normalised recognised text, "" on failure.
type TextExtractor interface {
	ExtractText(ctx context.Context, img image.Image) string
}

// LabelExtractor returns ranked lowercase labels, empty on failure.
type LabelExtractor interface {
	ExtractLabels(ctx context.Context, img image.Image) []models.Label
}

// EmbeddingExtractor returns the image embedding, nil on failure.
type EmbeddingExtractor interface {
	ExtractEmbedding(ctx context.Context, img image.Image) []float32
}

// Extractors bundles the per-modality extractors. A nil extractor behaves as a
// modality that always fails.
type Extractors struct {
	Text      TextExtractor
	Labels    LabelExtractor
	Embedding EmbeddingExtractor
}

// Engine evaluates ordered rule lists against images.
type Engine struct {
	ex         Extractors
	logger     *slog.Logger
	labelFloor float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for rule-evaluation diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithLabelConfidenceFloor ignores labels below floor when evaluating label
// rules. The default of 0 accepts every label in the list.
func WithLabelConfidenceFloor(floor float64) Option {
	return func(e *Engine) { e.labelFloor = floor }
}

// New creates an Engine over ex.
func New(ex Extractors, opts ...Option) *Engine {
	e := &Engine{
		ex:     ex,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Demand records which modalities a rule list needs.
type Demand struct {
	Text      bool
	Labels    bool
	Embedding bool
}

// Any reports whether at least one modality is needed.
func (d Demand) Any() bool {
	return d.Text || d.Labels || d.Embedding
}

// DemandFor scans rs once. Similarity rules without a reference embedding do
// not create embedding demand because they can never match.
func DemandFor(rs []rules.Rule) Demand {
	var d Demand
	for _, r := range rs {
		switch r.Kind {
		case rules.KindTextContains:
			d.Text = true
		case rules.KindLabelContains:
			d.Labels = true
		case rules.KindEmbeddingSimilarity:
			if r.HasReference() {
				d.Embedding = true
			}
		}
	}
	return d
}

// Classification holds the extractor outputs for one analysis. Fields for
// modalities that were not needed, or that failed, are zero.
type Classification struct {
	Text      string         `json:"text"`
	Labels    []models.Label `json:"labels"`
	Embedding []float32      `json:"embedding,omitempty"`
}

// Classify runs every extractor d asks for, once each and concurrently, and
// waits for all of them. If ctx is already done nothing is started.
func (e *Engine) Classify(ctx context.Context, img image.Image, d Demand) Classification {
	var c Classification
	if ctx.Err() != nil {
		return c
	}

	var g errgroup.Group
	if d.Text && e.ex.Text != nil {
		g.Go(func() error {
			c.Text = e.ex.Text.ExtractText(ctx, img)
			return nil
		})
	}
	if d.Labels && e.ex.Labels != nil {
		g.Go(func() error {
			c.Labels = e.ex.Labels.ExtractLabels(ctx, img)
			return nil
		})
	}
	if d.Embedding && e.ex.Embedding != nil {
		g.Go(func() error {
			c.Embedding = e.ex.Embedding.ExtractEmbedding(ctx, img)
			return nil
		})
	}
	_ = g.Wait()
	return c
}

// Analyze returns the id of the first rule in rs that img satisfies.
// An empty rule list returns immediately without running any extractor.
func (e *Engine) Analyze(ctx context.Context, img image.Image, rs []rules.Rule) (string, bool) {
	d := DemandFor(rs)
	if !d.Any() {
		return "", false
	}
	c := e.Classify(ctx, img, d)
	return e.Evaluate(c, rs)
}

// AnalyzeReader decodes an image from r and analyses it. A decode failure is
// returned as an error wrapping imaging.ErrDecode; every other outcome,
// including backend failures, is a plain match or no match.
func (e *Engine) AnalyzeReader(ctx context.Context, r io.Reader, rs []rules.Rule) (string, bool, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return "", false, err
	}
	id, ok := e.Analyze(ctx, img, rs)
	return id, ok, nil
}
