// Package extract adapts the model runtime's backends into the three feature
// extractors the matching engine consumes.
//
// Extractors never return errors. A backend that fails to load or to run
// contributes an empty result (text ""), an empty label list, or an absent
// (nil) embedding, and the failure is logged. One modality failing therefore
// never blocks rules of another kind.
package extract

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/ironsheep/lens-match/internal/models"
)

// logFailure records an extraction failure. Disabled backends and abandoned
// calls are expected and logged at debug; everything else is a warning.
func logFailure(logger *slog.Logger, m models.Modality, stage string, err error) {
	if errors.Is(err, models.ErrDisabled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Debug("extraction skipped", "modality", m, "stage", stage, "error", err)
		return
	}
	logger.Warn("extraction failed", "modality", m, "stage", stage, "error", err)
}

// Text runs the text backend.
type Text struct {
	rt     *models.Runtime
	logger *slog.Logger
}

// NewText returns a text extractor over rt.
func NewText(rt *models.Runtime, logger *slog.Logger) *Text {
	return &Text{rt: rt, logger: logger}
}

// ExtractText returns the recognised text, lowercased, with every run of
// whitespace collapsed to one space. It returns "" on any failure.
//
// When inference fails on a loaded backend, that backend is invalidated so the
// next call starts from a fresh Tesseract handle. A failure on a backend that
// was already closed or replaced leaves the current one untouched.
func (t *Text) ExtractText(ctx context.Context, img image.Image) string {
	backend, err := t.rt.Text(ctx)
	if err != nil {
		logFailure(t.logger, models.ModalityText, "load", err)
		return ""
	}

	raw, err := backend.RecognizeText(ctx, img)
	if err != nil {
		logFailure(t.logger, models.ModalityText, "run", err)
		if ctx.Err() == nil && !errors.Is(err, models.ErrClosed) {
			if _, ierr := t.rt.InvalidateIf(models.ModalityText, backend); ierr != nil {
				t.logger.Warn("failed to reset text backend", "error", ierr)
			}
		}
		return ""
	}
	return NormalizeText(raw)
}

// NormalizeText lowercases s and collapses whitespace runs to single spaces.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Labels runs the label backend.
type Labels struct {
	rt     *models.Runtime
	logger *slog.Logger
}

// NewLabels returns a label extractor over rt.
func NewLabels(rt *models.Runtime, logger *slog.Logger) *Labels {
	return &Labels{rt: rt, logger: logger}
}

// ExtractLabels returns lowercased labels ranked by descending confidence.
// It returns an empty list on any failure.
func (l *Labels) ExtractLabels(ctx context.Context, img image.Image) []models.Label {
	backend, err := l.rt.Labels(ctx)
	if err != nil {
		logFailure(l.logger, models.ModalityLabel, "load", err)
		return []models.Label{}
	}

	raw, err := backend.Classify(ctx, img)
	if err != nil {
		logFailure(l.logger, models.ModalityLabel, "run", err)
		return []models.Label{}
	}
	return NormalizeLabels(raw)
}

// NormalizeLabels lowercases and trims label names, expands comma-separated
// synonym lists ("coffee mug, cup") into one entry per synonym with the same
// confidence, drops blanks and duplicates, and ranks by confidence (stable).
// NaN confidences rank last as 0.
func NormalizeLabels(raw []models.Label) []models.Label {
	out := make([]models.Label, 0, len(raw))
	for _, l := range raw {
		conf := l.Confidence
		if math.IsNaN(conf) {
			conf = 0
		}
		for _, part := range strings.Split(l.Name, ",") {
			name := strings.ToLower(strings.TrimSpace(part))
			if name == "" {
				continue
			}
			out = append(out, models.Label{Name: name, Confidence: conf})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})

	seen := make(map[string]bool, len(out))
	ranked := out[:0]
	for _, l := range out {
		if seen[l.Name] {
			continue
		}
		seen[l.Name] = true
		ranked = append(ranked, l)
	}
	return ranked
}

// Embedding runs the embedding backend.
type Embedding struct {
	rt     *models.Runtime
	logger *slog.Logger
}

// NewEmbedding returns an embedding extractor over rt.
func NewEmbedding(rt *models.Runtime, logger *slog.Logger) *Embedding {
	return &Embedding{rt: rt, logger: logger}
}

// ExtractEmbedding returns the image embedding, or nil when it is absent:
// backend failure, an empty vector, a length other than the backend's
// declared Dimensions, or any non-finite component. It never returns a zero
// vector in place of a failure.
func (e *Embedding) ExtractEmbedding(ctx context.Context, img image.Image) []float32 {
	backend, err := e.rt.Embeddings(ctx)
	if err != nil {
		logFailure(e.logger, models.ModalityEmbedding, "load", err)
		return nil
	}

	vec, err := backend.Embed(ctx, img)
	if err != nil {
		logFailure(e.logger, models.ModalityEmbedding, "run", err)
		return nil
	}
	if len(vec) == 0 {
		e.logger.Warn("extraction failed", "modality", models.ModalityEmbedding, "stage", "run", "error", "empty vector")
		return nil
	}
	if dims := backend.Dimensions(); dims > 0 && len(vec) != dims {
		e.logger.Warn("extraction failed", "modality", models.ModalityEmbedding, "stage", "run",
			"error", "dimension mismatch", "got", len(vec), "want", dims)
		return nil
	}
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			e.logger.Warn("extraction failed", "modality", models.ModalityEmbedding, "stage", "run", "error", "non-finite value")
			return nil
		}
	}
	return vec
}
