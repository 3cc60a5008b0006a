// Package lens wires configuration, backends, the matching engine and the
// rule store into the recognition service used by every front end.
package lens

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ironsheep/lens-match/internal/config"
	"github.com/ironsheep/lens-match/internal/detection"
	"github.com/ironsheep/lens-match/internal/engine"
	"github.com/ironsheep/lens-match/internal/extract"
	"github.com/ironsheep/lens-match/internal/imaging"
	"github.com/ironsheep/lens-match/internal/models"
	"github.com/ironsheep/lens-match/internal/ocr"
	"github.com/ironsheep/lens-match/internal/ollama"
)

// NewRuntime builds a model runtime with the backends named in cfg. Nothing
// is loaded until first use or Service.Warmup.
func NewRuntime(cfg *config.Config, logger *slog.Logger) (*models.Runtime, error) {
	var l models.Loaders

	switch cfg.Text.Backend {
	case config.BackendTesseract:
		opts := ocr.Options{
			Languages:      cfg.Text.Languages,
			TessdataPrefix: cfg.Text.TessdataPrefix,
			Preprocess:     true,
		}
		l.Text = models.Loader[models.TextBackend]{
			Load: func(ctx context.Context) (models.TextBackend, error) {
				r, err := ocr.New(opts)
				if err != nil {
					return nil, err
				}
				return r, nil
			},
			Concurrent: true,
		}
	case config.BackendNone:
	default:
		return nil, fmt.Errorf("unknown text backend: %q", cfg.Text.Backend)
	}

	switch cfg.Labels.Backend {
	case config.BackendOllama:
		client := ollama.New(cfg.Labels.OllamaURL,
			ollama.WithTimeout(time.Duration(cfg.Labels.TimeoutSeconds)*time.Second))
		model, topK := cfg.Labels.VisionModel, cfg.Labels.TopK
		l.Label = models.Loader[models.LabelBackend]{
			Load: func(ctx context.Context) (models.LabelBackend, error) {
				if err := ollama.EnsureModel(ctx, client, model, logger); err != nil {
					return nil, err
				}
				return ollama.NewLabeler(client, model, topK), nil
			},
			Concurrent: true,
		}
	case config.BackendScene:
		opts := detection.DefaultSceneOptions()
		opts.MaxColors = cfg.Labels.TopK
		l.Label = models.Loader[models.LabelBackend]{
			Load: func(ctx context.Context) (models.LabelBackend, error) {
				return detection.NewSceneLabeler(opts), nil
			},
			Concurrent: true,
		}
	case config.BackendNone:
	default:
		return nil, fmt.Errorf("unknown label backend: %q", cfg.Labels.Backend)
	}

	switch cfg.Embedding.Backend {
	case config.BackendHistogram:
		l.Embedding = models.Loader[models.EmbeddingBackend]{
			Load: func(ctx context.Context) (models.EmbeddingBackend, error) {
				return imaging.NewHistogramEmbedder(), nil
			},
			Concurrent: true,
		}
	case config.BackendNone:
	default:
		return nil, fmt.Errorf("unknown embedding backend: %q", cfg.Embedding.Backend)
	}

	return models.New(l), nil
}

// NewEngine returns a matching engine whose extractors draw from rt.
func NewEngine(rt *models.Runtime, floor float64, logger *slog.Logger) *engine.Engine {
	return engine.New(engine.Extractors{
		Text:      extract.NewText(rt, logger),
		Labels:    extract.NewLabels(rt, logger),
		Embedding: extract.NewEmbedding(rt, logger),
	}, engine.WithLogger(logger), engine.WithLabelConfidenceFloor(floor))
}
