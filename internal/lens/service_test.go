package lens

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ironsheep/lens-match/internal/config"
	"github.com/ironsheep/lens-match/internal/imaging"
	"github.com/ironsheep/lens-match/internal/logging"
	"github.com/ironsheep/lens-match/internal/models"
	"github.com/ironsheep/lens-match/internal/rules"
	"github.com/ironsheep/lens-match/internal/store"
)

type stubText struct{ text string }

func (s stubText) RecognizeText(ctx context.Context, img image.Image) (string, error) {
	return s.text, nil
}

type stubLabels struct{ labels []models.Label }

func (s stubLabels) Classify(ctx context.Context, img image.Image) ([]models.Label, error) {
	return s.labels, nil
}

type stubEmbedder struct {
	vec []float32
	err error
}

func (s stubEmbedder) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	return s.vec, s.err
}

func (s stubEmbedder) Dimensions() int { return len(s.vec) }

func loaders(text string, labels []models.Label, emb *stubEmbedder) models.Loaders {
	l := models.Loaders{
		Text: models.Loader[models.TextBackend]{
			Load:       func(ctx context.Context) (models.TextBackend, error) { return stubText{text}, nil },
			Concurrent: true,
		},
		Label: models.Loader[models.LabelBackend]{
			Load:       func(ctx context.Context) (models.LabelBackend, error) { return stubLabels{labels}, nil },
			Concurrent: true,
		},
	}
	if emb != nil {
		l.Embedding = models.Loader[models.EmbeddingBackend]{
			Load:       func(ctx context.Context) (models.EmbeddingBackend, error) { return *emb, nil },
			Concurrent: true,
		}
	}
	return l
}

func newTestService(t *testing.T, l models.Loaders) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	rt := models.New(l)
	t.Cleanup(func() { rt.Close() })

	logger := logging.Discard()
	return New(st, NewEngine(rt, 0, logger), rt, Options{MaxImageSide: 256, Logger: logger}), st
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	data, err := imaging.EncodePNG(img)
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	return data
}

func TestRecognize_MatchReturnsFeedbackAndRecordsHistory(t *testing.T) {
	svc, st := newTestService(t, loaders("BIG SALE TODAY", nil, nil))

	fb := []rules.Feedback{{Type: rules.FeedbackText, Content: "Deals inside"}}
	if _, err := st.SaveRule(rules.Rule{ID: "sale", Name: "Sale sign", Kind: rules.KindTextContains, Target: "sale", Feedback: fb}); err != nil {
		t.Fatalf("SaveRule: %v", err)
	}

	out, err := svc.Recognize(context.Background(), bytes.NewReader(pngBytes(t, 32, 32, color.White)))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if !out.Matched || out.RuleID != "sale" || out.RuleName != "Sale sign" {
		t.Errorf("outcome: %+v", out)
	}
	if len(out.Feedback) != 1 || out.Feedback[0].Content != "Deals inside" {
		t.Errorf("feedback: %+v", out.Feedback)
	}

	hist, err := svc.History(5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || hist[0].MatchedRuleID != "sale" || !hist[0].Success {
		t.Errorf("history: %+v", hist)
	}
}

func TestRecognize_NoMatch(t *testing.T) {
	svc, st := newTestService(t, loaders("", []models.Label{{Name: "desk", Confidence: 0.8}}, nil))
	if _, err := st.SeedDefaults(); err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}

	out, err := svc.Recognize(context.Background(), bytes.NewReader(pngBytes(t, 16, 16, color.Black)))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if out.Matched || out.RuleID != "" {
		t.Errorf("expected no match, got %+v", out)
	}

	hist, _ := svc.History(5)
	if len(hist) != 1 || hist[0].Success {
		t.Errorf("history: %+v", hist)
	}
}

func TestRecognize_DefaultRulesMatchLabel(t *testing.T) {
	svc, st := newTestService(t, loaders("", []models.Label{{Name: "Coffee Cup", Confidence: 0.91}}, nil))
	if _, err := st.SeedDefaults(); err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}
	out, err := svc.Recognize(context.Background(), bytes.NewReader(pngBytes(t, 16, 16, color.White)))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if out.RuleID != "rule_cup" {
		t.Errorf("got %q, want rule_cup", out.RuleID)
	}
}

func TestRecognize_DecodeError(t *testing.T) {
	svc, _ := newTestService(t, loaders("", nil, nil))

	_, err := svc.Recognize(context.Background(), strings.NewReader("definitely not an image"))
	if !errors.Is(err, imaging.ErrDecode) {
		t.Fatalf("got %v, want ErrDecode", err)
	}
	hist, _ := svc.History(5)
	if len(hist) != 0 {
		t.Errorf("decode failure recorded in history: %+v", hist)
	}
}

func TestRecognizeFile(t *testing.T) {
	svc, st := newTestService(t, loaders("exit", nil, nil))
	if _, err := st.SaveRule(rules.Rule{ID: "exit", Kind: rules.KindTextContains, Target: "EXIT"}); err != nil {
		t.Fatalf("SaveRule: %v", err)
	}

	path := filepath.Join(t.TempDir(), "frame.png")
	if err := os.WriteFile(path, pngBytes(t, 8, 8, color.White), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	out, err := svc.RecognizeFile(context.Background(), path)
	if err != nil {
		t.Fatalf("RecognizeFile: %v", err)
	}
	if out.RuleID != "exit" {
		t.Errorf("got %q, want exit", out.RuleID)
	}

	if _, err := svc.RecognizeFile(context.Background(), filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("expected error for missing file")
	} else if errors.Is(err, imaging.ErrDecode) {
		t.Error("missing file should not be reported as a decode error")
	}
}

func TestEmbedReference(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{0.6, 0.8}}
	svc, _ := newTestService(t, loaders("", nil, emb))

	vec, err := svc.EmbedReference(context.Background(), bytes.NewReader(pngBytes(t, 8, 8, color.White)))
	if err != nil {
		t.Fatalf("EmbedReference: %v", err)
	}
	if len(vec) != 2 || vec[1] != 0.8 {
		t.Errorf("got %v", vec)
	}
}

func TestEmbedReference_Failures(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		svc, _ := newTestService(t, loaders("", nil, nil))
		_, err := svc.EmbedReference(context.Background(), bytes.NewReader(pngBytes(t, 8, 8, color.White)))
		if !errors.Is(err, models.ErrDisabled) {
			t.Errorf("got %v, want ErrDisabled", err)
		}
	})
	t.Run("backend error", func(t *testing.T) {
		boom := errors.New("boom")
		svc, _ := newTestService(t, loaders("", nil, &stubEmbedder{err: boom}))
		_, err := svc.EmbedReference(context.Background(), bytes.NewReader(pngBytes(t, 8, 8, color.White)))
		if !errors.Is(err, boom) {
			t.Errorf("got %v, want boom", err)
		}
	})
	t.Run("decode error", func(t *testing.T) {
		svc, _ := newTestService(t, loaders("", nil, &stubEmbedder{vec: []float32{1}}))
		_, err := svc.EmbedReference(context.Background(), strings.NewReader("nope"))
		if !errors.Is(err, imaging.ErrDecode) {
			t.Errorf("got %v, want ErrDecode", err)
		}
	})
}

func TestAddRule_SimilarityFromReferenceImage(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1, 0}}
	svc, _ := newTestService(t, loaders("", nil, emb))

	r, err := svc.AddRule(context.Background(), Draft{
		Name:                "My mug",
		Kind:                "similarity",
		SimilarityThreshold: 0.9,
		Reference:           bytes.NewReader(pngBytes(t, 8, 8, color.White)),
	})
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if r.Kind != rules.KindEmbeddingSimilarity || len(r.ReferenceEmbedding) != 2 {
		t.Errorf("rule: %+v", r)
	}

	// The stored rule matches an image with the same embedding.
	out, err := svc.Recognize(context.Background(), bytes.NewReader(pngBytes(t, 8, 8, color.Black)))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if out.RuleID != r.ID {
		t.Errorf("got %q, want %q", out.RuleID, r.ID)
	}
}

func TestAddRule_Invalid(t *testing.T) {
	svc, _ := newTestService(t, loaders("", nil, nil))

	tests := []Draft{
		{Kind: "colour", Target: "red"},
		{Kind: "text_contains"},
		{Kind: "label_contains", Target: "cup", Feedback: []rules.Feedback{{Type: "smell", Content: "coffee"}}},
	}
	for _, d := range tests {
		if _, err := svc.AddRule(context.Background(), d); !errors.Is(err, rules.ErrInvalidRule) {
			t.Errorf("draft %+v: got %v, want ErrInvalidRule", d, err)
		}
	}
	rs, _ := svc.Rules()
	if len(rs) != 0 {
		t.Errorf("invalid drafts stored: %+v", rs)
	}
}

func TestRuleManagement(t *testing.T) {
	svc, _ := newTestService(t, loaders("", nil, nil))
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, err := svc.AddRule(ctx, Draft{ID: id, Kind: "text", Target: id}); err != nil {
			t.Fatalf("AddRule(%s): %v", id, err)
		}
	}
	if err := svc.ReorderRules([]string{"b"}); err != nil {
		t.Fatalf("ReorderRules: %v", err)
	}
	rs, _ := svc.Rules()
	if len(rs) != 2 || rs[0].ID != "b" {
		t.Errorf("order: %+v", rs)
	}
	if _, err := svc.Rule("a"); err != nil {
		t.Errorf("Rule(a): %v", err)
	}
	if err := svc.DeleteRule("a"); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if err := svc.DeleteRule("a"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestWarmupLoadsConfiguredBackends(t *testing.T) {
	svc, _ := newTestService(t, loaders("", nil, nil))
	svc.Warmup(context.Background())

	for _, st := range svc.RuntimeStatus() {
		switch st.Modality {
		case models.ModalityEmbedding:
			if st.Configured || st.State != models.StateIdle {
				t.Errorf("unconfigured embedding: %+v", st)
			}
		default:
			if st.State != models.StateReady {
				t.Errorf("%s not ready after warmup: %+v", st.Modality, st)
			}
		}
	}
}

func TestNewRuntime(t *testing.T) {
	cfg := &config.Config{
		Text:      config.TextConfig{Backend: config.BackendNone},
		Labels:    config.LabelConfig{Backend: config.BackendScene, TopK: 3},
		Embedding: config.EmbeddingConfig{Backend: config.BackendHistogram},
	}
	rt, err := NewRuntime(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	defer rt.Close()

	if rt.Configured(models.ModalityText) {
		t.Error("text backend should be disabled")
	}
	if !rt.Configured(models.ModalityLabel) || !rt.Configured(models.ModalityEmbedding) {
		t.Error("label and embedding backends should be configured")
	}

	emb, err := rt.Embeddings(context.Background())
	if err != nil {
		t.Fatalf("Embeddings: %v", err)
	}
	if emb.Dimensions() != imaging.HistogramDimensions {
		t.Errorf("dimensions: got %d", emb.Dimensions())
	}

	cfg.Labels.Backend = "clip"
	if _, err := NewRuntime(cfg, logging.Discard()); err == nil {
		t.Error("expected error for unknown label backend")
	}
}
