package lens

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/ironsheep/lens-match/internal/engine"
	"github.com/ironsheep/lens-match/internal/imaging"
	"github.com/ironsheep/lens-match/internal/models"
	"github.com/ironsheep/lens-match/internal/rules"
	"github.com/ironsheep/lens-match/internal/store"
)

// RuleStore is the persistence the service needs. *store.Store satisfies it.
type RuleStore interface {
	SaveRule(r rules.Rule) (rules.Rule, error)
	GetRule(id string) (rules.Rule, error)
	ListRules() ([]rules.Rule, error)
	DeleteRule(id string) error
	ReorderRules(ids []string) error
	SeedDefaults() (int, error)
	RecordRecognition(rec store.Recognition) (store.Recognition, error)
	RecentRecognitions(limit int) ([]store.Recognition, error)
}

// Options tunes a Service.
type Options struct {
	// MaxImageSide bounds the longer side of analysed images. Zero disables
	// downscaling.
	MaxImageSide int
	Logger       *slog.Logger
}

// Outcome is the result of one recognition.
type Outcome struct {
	Matched  bool             `json:"matched"`
	RuleID   string           `json:"rule_id,omitempty"`
	RuleName string           `json:"rule_name,omitempty"`
	Feedback []rules.Feedback `json:"feedback,omitempty"`
	Elapsed  time.Duration    `json:"elapsed_ns"`
}

// Service runs recognitions against the stored rule set.
type Service struct {
	store   RuleStore
	engine  *engine.Engine
	runtime *models.Runtime
	maxSide int
	logger  *slog.Logger
}

// New creates a Service.
func New(st RuleStore, eng *engine.Engine, rt *models.Runtime, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:   st,
		engine:  eng,
		runtime: rt,
		maxSide: opts.MaxImageSide,
		logger:  logger,
	}
}

// Recognize decodes an image from r and matches it against the current rule
// set. Undecodable input returns an error wrapping imaging.ErrDecode. Backend
// failures never surface here: they only narrow which rules can match.
func (s *Service) Recognize(ctx context.Context, r io.Reader) (*Outcome, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, err
	}
	img = imaging.Fit(img, s.maxSide)

	rs, err := s.store.ListRules()
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	start := time.Now()
	id, ok := s.engine.Analyze(ctx, img, rs)
	out := &Outcome{Elapsed: time.Since(start)}
	if ok {
		rule, _ := rules.Find(rs, id)
		out.Matched = true
		out.RuleID = rule.ID
		out.RuleName = rule.Name
		out.Feedback = rule.Feedback
	}

	if _, err := s.store.RecordRecognition(store.Recognition{
		MatchedRuleID: out.RuleID,
		Success:       out.Matched,
		Elapsed:       out.Elapsed,
	}); err != nil {
		s.logger.Warn("failed to record recognition", "error", err)
	}
	s.logger.Info("recognition", "matched", out.Matched, "rule", out.RuleID,
		"rules", len(rs), "elapsed", out.Elapsed)
	return out, nil
}

// RecognizeFile is Recognize over the image file at path.
func (s *Service) RecognizeFile(ctx context.Context, path string) (*Outcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()
	return s.Recognize(ctx, f)
}

// EmbedReference computes the embedding of a reference image for a
// similarity rule. Unlike recognition, a backend failure is an error.
func (s *Service) EmbedReference(ctx context.Context, r io.Reader) ([]float32, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, err
	}
	img = imaging.Fit(img, s.maxSide)

	backend, err := s.runtime.Embeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("embedding backend unavailable: %w", err)
	}
	vec, err := backend.Embed(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("failed to embed reference image: %w", err)
	}
	if len(vec) == 0 {
		return nil, errors.New("embedding backend returned an empty vector")
	}
	if d := backend.Dimensions(); d > 0 && len(vec) != d {
		return nil, fmt.Errorf("embedding has %d dimensions, backend declares %d", len(vec), d)
	}
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("embedding value %d is not finite", i)
		}
	}
	return vec, nil
}

// Draft is a rule as authored, before ids and embeddings are resolved.
type Draft struct {
	ID                  string
	Name                string
	Kind                string
	Target              string
	SimilarityThreshold float64

	// Reference is the reference image for a similarity rule. When set, its
	// embedding replaces ReferenceEmbedding.
	Reference          io.Reader
	ReferenceEmbedding []float32

	Feedback []rules.Feedback
}

// AddRule resolves d into a rule and stores it, appending it to the
// evaluation order. Returns the stored rule.
func (s *Service) AddRule(ctx context.Context, d Draft) (rules.Rule, error) {
	kind, err := rules.ParseKind(d.Kind)
	if err != nil {
		return rules.Rule{}, fmt.Errorf("%w: %v", rules.ErrInvalidRule, err)
	}

	r := rules.Rule{
		ID:                  d.ID,
		Name:                d.Name,
		Kind:                kind,
		Target:              d.Target,
		SimilarityThreshold: d.SimilarityThreshold,
		ReferenceEmbedding:  d.ReferenceEmbedding,
		Feedback:            d.Feedback,
	}
	if kind == rules.KindEmbeddingSimilarity && d.Reference != nil {
		if r.ReferenceEmbedding, err = s.EmbedReference(ctx, d.Reference); err != nil {
			return rules.Rule{}, err
		}
	}

	saved, err := s.store.SaveRule(r)
	if err != nil {
		return rules.Rule{}, err
	}
	s.logger.Info("rule saved", "rule", saved.ID, "kind", saved.Kind)
	return saved, nil
}

// Rules returns the rule set in evaluation order.
func (s *Service) Rules() ([]rules.Rule, error) {
	return s.store.ListRules()
}

// Rule returns one rule, or store.ErrNotFound.
func (s *Service) Rule(id string) (rules.Rule, error) {
	return s.store.GetRule(id)
}

// DeleteRule removes a rule, or returns store.ErrNotFound.
func (s *Service) DeleteRule(id string) error {
	return s.store.DeleteRule(id)
}

// ReorderRules moves the named rules to the front of the evaluation order.
func (s *Service) ReorderRules(ids []string) error {
	return s.store.ReorderRules(ids)
}

// SeedDefaults installs the default rules into an empty store.
func (s *Service) SeedDefaults() (int, error) {
	return s.store.SeedDefaults()
}

// History returns up to limit recent recognitions, newest first.
func (s *Service) History(limit int) ([]store.Recognition, error) {
	return s.store.RecentRecognitions(limit)
}

// RuntimeStatus reports the state of every backend.
func (s *Service) RuntimeStatus() []models.Status {
	return s.runtime.Status()
}

// Warmup initialises every configured backend. Failures are logged and the
// backend is retried on first use.
func (s *Service) Warmup(ctx context.Context) {
	for _, m := range models.Modalities {
		if !s.runtime.Configured(m) {
			continue
		}
		start := time.Now()
		if err := s.runtime.EnsureReady(ctx, m); err != nil {
			s.logger.Warn("backend warmup failed", "modality", m, "error", err)
			continue
		}
		s.logger.Info("backend ready", "modality", m, "elapsed", time.Since(start))
	}
}
