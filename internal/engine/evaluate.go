package engine

import (
	"strings"

	"github.com/ironsheep/lens-match/internal/rules"
)

// Evaluate walks rs in order and returns the id of the first rule c satisfies.
// It is a pure function of c and rs. Malformed rules never match.
func (e *Engine) Evaluate(c Classification, rs []rules.Rule) (string, bool) {
	for _, r := range rs {
		if e.matches(c, r) {
			e.logger.Debug("rule matched", "rule", r.ID, "kind", r.Kind)
			return r.ID, true
		}
	}
	return "", false
}

func (e *Engine) matches(c Classification, r rules.Rule) bool {
	switch r.Kind {
	case rules.KindTextContains:
		if r.Target == "" {
			e.logger.Debug("rule skipped", "rule", r.ID, "reason", "empty target")
			return false
		}
		if c.Text == "" {
			return false
		}
		return strings.Contains(strings.ToLower(c.Text), strings.ToLower(r.Target))

	case rules.KindLabelContains:
		if r.Target == "" {
			e.logger.Debug("rule skipped", "rule", r.ID, "reason", "empty target")
			return false
		}
		target := strings.ToLower(r.Target)
		for _, l := range c.Labels {
			if l.Confidence < e.labelFloor {
				continue
			}
			if strings.Contains(strings.ToLower(l.Name), target) {
				return true
			}
		}
		return false

	case rules.KindEmbeddingSimilarity:
		if !rules.ValidThreshold(r.SimilarityThreshold) {
			e.logger.Debug("rule skipped", "rule", r.ID, "reason", "threshold out of range", "threshold", r.SimilarityThreshold)
			return false
		}
		if !r.HasReference() || len(c.Embedding) == 0 {
			return false
		}
		if len(r.ReferenceEmbedding) != len(c.Embedding) {
			e.logger.Debug("rule skipped", "rule", r.ID, "reason", "embedding dimension mismatch",
				"reference", len(r.ReferenceEmbedding), "current", len(c.Embedding))
			return false
		}
		sim := CosineSimilarity(c.Embedding, r.ReferenceEmbedding)
		e.logger.Debug("similarity", "rule", r.ID, "score", sim, "threshold", r.Threshold())
		return sim >= r.Threshold()

	default:
		e.logger.Debug("rule skipped", "rule", r.ID, "reason", "unknown kind", "kind", r.Kind)
		return false
	}
}
