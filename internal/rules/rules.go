// Package rules defines recognition rules: the user-authored directives that
// the matching engine evaluates against a captured image.
//
// A rule is a closed tagged union over three kinds:
//   - KindTextContains: recognised text contains Target (case-insensitive)
//   - KindLabelContains: some classifier label contains Target (case-insensitive)
//   - KindEmbeddingSimilarity: cosine similarity between the image embedding and
//     ReferenceEmbedding reaches the rule's threshold
//
// Rules are validated once, at the store boundary, so the engine can switch on
// Kind without probing shapes at evaluation time. The engine never mutates a rule.
package rules

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Kind selects which classification modality a rule is tested against.
type Kind string

const (
	KindTextContains        Kind = "text_contains"
	KindLabelContains       Kind = "label_contains"
	KindEmbeddingSimilarity Kind = "embedding_similarity"
)

// DefaultSimilarityThreshold applies to similarity rules with no threshold set.
const DefaultSimilarityThreshold = 0.85

// ParseKind converts a kind name to a Kind. The legacy names used by older
// rule exports ("ocr", "image", "similarity") are accepted as aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(KindTextContains), "ocr", "text":
		return KindTextContains, nil
	case string(KindLabelContains), "image", "label":
		return KindLabelContains, nil
	case string(KindEmbeddingSimilarity), "similarity", "embedding":
		return KindEmbeddingSimilarity, nil
	default:
		return "", fmt.Errorf("unknown rule kind: %q", s)
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindTextContains, KindLabelContains, KindEmbeddingSimilarity:
		return true
	}
	return false
}

// FeedbackType is the media type of a feedback item.
type FeedbackType string

const (
	FeedbackText  FeedbackType = "text"
	FeedbackImage FeedbackType = "image"
	FeedbackVideo FeedbackType = "video"
	FeedbackAudio FeedbackType = "audio"
)

// Feedback is one item surfaced to the user when its rule matches.
// Content is plain text for FeedbackText and a media URL otherwise; the
// engine never interprets it.
type Feedback struct {
	Type    FeedbackType `json:"type"`
	Content string       `json:"content"`
}

// Rule is a single recognition directive.
type Rule struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	Target string `json:"target,omitempty"`

	// ReferenceEmbedding is produced at authoring time by running the embedding
	// extractor over a reference image. Only meaningful for similarity rules.
	ReferenceEmbedding []float32 `json:"reference_embedding,omitempty"`

	// SimilarityThreshold is in (0,1]; zero means DefaultSimilarityThreshold.
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`

	Feedback  []Feedback `json:"feedback"`
	CreatedAt time.Time  `json:"created_at"`
}

// Threshold returns the effective similarity threshold for the rule.
func (r Rule) Threshold() float64 {
	if r.SimilarityThreshold == 0 {
		return DefaultSimilarityThreshold
	}
	return r.SimilarityThreshold
}

// ValidThreshold reports whether t is an acceptable SimilarityThreshold:
// 0 (use the default) or any value in (0,1].
func ValidThreshold(t float64) bool {
	return !math.IsNaN(t) && t >= 0 && t <= 1
}

// HasReference reports whether a similarity rule carries a reference embedding.
func (r Rule) HasReference() bool {
	return len(r.ReferenceEmbedding) > 0
}

// ErrInvalidRule is wrapped by every error returned from Validate.
var ErrInvalidRule = errors.New("invalid rule")

// Validate checks the structural invariants of a rule.
//
// A similarity rule without a reference embedding is valid: it is stored as
// authored and simply never matches.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRule)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, r.Kind)
	}

	switch r.Kind {
	case KindTextContains, KindLabelContains:
		if strings.TrimSpace(r.Target) == "" {
			return fmt.Errorf("%w: %s rule %s has an empty target", ErrInvalidRule, r.Kind, r.ID)
		}
	case KindEmbeddingSimilarity:
		if !ValidThreshold(r.SimilarityThreshold) {
			return fmt.Errorf("%w: similarity threshold %v outside (0,1]", ErrInvalidRule, r.SimilarityThreshold)
		}
		for i, v := range r.ReferenceEmbedding {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return fmt.Errorf("%w: reference embedding value %d is not finite", ErrInvalidRule, i)
			}
		}
	}

	for i, fb := range r.Feedback {
		switch fb.Type {
		case FeedbackText, FeedbackImage, FeedbackVideo, FeedbackAudio:
		default:
			return fmt.Errorf("%w: feedback %d has unknown type %q", ErrInvalidRule, i, fb.Type)
		}
	}
	return nil
}

// NormalizeFeedback returns a copy of fb with media links upgraded from
// http:// to https://. Text feedback is returned unchanged.
func NormalizeFeedback(fb []Feedback) []Feedback {
	out := make([]Feedback, len(fb))
	for i, f := range fb {
		out[i] = f
		if f.Type == FeedbackText {
			continue
		}
		if len(f.Content) >= 7 && strings.EqualFold(f.Content[:7], "http://") {
			out[i].Content = "https://" + f.Content[7:]
		}
	}
	return out
}

// Find returns the rule with the given id, or false if none matches.
func Find(rs []Rule, id string) (Rule, bool) {
	for _, r := range rs {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}
